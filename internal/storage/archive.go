package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/pkg/logger"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchivingStore writes a JSON copy of every saved state to S3. The
// wrapped store stays the source of truth: an archive failure is logged
// and never fails the save.
type ArchivingStore struct {
	engine.StateStore
	client S3API
	bucket string
	prefix string
}

func NewArchivingStore(inner engine.StateStore, client S3API, bucket, prefix string) *ArchivingStore {
	return &ArchivingStore{StateStore: inner, client: client, bucket: bucket, prefix: prefix}
}

// ArchiveKey is the object key a state is archived under.
func (a *ArchivingStore) ArchiveKey(st *face.BrainState) string {
	return path.Join(a.prefix, st.OrganizationID, st.ComputedAt.UTC().Format(sortKeyLayout)+".json")
}

func (a *ArchivingStore) Save(ctx context.Context, st *face.BrainState) error {
	if err := a.StateStore.Save(ctx, st); err != nil {
		return err
	}
	if err := a.archive(ctx, st); err != nil {
		logger.Warn("brain state archive failed",
			"component", "storage", "org_id", st.OrganizationID, "version", st.Version, "error", err)
	}
	return nil
}

func (a *ArchivingStore) archive(ctx context.Context, st *face.BrainState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling brain state: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.ArchiveKey(st)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}
