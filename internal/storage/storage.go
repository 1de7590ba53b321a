// Package storage builds the BrainState store selected by configuration
// and provides the non-Postgres backends.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/engine"
	repomem "github.com/ignite/perf-brain/internal/repository/memory"
	"github.com/ignite/perf-brain/internal/repository/postgres"
)

var (
	_ engine.StateStore = (*postgres.StateStore)(nil)
	_ engine.StateStore = (*repomem.Store)(nil)
	_ engine.StateStore = (*DynamoStore)(nil)
	_ engine.StateStore = (*FileStore)(nil)
	_ engine.StateStore = (*ArchivingStore)(nil)
)

// New returns the state store for cfg.Type, wrapped with the S3 archive
// when an archive bucket is configured. db is only used by the postgres
// store.
func New(ctx context.Context, cfg config.StorageConfig, db *sql.DB) (engine.StateStore, error) {
	var (
		store engine.StateStore
		err   error
	)
	switch cfg.Type {
	case "postgres":
		if db == nil {
			return nil, errors.New("postgres storage requires a database connection")
		}
		store = postgres.NewStateStore(db)
	case "dynamodb":
		awsCfg, aerr := LoadAWSConfig(ctx, cfg.AWSRegion, cfg.GetAWSProfile(), "", "")
		if aerr != nil {
			return nil, aerr
		}
		store = NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
	case "local":
		if store, err = NewFileStore(cfg.LocalPath); err != nil {
			return nil, err
		}
	case "memory":
		store = repomem.NewStore()
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	if cfg.ArchiveBucket == "" {
		return store, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg.AWSRegion, cfg.GetAWSProfile(), "", "")
	if err != nil {
		return nil, err
	}
	return NewArchivingStore(store, s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, cfg.ArchivePrefix), nil
}
