package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/face"
)

// FileStore keeps one JSON file per snapshot under <root>/<org>/. Meant
// for local development and single-node installs.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) orgDir(orgID string) string {
	return filepath.Join(s.root, filepath.Base(orgID))
}

func (s *FileStore) Save(_ context.Context, st *face.BrainState) error {
	dir := s.orgDir(st.OrganizationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating org directory: %w", err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling brain state: %w", err)
	}
	// Zero-padded version keeps lexical order equal to version order.
	name := filepath.Join(dir, fmt.Sprintf("%012d.json", st.Version))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s version %d", domain.ErrDuplicate, st.OrganizationID, st.Version)
	}
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return fmt.Errorf("writing state file: %w", err)
	}
	return f.Close()
}

// files lists state files newest first.
func (s *FileStore) files(orgID string) ([]string, error) {
	entries, err := os.ReadDir(s.orgDir(orgID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing states: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (s *FileStore) read(orgID, name string) (*face.BrainState, error) {
	data, err := os.ReadFile(filepath.Join(s.orgDir(orgID), name))
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var st face.BrainState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return &st, nil
}

func (s *FileStore) Latest(_ context.Context, orgID string) (*face.BrainState, error) {
	names, err := s.files(orgID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("brain state for %s: %w", orgID, domain.ErrNotFound)
	}
	return s.read(orgID, names[0])
}

func (s *FileStore) History(_ context.Context, orgID string, limit int) ([]face.StateSummary, error) {
	if limit <= 0 {
		limit = 30
	}
	names, err := s.files(orgID)
	if err != nil {
		return nil, err
	}
	if len(names) > limit {
		names = names[:limit]
	}
	out := make([]face.StateSummary, 0, len(names))
	for _, n := range names {
		st, err := s.read(orgID, n)
		if err != nil {
			return nil, err
		}
		out = append(out, st.Summarize())
	}
	return out, nil
}

func (s *FileStore) LatestVersion(ctx context.Context, orgID string) (int64, error) {
	st, err := s.Latest(ctx, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return st.Version, nil
}
