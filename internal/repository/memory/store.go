package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/face"
)

// Store is an append-only in-memory BrainState store.
type Store struct {
	mu     sync.RWMutex
	states map[string][]*face.BrainState // oldest first
}

func NewStore() *Store {
	return &Store{states: make(map[string][]*face.BrainState)}
}

func (s *Store) Save(_ context.Context, st *face.BrainState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, prev := range s.states[st.OrganizationID] {
		if prev.Version == st.Version || prev.ComputedAt.Equal(st.ComputedAt) {
			return fmt.Errorf("%w: %s version %d", domain.ErrDuplicate, st.OrganizationID, st.Version)
		}
	}
	cp := *st
	s.states[st.OrganizationID] = append(s.states[st.OrganizationID], &cp)
	return nil
}

func (s *Store) Latest(_ context.Context, orgID string) (*face.BrainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.states[orgID]
	if len(list) == 0 {
		return nil, fmt.Errorf("brain state for %s: %w", orgID, domain.ErrNotFound)
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (s *Store) History(_ context.Context, orgID string, limit int) ([]face.StateSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.states[orgID]
	out := []face.StateSummary{}
	for i := len(list) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, list[i].Summarize())
	}
	return out, nil
}

func (s *Store) LatestVersion(_ context.Context, orgID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.states[orgID]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Version, nil
}
