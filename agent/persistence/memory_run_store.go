package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentcrew/types"
)

// MemoryRunStore keeps runs in process memory. Data is lost on restart.
type MemoryRunStore struct {
	runs   map[string]*RunRecord
	mu     sync.RWMutex
	closed bool
}

// NewMemoryRunStore creates an empty in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*RunRecord)}
}

// Close closes the store
func (s *MemoryRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping reports ErrStoreClosed after Close
func (s *MemoryRunStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveRun stores a copy of run
func (s *MemoryRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := validateRun(run); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.runs[run.ID] = cloneRun(run, true)
	return nil
}

// GetRun returns a copy of the stored run
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run, true), nil
}

// ListRuns returns summaries ordered by StartedAt descending
func (s *MemoryRunStore) ListRuns(ctx context.Context, opts ListOptions) ([]*RunRecord, error) {
	opts = opts.normalized()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	all := make([]*RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		if opts.Reason != "" && r.Reason != opts.Reason {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	if opts.Offset >= len(all) {
		return []*RunRecord{}, nil
	}
	all = all[opts.Offset:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}

	out := make([]*RunRecord, len(all))
	for i, r := range all {
		out[i] = cloneRun(r, false)
	}
	return out, nil
}

// DeleteRun removes a run
func (s *MemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.runs[id]; !ok {
		return ErrNotFound
	}
	delete(s.runs, id)
	return nil
}

// DeleteBefore removes runs that ended before t
func (s *MemoryRunStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	var n int64
	for id, r := range s.runs {
		if r.EndedAt.Before(t) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}

func cloneRun(r *RunRecord, withTranscript bool) *RunRecord {
	cp := *r
	cp.Transcript = nil
	if withTranscript {
		cp.Transcript = append([]types.Message(nil), r.Transcript...)
	}
	return &cp
}
