package jobs

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Store is the interface for job record backends.
type Store interface {
	// Get retrieves a job by ID. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Job, error)

	// Put creates or replaces a job record.
	Put(ctx context.Context, job *Job) error

	// Delete removes a job record. Deleting a missing job is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all jobs, oldest first.
	List(ctx context.Context) ([]*Job, error)

	// Close releases backend resources.
	Close() error
}

// MemoryStore keeps job records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortJobs(jobs []*Job) {
	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

var _ Store = (*MemoryStore)(nil)
