package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spendwise/moneytalk/internal/notify"
)

// Store is an in-memory implementation of JobStore. It is safe for
// concurrent use. Dispatch records are lost on restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*notify.SummaryJob
}

// NewStore creates a new in-memory dispatch record store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*notify.SummaryJob),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *notify.SummaryJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external modifications
	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy

	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*notify.SummaryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, status notify.JobStatus) ([]*notify.SummaryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*notify.SummaryJob
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// Ensure Store implements JobStore interface.
var _ notify.JobStore = (*Store)(nil)
