// Package memory provides in-memory job history for development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// JobStore keeps job records keyed by run ID.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.JobRecord
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crawler.JobRecord)}
}

// SaveJob inserts or replaces the record for job.RunID.
func (s *JobStore) SaveJob(_ context.Context, job crawler.JobRecord) error {
	if job.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.RunID] = cloneJob(job)
	return nil
}

// GetJob returns a copy of the stored record or crawler.ErrNotFound.
func (s *JobStore) GetJob(_ context.Context, runID string) (crawler.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[runID]
	if !ok {
		return crawler.JobRecord{}, fmt.Errorf("job %s: %w", runID, crawler.ErrNotFound)
	}
	return cloneJob(job), nil
}

func cloneJob(job crawler.JobRecord) crawler.JobRecord {
	job.ErrorInfos = maps.Clone(job.ErrorInfos)
	if job.Finished != nil {
		finished := *job.Finished
		job.Finished = &finished
	}
	return job
}
