package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"

	"github.com/google/uuid"
)

// JobStore keeps ingestion job records in process memory. Jobs are transient
// bookkeeping for the accept-then-poll contract, so they do not get a table.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*entity.IngestionJob
}

func NewJobStore() repository.JobRepository {
	return &JobStore{jobs: make(map[string]*entity.IngestionJob)}
}

func (s *JobStore) Create(ctx context.Context, job *entity.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = entity.JobQueued
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *JobStore) FindByID(ctx context.Context, id string) (*entity.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

// Update applies mutate under the store lock, then enforces the job
// invariants: terminal states are frozen and progress never decreases.
func (s *JobStore) Update(ctx context.Context, id string, mutate func(job *entity.IngestionJob)) (*entity.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job %s already %s", id, job.Status)
	}

	prevProgress := job.Progress
	prevStatus := job.Status
	mutate(job)

	if job.Progress < prevProgress {
		job.Progress = prevProgress
	}
	if job.Status.Rank() < prevStatus.Rank() {
		job.Status = prevStatus
	}
	if job.Progress > 100 {
		job.Progress = 100
	}
	job.UpdatedAt = time.Now()
	if job.Status.Terminal() {
		finished := job.UpdatedAt
		job.FinishedAt = &finished
		if job.Status == entity.JobCompleted {
			job.Progress = 100
		}
	}

	return cloneJob(job), nil
}

func cloneJob(job *entity.IngestionJob) *entity.IngestionJob {
	out := *job
	out.InputFiles = append([]string(nil), job.InputFiles...)
	out.AffectedTables = append([]string(nil), job.AffectedTables...)
	out.Errors = append([]entity.JobItemError(nil), job.Errors...)
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		out.FinishedAt = &finished
	}
	return &out
}
