// Package store holds the in-memory job record store, the single
// source of truth for job status queries.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// MemoryStore is the in-memory implementation of the job record store.
// All mutation goes through a single RWMutex; contention is low (job
// counts are bounded by the queue capacity).
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
	}
}

// CreateJob adds a new job record
func (s *MemoryStore) CreateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob retrieves a snapshot of a job by ID
func (s *MemoryStore) GetJob(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// GetAllJobs returns snapshots of all jobs, oldest first
func (s *MemoryStore) GetAllJobs() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// TransitionJob moves a job to a new lifecycle state, validating the
// transition against the FSM. Transitions are monotonic: once a job is
// terminal the record is immutable and any further attempt returns
// INVALID_STATE_TRANSITION. Timestamps are maintained here so workers
// never touch them directly.
func (s *MemoryStore) TransitionJob(id string, to models.JobStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	return s.transitionLocked(job, to, reason, "")
}

// CompleteJob moves a job to completed and attaches its output files
// in one step. Validating the transition and recording the files under
// the same lock means a cancellation that already made the job
// terminal can never end up with output attached to it.
func (s *MemoryStore) CompleteJob(id string, files []models.OutputFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := s.transitionLocked(job, models.JobStatusCompleted, "", ""); err != nil {
		return err
	}
	job.Files = append([]models.OutputFile(nil), files...)
	return nil
}

// FailJob moves a job to failed, recording both the message and the
// machine-readable error code so clients can tell a timeout from a
// generator fault without parsing the message text.
func (s *MemoryStore) FailJob(id string, code errcode.Code, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	return s.transitionLocked(job, models.JobStatusFailed, reason, code)
}

// transitionLocked applies an FSM-validated state change. The caller
// holds s.mu.
func (s *MemoryStore) transitionLocked(job *models.Job, to models.JobStatus, reason string, code errcode.Code) error {
	from := job.Status
	if err := models.ValidateTransition(from, to); err != nil {
		return errcode.Wrap(errcode.CodeInvalidTransition, err,
			"job %s cannot move from %s to %s", job.ID, from, to)
	}

	now := time.Now()
	job.Status = to
	switch to {
	case models.JobStatusRunning:
		job.StartedAt = &now
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		job.CompletedAt = &now
	}
	if to == models.JobStatusFailed {
		if reason != "" {
			job.Error = reason
		}
		if code != "" {
			job.ErrorCode = string(code)
		}
	}
	if to == models.JobStatusCompleted {
		job.Progress = 100
	}
	job.StateTransitions = append(job.StateTransitions, models.StateTransition{
		From:      from,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	})
	return nil
}

// UpdateJobProgress records intermediate progress (0-100). Updates on
// terminal jobs are dropped silently: progress callbacks may race the
// final state transition and must never resurrect a finished job.
func (s *MemoryStore) UpdateJobProgress(id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if models.IsTerminalState(job.Status) {
		return nil
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	job.Progress = progress
	return nil
}

// SetJobFiles attaches the generated output file list to a job
func (s *MemoryStore) SetJobFiles(id string, files []models.OutputFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Files = append([]models.OutputFile(nil), files...)
	return nil
}

// DeleteJob removes a job record. Used by the gateway to unwind a
// submission rejected by the queue, keeping store and queue consistent.
func (s *MemoryStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// JobsByStatus returns a count of jobs per status, for metrics
func (s *MemoryStore) JobsByStatus() map[models.JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// Count returns the total number of job records
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
