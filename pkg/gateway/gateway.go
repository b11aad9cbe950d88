// Package gateway validates incoming job requests, assigns ids, and
// enqueues jobs atomically with respect to queue capacity.
package gateway

import (
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/queue"
	"github.com/finreports/reportd/pkg/report"
	"github.com/finreports/reportd/pkg/store"
)

// Config bounds request validation
type Config struct {
	PriorityMin     int
	PriorityMax     int
	DefaultPriority int
}

// DefaultConfig returns the default validation bounds
func DefaultConfig() Config {
	return Config{
		PriorityMin:     1,
		PriorityMax:     10,
		DefaultPriority: 5,
	}
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9 ._-]+$`)

// Canceller aborts a job currently executing on a worker
type Canceller interface {
	Cancel(jobID string) bool
}

// Recorder is an optional sink for submission metrics
type Recorder interface {
	RecordSubmitted()
	RecordRejected(reason string)
}

// Gateway is the submission front door. A single mutex guards the
// store insert and the enqueue together, so two submissions can never
// both pass a capacity check and exceed capacity, and a QUEUE_FULL
// rejection leaves no orphan store record.
type Gateway struct {
	mu        sync.Mutex
	config    Config
	store     *store.MemoryStore
	queue     *queue.Queue
	registry  *report.Registry
	canceller Canceller
	recorder  Recorder
}

// New creates a gateway
func New(config Config, st *store.MemoryStore, q *queue.Queue, reg *report.Registry) *Gateway {
	if config.PriorityMax <= config.PriorityMin {
		config = DefaultConfig()
	}
	return &Gateway{
		config:   config,
		store:    st,
		queue:    q,
		registry: reg,
	}
}

// SetCanceller wires the worker pool in after construction
func (g *Gateway) SetCanceller(c Canceller) {
	g.canceller = c
}

// SetRecorder sets the metrics sink
func (g *Gateway) SetRecorder(r Recorder) {
	g.recorder = r
}

// Submit validates a request, creates the job record, and enqueues it.
// Enqueue is synchronous with submission, so the job is visible as
// queued the moment Submit returns.
func (g *Gateway) Submit(req *models.JobRequest) (*models.Job, error) {
	if err := g.validate(req); err != nil {
		if g.recorder != nil {
			if ce, ok := errcode.FromError(err); ok {
				g.recorder.RecordRejected(string(ce.Code))
			}
		}
		return nil, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = g.config.DefaultPriority
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Name:      req.Name,
		ReportID:  req.ReportID,
		Arguments: req.Arguments,
		Priority:  priority,
		Status:    models.JobStatusSubmitted,
		CreatedAt: time.Now(),
	}

	g.mu.Lock()
	if g.queue.Len() >= g.queue.Capacity() {
		g.mu.Unlock()
		if g.recorder != nil {
			g.recorder.RecordRejected(string(errcode.CodeQueueFull))
		}
		return nil, errcode.New(errcode.CodeQueueFull, "queue at capacity (%d)", g.queue.Capacity())
	}
	if err := g.store.CreateJob(job); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	if err := g.queue.Enqueue(job.ID); err != nil {
		// Unreachable while submissions hold g.mu, but the store record
		// must never outlive a queue rejection.
		g.store.DeleteJob(job.ID)
		g.mu.Unlock()
		if g.recorder != nil {
			g.recorder.RecordRejected(string(errcode.CodeQueueFull))
		}
		return nil, err
	}
	g.store.TransitionJob(job.ID, models.JobStatusQueued, "")
	g.mu.Unlock()

	if g.recorder != nil {
		g.recorder.RecordSubmitted()
	}
	return g.store.GetJob(job.ID)
}

func (g *Gateway) validate(req *models.JobRequest) error {
	if req.Name == "" {
		return errcode.New(errcode.CodeValidation, "name must not be empty").WithDetail("field", "name")
	}
	if !nameRe.MatchString(req.Name) {
		return errcode.New(errcode.CodeValidation,
			"name may only contain letters, digits, spaces, '.', '_' and '-'").WithDetail("field", "name")
	}

	gen, err := g.registry.Get(req.ReportID)
	if err != nil {
		return err
	}
	for _, arg := range gen.RequiredArgs() {
		if _, ok := req.Arguments[arg]; !ok {
			return errcode.New(errcode.CodeValidation,
				"missing required argument %q for report %q", arg, req.ReportID).WithDetail("field", arg)
		}
	}

	if req.Priority != 0 && (req.Priority < g.config.PriorityMin || req.Priority > g.config.PriorityMax) {
		return errcode.New(errcode.CodeValidation,
			"priority must be between %d and %d", g.config.PriorityMin, g.config.PriorityMax).WithDetail("field", "priority")
	}
	return nil
}

// Cancel cancels a job if it is still cancellable. A queued job is
// pulled out of the queue without ever running; a running job gets a
// cooperative cancellation signal through its worker. Cancelling a
// terminal job returns INVALID_STATE_TRANSITION (HTTP 409).
func (g *Gateway) Cancel(jobID string) error {
	job, err := g.store.GetJob(jobID)
	if err != nil {
		return errcode.Wrap(errcode.CodeNotFound, err, "job %s not found", jobID)
	}
	if models.IsTerminalState(job.Status) {
		return errcode.New(errcode.CodeInvalidTransition,
			"job %s is already %s", jobID, job.Status)
	}

	if g.queue.Remove(jobID) {
		return g.store.TransitionJob(jobID, models.JobStatusCancelled, "cancelled while queued")
	}

	if g.canceller != nil && g.canceller.Cancel(jobID) {
		// The worker observes the signal and records the terminal state.
		return nil
	}

	// Dequeued but not yet registered as running: mark cancelled so the
	// worker's running transition fails and the generator never starts.
	return g.store.TransitionJob(jobID, models.JobStatusCancelled, "cancelled before execution")
}
