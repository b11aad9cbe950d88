// Package worker runs the fixed-size pool of executors that drain the
// job queue and invoke report generators.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/files"
	"github.com/finreports/reportd/pkg/logging"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/queue"
	"github.com/finreports/reportd/pkg/report"
	"github.com/finreports/reportd/pkg/store"
)

// Config holds pool sizing and execution limits
type Config struct {
	Size          int           // number of concurrent workers
	RenderTimeout time.Duration // hard budget per generator invocation
	CancelGrace   time.Duration // how long to wait for a generator to honor cancellation
}

// DefaultConfig returns sensible pool defaults
func DefaultConfig() Config {
	return Config{
		Size:          4,
		RenderTimeout: 5 * time.Minute,
		CancelGrace:   10 * time.Second,
	}
}

// Recorder is an optional sink for execution metrics
type Recorder interface {
	RecordFinished(status models.JobStatus)
	ObserveRenderDuration(d time.Duration)
}

// Pool executes queued jobs. Each worker loops: dequeue → mark running
// → invoke the generator under a timeout and cancellation context →
// record output and the terminal state. The queue delivers each id to
// exactly one worker, so no two workers ever run the same job.
type Pool struct {
	config   Config
	store    *store.MemoryStore
	queue    *queue.Queue
	registry *report.Registry
	files    *files.Manager
	log      *logging.Logger
	recorder Recorder

	mu      sync.Mutex
	running map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewPool creates a worker pool
func NewPool(config Config, st *store.MemoryStore, q *queue.Queue, reg *report.Registry, fm *files.Manager, log *logging.Logger) *Pool {
	if config.Size <= 0 {
		config.Size = DefaultConfig().Size
	}
	if config.RenderTimeout <= 0 {
		config.RenderTimeout = DefaultConfig().RenderTimeout
	}
	if config.CancelGrace <= 0 {
		config.CancelGrace = DefaultConfig().CancelGrace
	}
	if log == nil {
		log = logging.NewLogger(logging.INFO, false)
	}
	return &Pool{
		config:   config,
		store:    st,
		queue:    q,
		registry: reg,
		files:    fm,
		log:      log.WithField("component", "worker"),
		running:  make(map[string]context.CancelFunc),
	}
}

// SetRecorder sets the metrics sink
func (p *Pool) SetRecorder(r Recorder) {
	p.recorder = r
}

// Start launches the workers
func (p *Pool) Start() {
	p.log.Info("Starting worker pool", map[string]interface{}{
		"size":    p.config.Size,
		"timeout": p.config.RenderTimeout.String(),
	})
	for i := 0; i < p.config.Size; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Stop closes the queue and waits for in-flight executions to settle
func (p *Pool) Stop() {
	p.queue.Close()
	p.wg.Wait()
	p.log.Info("Worker pool stopped")
}

// Cancel signals the worker executing jobID to abort. Returns false if
// the job is not currently executing on any worker.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.running[jobID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)

	for {
		jobID, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		p.execute(log, jobID)
	}
}

type renderResult struct {
	files []report.File
	err   error
}

func (p *Pool) execute(log *logging.Logger, jobID string) {
	job, err := p.store.GetJob(jobID)
	if err != nil {
		log.Warn("Dequeued unknown job", map[string]interface{}{"job_id": jobID})
		return
	}

	// A job cancelled between dequeue and here fails the transition;
	// the worker just moves on without invoking the generator.
	if err := p.store.TransitionJob(jobID, models.JobStatusRunning, ""); err != nil {
		log.Info("Skipping job no longer runnable", map[string]interface{}{
			"job_id": jobID, "status": string(job.Status),
		})
		return
	}

	gen, err := p.registry.Get(job.ReportID)
	if err != nil {
		p.fail(log, jobID, errcode.CodeExecutionError, fmt.Sprintf("report %q is not registered", job.ReportID), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.RenderTimeout)
	p.mu.Lock()
	p.running[jobID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, jobID)
		p.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	resultCh := make(chan renderResult, 1)
	go func() {
		rendered, renderErr := gen.Render(ctx, job.Arguments, func(progress int) {
			// Progress forwarding must never block the generator.
			p.store.UpdateJobProgress(jobID, progress)
		})
		resultCh <- renderResult{files: rendered, err: renderErr}
	}()

	select {
	case res := <-resultCh:
		p.settle(log, jobID, res, ctx, time.Since(start))
	case <-ctx.Done():
		p.abort(log, jobID, ctx, resultCh, time.Since(start))
	}
}

// settle handles a generator that returned on its own
func (p *Pool) settle(log *logging.Logger, jobID string, res renderResult, ctx context.Context, elapsed time.Duration) {
	if res.err != nil {
		// A generator that returned because its context fired is an
		// abort, not an execution error.
		if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
			p.abortReason(log, jobID, ctx, elapsed)
			return
		}
		p.files.DeleteJobFiles(jobID)
		p.fail(log, jobID, errcode.CodeExecutionError, sanitizeError(res.err), elapsed)
		return
	}

	recorded, err := p.files.RecordFiles(jobID, res.files)
	if err != nil {
		p.files.DeleteJobFiles(jobID)
		p.fail(log, jobID, errcode.CodeExecutionError, sanitizeError(err), elapsed)
		return
	}

	// A cancel can land in the window between the running transition
	// and the cancel-func registration; the job is then already
	// terminal and its output must not surface.
	if err := p.store.CompleteJob(jobID, recorded); err != nil {
		log.Warn("Discarding output for job no longer completable", map[string]interface{}{
			"job_id": jobID, "error": err.Error(),
		})
		p.files.DeleteJobFiles(jobID)
		return
	}
	p.observe(log, jobID, models.JobStatusCompleted, "", elapsed)
}

// abort handles a context firing before the generator returned. The
// worker waits a grace period for cooperative cancellation; if the
// generator still has not returned it is abandoned, the job is settled
// anyway, and the leak is logged.
func (p *Pool) abort(log *logging.Logger, jobID string, ctx context.Context, resultCh chan renderResult, elapsed time.Duration) {
	select {
	case <-resultCh:
		// Generator honored the cancellation.
	case <-time.After(p.config.CancelGrace):
		log.Warn("Generator ignored cancellation, abandoning execution (goroutine leak)", map[string]interface{}{
			"job_id": jobID, "grace": p.config.CancelGrace.String(),
		})
	}
	p.abortReason(log, jobID, ctx, elapsed)
}

func (p *Pool) abortReason(log *logging.Logger, jobID string, ctx context.Context, elapsed time.Duration) {
	p.files.DeleteJobFiles(jobID)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("execution timeout: generator exceeded %s budget", p.config.RenderTimeout)
		p.fail(log, jobID, errcode.CodeExecutionTimeout, msg, elapsed)
		return
	}
	p.finish(log, jobID, models.JobStatusCancelled, "", elapsed)
}

func (p *Pool) fail(log *logging.Logger, jobID string, code errcode.Code, errMsg string, elapsed time.Duration) {
	if err := p.store.FailJob(jobID, code, errMsg); err != nil {
		log.Warn("Terminal transition rejected", map[string]interface{}{
			"job_id": jobID, "status": string(models.JobStatusFailed), "error": err.Error(),
		})
		return
	}
	p.observe(log, jobID, models.JobStatusFailed, errMsg, elapsed)
}

func (p *Pool) finish(log *logging.Logger, jobID string, status models.JobStatus, errMsg string, elapsed time.Duration) {
	if err := p.store.TransitionJob(jobID, status, errMsg); err != nil {
		log.Warn("Terminal transition rejected", map[string]interface{}{
			"job_id": jobID, "status": string(status), "error": err.Error(),
		})
		return
	}
	p.observe(log, jobID, status, errMsg, elapsed)
}

func (p *Pool) observe(log *logging.Logger, jobID string, status models.JobStatus, errMsg string, elapsed time.Duration) {
	fields := map[string]interface{}{"job_id": jobID, "elapsed": elapsed.String()}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	log.Info("Job "+string(status), fields)

	if p.recorder != nil {
		p.recorder.RecordFinished(status)
		if elapsed > 0 {
			p.recorder.ObserveRenderDuration(elapsed)
		}
	}
}

// sanitizeError trims generator error text before it is stored on the
// job record and exposed to pollers
func sanitizeError(err error) string {
	msg := err.Error()
	msg = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return ' '
		}
		return r
	}, msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return strings.TrimSpace(msg)
}
