// Package poller implements the client-side adaptive status polling
// protocol: poll until the job reaches a terminal state, backing off
// while nothing changes and resetting when something does.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/finreports/reportd/pkg/models"
)

// ErrPollingAborted is returned after too many consecutive transport
// errors. It is a client-side failure, distinct from the job failing.
var ErrPollingAborted = errors.New("status polling aborted after consecutive errors")

// Status is the compact status document returned by the status endpoint
type Status struct {
	ID       string           `json:"id"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Error    string           `json:"error,omitempty"`
	// ErrorCode distinguishes EXECUTION_TIMEOUT from EXECUTION_ERROR
	// without parsing the message text.
	ErrorCode string `json:"error_code,omitempty"`
}

// StatusFetcher retrieves job status and output file lists. The HTTP
// client implements it; tests substitute fakes.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*Status, error)
	JobFiles(ctx context.Context, jobID string) ([]models.OutputFile, error)
}

// Config holds the polling protocol parameters
type Config struct {
	InitialInterval    time.Duration // first wait between polls
	MaxInterval        time.Duration // backoff cap
	BackoffFactor      float64       // growth while status is unchanged
	ErrorBackoffFactor float64       // steeper growth after transport errors
	ErrorLimit         int           // consecutive errors before giving up
}

// DefaultConfig returns the default polling parameters
func DefaultConfig() Config {
	return Config{
		InitialInterval:    2 * time.Second,
		MaxInterval:        30 * time.Second,
		BackoffFactor:      1.5,
		ErrorBackoffFactor: 2.0,
		ErrorLimit:         5,
	}
}

// state is the per-job ephemeral poll state
type state struct {
	config      Config
	interval    time.Duration
	consecutive int
	lastStatus  models.JobStatus
}

func newState(config Config) *state {
	return &state{config: config, interval: config.InitialInterval}
}

// observe folds one successful poll into the state and returns the
// next wait interval. A status change resets the backoff to the
// initial interval; an unchanged status grows it toward the cap.
func (s *state) observe(status models.JobStatus) time.Duration {
	s.consecutive = 0
	if status != s.lastStatus {
		s.lastStatus = status
		s.interval = s.config.InitialInterval
		return s.interval
	}
	s.interval = s.grow(s.interval, s.config.BackoffFactor)
	return s.interval
}

// observeError folds one failed poll into the state. It returns false
// once the consecutive error limit is reached.
func (s *state) observeError() (time.Duration, bool) {
	s.consecutive++
	if s.consecutive >= s.config.ErrorLimit {
		return 0, false
	}
	s.interval = s.grow(s.interval, s.config.ErrorBackoffFactor)
	return s.interval, true
}

func (s *state) grow(d time.Duration, factor float64) time.Duration {
	next := time.Duration(float64(d) * factor)
	if next > s.config.MaxInterval {
		next = s.config.MaxInterval
	}
	return next
}

// Result is the final outcome of a poll loop
type Result struct {
	Status *Status
	Files  []models.OutputFile
}

// Poller drives the polling state machine for individual jobs
type Poller struct {
	fetcher StatusFetcher
	config  Config
}

// New creates a poller
func New(fetcher StatusFetcher, config Config) *Poller {
	if config.InitialInterval <= 0 {
		config = DefaultConfig()
	}
	return &Poller{fetcher: fetcher, config: config}
}

// Poll queries job status until the job is terminal, then fetches the
// file list. onUpdate, if non-nil, is invoked for every observed
// status. Cancelling ctx stops the loop immediately; no further
// requests for the job are made afterwards.
func (p *Poller) Poll(ctx context.Context, jobID string, onUpdate func(*Status)) (*Result, error) {
	st := newState(p.config)
	timer := time.NewTimer(p.config.InitialInterval)
	defer timer.Stop()

	for {
		status, err := p.fetcher.JobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			wait, ok := st.observeError()
			if !ok {
				return nil, ErrPollingAborted
			}
			if err := sleep(ctx, timer, wait); err != nil {
				return nil, err
			}
			continue
		}

		if onUpdate != nil {
			onUpdate(status)
		}

		if models.IsTerminalState(status.Status) {
			// Terminal: stop polling immediately, regardless of the
			// current interval, and fetch the outputs.
			result := &Result{Status: status}
			if status.Status == models.JobStatusCompleted {
				files, err := p.fetcher.JobFiles(ctx, jobID)
				if err != nil {
					return result, err
				}
				result.Files = files
			}
			return result, nil
		}

		wait := st.observe(status.Status)
		if err := sleep(ctx, timer, wait); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, timer *time.Timer, d time.Duration) error {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
