package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a report job
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents an asynchronous report generation job
type Job struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ReportID         string                 `json:"report_id"`
	Arguments        map[string]interface{} `json:"arguments,omitempty"`
	Priority         int                    `json:"priority"` // informational, does not reorder the queue
	Status           JobStatus              `json:"status"`
	Progress         int                    `json:"progress"` // 0-100%
	CreatedAt        time.Time              `json:"created_at"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ErrorCode        string                 `json:"error_code,omitempty"`
	Files            []OutputFile           `json:"files,omitempty"`
	StateTransitions []StateTransition      `json:"state_transitions,omitempty"`
}

// Clone returns a deep copy of the job. The store hands out clones so
// concurrent pollers never observe a job mid-mutation.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Arguments != nil {
		c.Arguments = make(map[string]interface{}, len(j.Arguments))
		for k, v := range j.Arguments {
			c.Arguments[k] = v
		}
	}
	c.Files = append([]OutputFile(nil), j.Files...)
	c.StateTransitions = append([]StateTransition(nil), j.StateTransitions...)
	return &c
}

// JobRequest represents a request to create a new report job
type JobRequest struct {
	Name      string                 `json:"name"`
	ReportID  string                 `json:"report_id"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Priority  int                    `json:"priority,omitempty"`
}

// OutputFile describes a single generated report output file
type OutputFile struct {
	JobID       string    `json:"job_id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateTransition tracks job state changes with timestamps
type StateTransition struct {
	From      JobStatus `json:"from"`
	To        JobStatus `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}
