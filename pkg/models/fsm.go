package models

import (
	"fmt"
)

// validTransitions maps from-state to allowed to-states.
// The job lifecycle is strictly one-directional:
// submitted → queued → running → {completed | failed | cancelled}
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusSubmitted: {
		JobStatusQueued:    true, // Submitted → Queued (enqueue succeeded)
		JobStatusCancelled: true, // Submitted → Cancelled (user cancels before enqueue settles)
	},
	JobStatusQueued: {
		JobStatusRunning:   true, // Queued → Running (worker picks up job)
		JobStatusCancelled: true, // Queued → Cancelled (user cancels, job removed from queue)
	},
	JobStatusRunning: {
		JobStatusCompleted: true, // Running → Completed (generator returned output)
		JobStatusFailed:    true, // Running → Failed (generator error or timeout)
		JobStatusCancelled: true, // Running → Cancelled (user cancels, worker aborts)
	},
	// Terminal states (no transitions allowed)
	JobStatusCompleted: {},
	JobStatusFailed:    {},
	JobStatusCancelled: {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalState returns true if the state is terminal (no further transitions)
func IsTerminalState(state JobStatus) bool {
	return state == JobStatusCompleted || state == JobStatusFailed || state == JobStatusCancelled
}

// IsActiveState returns true if the job is waiting for or undergoing execution
func IsActiveState(state JobStatus) bool {
	return state == JobStatusSubmitted || state == JobStatusQueued || state == JobStatusRunning
}
