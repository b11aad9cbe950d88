// Package report defines the report-generator capability invoked by
// the worker pool, and the registry that resolves report ids to
// registered generators at startup.
package report

import (
	"context"
)

// File is a single rendered output produced by a generator. The worker
// hands rendered files to the file manager, which owns their on-disk
// lifecycle.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Generator renders a report from opaque key/value arguments. The
// engine knows nothing about the business formatting inside Render.
//
// Render must honor ctx for cancellation and may report intermediate
// progress (0-100) through the progress callback; both are optional
// courtesies the engine backstops with a hard timeout.
type Generator interface {
	// Name returns the report id this generator is registered under
	Name() string

	// RequiredArgs lists argument keys that must be present at submission
	RequiredArgs() []string

	// Render produces the output files for one job
	Render(ctx context.Context, args map[string]interface{}, progress func(int)) ([]File, error)
}
