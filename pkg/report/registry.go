package report

import (
	"sort"
	"sync"

	"github.com/finreports/reportd/pkg/errcode"
)

// Registry resolves report ids to registered generators. It is
// populated once at startup; there is no dynamic loading of report
// modules at runtime.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a generator under its name, replacing any previous
// registration for the same id
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[g.Name()] = g
}

// Get resolves a report id, returning REPORT_NOT_FOUND for unknown ids
func (r *Registry) Get(reportID string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.generators[reportID]
	if !ok {
		return nil, errcode.New(errcode.CodeReportNotFound, "unknown report id %q", reportID)
	}
	return g, nil
}

// List returns the registered report ids, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
