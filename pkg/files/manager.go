// Package files tracks generated output files per job and enforces
// retention-based deletion through a background sweep.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/logging"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/report"
)

// Config defines retention policy and sweep cadence
type Config struct {
	BaseDir       string
	Retention     time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns sensible defaults for file retention
func DefaultConfig() Config {
	return Config{
		BaseDir:       "./reportd_output",
		Retention:     7 * 24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// StatusLookup is the slice of the job store the sweeper needs: it
// must not delete files of jobs that are still running.
type StatusLookup interface {
	GetJob(id string) (*models.Job, error)
}

// Recorder is an optional sink for sweep metrics
type Recorder interface {
	AddFilesSwept(n int)
}

// SweepStats tracks sweep operations
type SweepStats struct {
	LastSweepTime     time.Time
	LastSweepDuration time.Duration
	TotalFilesDeleted int64
	TotalSweepRuns    int64
}

// Manager owns the on-disk output files and their metadata. Files are
// written under BaseDir/<jobID>/ and looked up strictly by (jobID,
// filename) so one job can never read another job's output.
type Manager struct {
	config   Config
	jobs     StatusLookup
	log      *logging.Logger
	recorder Recorder

	mu    sync.RWMutex
	byJob map[string][]models.OutputFile

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.RWMutex
	stats   SweepStats
}

// NewManager creates a file manager
func NewManager(config Config, jobs StatusLookup, log *logging.Logger) *Manager {
	if config.BaseDir == "" {
		config.BaseDir = DefaultConfig().BaseDir
	}
	if log == nil {
		log = logging.NewLogger(logging.INFO, false)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config: config,
		jobs:   jobs,
		log:    log.WithField("component", "files"),
		byJob:  make(map[string][]models.OutputFile),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetRecorder sets the metrics sink
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// RecordFiles writes rendered output to disk and records its metadata.
// Called by a worker when a generator finishes successfully.
func (m *Manager) RecordFiles(jobID string, rendered []report.File) ([]models.OutputFile, error) {
	dir := filepath.Join(m.config.BaseDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	now := time.Now()
	recorded := make([]models.OutputFile, 0, len(rendered))
	for _, f := range rendered {
		name := filepath.Base(f.Name) // no path traversal out of the job dir
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, f.Data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write output file %s: %w", path, err)
		}
		recorded = append(recorded, models.OutputFile{
			JobID:       jobID,
			Filename:    name,
			Size:        int64(len(f.Data)),
			ContentType: f.ContentType,
			CreatedAt:   now,
		})
	}

	m.mu.Lock()
	m.byJob[jobID] = recorded
	m.mu.Unlock()

	return recorded, nil
}

// ListFiles returns the output files recorded for a job
func (m *Manager) ListFiles(jobID string) []models.OutputFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.OutputFile(nil), m.byJob[jobID]...)
}

// GetFile returns the content of one output file. Returns NOT_FOUND
// when the filename is not associated with that job id.
func (m *Manager) GetFile(jobID, filename string) ([]byte, *models.OutputFile, error) {
	m.mu.RLock()
	var meta *models.OutputFile
	for i := range m.byJob[jobID] {
		if m.byJob[jobID][i].Filename == filename {
			f := m.byJob[jobID][i]
			meta = &f
			break
		}
	}
	m.mu.RUnlock()

	if meta == nil {
		return nil, nil, errcode.New(errcode.CodeNotFound,
			"file %q not found for job %s", filename, jobID)
	}

	data, err := os.ReadFile(filepath.Join(m.config.BaseDir, jobID, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errcode.Wrap(errcode.CodeNotFound, err,
				"file %q missing on disk for job %s", filename, jobID)
		}
		return nil, nil, fmt.Errorf("failed to read output file: %w", err)
	}
	return data, meta, nil
}

// DeleteJobFiles removes all output for a job, metadata and disk.
// Called on failure or cancellation so partial output never leaks.
func (m *Manager) DeleteJobFiles(jobID string) error {
	m.mu.Lock()
	delete(m.byJob, jobID)
	m.mu.Unlock()

	dir := filepath.Join(m.config.BaseDir, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove output directory %s: %w", dir, err)
	}
	return nil
}

// Start begins the background sweep loop
func (m *Manager) Start() {
	m.log.Info("Starting file sweeper", map[string]interface{}{
		"retention": m.config.Retention.String(),
		"interval":  m.config.SweepInterval.String(),
	})
	m.wg.Add(1)
	go m.sweepLoop()
}

// Stop gracefully stops the sweep loop
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.log.Info("File sweeper stopped")
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep deletes files whose age exceeds the retention period and
// removes their metadata. Files belonging to jobs that are still
// running are skipped and reconsidered on the next pass.
func (m *Manager) Sweep() int {
	start := time.Now()
	cutoff := start.Add(-m.config.Retention)
	deleted := 0

	m.mu.Lock()
	for jobID, files := range m.byJob {
		if m.isRunning(jobID) {
			continue
		}
		kept := files[:0]
		for _, f := range files {
			if f.CreatedAt.Before(cutoff) {
				path := filepath.Join(m.config.BaseDir, jobID, f.Filename)
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					m.log.Warn("Failed to delete expired file", map[string]interface{}{
						"path": path, "error": err.Error(),
					})
					kept = append(kept, f)
					continue
				}
				deleted++
			} else {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			delete(m.byJob, jobID)
			os.Remove(filepath.Join(m.config.BaseDir, jobID))
		} else {
			m.byJob[jobID] = kept
		}
	}
	m.mu.Unlock()

	duration := time.Since(start)
	m.statsMu.Lock()
	m.stats.LastSweepTime = time.Now()
	m.stats.LastSweepDuration = duration
	m.stats.TotalFilesDeleted += int64(deleted)
	m.stats.TotalSweepRuns++
	m.statsMu.Unlock()

	if deleted > 0 {
		if m.recorder != nil {
			m.recorder.AddFilesSwept(deleted)
		}
		m.log.Info("Sweep complete", map[string]interface{}{
			"deleted": deleted, "duration": duration.String(),
		})
	}
	return deleted
}

func (m *Manager) isRunning(jobID string) bool {
	if m.jobs == nil {
		return false
	}
	job, err := m.jobs.GetJob(jobID)
	if err != nil {
		return false
	}
	return job.Status == models.JobStatusRunning
}

// Stats returns current sweep statistics
func (m *Manager) Stats() SweepStats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}
