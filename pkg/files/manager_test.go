package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/report"
	"github.com/finreports/reportd/pkg/store"
)

// fakeLookup reports a fixed status per job id
type fakeLookup struct {
	statuses map[string]models.JobStatus
}

func (f *fakeLookup) GetJob(id string) (*models.Job, error) {
	status, ok := f.statuses[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return &models.Job{ID: id, Status: status}, nil
}

func newTestManager(t *testing.T, retention time.Duration, lookup StatusLookup) *Manager {
	t.Helper()
	return NewManager(Config{
		BaseDir:       t.TempDir(),
		Retention:     retention,
		SweepInterval: time.Hour,
	}, lookup, nil)
}

func TestRecordAndGetFile(t *testing.T) {
	m := newTestManager(t, time.Hour, nil)

	recorded, err := m.RecordFiles("job-1", []report.File{
		{Name: "summary.csv", ContentType: "text/csv", Data: []byte("a,b\n1,2\n")},
		{Name: "manifest.json", ContentType: "application/json", Data: []byte("{}")},
	})
	if err != nil {
		t.Fatalf("RecordFiles error = %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("RecordFiles recorded %d files, want 2", len(recorded))
	}
	if recorded[0].JobID != "job-1" || recorded[0].Size != 8 {
		t.Errorf("recorded[0] = %+v", recorded[0])
	}

	data, meta, err := m.GetFile("job-1", "summary.csv")
	if err != nil {
		t.Fatalf("GetFile error = %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("GetFile data = %q", data)
	}
	if meta.ContentType != "text/csv" {
		t.Errorf("GetFile meta = %+v", meta)
	}

	files := m.ListFiles("job-1")
	if len(files) != 2 {
		t.Errorf("ListFiles len = %d, want 2", len(files))
	}
	if got := m.ListFiles("unknown"); len(got) != 0 {
		t.Errorf("ListFiles(unknown) = %v, want empty", got)
	}
}

func TestGetFileScopedToJob(t *testing.T) {
	m := newTestManager(t, time.Hour, nil)

	if _, err := m.RecordFiles("job-1", []report.File{
		{Name: "secret.csv", Data: []byte("private")},
	}); err != nil {
		t.Fatalf("RecordFiles error = %v", err)
	}

	// Another job id must not resolve job-1's file.
	_, _, err := m.GetFile("job-2", "secret.csv")
	if err == nil {
		t.Fatal("GetFile with wrong job id returned nil error, want NOT_FOUND")
	}
	var ce *errcode.Error
	if !errors.As(err, &ce) || ce.Code != errcode.CodeNotFound {
		t.Errorf("error = %v, want code %s", err, errcode.CodeNotFound)
	}
}

func TestRecordFilesStripsPath(t *testing.T) {
	m := newTestManager(t, time.Hour, nil)

	recorded, err := m.RecordFiles("job-1", []report.File{
		{Name: "../../escape.csv", Data: []byte("x")},
	})
	if err != nil {
		t.Fatalf("RecordFiles error = %v", err)
	}
	if recorded[0].Filename != "escape.csv" {
		t.Errorf("Filename = %q, want escape.csv (path components stripped)", recorded[0].Filename)
	}
	if _, err := os.Stat(filepath.Join(m.config.BaseDir, "job-1", "escape.csv")); err != nil {
		t.Errorf("file not written inside the job directory: %v", err)
	}
}

func TestDeleteJobFiles(t *testing.T) {
	m := newTestManager(t, time.Hour, nil)

	if _, err := m.RecordFiles("job-1", []report.File{
		{Name: "partial.csv", Data: []byte("half-written")},
	}); err != nil {
		t.Fatalf("RecordFiles error = %v", err)
	}

	if err := m.DeleteJobFiles("job-1"); err != nil {
		t.Fatalf("DeleteJobFiles error = %v", err)
	}
	if got := m.ListFiles("job-1"); len(got) != 0 {
		t.Errorf("ListFiles after delete = %v, want empty", got)
	}
	if _, err := os.Stat(filepath.Join(m.config.BaseDir, "job-1")); !os.IsNotExist(err) {
		t.Errorf("job directory still on disk after DeleteJobFiles")
	}
}

func TestSweepDeletesExpiredFiles(t *testing.T) {
	lookup := &fakeLookup{statuses: map[string]models.JobStatus{
		"job-old": models.JobStatusCompleted,
		"job-new": models.JobStatusCompleted,
	}}
	m := newTestManager(t, 10*time.Millisecond, lookup)
	rec := &countingRecorder{}
	m.SetRecorder(rec)

	if _, err := m.RecordFiles("job-old", []report.File{
		{Name: "old.csv", Data: []byte("old")},
	}); err != nil {
		t.Fatalf("RecordFiles error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := m.RecordFiles("job-new", []report.File{
		{Name: "new.csv", Data: []byte("new")},
	}); err != nil {
		t.Fatalf("RecordFiles error = %v", err)
	}

	deleted := m.Sweep()
	if deleted != 1 {
		t.Fatalf("Sweep() = %d, want 1", deleted)
	}
	if got := m.ListFiles("job-old"); len(got) != 0 {
		t.Errorf("expired files still listed: %v", got)
	}
	if got := m.ListFiles("job-new"); len(got) != 1 {
		t.Errorf("fresh files swept: %v", got)
	}

	stats := m.Stats()
	if stats.TotalFilesDeleted != 1 || stats.TotalSweepRuns != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	if rec.swept != 1 {
		t.Errorf("recorder swept = %d, want 1", rec.swept)
	}
}

type countingRecorder struct {
	swept int
}

func (r *countingRecorder) AddFilesSwept(n int) { r.swept += n }

func TestSweepSkipsRunningJobs(t *testing.T) {
	lookup := &fakeLookup{statuses: map[string]models.JobStatus{
		"job-busy": models.JobStatusRunning,
	}}
	m := newTestManager(t, 10*time.Millisecond, lookup)

	if _, err := m.RecordFiles("job-busy", []report.File{
		{Name: "wip.csv", Data: []byte("wip")},
	}); err != nil {
		t.Fatalf("RecordFiles error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if deleted := m.Sweep(); deleted != 0 {
		t.Fatalf("Sweep() = %d, want 0 (running jobs are skipped)", deleted)
	}
	if got := m.ListFiles("job-busy"); len(got) != 1 {
		t.Errorf("running job's files swept: %v", got)
	}

	// Once the job is no longer running the next pass reclaims it.
	lookup.statuses["job-busy"] = models.JobStatusCompleted
	if deleted := m.Sweep(); deleted != 1 {
		t.Errorf("Sweep() after completion = %d, want 1", deleted)
	}
}

func TestStartStop(t *testing.T) {
	m := newTestManager(t, time.Hour, nil)
	m.Start()
	m.Stop()
}
