package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/queue"
	"github.com/finreports/reportd/pkg/report"
	"github.com/finreports/reportd/pkg/store"
)

// stubGenerator accepts any arguments in required and renders nothing
type stubGenerator struct {
	name     string
	required []string
}

func (g *stubGenerator) Name() string           { return g.name }
func (g *stubGenerator) RequiredArgs() []string { return g.required }
func (g *stubGenerator) Render(ctx context.Context, args map[string]interface{}, progress func(int)) ([]report.File, error) {
	return nil, nil
}

// recordingCanceller remembers which job ids it was asked to cancel
type recordingCanceller struct {
	cancelled []string
	result    bool
}

func (c *recordingCanceller) Cancel(jobID string) bool {
	c.cancelled = append(c.cancelled, jobID)
	return c.result
}

func newTestGateway(t *testing.T, queueCap int) (*Gateway, *store.MemoryStore, *queue.Queue) {
	t.Helper()
	reg := report.NewRegistry()
	reg.Register(&stubGenerator{name: "account-summary", required: []string{"account_id", "period"}})
	st := store.NewMemoryStore()
	q := queue.New(queueCap)
	return New(DefaultConfig(), st, q, reg), st, q
}

func validRequest() *models.JobRequest {
	return &models.JobRequest{
		Name:     "monthly summary",
		ReportID: "account-summary",
		Arguments: map[string]interface{}{
			"account_id": "acct-42",
			"period":     "2026-08",
		},
	}
}

func TestSubmit(t *testing.T) {
	g, st, q := newTestGateway(t, 10)

	job, err := g.Submit(validRequest())
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	if job.ID == "" {
		t.Error("Submit returned job without id")
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("Status = %s, want queued (enqueue is synchronous with submission)", job.Status)
	}
	if job.Priority != DefaultConfig().DefaultPriority {
		t.Errorf("Priority = %d, want default %d", job.Priority, DefaultConfig().DefaultPriority)
	}

	if q.Len() != 1 {
		t.Errorf("queue length = %d, want 1", q.Len())
	}
	if _, err := st.GetJob(job.ID); err != nil {
		t.Errorf("job not in store after submit: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	g, _, _ := newTestGateway(t, 10)

	tests := []struct {
		name      string
		mutate    func(*models.JobRequest)
		wantCode  errcode.Code
		wantField string
	}{
		{
			name:      "Empty name",
			mutate:    func(r *models.JobRequest) { r.Name = "" },
			wantCode:  errcode.CodeValidation,
			wantField: "name",
		},
		{
			name:      "Name with invalid characters",
			mutate:    func(r *models.JobRequest) { r.Name = "rm -rf /*!" },
			wantCode:  errcode.CodeValidation,
			wantField: "name",
		},
		{
			name:     "Unknown report id",
			mutate:   func(r *models.JobRequest) { r.ReportID = "no-such-report" },
			wantCode: errcode.CodeReportNotFound,
		},
		{
			name:      "Missing required argument",
			mutate:    func(r *models.JobRequest) { delete(r.Arguments, "period") },
			wantCode:  errcode.CodeValidation,
			wantField: "period",
		},
		{
			name:      "Priority above bounds",
			mutate:    func(r *models.JobRequest) { r.Priority = 11 },
			wantCode:  errcode.CodeValidation,
			wantField: "priority",
		},
		{
			name:      "Priority below bounds",
			mutate:    func(r *models.JobRequest) { r.Priority = -1 },
			wantCode:  errcode.CodeValidation,
			wantField: "priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			_, err := g.Submit(req)
			if err == nil {
				t.Fatal("Submit returned nil error, want validation failure")
			}
			var ce *errcode.Error
			if !errors.As(err, &ce) {
				t.Fatalf("error %v is not a coded error", err)
			}
			if ce.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", ce.Code, tt.wantCode)
			}
			if tt.wantField != "" && ce.Details["field"] != tt.wantField {
				t.Errorf("field detail = %q, want %q", ce.Details["field"], tt.wantField)
			}
		})
	}
}

func TestSubmitQueueFullLeavesNoOrphan(t *testing.T) {
	g, st, _ := newTestGateway(t, 2)

	for i := 0; i < 2; i++ {
		if _, err := g.Submit(validRequest()); err != nil {
			t.Fatalf("Submit #%d error = %v", i, err)
		}
	}

	_, err := g.Submit(validRequest())
	if err == nil {
		t.Fatal("Submit over capacity returned nil, want QUEUE_FULL")
	}
	var ce *errcode.Error
	if !errors.As(err, &ce) || ce.Code != errcode.CodeQueueFull {
		t.Errorf("error = %v, want code %s", err, errcode.CodeQueueFull)
	}

	// The rejected submission must not leave a job record behind.
	if got := st.Count(); got != 2 {
		t.Errorf("store count after rejection = %d, want 2", got)
	}
}

func TestSubmitConcurrent(t *testing.T) {
	const capacity = 5
	g, st, q := newTestGateway(t, capacity)

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := g.Submit(validRequest())
			errs <- err
		}()
	}

	accepted := 0
	for i := 0; i < 20; i++ {
		if err := <-errs; err == nil {
			accepted++
		}
	}

	if accepted != capacity {
		t.Errorf("accepted = %d, want exactly %d", accepted, capacity)
	}
	if q.Len() != capacity {
		t.Errorf("queue length = %d, want %d", q.Len(), capacity)
	}
	if st.Count() != capacity {
		t.Errorf("store count = %d, want %d", st.Count(), capacity)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	g, st, q := newTestGateway(t, 10)
	canceller := &recordingCanceller{result: true}
	g.SetCanceller(canceller)

	job, err := g.Submit(validRequest())
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}

	if err := g.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel error = %v", err)
	}

	got, _ := st.GetJob(job.ID)
	if got.Status != models.JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0 (queued job removed)", q.Len())
	}
	// A queued job never reaches a worker, so the canceller stays idle.
	if len(canceller.cancelled) != 0 {
		t.Errorf("worker canceller invoked for a queued job: %v", canceller.cancelled)
	}
}

func TestCancelRunningJobSignalsWorker(t *testing.T) {
	g, st, q := newTestGateway(t, 10)
	canceller := &recordingCanceller{result: true}
	g.SetCanceller(canceller)

	job, err := g.Submit(validRequest())
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}

	// Simulate a worker picking the job up.
	if id, ok := q.Dequeue(); !ok || id != job.ID {
		t.Fatalf("Dequeue = (%q, %v)", id, ok)
	}
	if err := st.TransitionJob(job.ID, models.JobStatusRunning, ""); err != nil {
		t.Fatalf("TransitionJob(running) error = %v", err)
	}

	if err := g.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel error = %v", err)
	}
	if len(canceller.cancelled) != 1 || canceller.cancelled[0] != job.ID {
		t.Errorf("canceller calls = %v, want [%s]", canceller.cancelled, job.ID)
	}
}

func TestCancelDequeuedNotYetRunning(t *testing.T) {
	g, st, q := newTestGateway(t, 10)
	g.SetCanceller(&recordingCanceller{result: false})

	job, err := g.Submit(validRequest())
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}

	// The worker has dequeued the id but not yet transitioned to running.
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("Dequeue not ok")
	}

	if err := g.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel error = %v", err)
	}
	got, _ := st.GetJob(job.ID)
	if got.Status != models.JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}

	// The worker's running transition now fails, so it skips the job.
	if err := st.TransitionJob(job.ID, models.JobStatusRunning, ""); err == nil {
		t.Error("queued->running on a cancelled job succeeded, worker would run a cancelled job")
	}
}

func TestCancelErrors(t *testing.T) {
	g, st, _ := newTestGateway(t, 10)

	err := g.Cancel("no-such-job")
	var ce *errcode.Error
	if !errors.As(err, &ce) || ce.Code != errcode.CodeNotFound {
		t.Errorf("Cancel(missing) error = %v, want code %s", err, errcode.CodeNotFound)
	}

	job, errSubmit := g.Submit(validRequest())
	if errSubmit != nil {
		t.Fatalf("Submit error = %v", errSubmit)
	}
	if err := g.Cancel(job.ID); err != nil {
		t.Fatalf("first Cancel error = %v", err)
	}

	// Cancelling a terminal job is a state conflict.
	err = g.Cancel(job.ID)
	if !errors.As(err, &ce) || ce.Code != errcode.CodeInvalidTransition {
		t.Errorf("Cancel(terminal) error = %v, want code %s", err, errcode.CodeInvalidTransition)
	}

	got, _ := st.GetJob(job.ID)
	if got.Status != models.JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
}

func TestSubmitExplicitPriority(t *testing.T) {
	g, _, _ := newTestGateway(t, 10)

	for _, p := range []int{1, 5, 10} {
		req := validRequest()
		req.Priority = p
		job, err := g.Submit(req)
		if err != nil {
			t.Fatalf("Submit(priority=%d) error = %v", p, err)
		}
		if job.Priority != p {
			t.Errorf("Priority = %d, want %d", job.Priority, p)
		}
	}
}

func TestSubmitRecorder(t *testing.T) {
	g, _, _ := newTestGateway(t, 1)
	rec := &countingRecorder{rejected: make(map[string]int)}
	g.SetRecorder(rec)

	if _, err := g.Submit(validRequest()); err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	if _, err := g.Submit(validRequest()); err == nil {
		t.Fatal("Submit over capacity returned nil")
	}
	req := validRequest()
	req.Name = ""
	if _, err := g.Submit(req); err == nil {
		t.Fatal("Submit with empty name returned nil")
	}

	if rec.submitted != 1 {
		t.Errorf("submitted = %d, want 1", rec.submitted)
	}
	if rec.rejected[string(errcode.CodeQueueFull)] != 1 {
		t.Errorf("rejected[QUEUE_FULL] = %d, want 1", rec.rejected[string(errcode.CodeQueueFull)])
	}
	if rec.rejected[string(errcode.CodeValidation)] != 1 {
		t.Errorf("rejected[VALIDATION_ERROR] = %d, want 1", rec.rejected[string(errcode.CodeValidation)])
	}
}

type countingRecorder struct {
	submitted int
	rejected  map[string]int
}

func (r *countingRecorder) RecordSubmitted() { r.submitted++ }
func (r *countingRecorder) RecordRejected(reason string) {
	r.rejected[reason]++
}
