package jobs

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	apperr "github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/observability"
	"github.com/matzehuels/bricklayers/pkg/pipeline"
)

// square prints an 80 mm square perimeter on n layers.
func square(n int) string {
	var b strings.Builder
	b.WriteString("G90\nM83\nG28\n")
	for i := range n {
		fmt.Fprintf(&b, ";LAYER_CHANGE\nG1 Z%.1f F600\n", 0.2*float64(i+1))
		b.WriteString("G1 X10 Y10 F9000\n;TYPE:Perimeter\n")
		b.WriteString("G1 X90 Y10 E2.4 F1800\nG1 X90 Y90 E2.4\nG1 X10 Y90 E2.4\nG1 X10 Y10 E2.4\n")
		b.WriteString("G1 X0 Y0 F9000\n")
	}
	return b.String()
}

type fixture struct {
	dir    string
	runner *pipeline.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		dir:    t.TempDir(),
		runner: pipeline.NewRunner(nil, nil, log.New(io.Discard)),
	}
}

func (f *fixture) manager(cfg Config) *Manager {
	return NewManager(NewMemoryStore(), f.runner, cfg, log.New(io.Discard))
}

// request writes an upload and returns a job request for it.
func (f *fixture) request(t *testing.T, name string, p Priority) Request {
	t.Helper()
	upload := filepath.Join(f.dir, "uploads", name)
	if err := os.MkdirAll(filepath.Dir(upload), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(upload, []byte(square(5)), 0o644); err != nil {
		t.Fatal(err)
	}
	return Request{
		Filename:   name,
		UploadPath: upload,
		OutputPath: filepath.Join(f.dir, "outputs", name),
		Params:     Params{StartAtLayer: 3, ExtrusionMultiplier: 1.05},
		Priority:   p,
	}
}

func wait(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return job
}

// blockingHooks holds every run in OnRunStart until its context ends.
type blockingHooks struct {
	observability.NoopProcessHooks
	started chan string
}

func (h *blockingHooks) OnRunStart(ctx context.Context, name string, _ int64) {
	h.started <- name
	<-ctx.Done()
}

// orderHooks records the order in which runs start.
type orderHooks struct {
	observability.NoopProcessHooks
	mu    sync.Mutex
	names []string
}

func (h *orderHooks) OnRunStart(_ context.Context, name string, _ int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.names = append(h.names, name)
}

// transitions records job status changes.
type transitions struct {
	observability.NoopJobHooks
	mu   sync.Mutex
	seen []string
}

func (h *transitions) OnJobTransition(_ context.Context, _, from, to string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, from+"->"+to)
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		s    Status
		want bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCancelling, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusTimeout, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.s.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		if _, err := ParsePriority(n); err != nil {
			t.Errorf("ParsePriority(%d) error = %v", n, err)
		}
	}
	for _, n := range []int{-1, 3} {
		if _, err := ParsePriority(n); err == nil {
			t.Errorf("ParsePriority(%d) expected error", n)
		}
	}
}

func TestQueueOrder(t *testing.T) {
	var q queue
	push := func(id string, p Priority, seq uint64) {
		heap.Push(&q, &item{id: id, priority: p, seq: seq})
	}
	push("low", PriorityLow, 1)
	push("normal-1", PriorityNormal, 2)
	push("high", PriorityHigh, 3)
	push("normal-2", PriorityNormal, 4)

	var got []string
	for q.Len() > 0 {
		got = append(got, heap.Pop(&q).(*item).id)
	}
	want := []string{"high", "normal-1", "normal-2", "low"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSubmitRunsJob(t *testing.T) {
	f := newFixture(t)
	hooks := &transitions{}
	f.runner.Hooks.Job = hooks
	m := f.manager(Config{})
	m.Start()
	defer m.Close()

	job, err := m.Submit(context.Background(), f.request(t, "square.gcode", PriorityNormal))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != StatusPending || job.ID == "" {
		t.Fatalf("submitted job = %+v", job)
	}

	done := wait(t, m, job.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", done.Status, done.Error)
	}
	if done.Result == nil || done.Result.Rewritten != 1 || done.Result.Loops != 5 {
		t.Errorf("result = %+v, want 1 of 5 loops rewritten", done.Result)
	}
	out, err := os.ReadFile(done.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(out), "G0 X50 Y10\n") {
		t.Errorf("output has no seam travel:\n%s", out)
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	want := []string{"->pending", "pending->processing", "processing->completed"}
	if !slices.Equal(hooks.seen, want) {
		t.Errorf("transitions = %v, want %v", hooks.seen, want)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	defer m.Close()

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"priority", func(s *Request) { s.Priority = 7 }},
		{"multiplier", func(s *Request) { s.Params.ExtrusionMultiplier = 1.5 }},
		{"start layer", func(s *Request) { s.Params.StartAtLayer = -1 }},
		{"ignore layers", func(s *Request) { s.Params.IgnoreLayers = "5-3" }},
		{"paths", func(s *Request) { s.OutputPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.request(t, "bad.gcode", PriorityNormal)
			tt.mutate(&s)
			if _, err := m.Submit(context.Background(), s); err == nil {
				t.Error("expected error")
			}
		})
	}
	if m.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", m.Depth())
	}
}

func TestSubmitDefaultsMultiplier(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	defer m.Close()

	s := f.request(t, "square.gcode", PriorityNormal)
	s.Params.ExtrusionMultiplier = 0
	job, err := m.Submit(context.Background(), s)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Params.ExtrusionMultiplier != pipeline.DefaultExtrusionMultiplier {
		t.Errorf("multiplier = %v, want %v", job.Params.ExtrusionMultiplier, pipeline.DefaultExtrusionMultiplier)
	}
}

func TestSubmitRejectsReusedID(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	m.Start()
	defer m.Close()
	ctx := context.Background()

	req := f.request(t, "square.gcode", PriorityNormal)
	req.ID = "job-1"
	if _, err := m.Submit(ctx, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first := wait(t, m, "job-1")
	if first.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", first.Status, first.Error)
	}

	again := f.request(t, "other.gcode", PriorityHigh)
	again.ID = "job-1"
	if _, err := m.Submit(ctx, again); !apperr.Is(err, apperr.ErrCodeConflict) {
		t.Fatalf("resubmit error = %v, want CONFLICT", err)
	}
	got, err := m.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "square.gcode" || got.Status != StatusCompleted {
		t.Errorf("stored job overwritten: %+v", got)
	}
}

func TestCancelPending(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	defer m.Close()

	ctx := context.Background()
	job, err := m.Submit(ctx, f.request(t, "square.gcode", PriorityNormal))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ok, err := m.Cancel(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v; want true", ok, err)
	}
	got := wait(t, m, job.ID)
	if got.Status != StatusCancelled || got.Error != CancelledMessage || !got.CancelRequested {
		t.Errorf("job = %+v", got)
	}
	if m.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", m.Depth())
	}

	ok, err = m.Cancel(ctx, job.ID)
	if err != nil || ok {
		t.Errorf("second Cancel = %v, %v; want false", ok, err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	defer m.Close()

	if _, err := m.Cancel(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel error = %v, want ErrNotFound", err)
	}
}

func TestCancelRunning(t *testing.T) {
	f := newFixture(t)
	hooks := &blockingHooks{started: make(chan string, 1)}
	f.runner.Hooks.Process = hooks
	m := f.manager(Config{MaxConcurrent: 1})
	m.Start()
	defer m.Close()

	ctx := context.Background()
	job, err := m.Submit(ctx, f.request(t, "square.gcode", PriorityNormal))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-hooks.started
	if m.Running() != 1 {
		t.Errorf("Running = %d, want 1", m.Running())
	}

	ok, err := m.Cancel(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v; want true", ok, err)
	}
	got := wait(t, m, job.ID)
	if got.Status != StatusCancelled || got.Error != CancelledMessage {
		t.Errorf("status = %s (%s), want cancelled", got.Status, got.Error)
	}
	if _, err := os.Stat(got.OutputPath); !os.IsNotExist(err) {
		t.Errorf("partial output still exists: %v", err)
	}
}

func TestTimeout(t *testing.T) {
	f := newFixture(t)
	f.runner.Hooks.Process = &blockingHooks{started: make(chan string, 1)}
	m := f.manager(Config{Timeout: 20 * time.Millisecond})
	m.Start()
	defer m.Close()

	job, err := m.Submit(context.Background(), f.request(t, "square.gcode", PriorityNormal))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := wait(t, m, job.ID)
	if got.Status != StatusTimeout {
		t.Fatalf("status = %s (%s), want timeout", got.Status, got.Error)
	}
	if !strings.Contains(got.Error, "timed out") {
		t.Errorf("error = %q", got.Error)
	}
	if _, err := os.Stat(got.OutputPath); !os.IsNotExist(err) {
		t.Errorf("partial output still exists: %v", err)
	}
}

func TestMissingUploadFails(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	m.Start()
	defer m.Close()

	s := f.request(t, "square.gcode", PriorityNormal)
	if err := os.Remove(s.UploadPath); err != nil {
		t.Fatal(err)
	}
	job, err := m.Submit(context.Background(), s)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := wait(t, m, job.ID)
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("job = %+v, want failed with an error", got)
	}
}

func TestPriorityScheduling(t *testing.T) {
	f := newFixture(t)
	hooks := &orderHooks{}
	f.runner.Hooks.Process = hooks
	m := f.manager(Config{MaxConcurrent: 1})
	defer m.Close()

	ctx := context.Background()
	var ids []string
	for _, s := range []Request{
		f.request(t, "low.gcode", PriorityLow),
		f.request(t, "normal.gcode", PriorityNormal),
		f.request(t, "high.gcode", PriorityHigh),
	} {
		job, err := m.Submit(ctx, s)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, job.ID)
	}
	if m.Depth() != 3 {
		t.Errorf("Depth = %d, want 3", m.Depth())
	}

	m.Start()
	for _, id := range ids {
		wait(t, m, id)
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	want := []string{"high.gcode", "normal.gcode", "low.gcode"}
	if !slices.Equal(hooks.names, want) {
		t.Errorf("run order = %v, want %v", hooks.names, want)
	}
}

func TestQueueFull(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{MaxQueued: 1})
	defer m.Close()

	ctx := context.Background()
	if _, err := m.Submit(ctx, f.request(t, "a.gcode", PriorityNormal)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := m.Submit(ctx, f.request(t, "b.gcode", PriorityNormal)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit error = %v, want ErrQueueFull", err)
	}
}

func TestCloseFailsQueuedJobs(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})

	ctx := context.Background()
	job, err := m.Submit(ctx, f.request(t, "square.gcode", PriorityNormal))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := wait(t, m, job.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if _, err := m.Submit(ctx, f.request(t, "late.gcode", PriorityNormal)); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close error = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing error = %v, want ErrNotFound", err)
	}

	now := time.Now()
	b := &Job{ID: "b", CreatedAt: now.Add(time.Second), Result: &Result{Loops: 3}}
	a := &Job{ID: "a", CreatedAt: now}
	for _, j := range []*Job{b, a} {
		if err := s.Put(ctx, j); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	b.Result.Loops = 99
	got, err := s.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Result.Loops != 3 {
		t.Errorf("stored record shares memory with caller: loops = %d", got.Result.Loops)
	}

	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List = %v, want a then b", list)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
	if list, _ := s.List(ctx); len(list) != 1 {
		t.Errorf("List after delete = %d jobs, want 1", len(list))
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("BRICKLAYERS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BRICKLAYERS_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer s.Close()
	s.prefix = "bricklayers-test:" + t.Name() + ":"

	job := &Job{
		ID:        "redis-job",
		Filename:  "square.gcode",
		Params:    Params{StartAtLayer: 3, ExtrusionMultiplier: 1.05},
		Status:    StatusCompleted,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Result:    &Result{Rewritten: 2},
	}
	if err := s.Put(ctx, job); err != nil {
		t.Fatalf("Put: %v", err)
	}
	defer s.Delete(ctx, job.ID)

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || got.Params != job.Params || got.Result.Rewritten != 2 {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, job.CreatedAt)
	}

	list, err := s.List(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v", list, err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing error = %v, want ErrNotFound", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "not a url", 0); err == nil {
		t.Error("expected error")
	}
}
