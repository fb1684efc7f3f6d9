package jobs

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	apperr "github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/observability"
	"github.com/matzehuels/bricklayers/pkg/pipeline"
)

// Defaults for Config.
const (
	DefaultMaxConcurrent = 5
	DefaultTimeout       = 15 * time.Minute
)

// CancelledMessage is the error recorded on jobs cancelled by a caller.
const CancelledMessage = "Cancelled by user"

var (
	errCancelledByUser = errors.New("cancelled by user")
	errShutdown        = errors.New("job manager shut down")
)

// Config bounds the worker pool.
type Config struct {
	MaxConcurrent int           // workers; DefaultMaxConcurrent when zero
	Timeout       time.Duration // per-job budget; DefaultTimeout when zero
	MaxQueued     int           // pending jobs accepted; unbounded when zero
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Manager queues jobs by priority and runs them on a fixed pool of workers.
// All methods are safe for concurrent use.
type Manager struct {
	store  Store
	runner *pipeline.Runner
	cfg    Config
	logger *log.Logger
	hooks  observability.JobHooks

	mu      sync.Mutex
	cond    *sync.Cond
	queue   queue
	queued  map[string]*item
	running map[string]context.CancelCauseFunc
	done    map[string]chan struct{}
	seq     uint64
	started bool
	closed  bool

	base context.Context
	stop context.CancelCauseFunc
	wg   sync.WaitGroup
}

// NewManager creates a manager. Job events are reported through the
// runner's Job hooks. Call Start to launch the workers.
func NewManager(store Store, runner *pipeline.Runner, cfg Config, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	base, stop := context.WithCancelCause(context.Background())
	m := &Manager{
		store:   store,
		runner:  runner,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		hooks:   runner.Hooks.WithDefaults().Job,
		queued:  make(map[string]*item),
		running: make(map[string]context.CancelCauseFunc),
		done:    make(map[string]chan struct{}),
		base:    base,
		stop:    stop,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start launches the workers. Calling it more than once has no effect.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true
	for range m.cfg.MaxConcurrent {
		m.wg.Add(1)
		go m.worker()
	}
	m.logger.Debug("job workers started", "workers", m.cfg.MaxConcurrent, "timeout", m.cfg.Timeout)
}

// Close stops accepting jobs, fails jobs that never started, cancels
// running ones and waits for the workers to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ctx := context.WithoutCancel(m.base)
	for m.queue.Len() > 0 {
		it := heap.Pop(&m.queue).(*item)
		delete(m.queued, it.id)
		if job, err := m.store.Get(ctx, it.id); err == nil {
			m.transition(ctx, job, StatusFailed, errShutdown.Error())
		}
		m.finish(it.id)
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	m.stop(errShutdown)
	m.wg.Wait()
	return nil
}

// Submit validates req, records a pending job and queues it.
func (m *Manager) Submit(ctx context.Context, req Request) (*Job, error) {
	if _, err := ParsePriority(int(req.Priority)); err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "invalid job")
	}
	opts := req.Params.Options()
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if req.UploadPath == "" || req.OutputPath == "" {
		return nil, apperr.New(apperr.ErrCodeInvalidInput, "job needs an upload and an output path")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	req.Params.ExtrusionMultiplier = opts.ExtrusionMultiplier
	job := &Job{
		ID:         id,
		Filename:   req.Filename,
		Params:     req.Params,
		Priority:   req.Priority,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		UploadPath: req.UploadPath,
		OutputPath: req.OutputPath,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, dup := m.done[id]; dup {
		return nil, apperr.New(apperr.ErrCodeConflict, "job %s already exists", id)
	}
	switch _, err := m.store.Get(ctx, id); {
	case err == nil:
		return nil, apperr.New(apperr.ErrCodeConflict, "job %s already exists", id)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("look up job: %w", err)
	}
	if m.cfg.MaxQueued > 0 && m.queue.Len() >= m.cfg.MaxQueued {
		return nil, ErrQueueFull
	}
	if err := m.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	m.seq++
	it := &item{id: id, priority: req.Priority, seq: m.seq}
	heap.Push(&m.queue, it)
	m.queued[id] = it
	m.done[id] = make(chan struct{})
	m.cond.Signal()

	m.logger.Info("job queued", "job", id, "file", job.Filename, "priority", job.Priority,
		"start_at_layer", job.Params.StartAtLayer, "multiplier", job.Params.ExtrusionMultiplier)
	m.hooks.OnJobTransition(ctx, id, "", string(StatusPending))
	m.hooks.OnQueueDepth(ctx, m.queue.Len())
	return job.Clone(), nil
}

// Get returns the job with the given id.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// List returns all known jobs, oldest first.
func (m *Manager) List(ctx context.Context) ([]*Job, error) {
	return m.store.List(ctx)
}

// Cancel cancels a job. It returns false when the job already finished.
// A pending job is cancelled at once; a running job is marked cancelling
// and stops at the worker's next poll.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return false, nil
	}
	job.CancelRequested = true

	if job.Status == StatusPending {
		if it, ok := m.queued[id]; ok {
			heap.Remove(&m.queue, it.index)
			delete(m.queued, id)
		}
		m.transition(ctx, job, StatusCancelled, CancelledMessage)
		m.finish(id)
		m.hooks.OnQueueDepth(ctx, m.queue.Len())
		return true, nil
	}

	if job.Status == StatusProcessing {
		m.transition(ctx, job, StatusCancelling, "")
	}
	if cancel, ok := m.running[id]; ok {
		cancel(errCancelledByUser)
	}
	return true, nil
}

// Wait blocks until the job reaches a terminal status or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	ch, ok := m.done[id]
	m.mu.Unlock()
	if ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.store.Get(ctx, id)
}

// Depth returns the number of queued jobs.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// Running returns the number of jobs being processed.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// =============================================================================
// Workers
// =============================================================================

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		job, ctx, release, ok := m.claim()
		if !ok {
			return
		}
		m.process(ctx, job)
		release()
	}
}

// claim waits for the highest-priority queued job and marks it processing.
func (m *Manager) claim() (*Job, context.Context, func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		for m.queue.Len() == 0 && !m.closed {
			m.cond.Wait()
		}
		if m.closed {
			return nil, nil, nil, false
		}
		it := heap.Pop(&m.queue).(*item)
		delete(m.queued, it.id)

		storeCtx := context.WithoutCancel(m.base)
		job, err := m.store.Get(storeCtx, it.id)
		if err != nil {
			m.logger.Warn("dropping queued job", "job", it.id, "err", err)
			m.finish(it.id)
			continue
		}

		timeout := &apperr.TimeoutError{After: m.cfg.Timeout}
		tctx, stopTimer := context.WithTimeoutCause(m.base, m.cfg.Timeout, timeout)
		ctx, cancel := context.WithCancelCause(tctx)
		m.running[job.ID] = cancel
		m.transition(storeCtx, job, StatusProcessing, "")
		m.hooks.OnQueueDepth(storeCtx, m.queue.Len())
		return job, ctx, func() { cancel(nil); stopTimer() }, true
	}
}

func (m *Manager) process(ctx context.Context, job *Job) {
	start := time.Now()
	res, err := m.execute(ctx, job)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, job.ID)

	storeCtx := context.WithoutCancel(ctx)
	if cur, gerr := m.store.Get(storeCtx, job.ID); gerr == nil {
		job = cur
	}
	logger := m.logger.With("job", job.ID, "file", job.Filename, "duration", time.Since(start).Round(time.Millisecond))

	var timeout *apperr.TimeoutError
	switch {
	case err == nil && !job.CancelRequested:
		job.Result = res
		m.transition(storeCtx, job, StatusCompleted, "")
		logger.Info("job completed", "rewritten", res.Rewritten, "loops", res.Loops)
	case err == nil, errors.Is(err, errCancelledByUser):
		m.removeOutput(job)
		m.transition(storeCtx, job, StatusCancelled, CancelledMessage)
		logger.Info("job cancelled")
	case errors.As(err, &timeout):
		m.removeOutput(job)
		m.transition(storeCtx, job, StatusTimeout, timeout.Error())
		logger.Warn("job timed out", "after", timeout.After)
	case errors.Is(err, errShutdown):
		m.removeOutput(job)
		m.transition(storeCtx, job, StatusFailed, errShutdown.Error())
		logger.Warn("job interrupted by shutdown")
	default:
		m.removeOutput(job)
		m.transition(storeCtx, job, StatusFailed, apperr.UserMessage(err))
		logger.Error("job failed", "err", err)
	}
	m.finish(job.ID)
}

// execute runs the pipeline from the job's upload to its output file.
func (m *Manager) execute(ctx context.Context, job *Job) (*Result, error) {
	in, err := os.Open(job.UploadPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeNotFound, err, "upload missing")
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(job.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	opts := job.Params.Options()
	opts.Name = job.Filename
	opts.Logger = m.logger
	r, err := m.runner.Execute(ctx, in, out, opts)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("write output: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		LinesIn:     r.Stats.LinesIn,
		Loops:       r.Stats.Loops,
		Rewritten:   r.Stats.Rewritten,
		Diagnostics: len(r.Diagnostics),
		SizeChange:  r.Stats.SizeChange(),
		CacheHit:    r.CacheHit,
	}, nil
}

func (m *Manager) removeOutput(job *Job) {
	if err := os.Remove(job.OutputPath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("could not remove partial output", "job", job.ID, "path", job.OutputPath, "err", err)
	}
}

// transition records a status change. Callers hold m.mu.
func (m *Manager) transition(ctx context.Context, job *Job, to Status, msg string) {
	from := job.Status
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	if msg != "" {
		job.Error = msg
	}
	if err := m.store.Put(ctx, job); err != nil {
		m.logger.Error("job store write failed", "job", job.ID, "status", to, "err", err)
	}
	m.hooks.OnJobTransition(ctx, job.ID, string(from), string(to))
}

// finish wakes Wait callers. Callers hold m.mu.
func (m *Manager) finish(id string) {
	if ch, ok := m.done[id]; ok {
		close(ch)
		delete(m.done, id)
	}
}

// =============================================================================
// Priority queue
// =============================================================================

type item struct {
	id       string
	priority Priority
	seq      uint64 // submission order within a priority
	index    int
}

type queue []*item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}
