// Package observability provides hooks for metrics, tracing, and logging.
//
// Instrumentation is optional and backend-agnostic: the pipeline and the job
// manager call hook interfaces, and whoever builds them decides what the
// events turn into (log lines, Prometheus counters, spans).
//
// # Architecture
//
// Hooks are plain values handed to the component that emits them:
//   - Hook interfaces per event category
//   - No-op implementations as defaults
//   - [LogHooks], which reports events through a charmbracelet logger
//
// There is no process-wide registry, so two runners in one process can be
// instrumented differently.
//
// # Usage
//
//	hooks := observability.Hooks{Process: observability.NewLogHooks(logger)}
//	runner := pipeline.NewRunner(c, nil, logger)
//	runner.Hooks = hooks
//
// Emitters resolve missing hooks once:
//
//	h := hooks.WithDefaults()
//	h.Process.OnRunStart(ctx, name, size)
package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// =============================================================================
// Process Hooks
// =============================================================================

// RunSummary describes a finished run.
type RunSummary struct {
	LinesIn     int
	LinesOut    int
	Loops       int
	Rewritten   int
	Diagnostics int
	CacheHit    bool
}

// ProcessHooks receives events from G-code processing runs.
type ProcessHooks interface {
	// OnRunStart records the start of a run over name (a file name or job
	// id) of size bytes, or -1 when unknown.
	OnRunStart(ctx context.Context, name string, size int64)

	// OnProgress is called every poll interval with the consumed line count.
	OnProgress(ctx context.Context, name string, consumed, total int)

	// OnRunComplete records the end of a run. err is nil on success.
	OnRunComplete(ctx context.Context, name string, summary RunSummary, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Job Hooks
// =============================================================================

// JobHooks receives job lifecycle events from the job manager.
type JobHooks interface {
	// OnJobTransition records a status change.
	OnJobTransition(ctx context.Context, jobID, from, to string)

	// OnQueueDepth records the number of queued jobs after a change.
	OnQueueDepth(ctx context.Context, depth int)
}

// =============================================================================
// Hook Set
// =============================================================================

// Hooks bundles the hook categories. Nil members are no-ops.
type Hooks struct {
	Process ProcessHooks
	Cache   CacheHooks
	Job     JobHooks
}

// WithDefaults returns h with nil members replaced by no-op implementations.
func (h Hooks) WithDefaults() Hooks {
	if h.Process == nil {
		h.Process = NoopProcessHooks{}
	}
	if h.Cache == nil {
		h.Cache = NoopCacheHooks{}
	}
	if h.Job == nil {
		h.Job = NoopJobHooks{}
	}
	return h
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopProcessHooks is a no-op implementation of ProcessHooks.
type NoopProcessHooks struct{}

func (NoopProcessHooks) OnRunStart(context.Context, string, int64)    {}
func (NoopProcessHooks) OnProgress(context.Context, string, int, int) {}
func (NoopProcessHooks) OnRunComplete(context.Context, string, RunSummary, time.Duration, error) {
}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopJobHooks is a no-op implementation of JobHooks.
type NoopJobHooks struct{}

func (NoopJobHooks) OnJobTransition(context.Context, string, string, string) {}
func (NoopJobHooks) OnQueueDepth(context.Context, int)                       {}

// =============================================================================
// Logging Implementation
// =============================================================================

// LogHooks reports every event to a logger. Progress and cache events are
// logged at debug level, run and job events at info level.
type LogHooks struct {
	Logger *log.Logger
}

// NewLogHooks returns LogHooks writing to logger.
func NewLogHooks(logger *log.Logger) *LogHooks {
	return &LogHooks{Logger: logger}
}

// All returns a Hooks value using l for every category.
func (l *LogHooks) All() Hooks {
	return Hooks{Process: l, Cache: l, Job: l}
}

func (l *LogHooks) OnRunStart(_ context.Context, name string, size int64) {
	l.Logger.Info("processing started", "name", name, "bytes", size)
}

func (l *LogHooks) OnProgress(_ context.Context, name string, consumed, total int) {
	l.Logger.Debug("progress", "name", name, "lines", consumed, "total", total)
}

func (l *LogHooks) OnRunComplete(_ context.Context, name string, s RunSummary, d time.Duration, err error) {
	if err != nil {
		l.Logger.Error("processing failed", "name", name, "err", err, "duration", d)
		return
	}
	l.Logger.Info("processing finished",
		"name", name,
		"lines", s.LinesIn,
		"loops", s.Loops,
		"rewritten", s.Rewritten,
		"diagnostics", s.Diagnostics,
		"cached", s.CacheHit,
		"duration", d.Round(time.Millisecond))
}

func (l *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	l.Logger.Debug("cache hit", "type", keyType)
}

func (l *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	l.Logger.Debug("cache miss", "type", keyType)
}

func (l *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	l.Logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (l *LogHooks) OnJobTransition(_ context.Context, jobID, from, to string) {
	l.Logger.Info("job status", "job", jobID, "from", from, "to", to)
}

func (l *LogHooks) OnQueueDepth(_ context.Context, depth int) {
	l.Logger.Debug("queue depth", "jobs", depth)
}
