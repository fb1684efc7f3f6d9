// Package jobs runs uploaded G-code files through the pipeline in the
// background.
//
// A Manager owns a bounded pool of workers fed from a priority queue. Job
// records live in a Store so that the HTTP server can report status after
// the fact; MemoryStore serves a single process, RedisStore lets several
// server instances share job state.
//
// # Lifecycle
//
//	pending -> processing -> completed
//	                      -> failed
//	                      -> timeout
//	                      -> cancelling -> cancelled
//	pending -> cancelled
//
// Cancelling a pending job removes it from the queue. Cancelling a running
// job only requests it: the worker notices at its next poll, deletes the
// partial output and records the job as cancelled.
//
// # Usage
//
//	m := jobs.NewManager(jobs.NewMemoryStore(), runner, jobs.Config{}, logger)
//	m.Start()
//	defer m.Close()
//
//	job, err := m.Submit(ctx, jobs.Request{
//	    Filename:   "benchy.gcode",
//	    UploadPath: upload,
//	    OutputPath: output,
//	    Params:     jobs.Params{StartAtLayer: 3, ExtrusionMultiplier: 1.05},
//	})
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/bricklayers/pkg/pipeline"
)

// Sentinel errors for job operations.
var (
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrQueueFull is returned by Submit when the pending queue is at capacity.
	ErrQueueFull = errors.New("job queue is full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("job manager is closed")
)

// Status is the state of a job.
type Status string

// Job statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCancelling Status = "cancelling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a job in this status will not change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Priority orders the queue. Lower values run first.
type Priority int

// Job priorities.
const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

// ParsePriority validates a numeric priority.
func ParsePriority(n int) (Priority, error) {
	p := Priority(n)
	if p < PriorityHigh || p > PriorityLow {
		return 0, fmt.Errorf("invalid priority %d (must be 0, 1 or 2)", n)
	}
	return p, nil
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Params are the engine settings a job was submitted with.
type Params struct {
	StartAtLayer        int     `json:"start_at_layer" msgpack:"start_at_layer"`
	ExtrusionMultiplier float64 `json:"extrusion_multiplier" msgpack:"extrusion_multiplier"`
	IgnoreLayers        string  `json:"ignore_layers,omitempty" msgpack:"ignore_layers,omitempty"`
	Dialect             string  `json:"dialect,omitempty" msgpack:"dialect,omitempty"`
}

// Options converts p into pipeline options.
func (p Params) Options() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.StartAtLayer = p.StartAtLayer
	opts.ExtrusionMultiplier = p.ExtrusionMultiplier
	opts.IgnoreLayers = p.IgnoreLayers
	if p.Dialect != "" {
		opts.Dialect = p.Dialect
	}
	return opts
}

// Result summarises a completed job.
type Result struct {
	LinesIn     int     `json:"lines_in" msgpack:"lines_in"`
	Loops       int     `json:"loops" msgpack:"loops"`
	Rewritten   int     `json:"rewritten" msgpack:"rewritten"`
	Diagnostics int     `json:"diagnostics" msgpack:"diagnostics"`
	SizeChange  float64 `json:"size_change_percent" msgpack:"size_change"`
	CacheHit    bool    `json:"cache_hit,omitempty" msgpack:"cache_hit,omitempty"`
}

// Job is a persisted job record.
type Job struct {
	ID              string    `json:"job_id" msgpack:"id"`
	Filename        string    `json:"filename" msgpack:"filename"`
	Params          Params    `json:"params" msgpack:"params"`
	Priority        Priority  `json:"priority" msgpack:"priority"`
	Status          Status    `json:"status" msgpack:"status"`
	CreatedAt       time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" msgpack:"updated_at"`
	Error           string    `json:"error,omitempty" msgpack:"error,omitempty"`
	UploadPath      string    `json:"-" msgpack:"upload_path"`
	OutputPath      string    `json:"-" msgpack:"output_path"`
	CancelRequested bool      `json:"cancel_requested,omitempty" msgpack:"cancel_requested,omitempty"`
	Result          *Result   `json:"result,omitempty" msgpack:"result,omitempty"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}

// Request describes a job to submit.
type Request struct {
	ID         string // generated when empty
	Filename   string
	UploadPath string
	OutputPath string
	Params     Params
	Priority   Priority
}
