package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/matzehuels/bricklayers/pkg/brick"
	"github.com/matzehuels/bricklayers/pkg/buildinfo"
	"github.com/matzehuels/bricklayers/pkg/cache"
	"github.com/matzehuels/bricklayers/pkg/observability"
)

// Runner encapsulates engine execution with caching.
// Both CLI and API use it to avoid duplicating file handling and caching.
//
// The Runner is stateless except for the cache, logger and hooks. Multiple
// goroutines can safely use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
	Hooks  observability.Hooks
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// cachedOutput is the cache record of one processed file.
type cachedOutput struct {
	Output      []byte             `msgpack:"output"`
	Stats       brick.Stats        `msgpack:"stats"`
	Diagnostics []brick.Diagnostic `msgpack:"diagnostics"`
}

// MarkPrefix starts the header comment written when Options.Mark is set.
const MarkPrefix = "; postprocessed by " + buildinfo.Name

// Execute processes in and writes the result to out.
//
// With caching enabled the input is read fully so it can be hashed; a cache
// hit copies the stored output without running the engine. Without caching
// the input is streamed line by line. Cancelling ctx stops the run between
// poll intervals; the returned error then matches both brick.ErrCancelled
// and ctx's error, and out holds a partial file.
func (r *Runner) Execute(ctx context.Context, in io.Reader, out io.Writer, opts Options) (*Result, error) {
	start := time.Now()
	cfg, vocabID, err := opts.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	hooks := r.Hooks.WithDefaults()
	name := opts.Name

	result := &Result{}
	src := &lineSource{}
	total := 0
	var key string

	if r.caching() {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		result.InputHash = cache.Hash(data)
		key = r.Keyer.OutputKey(result.InputHash, opts.OutputKeyOpts(vocabID, buildinfo.Version))
		result.Stats.BytesIn = int64(len(data))

		if !opts.Refresh {
			if rec, ok := r.lookup(ctx, key, hooks); ok {
				return r.replay(ctx, out, rec, result, start, opts, hooks)
			}
		}
		hooks.Cache.OnCacheMiss(ctx, "output")
		src.r = bufio.NewReader(bytes.NewReader(data))
		total = countLines(data)
	} else {
		src.r = bufio.NewReader(in)
	}

	size := result.Stats.BytesIn
	if size == 0 && key == "" {
		size = -1
	}
	hooks.Process.OnRunStart(ctx, name, size)

	summary, err := r.run(ctx, src, out, cfg, total, key, result, opts, hooks)
	result.Stats.Duration = time.Since(start)
	hooks.Process.OnRunComplete(ctx, name, summary, result.Stats.Duration, err)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("processed",
		"name", name,
		"lines", result.Stats.LinesIn,
		"rewritten", result.Stats.Rewritten,
		"size_change", fmt.Sprintf("%+.3f%%", result.Stats.SizeChange()),
		"duration", result.Stats.Duration)
	return result, nil
}

func (r *Runner) run(ctx context.Context, src *lineSource, out io.Writer, cfg brick.Config, total int,
	key string, result *Result, opts Options, hooks observability.Hooks) (observability.RunSummary, error) {
	var summary observability.RunSummary

	p, err := brick.New(cfg)
	if err != nil {
		return summary, fmt.Errorf("invalid options: %w", err)
	}

	var kept *bytes.Buffer
	bw := bufio.NewWriter(out)
	w := &countingWriter{w: bw}
	if key != "" {
		kept = &bytes.Buffer{}
		w.w = io.MultiWriter(bw, kept)
	}
	if opts.Mark {
		if _, err := io.WriteString(w, buildinfo.Marker()+"\n"); err != nil {
			return summary, fmt.Errorf("write output: %w", err)
		}
	}

	s := p.Stream(src.All(), brick.RunOptions{
		Total: total,
		Progress: func(consumed, total int) {
			hooks.Process.OnProgress(ctx, opts.Name, consumed, total)
			if opts.Progress != nil {
				opts.Progress(consumed, total)
			}
		},
		Cancel: func() bool { return ctx.Err() != nil },
	})
	defer s.Close()

	for s.Next() {
		if _, err := io.WriteString(w, s.Line()); err != nil {
			return summary, fmt.Errorf("write output: %w", err)
		}
	}
	if err := s.Err(); err != nil {
		return summary, fmt.Errorf("%w: %w", err, context.Cause(ctx))
	}
	if src.err != nil {
		return summary, fmt.Errorf("read input: %w", src.err)
	}
	if err := bw.Flush(); err != nil {
		return summary, fmt.Errorf("write output: %w", err)
	}

	result.Stats.Stats = s.Stats()
	result.Stats.BytesOut = w.n
	if key == "" {
		result.Stats.BytesIn = src.n
	}
	result.Diagnostics = s.Diagnostics()
	summary = summarize(result)

	if key != "" {
		rec := cachedOutput{Output: kept.Bytes(), Stats: result.Stats.Stats, Diagnostics: result.Diagnostics}
		if data, err := msgpack.Marshal(&rec); err == nil {
			if err := r.Cache.Set(ctx, key, data, cache.TTLOutput); err != nil {
				r.Logger.Warn("cache write failed", "err", err)
			} else {
				hooks.Cache.OnCacheSet(ctx, "output", len(data))
			}
		}
	}
	return summary, nil
}

// lookup returns the cached record for key, if any.
func (r *Runner) lookup(ctx context.Context, key string, hooks observability.Hooks) (*cachedOutput, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "err", err)
		return nil, false
	}
	if !hit {
		return nil, false
	}
	var rec cachedOutput
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		r.Logger.Debug("dropping corrupt cache entry", "key", key, "err", err)
		_ = r.Cache.Delete(ctx, key)
		return nil, false
	}
	hooks.Cache.OnCacheHit(ctx, "output")
	return &rec, true
}

func (r *Runner) replay(ctx context.Context, out io.Writer, rec *cachedOutput, result *Result,
	start time.Time, opts Options, hooks observability.Hooks) (*Result, error) {
	hooks.Process.OnRunStart(ctx, opts.Name, result.Stats.BytesIn)
	n, err := out.Write(rec.Output)
	result.Stats.Stats = rec.Stats
	result.Stats.BytesOut = int64(n)
	result.Stats.Duration = time.Since(start)
	result.Diagnostics = rec.Diagnostics
	result.CacheHit = true
	if err != nil {
		err = fmt.Errorf("write output: %w", err)
	}
	hooks.Process.OnRunComplete(ctx, opts.Name, summarize(result), result.Stats.Duration, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) caching() bool {
	_, null := r.Cache.(cache.NullCache)
	return !null
}

func summarize(res *Result) observability.RunSummary {
	return observability.RunSummary{
		LinesIn:     res.Stats.LinesIn,
		LinesOut:    res.Stats.LinesOut,
		Loops:       res.Stats.Loops,
		Rewritten:   res.Stats.Rewritten,
		Diagnostics: len(res.Diagnostics),
		CacheHit:    res.CacheHit,
	}
}
