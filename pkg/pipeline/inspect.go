package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/matzehuels/bricklayers/pkg/brick"
	"github.com/matzehuels/bricklayers/pkg/cache"
	"github.com/matzehuels/bricklayers/pkg/errors"
)

// Format constants for inspection artifacts.
const (
	FormatDOT  = "dot"
	FormatSVG  = "svg"
	FormatJSON = "json"
)

// ValidFormats is the set of supported inspection formats.
var ValidFormats = map[string]bool{
	FormatDOT:  true,
	FormatSVG:  true,
	FormatJSON: true,
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidInput, "invalid format: %q (must be one of: dot, svg, json)", format)
	}
	return nil
}

// InspectOptions selects the groups to report.
type InspectOptions struct {
	Options

	Layer  int    `json:"layer"`
	Object string `json:"object,omitempty"` // empty reports every object on the layer
	Format string `json:"format,omitempty"`
}

// InspectResult holds the reports of the selected groups and the rendered
// artifact.
type InspectResult struct {
	Groups   []brick.GroupReport
	Artifact []byte
	CacheHit bool
}

type cachedForest struct {
	Groups   []brick.GroupReport `msgpack:"groups"`
	Artifact []byte              `msgpack:"artifact"`
}

// Inspect runs the engine over in without writing output and reports how
// the loops of one layer nest and what happened to each of them. Reading
// stops at the first group past the requested layer.
func (r *Runner) Inspect(ctx context.Context, in io.Reader, opts InspectOptions) (*InspectResult, error) {
	if opts.Format == "" {
		opts.Format = FormatSVG
	}
	if err := ValidateFormat(opts.Format); err != nil {
		return nil, err
	}
	if opts.Layer < 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid layer: %d (must be >= 0)", opts.Layer)
	}
	cfg, vocabID, err := opts.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	hooks := r.Hooks.WithDefaults()

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	key := r.Keyer.ForestKey(cache.Hash(data), cache.ForestKeyOpts{
		Layer:      opts.Layer,
		Object:     opts.Object,
		Vocabulary: vocabID,
		Format:     opts.Format,
	})
	// Engine settings change the decisions shown in the forest.
	key += ":" + cache.Hash([]byte(opts.String()))

	if cached, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
		var rec cachedForest
		if err := msgpack.Unmarshal(cached, &rec); err == nil {
			hooks.Cache.OnCacheHit(ctx, "forest")
			return &InspectResult{Groups: rec.Groups, Artifact: rec.Artifact, CacheHit: true}, nil
		}
	}
	hooks.Cache.OnCacheMiss(ctx, "forest")

	p, err := brick.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	var (
		groups []brick.GroupReport
		past   bool
	)
	s := p.Stream(Lines(bytes.NewReader(data)), brick.RunOptions{
		OnGroup: func(g brick.GroupReport) {
			switch {
			case g.Layer > opts.Layer:
				past = true
			case g.Layer == opts.Layer && (opts.Object == "" || g.Object == opts.Object):
				groups = append(groups, g)
			}
		},
		Cancel: func() bool { return past || ctx.Err() != nil },
	})
	for range s.All() {
	}
	if err := s.Err(); err != nil && !past {
		return nil, fmt.Errorf("%w: %w", err, context.Cause(ctx))
	}
	if len(groups) == 0 {
		what := fmt.Sprintf("layer %d", opts.Layer)
		if opts.Object != "" {
			what += fmt.Sprintf(", object %q", opts.Object)
		}
		return nil, errors.New(errors.ErrCodeNotFound, "no perimeter loops on %s", what)
	}

	artifact, err := renderForest(groups, opts.Format)
	if err != nil {
		return nil, err
	}
	if rec, err := msgpack.Marshal(&cachedForest{Groups: groups, Artifact: artifact}); err == nil {
		if err := r.Cache.Set(ctx, key, rec, cache.TTLForest); err == nil {
			hooks.Cache.OnCacheSet(ctx, "forest", len(rec))
		}
	}
	return &InspectResult{Groups: groups, Artifact: artifact}, nil
}

func renderForest(groups []brick.GroupReport, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(groups, "", "  ")
	case FormatDOT:
		return []byte(ForestDOT(groups)), nil
	}
	return RenderSVG(ForestDOT(groups))
}
