// Package pipeline runs the brick engine over files for the CLI, the HTTP
// server and the job workers.
//
// The engine in package brick works on line sequences and knows nothing
// about files, caches or contexts. This package adds those concerns in one
// place so every entry point behaves the same:
//
//  1. Options: JSON-serialisable settings, validated and defaulted once
//  2. Process: read input, run the engine, write output, cache the result
//  3. Inspect: report how the loops of a layer nest and render the forest
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.DefaultOptions()
//	opts.StartAtLayer = 5
//	result, err := runner.Execute(ctx, in, out, opts)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Stats.Rewritten, "loops shifted")
//
// Inspect one layer:
//
//	report, err := runner.Inspect(ctx, in, pipeline.InspectOptions{Layer: 12, Format: pipeline.FormatSVG})
package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bricklayers/pkg/brick"
	"github.com/matzehuels/bricklayers/pkg/cache"
	"github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/layerset"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, API, and Worker
// =============================================================================

const (
	// DefaultStartAtLayer is the first layer that may be shifted.
	DefaultStartAtLayer = brick.DefaultStartAtLayer

	// DefaultExtrusionMultiplier scales the extrusion of the split segment.
	DefaultExtrusionMultiplier = brick.DefaultExtrusionMultiplier

	// DefaultDialect is the built-in vocabulary used when none is given.
	DefaultDialect = vocab.DefaultDialect

	// DefaultParity shifts the first counted layer.
	DefaultParity = "odd"
)

// DefaultFeatures are the perimeter features shifted by default.
var DefaultFeatures = []string{string(vocab.TagInnerPerimeter)}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a processing run.
// This struct supports JSON serialization for API requests and job records.
//
// StartAtLayer and MinDepth are taken as given, so start from DefaultOptions
// rather than the zero value.
type Options struct {
	StartAtLayer        int      `json:"start_at_layer"`
	ExtrusionMultiplier float64  `json:"extrusion_multiplier,omitempty"`
	IgnoreLayers        string   `json:"ignore_layers,omitempty"` // layer set, e.g. "5,7-9"
	Features            []string `json:"features,omitempty"`
	Dialect             string   `json:"dialect,omitempty"`
	VocabularyFile      string   `json:"vocabulary_file,omitempty"`
	Parity              string   `json:"parity,omitempty"`
	MinDepth            int      `json:"min_depth,omitempty"`
	Mark                bool     `json:"mark,omitempty"`    // prepend a "postprocessed by" comment
	Refresh             bool     `json:"refresh,omitempty"` // ignore cached output
	Verbosity           int      `json:"verbosity,omitempty"`

	// Runtime options (not serialized)
	Name       string                    `json:"-"` // input name reported to hooks
	Logger     *log.Logger               `json:"-"`
	Vocabulary *vocab.Vocabulary         `json:"-"` // overrides Dialect and VocabularyFile
	Progress   func(consumed, total int) `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// DefaultOptions returns options matching the engine defaults.
func DefaultOptions() Options {
	return Options{
		StartAtLayer:        DefaultStartAtLayer,
		ExtrusionMultiplier: DefaultExtrusionMultiplier,
		Features:            slices.Clone(DefaultFeatures),
		Dialect:             DefaultDialect,
		Parity:              DefaultParity,
	}
}

// Result contains the outputs of a processing run.
type Result struct {
	// InputHash is the SHA-256 of the input, empty when the input was
	// streamed without caching.
	InputHash string

	// Stats contains counters and timing.
	Stats Stats

	// Diagnostics lists recoverable problems in input order.
	Diagnostics []brick.Diagnostic

	// CacheHit reports whether the output came from the cache.
	CacheHit bool
}

// Stats contains processing statistics.
type Stats struct {
	brick.Stats
	BytesIn  int64
	BytesOut int64
	Duration time.Duration
}

// SizeChange returns the output size change in percent of the input size.
func (s Stats) SizeChange() float64 {
	if s.BytesIn == 0 {
		return 0
	}
	return float64(s.BytesOut-s.BytesIn) / float64(s.BytesIn) * 100
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateParity checks that parity is "odd" or "even".
func ValidateParity(parity string) error {
	if _, err := brick.ParseParity(parity); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid parity")
	}
	return nil
}

// ValidateFeatures checks that every feature names a perimeter tag.
func ValidateFeatures(features []string) error {
	_, err := parseFeatures(features)
	return err
}

// ValidateDialect checks that dialect names a built-in vocabulary.
func ValidateDialect(dialect string) error {
	if !vocab.IsDialect(dialect) {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid dialect: %q (must be one of: %v)", dialect, vocab.Dialects())
	}
	return nil
}

// ValidateMultiplier checks the extrusion multiplier range.
func ValidateMultiplier(m float64) error {
	if !(m >= brick.MinExtrusionMultiplier && m <= brick.MaxExtrusionMultiplier) {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid extrusion_multiplier: %v (must be between %.1f and %.1f)",
			m, brick.MinExtrusionMultiplier, brick.MaxExtrusionMultiplier)
	}
	return nil
}

func parseFeatures(features []string) ([]vocab.Tag, error) {
	tags := make([]vocab.Tag, 0, len(features))
	for _, f := range features {
		t, err := vocab.ParseTag(f)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid feature")
		}
		if !t.IsPerimeter() {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "invalid feature: %q is not a perimeter", f)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks every field and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.ExtrusionMultiplier == 0 {
		o.ExtrusionMultiplier = DefaultExtrusionMultiplier
	}
	if len(o.Features) == 0 {
		o.Features = slices.Clone(DefaultFeatures)
	}
	if o.Dialect == "" {
		o.Dialect = DefaultDialect
	}
	if o.Parity == "" {
		o.Parity = DefaultParity
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	if o.StartAtLayer < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid start_at_layer: %d (must be >= 0)", o.StartAtLayer)
	}
	if o.MinDepth < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid min_depth: %d (must be >= 0)", o.MinDepth)
	}
	if err := ValidateMultiplier(o.ExtrusionMultiplier); err != nil {
		return err
	}
	if _, err := layerset.Parse(o.IgnoreLayers); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid ignore_layers")
	}
	if err := ValidateFeatures(o.Features); err != nil {
		return err
	}
	if err := ValidateDialect(o.Dialect); err != nil {
		return err
	}
	if err := ValidateParity(o.Parity); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// EngineConfig builds the engine configuration. It also returns an
// identifier of the vocabulary in use, for cache keys: the dialect name, or
// a hash of the vocabulary file.
func (o *Options) EngineConfig() (brick.Config, string, error) {
	if err := o.ValidateAndSetDefaults(); err != nil {
		return brick.Config{}, "", err
	}

	cfg := brick.DefaultConfig()
	cfg.StartAtLayer = o.StartAtLayer
	cfg.ExtrusionMultiplier = o.ExtrusionMultiplier
	cfg.MinDepth = o.MinDepth
	cfg.Verbosity = o.Verbosity
	cfg.Logger = o.Logger
	cfg.LayersToIgnore, _ = layerset.Parse(o.IgnoreLayers)
	cfg.EligibleFeatures, _ = parseFeatures(o.Features)
	cfg.ShiftParity, _ = brick.ParseParity(o.Parity)

	v, id, err := o.vocabulary()
	if err != nil {
		return brick.Config{}, "", err
	}
	cfg.Vocabulary = v
	return cfg, id, nil
}

func (o *Options) vocabulary() (*vocab.Vocabulary, string, error) {
	switch {
	case o.Vocabulary != nil:
		var buf bytes.Buffer
		if err := o.Vocabulary.Encode(&buf, vocab.FormatTOML); err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "encode vocabulary")
		}
		return o.Vocabulary, "vocab:" + cache.Hash(buf.Bytes()), nil
	case o.VocabularyFile != "":
		format, err := vocab.FormatFromPath(o.VocabularyFile)
		if err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid vocabulary_file")
		}
		data, err := os.ReadFile(o.VocabularyFile)
		if err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "read vocabulary_file")
		}
		v, err := vocab.Load(bytes.NewReader(data), format)
		if err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", o.VocabularyFile)
		}
		return v, "file:" + cache.Hash(data), nil
	}
	v, err := vocab.Dialect(o.Dialect)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid dialect")
	}
	return v, o.Dialect, nil
}

// OutputKeyOpts returns cache key options for processed output.
func (o *Options) OutputKeyOpts(vocabID, version string) cache.OutputKeyOpts {
	ignored, _ := layerset.Parse(o.IgnoreLayers)
	features := slices.Clone(o.Features)
	slices.Sort(features)
	k := cache.OutputKeyOpts{
		StartAtLayer:        o.StartAtLayer,
		ExtrusionMultiplier: o.ExtrusionMultiplier,
		LayersToIgnore:      layerset.Format(ignored),
		Features:            features,
		Vocabulary:          vocabID,
		Parity:              o.Parity,
		MinDepth:            o.MinDepth,
	}
	if o.Mark {
		k.Mark = version
	}
	return k
}

// String summarises the options for logs.
func (o *Options) String() string {
	return fmt.Sprintf("start=%d multiplier=%.2f parity=%s features=%v dialect=%s",
		o.StartAtLayer, o.ExtrusionMultiplier, o.Parity, o.Features, o.Dialect)
}
