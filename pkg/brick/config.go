package brick

import (
	"fmt"
	"math"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// Default engine settings.
const (
	DefaultStartAtLayer          = 3
	DefaultExtrusionMultiplier   = 1.05
	DefaultClosureTolerance      = 0.1
	DefaultMinLoopLength         = 1.0
	DefaultArcResolution         = 0.5
	DefaultMaxArcSamples         = 32
	DefaultSelfIntersectionLimit = 512
	DefaultPollInterval          = 1000

	MinExtrusionMultiplier = 1.0
	MaxExtrusionMultiplier = 1.2
)

// Verbosity levels.
const (
	VerbosityQuiet = 0
	VerbosityInfo  = 1
	VerbosityDebug = 2
)

// Parity selects which printed layers get their seam shifted.
type Parity int

const (
	// ParityOdd shifts the 1st, 3rd, 5th ... counted layer.
	ParityOdd Parity = iota
	// ParityEven shifts the 2nd, 4th, 6th ... counted layer.
	ParityEven
)

// String returns "odd" or "even".
func (p Parity) String() string {
	if p == ParityEven {
		return "even"
	}
	return "odd"
}

// ParseParity parses "odd" or "even".
func ParseParity(s string) (Parity, error) {
	switch s {
	case "odd", "":
		return ParityOdd, nil
	case "even":
		return ParityEven, nil
	}
	return 0, fmt.Errorf("invalid parity %q (want odd or even)", s)
}

// shifts reports whether a printed-layer counter falls on a shifted layer.
func (p Parity) shifts(printed int) bool {
	if p == ParityEven {
		return printed%2 == 0
	}
	return printed%2 == 1
}

// Config configures a Processor. Start from DefaultConfig.
//
// Zero values of ExtrusionMultiplier, ClosureTolerance, ArcResolution,
// MaxArcSamples and PollInterval, a nil Vocabulary and empty
// EligibleFeatures are replaced with their defaults by New. All other fields
// are taken as given.
type Config struct {
	// StartAtLayer is the first layer index (0-based count of layer-change
	// markers) that may be shifted.
	StartAtLayer int
	// ExtrusionMultiplier scales the extrusion of the two segments created
	// at the new seam. Accepted range 1.0 to 1.2.
	ExtrusionMultiplier float64
	// LayersToIgnore are layer indices that are never shifted and do not
	// advance the printed-layer counter.
	LayersToIgnore []int
	// EligibleFeatures are the perimeter features whose loops are shifted.
	EligibleFeatures []vocab.Tag
	// Vocabulary is the synonym-set configuration used to classify lines.
	Vocabulary *vocab.Vocabulary
	// ShiftParity selects the counted layers that are shifted.
	ShiftParity Parity
	// MinDepth is the minimum nesting depth of a loop to be shifted.
	MinDepth int

	ClosureTolerance      float64 // mm between loop end and start to count as closed
	MinLoopLength         float64 // mm; shorter loops are left alone
	ArcResolution         float64 // mm per sampled arc chord
	MaxArcSamples         int     // max chords per arc
	SelfIntersectionLimit int     // max loop vertices checked for self-intersection, 0 for no limit
	PollInterval          int     // consumed lines between progress and cancellation polls

	Verbosity int
	Logger    *log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StartAtLayer:          DefaultStartAtLayer,
		ExtrusionMultiplier:   DefaultExtrusionMultiplier,
		EligibleFeatures:      []vocab.Tag{vocab.TagInnerPerimeter},
		Vocabulary:            vocab.All(),
		ShiftParity:           ParityOdd,
		ClosureTolerance:      DefaultClosureTolerance,
		MinLoopLength:         DefaultMinLoopLength,
		ArcResolution:         DefaultArcResolution,
		MaxArcSamples:         DefaultMaxArcSamples,
		SelfIntersectionLimit: DefaultSelfIntersectionLimit,
		PollInterval:          DefaultPollInterval,
	}
}

// withDefaults returns a copy of c with unset fields defaulted and slices
// and the vocabulary detached from the caller.
func (c Config) withDefaults() Config {
	if c.ExtrusionMultiplier == 0 {
		c.ExtrusionMultiplier = DefaultExtrusionMultiplier
	}
	if c.ClosureTolerance == 0 {
		c.ClosureTolerance = DefaultClosureTolerance
	}
	if c.ArcResolution == 0 {
		c.ArcResolution = DefaultArcResolution
	}
	if c.MaxArcSamples == 0 {
		c.MaxArcSamples = DefaultMaxArcSamples
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Vocabulary == nil {
		c.Vocabulary = vocab.All()
	} else {
		c.Vocabulary = c.Vocabulary.Clone()
	}
	if len(c.EligibleFeatures) == 0 {
		c.EligibleFeatures = []vocab.Tag{vocab.TagInnerPerimeter}
	} else {
		c.EligibleFeatures = slices.Clone(c.EligibleFeatures)
	}
	c.LayersToIgnore = slices.Clone(c.LayersToIgnore)
	return c
}

// Validate reports the first invalid setting as an INVALID_CONFIG error.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeInvalidConfig, format, args...)
	}

	if c.StartAtLayer < 0 {
		return invalid("start_at_layer must be >= 0, got %d", c.StartAtLayer)
	}
	m := c.ExtrusionMultiplier
	if math.IsNaN(m) || m < MinExtrusionMultiplier || m > MaxExtrusionMultiplier {
		return invalid("extrusion_multiplier must be between %.1f and %.1f, got %v",
			MinExtrusionMultiplier, MaxExtrusionMultiplier, m)
	}
	for _, l := range c.LayersToIgnore {
		if l < 0 {
			return invalid("layers_to_ignore contains negative layer %d", l)
		}
	}
	if len(c.EligibleFeatures) == 0 {
		return invalid("eligible_features must not be empty")
	}
	for _, f := range c.EligibleFeatures {
		if !f.IsPerimeter() {
			return invalid("eligible_features: %q is not a perimeter feature", f)
		}
	}
	if c.Vocabulary == nil {
		return invalid("feature_vocabulary is required")
	}
	if err := c.Vocabulary.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "feature_vocabulary")
	}
	if c.ShiftParity != ParityOdd && c.ShiftParity != ParityEven {
		return invalid("invalid shift parity %d", c.ShiftParity)
	}
	if c.MinDepth < 0 {
		return invalid("min_depth must be >= 0, got %d", c.MinDepth)
	}
	if !(c.ClosureTolerance > 0) {
		return invalid("closure_tolerance must be > 0, got %v", c.ClosureTolerance)
	}
	if c.MinLoopLength < 0 || math.IsNaN(c.MinLoopLength) {
		return invalid("min_loop_length must be >= 0, got %v", c.MinLoopLength)
	}
	if !(c.ArcResolution > 0) {
		return invalid("arc_resolution must be > 0, got %v", c.ArcResolution)
	}
	if c.MaxArcSamples < 1 {
		return invalid("max_arc_samples must be >= 1, got %d", c.MaxArcSamples)
	}
	if c.SelfIntersectionLimit < 0 {
		return invalid("self_intersection_limit must be >= 0, got %d", c.SelfIntersectionLimit)
	}
	if c.PollInterval < 1 {
		return invalid("poll_interval must be >= 1, got %d", c.PollInterval)
	}
	if c.Verbosity < VerbosityQuiet || c.Verbosity > VerbosityDebug {
		return invalid("verbosity must be between %d and %d, got %d", VerbosityQuiet, VerbosityDebug, c.Verbosity)
	}
	return nil
}
