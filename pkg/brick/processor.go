package brick

import (
	"io"
	"iter"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// Processor rewrites G-code streams with a fixed configuration. It holds no
// per-run state and is safe for concurrent use.
type Processor struct {
	cfg      Config
	matcher  *vocab.Matcher
	eligible map[vocab.Tag]bool
	ignored  map[int]bool
	logger   *log.Logger
}

// New validates cfg and returns a Processor. Invalid settings are reported
// as INVALID_CONFIG errors before any line is processed.
func New(cfg Config) (*Processor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	matcher, err := vocab.Compile(cfg.Vocabulary)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "feature_vocabulary")
	}

	p := &Processor{
		cfg:      cfg,
		matcher:  matcher,
		eligible: make(map[vocab.Tag]bool, len(cfg.EligibleFeatures)),
		ignored:  make(map[int]bool, len(cfg.LayersToIgnore)),
		logger:   cfg.Logger,
	}
	for _, f := range cfg.EligibleFeatures {
		p.eligible[f] = true
	}
	for _, l := range cfg.LayersToIgnore {
		p.ignored[l] = true
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	return p, nil
}

// Config returns a copy of the effective configuration.
func (p *Processor) Config() Config {
	return p.cfg.withDefaults()
}

// RunOptions carries the caller's hooks for one run. All fields are optional.
type RunOptions struct {
	// Total is the expected number of input lines, passed through to
	// Progress. Zero means unknown.
	Total int
	// Progress is called every Config.PollInterval consumed lines and once at
	// the end of input.
	Progress func(consumed, total int)
	// Cancel is polled every Config.PollInterval consumed lines. Returning
	// true stops the run with ErrCancelled.
	Cancel func() bool
	// OnDiagnostic receives every diagnostic as it is produced.
	OnDiagnostic func(Diagnostic)
	// OnGroup receives a report for every (object, layer) group that
	// contained perimeter loops, after its loops were decided.
	OnGroup func(GroupReport)
}

// Stream starts a run over lines. Each input string is one line including
// its line ending; the final line may lack one. The run is lazy: lines are
// pulled from the input only as output is requested.
func (p *Processor) Stream(lines iter.Seq[string], opts RunOptions) *Stream {
	return newStream(p, lines, opts)
}

// Run validates cfg and starts a run over lines.
func Run(lines iter.Seq[string], cfg Config, opts RunOptions) (*Stream, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return p.Stream(lines, opts), nil
}

// counted reports whether layer advances the printed-layer counter.
func (p *Processor) counted(layer int) bool {
	return layer >= p.cfg.StartAtLayer && !p.ignored[layer]
}
