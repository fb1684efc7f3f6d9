package brick

import (
	"iter"

	"github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/gcode"
	"github.com/matzehuels/bricklayers/pkg/loop"
	"github.com/matzehuels/bricklayers/pkg/plate"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// State is the phase of a run.
type State int

const (
	// StateScanning passes lines straight through; no loop is buffered.
	StateScanning State = iota
	// StateInLoop is collecting the segments of an open perimeter loop.
	StateInLoop
	// StateClosingLoop holds closed loops of the current group until its
	// boundary.
	StateClosingLoop
	// StateNestingPending is resolving the nesting forest of a finished group.
	StateNestingPending
	// StateEmitting is flushing a finished group.
	StateEmitting
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateInLoop:
		return "in-loop"
	case StateClosingLoop:
		return "closing-loop"
	case StateNestingPending:
		return "nesting-pending"
	case StateEmitting:
		return "emitting"
	}
	return "unknown"
}

// Stats summarises a run.
type Stats struct {
	LinesIn     int
	LinesOut    int
	Layers      int // layer-change markers seen
	Objects     int // distinct object ids, including the implicit one
	Loops       int // perimeter loops collected
	Rewritten   int // loops whose seam was moved
	Skipped     int // eligible loops rejected by geometry checks
	Diagnostics int
}

// entry is a queued input line.
type entry struct {
	raw    string
	move   gcode.Move
	lineNo int
}

// Stream is one run of a Processor. It is a finite, non-restartable pull
// iterator and is not safe for concurrent use.
type Stream struct {
	p    *Processor
	opts RunOptions

	next func() (string, bool)
	stop func()

	sim     *gcode.Simulator
	cls     *vocab.Classifier
	tracker *loop.Tracker
	objects *plate.Registry

	layer  int
	object string
	lineNo int

	// queuing is set from the first loop segment of a group until the
	// group's boundary; queued lines are held back until then.
	queuing bool
	queue   []entry
	out     []string
	outPos  int
	cur     string

	state State
	diags []Diagnostic
	stats Stats
	err   error
	done  bool
}

func newStream(p *Processor, lines iter.Seq[string], opts RunOptions) *Stream {
	next, stop := iter.Pull(lines)
	return &Stream{
		p:       p,
		opts:    opts,
		next:    next,
		stop:    stop,
		sim:     gcode.NewSimulator(p.cfg.ArcResolution, p.cfg.MaxArcSamples),
		cls:     p.matcher.NewClassifier(),
		tracker: loop.NewTracker(p.cfg.ClosureTolerance),
		objects: plate.NewRegistry(),
		layer:   -1,
	}
}

// Next advances to the next output line. It returns false at the end of
// output, after cancellation, or once the stream is closed.
func (s *Stream) Next() bool {
	for {
		if s.outPos < len(s.out) {
			s.cur = s.out[s.outPos]
			s.outPos++
			s.stats.LinesOut++
			return true
		}
		s.out, s.outPos = s.out[:0], 0
		if s.state == StateEmitting {
			s.state = StateScanning
		}
		if s.done {
			return false
		}
		s.step()
	}
}

// Line returns the current output line including its line ending.
func (s *Stream) Line() string {
	return s.cur
}

// Err returns ErrCancelled if the run was cancelled and nil otherwise.
// Recoverable problems are reported through Diagnostics instead.
func (s *Stream) Err() error {
	return s.err
}

// Diagnostics returns the diagnostics produced so far.
func (s *Stream) Diagnostics() []Diagnostic {
	return s.diags
}

// State returns the current phase of the run.
func (s *Stream) State() State {
	return s.state
}

// Stats returns counters for the run so far.
func (s *Stream) Stats() Stats {
	st := s.stats
	st.Objects = s.objects.Len()
	st.Diagnostics = len(s.diags)
	return st
}

// All returns the remaining output as a sequence. Breaking out of the loop
// closes the stream.
func (s *Stream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Line()) {
				return
			}
		}
	}
}

// Close stops the run and releases the input sequence. It is safe to call
// more than once.
func (s *Stream) Close() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.done = true
	s.discard()
}

func (s *Stream) step() {
	interval := s.p.cfg.PollInterval
	if s.stats.LinesIn%interval == 0 {
		if s.stats.LinesIn > 0 {
			s.progress()
		}
		if s.opts.Cancel != nil && s.opts.Cancel() {
			s.cancel()
			return
		}
	}

	raw, ok := s.next()
	if !ok {
		s.finish()
		return
	}
	s.stats.LinesIn++
	s.consume(raw)
}

func (s *Stream) progress() {
	if s.opts.Progress != nil {
		s.opts.Progress(s.stats.LinesIn, s.opts.Total)
	}
}

func (s *Stream) finish() {
	s.boundary()
	s.done = true
	s.stop()
	s.stop = nil
	if s.stats.LinesIn == 0 || s.stats.LinesIn%s.p.cfg.PollInterval != 0 {
		s.progress()
	}
	s.p.logger.Debug("run finished",
		"lines_in", s.stats.LinesIn, "loops", s.stats.Loops, "rewritten", s.stats.Rewritten)
}

func (s *Stream) cancel() {
	s.p.logger.Debug("run cancelled", "lines_in", s.stats.LinesIn)
	s.err = ErrCancelled
	s.Close()
}

func (s *Stream) discard() {
	s.tracker.Discard()
	s.queue = s.queue[:0]
	s.queuing = false
	s.out, s.outPos = s.out[:0], 0
	s.state = StateScanning
}

// consume feeds one input line through the simulator, the classifier and the
// loop tracker.
func (s *Stream) consume(raw string) {
	s.lineNo++
	l, err := gcode.Parse(raw)
	if err != nil {
		s.diagnose(errors.ErrCodeParseWarning, s.lineNo, s.layer, s.object, err.Error())
		s.passive(raw, l, gcode.Move{})
		return
	}

	move, warns := s.sim.Step(l)
	for _, w := range warns {
		s.diagnose(errors.ErrCodeParseWarning, s.lineNo, s.layer, s.object, w.Message)
	}

	r := s.cls.Classify(l)
	if r.Marker {
		switch r.Tag {
		case vocab.TagLayerChange:
			s.boundary()
			s.layer++
			s.stats.Layers++
		case vocab.TagObjectChange:
			if r.Object != s.object {
				s.boundary()
				s.object = r.Object
			} else {
				s.closeLoop()
			}
		default:
			s.closeLoop()
		}
		s.push(raw, move)
		return
	}

	if !move.IsMove() {
		s.passive(raw, l, move)
		return
	}
	if move.Extrudes() {
		s.objects.Get(s.object).Observe(s.layer, s.p.counted(s.layer))
	}

	switch {
	case r.Feature.IsPerimeter() && !r.Wiping && move.Extrudes() && move.MovesXY() && !move.MovesZ():
		s.queuing = true
		idx := s.push(raw, move)
		s.tracker.Append(loop.Key{Object: s.object, Layer: s.layer, Feature: r.Feature}, l, move, idx)
		s.state = StateInLoop
	case !move.MovesXY() && !move.MovesZ() && move.EDelta == 0:
		// Feedrate-only moves do not interrupt a loop.
		s.passive(raw, l, move)
	default:
		s.closeLoop()
		s.push(raw, move)
	}
}

// passive queues a line that does not break the open loop.
func (s *Stream) passive(raw string, l *gcode.Line, move gcode.Move) {
	idx := s.push(raw, move)
	if idx >= 0 {
		s.tracker.Note(l, idx)
	}
}

// push appends raw to the queue while a group is being collected and to the
// output otherwise. It returns the queue index, or -1.
func (s *Stream) push(raw string, move gcode.Move) int {
	if !s.queuing {
		s.out = append(s.out, raw)
		return -1
	}
	s.queue = append(s.queue, entry{raw: raw, move: move, lineNo: s.lineNo})
	return len(s.queue) - 1
}

func (s *Stream) closeLoop() {
	if s.tracker.Close() != nil {
		s.state = StateClosingLoop
	}
}

// boundary finishes the current group: its loops are nested, eligible loops
// rewritten and the queue moved to the output.
func (s *Stream) boundary() {
	if !s.queuing {
		return
	}
	s.state = StateNestingPending
	group := loop.GroupKey{Object: s.object, Layer: s.layer}
	loops, forest := s.tracker.TakeGroup(group)

	s.state = StateEmitting
	var rep *GroupReport
	if s.opts.OnGroup != nil && len(loops) > 0 {
		printed := 0
		if obj, ok := s.objects.Lookup(s.object); ok {
			printed = obj.Printed
		}
		rep = newGroupReport(group, printed, loops, forest)
	}
	var scratch LoopReport
	pos := 0
	for i, l := range loops {
		s.stats.Loops++
		lr := &scratch
		if rep != nil {
			lr = &rep.Loops[i]
		}
		lines, ok := s.plan(l, forest.Depth[i], lr)
		if !ok {
			continue
		}
		for _, e := range s.queue[pos:l.First()] {
			s.out = append(s.out, e.raw)
		}
		s.out = append(s.out, lines...)
		pos = l.Last() + 1
	}
	for _, e := range s.queue[pos:] {
		s.out = append(s.out, e.raw)
	}
	clear(s.queue)
	s.queue = s.queue[:0]
	s.queuing = false
	if rep != nil {
		s.opts.OnGroup(*rep)
	}
}

func (s *Stream) diagnose(code errors.Code, line, layer int, object, msg string) {
	d := Diagnostic{Code: code, Line: line, Layer: layer, Object: object, Message: msg}
	s.diags = append(s.diags, d)
	if s.opts.OnDiagnostic != nil {
		s.opts.OnDiagnostic(d)
	}
	if s.p.cfg.Verbosity >= VerbosityInfo {
		s.p.logger.Warn(msg, "code", code, "line", line, "layer", layer, "object", object)
	}
}
