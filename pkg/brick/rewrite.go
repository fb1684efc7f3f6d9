package brick

import (
	"fmt"
	"math"
	"slices"

	"github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/gcode"
	"github.com/matzehuels/bricklayers/pkg/geom"
	"github.com/matzehuels/bricklayers/pkg/loop"
)

// eSlack is half a unit in the last place of a formatted E value.
const eSlack = 5e-6

// plan decides whether l is rewritten and returns its replacement lines.
// The decision is recorded in rep when a group report is being built.
func (s *Stream) plan(l *loop.Loop, depth int, rep *LoopReport) ([]string, bool) {
	cfg := &s.p.cfg
	key := l.Key
	if !s.p.eligible[key.Feature] || !s.p.counted(key.Layer) || depth < cfg.MinDepth {
		return nil, false
	}
	obj, ok := s.objects.Lookup(key.Object)
	if !ok || !cfg.ShiftParity.shifts(obj.Printed) {
		rep.Decision = DecisionParity
		return nil, false
	}

	if reason := s.validate(l); reason != "" {
		s.stats.Skipped++
		rep.Decision, rep.Reason = DecisionSkipped, reason
		s.diagnose(errors.ErrCodeGeometryAmbiguity, s.queue[l.First()].lineNo, key.Layer, key.Object,
			fmt.Sprintf("%s loop left unchanged: %s", key.Feature, reason))
		return nil, false
	}

	sm := locateSeam(l, cfg.ClosureTolerance)
	lines := s.emit(l, sm)
	s.stats.Rewritten++
	rep.Decision, rep.Seam = DecisionRewritten, sm.point
	if cfg.Verbosity >= VerbosityDebug {
		s.p.logger.Debug("seam moved",
			"layer", key.Layer, "object", key.Object, "feature", key.Feature,
			"depth", depth, "printed", obj.Printed,
			"seam", fmt.Sprintf("%.3f,%.3f", sm.point.X, sm.point.Y),
			"length", fmt.Sprintf("%.3f", l.Length()))
	}
	return lines, true
}

// validate returns why an otherwise eligible loop cannot be rewritten, or
// the empty string.
func (s *Stream) validate(l *loop.Loop) string {
	cfg := &s.p.cfg
	if d := l.End().Distance(l.Start()); d > cfg.ClosureTolerance {
		return fmt.Sprintf("open loop, end is %.3f mm from start", d)
	}
	if !l.Distinct(cfg.ClosureTolerance) {
		return "fewer than 3 distinct vertices"
	}
	if l.Length() < cfg.MinLoopLength {
		return fmt.Sprintf("loop length %.3f mm is below %.3f mm", l.Length(), cfg.MinLoopLength)
	}
	if l.Polygon().SelfIntersects(cfg.SelfIntersectionLimit) {
		return "self-intersecting loop"
	}

	first := l.Segments[0].Move
	for i := range l.Segments {
		seg := &l.Segments[i]
		if seg.Move.RelativeXYZ != first.RelativeXYZ || seg.Move.RelativeE != first.RelativeE {
			return "positioning mode changes inside the loop"
		}
		for _, ref := range seg.Prefix {
			switch ref.Line.Command {
			case "G28", "G90", "G91", "G92", "M82", "M83":
				return fmt.Sprintf("%s inside the loop", ref.Line.Command)
			}
		}
	}
	return ""
}

// seam is the cut point of a loop.
type seam struct {
	point   geom.Point
	segment int          // index of the bisected segment
	head    []geom.Point // path of the bisected segment from its start to the seam
	tail    []geom.Point // path from the seam to the segment's end
}

// locateSeam places the seam at half the loop's length.
//
// A half point on a vertex rotates the loop to start there: the segment
// leading into the vertex counts as bisected at its end, so it closes the
// loop and carries the extra extrusion. Four equal straight sides are the
// exception. Their half point is the corner opposite the start, and the seam
// goes to the middle of the first side instead.
func locateSeam(l *loop.Loop, tol float64) seam {
	split := geom.SplitAtFraction(l.Vertices(), 0.5)
	si, edge := segmentOfEdge(l, split.Segment)
	seg := &l.Segments[si]
	atFrom := split.Point.ApproxEqual(seg.From(), geom.Tolerance)
	if !atFrom && !split.Point.ApproxEqual(seg.To(), geom.Tolerance) {
		split.Segment = edge
		return cut(si, seg.Move.Path(), split)
	}

	if equalSides(l, tol) {
		path := l.Segments[0].Move.Path()
		return cut(0, path, geom.SplitAtFraction(path, 0.5))
	}
	n := len(l.Segments)
	if atFrom {
		si = (si + n - 1) % n
	}
	for range n {
		if l.Segments[si].Length() > geom.Tolerance {
			break
		}
		si = (si + n - 1) % n
	}
	path := l.Segments[si].Move.Path()
	end := len(path) - 1
	return cut(si, path, geom.Split{Point: path[end], Segment: end - 1, T: 1})
}

// equalSides reports whether l is made of four straight sides whose lengths
// agree within tol.
func equalSides(l *loop.Loop, tol float64) bool {
	if len(l.Segments) != 4 {
		return false
	}
	side := l.Segments[0].Length()
	for i := range l.Segments {
		seg := &l.Segments[i]
		if seg.IsArc() || math.Abs(seg.Length()-side) > tol {
			return false
		}
	}
	return true
}

// segmentOfEdge maps a vertex-list edge index to its segment and the edge's
// index within that segment's path.
func segmentOfEdge(l *loop.Loop, edge int) (int, int) {
	start := 0
	for i := range l.Segments {
		n := len(l.Segments[i].Move.Samples)
		if edge < start+n {
			return i, edge - start
		}
		start += n
	}
	last := len(l.Segments) - 1
	return last, len(l.Segments[last].Move.Samples) - 1
}

func cut(si int, path []geom.Point, sp geom.Split) seam {
	head := append(slices.Clone(path[:sp.Segment+1]), sp.Point)
	tail := append([]geom.Point{sp.Point}, path[sp.Segment+1:]...)
	return seam{point: sp.Point, segment: si, head: head, tail: tail}
}

// emit renders the rewritten loop: a travel to the seam, the second part of
// the bisected segment, the remaining segments in loop order, and the first
// part of the bisected segment.
func (s *Stream) emit(l *loop.Loop, sm seam) []string {
	segs := l.Segments
	first, last := &segs[0], &segs[len(segs)-1]
	bis := &segs[sm.segment]

	e := &emitter{
		relXYZ: first.Move.RelativeXYZ,
		relE:   first.Move.RelativeE,
		pos:    first.From(),
		e:      first.Move.EStart,
		feed:   first.Move.FeedBefore,
		eol:    "\n",
	}
	for i := range segs {
		if eol := segs[i].Line.EOL; eol != "" {
			e.eol = eol
			break
		}
	}

	headLen := geom.PolylineLength(sm.head)
	tailLen := geom.PolylineLength(sm.tail)
	total := headLen + tailLen
	volume := bis.Move.EDelta * s.p.cfg.ExtrusionMultiplier

	e.travel(sm.point)
	e.prefix(bis)
	e.extrude(bis, sm.tail[1:], volume*tailLen/total)
	for i := sm.segment + 1; i < len(segs); i++ {
		e.prefix(&segs[i])
		e.verbatim(&segs[i])
	}
	for i := 0; i < sm.segment; i++ {
		e.prefix(&segs[i])
		e.verbatim(&segs[i])
	}
	e.extrude(bis, sm.head[1:], volume*headLen/total)

	if !e.relE && math.Abs(e.e-last.Move.EEnd) > eSlack {
		e.line(gcode.Format("G92", gcode.P('E', last.Move.EEnd)), "")
		e.e = last.Move.EEnd
	}
	if e.relXYZ || !s.travelFollows(l.Last()) {
		e.travel(l.End())
	}
	if e.feed != last.Move.Feed {
		e.line(gcode.Format("G1", gcode.P('F', last.Move.Feed)), "")
		e.feed = last.Move.Feed
	}
	return e.lines(last.Line.EOL)
}

// travelFollows reports whether the next queued XY move after index i is a
// travel, which makes returning to the loop's original end point redundant.
func (s *Stream) travelFollows(i int) bool {
	for _, q := range s.queue[i+1:] {
		if q.move.MovesXY() {
			return q.move.Travel()
		}
	}
	return false
}

// emitter tracks the simulated toolhead while a loop is re-emitted.
type emitter struct {
	relXYZ, relE bool

	pos  geom.Point
	e    float64 // extruder position of the rewritten stream
	feed float64
	eol  string // line ending for generated lines

	out []outLine
}

type outLine struct {
	text, eol string
}

func (e *emitter) line(text, eol string) {
	e.out = append(e.out, outLine{text: text, eol: eol})
}

// lines returns the emitted lines with their endings. The final line takes
// lastEOL so the loop keeps the ending of the line it replaced.
func (e *emitter) lines(lastEOL string) []string {
	out := make([]string, len(e.out))
	for i, o := range e.out {
		eol := o.eol
		if eol == "" {
			eol = e.eol
		}
		if i == len(e.out)-1 {
			eol = lastEOL
		}
		out[i] = o.text + eol
	}
	return out
}

func (e *emitter) xy(p geom.Point) []gcode.Param {
	if e.relXYZ {
		d := p.Sub(e.pos)
		return []gcode.Param{gcode.P('X', d.X), gcode.P('Y', d.Y)}
	}
	return []gcode.Param{gcode.P('X', p.X), gcode.P('Y', p.Y)}
}

func (e *emitter) travel(p geom.Point) {
	if p.ApproxEqual(e.pos, geom.Tolerance) {
		return
	}
	e.line(gcode.Format("G0", e.xy(p)...), "")
	e.pos = p
}

// prefix re-emits the non-move lines that preceded seg.
func (e *emitter) prefix(seg *loop.Segment) {
	for _, ref := range seg.Prefix {
		e.line(ref.Line.Raw, ref.Line.EOL)
		if f, ok := ref.Line.Value('F'); ok && f > 0 && ref.Line.IsMove() {
			e.feed = f
		}
	}
}

// extrude emits seg's feature along pts, depositing de in proportion to the
// length of each step. A linear segment keeps its own line with the new end
// point and E value; an arc is replaced by one G1 per sampled chord.
func (e *emitter) extrude(seg *loop.Segment, pts []geom.Point, de float64) {
	steps := make([]geom.Point, 0, len(pts))
	from := e.pos
	var total float64
	for _, p := range pts {
		if d := from.Distance(p); d > geom.Tolerance {
			steps = append(steps, p)
			total += d
			from = p
		}
	}
	keep := !seg.IsArc() && len(steps) == 1

	for _, p := range steps {
		params := e.xy(p)
		params = append(params, e.extrusion(de*e.pos.Distance(p)/total))
		if keep {
			if !seg.Line.Has('F') && e.feed != seg.Move.Feed {
				params = append(params, gcode.P('F', seg.Move.Feed))
			}
			e.line(seg.Line.WithParams(params...), "")
		} else {
			if e.feed != seg.Move.Feed {
				params = append(params, gcode.P('F', seg.Move.Feed))
			}
			e.line(gcode.Format("G1", params...), "")
		}
		e.feed = seg.Move.Feed
		e.pos = p
	}
}

func (e *emitter) extrusion(de float64) gcode.Param {
	e.e += de
	if e.relE {
		return gcode.P('E', de)
	}
	return gcode.P('E', e.e)
}

// verbatim re-emits an untouched segment. Its line is only changed when the
// absolute E value or the effective feedrate would otherwise differ.
func (e *emitter) verbatim(seg *loop.Segment) {
	var params []gcode.Param
	e.e += seg.Move.EDelta
	if !e.relE && math.Abs(e.e-seg.Move.EEnd) > eSlack {
		params = append(params, gcode.P('E', e.e))
	}
	if !seg.Line.Has('F') && e.feed != seg.Move.Feed {
		params = append(params, gcode.P('F', seg.Move.Feed))
	}

	if e.relXYZ {
		e.pos = e.pos.Add(seg.To().Sub(seg.From()))
	} else {
		e.pos = seg.To()
	}
	e.feed = seg.Move.Feed

	if len(params) == 0 {
		e.line(seg.Line.Raw, seg.Line.EOL)
		return
	}
	e.line(seg.Line.WithParams(params...), seg.Line.EOL)
}
