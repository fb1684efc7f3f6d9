package loop

import (
	"math"
	"testing"

	"github.com/matzehuels/bricklayers/pkg/gcode"
	"github.com/matzehuels/bricklayers/pkg/geom"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

const tol = 0.1

func move(from, to geom.Point, e float64) gcode.Move {
	return gcode.Move{Kind: gcode.MoveLinear, From: from, To: to, EDelta: e, Samples: []geom.Point{to}}
}

// feed appends the closed ring pts (first point repeated implicitly) to the
// tracker under key, starting at queue index idx. It returns the next index.
func feed(tr *Tracker, key Key, idx int, pts ...geom.Point) int {
	for i := range pts {
		from, to := pts[i], pts[(i+1)%len(pts)]
		tr.Append(key, &gcode.Line{Command: "G1"}, move(from, to, 1), idx)
		idx++
	}
	return idx
}

func square(x0, y0, x1, y1 float64) []geom.Point {
	return []geom.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestTrackerBuildsClosedLoop(t *testing.T) {
	tr := NewTracker(tol)
	key := Key{Layer: 3, Feature: vocab.TagInnerPerimeter}
	feed(tr, key, 0, square(10, 10, 90, 90)...)

	l := tr.Close()
	if l == nil {
		t.Fatal("Close() = nil")
	}
	if len(l.Segments) != 4 {
		t.Fatalf("segments = %d, want 4", len(l.Segments))
	}
	if !l.Closed(tol) {
		t.Error("square should be closed")
	}
	if l.Length() != 320 {
		t.Errorf("Length = %v, want 320", l.Length())
	}
	if l.Volume() != 4 {
		t.Errorf("Volume = %v, want 4", l.Volume())
	}
	if l.First() != 0 || l.Last() != 3 {
		t.Errorf("span = %d..%d, want 0..3", l.First(), l.Last())
	}
	if got := len(l.Vertices()); got != 5 {
		t.Errorf("vertices = %d, want 5", got)
	}
}

func TestTrackerSplitsOnKeyChangeAndClosure(t *testing.T) {
	tr := NewTracker(tol)
	inner := Key{Layer: 1, Feature: vocab.TagInnerPerimeter}
	outer := Key{Layer: 1, Feature: vocab.TagOuterPerimeter}

	idx := feed(tr, inner, 0, square(20, 20, 80, 80)...)
	// A second ring directly after the first closed: new loop.
	idx = feed(tr, inner, idx, square(30, 30, 70, 70)...)
	// Feature change: new loop.
	feed(tr, outer, idx, square(10, 10, 90, 90)...)

	loops, forest := tr.TakeGroup(GroupKey{Layer: 1})
	if len(loops) != 3 {
		t.Fatalf("loops = %d, want 3", len(loops))
	}
	for i, l := range loops {
		if l.Index != i {
			t.Errorf("loop %d Index = %d", i, l.Index)
		}
		if len(l.Segments) != 4 {
			t.Errorf("loop %d segments = %d", i, len(l.Segments))
		}
	}
	if forest.Parent[0] != 2 || forest.Parent[1] != 0 || forest.Parent[2] != -1 {
		t.Errorf("Parent = %v, want [2 0 -1]", forest.Parent)
	}
	if forest.Depth[1] != 2 {
		t.Errorf("Depth = %v", forest.Depth)
	}
	if tr.Pending(GroupKey{Layer: 1}) {
		t.Error("group still pending after TakeGroup")
	}
}

func TestTrackerNotesBecomePrefix(t *testing.T) {
	tr := NewTracker(tol)
	key := Key{Feature: vocab.TagInnerPerimeter}
	pts := square(0, 0, 10, 10)

	tr.Note(&gcode.Line{Raw: "; ignored, no open loop"}, 0)
	tr.Append(key, &gcode.Line{}, move(pts[0], pts[1], 1), 1)
	tr.Note(&gcode.Line{Raw: "M204 S500"}, 2)
	tr.Append(key, &gcode.Line{}, move(pts[1], pts[2], 1), 3)
	tr.Note(&gcode.Line{Raw: "; trailing"}, 4)
	l := tr.Close()

	if len(l.Segments[0].Prefix) != 0 {
		t.Errorf("first prefix = %v", l.Segments[0].Prefix)
	}
	if p := l.Segments[1].Prefix; len(p) != 1 || p[0].Index != 2 {
		t.Errorf("second prefix = %v", p)
	}
	if l.Closed(tol) {
		t.Error("half square should not be closed")
	}
}

func TestNestIdenticalLoopsUseInputOrder(t *testing.T) {
	tr := NewTracker(tol)
	key := Key{Feature: vocab.TagInnerPerimeter}
	idx := feed(tr, key, 0, square(0, 0, 10, 10)...)
	tr.Close()
	feed(tr, key, idx, square(0, 0, 10, 10)...)

	_, f := tr.TakeGroup(GroupKey{})
	if f.Parent[0] != -1 || f.Parent[1] != 0 {
		t.Errorf("Parent = %v, want [-1 0]", f.Parent)
	}
	if len(f.Roots) != 1 || f.Roots[0] != 0 {
		t.Errorf("Roots = %v", f.Roots)
	}
}

func TestNestEdgeTouchingIsInside(t *testing.T) {
	tr := NewTracker(tol)
	key := Key{Feature: vocab.TagInnerPerimeter}
	// Inner loop starts on the outer loop's bottom edge.
	idx := feed(tr, key, 0, geom.Pt(50, 10), geom.Pt(60, 20), geom.Pt(40, 20))
	tr.Close()
	feed(tr, key, idx, square(10, 10, 90, 90)...)

	_, f := tr.TakeGroup(GroupKey{})
	if f.Parent[0] != 1 {
		t.Errorf("Parent = %v, want [1 -1]", f.Parent)
	}
	if f.MaxDepth() != 1 {
		t.Errorf("MaxDepth = %d", f.MaxDepth())
	}
}

func TestNestSkipsDegenerateLoops(t *testing.T) {
	tr := NewTracker(tol)
	key := Key{Feature: vocab.TagInnerPerimeter}
	tr.Append(key, &gcode.Line{}, move(geom.Pt(20, 20), geom.Pt(30, 20), 1), 0)
	tr.Close()
	feed(tr, key, 1, square(10, 10, 90, 90)...)

	loops, f := tr.TakeGroup(GroupKey{})
	if len(loops) != 2 || f.Parent[0] != -1 {
		t.Errorf("degenerate loop nested: Parent = %v", f.Parent)
	}
}

func TestArcSegmentVertices(t *testing.T) {
	arc := gcode.Move{
		Kind:    gcode.MoveArc,
		From:    geom.Pt(10, 0),
		To:      geom.Pt(10, 0),
		Center:  geom.Pt(0, 0),
		EDelta:  2,
		Samples: geom.ArcSamples(geom.Pt(10, 0), geom.Pt(10, 0), geom.Pt(0, 0), false, 0.5, 32),
	}
	tr := NewTracker(tol)
	tr.Append(Key{Feature: vocab.TagOuterPerimeter}, &gcode.Line{Command: "G3"}, arc, 0)
	l := tr.Close()

	if !l.Closed(tol) {
		t.Error("full circle should be closed")
	}
	if !l.Segments[0].IsArc() {
		t.Error("segment should be an arc")
	}
	if got := len(l.Vertices()); got != 33 {
		t.Errorf("vertices = %d, want 33", got)
	}
	if math.Abs(l.Length()-2*math.Pi*10) > 0.2 {
		t.Errorf("Length = %v", l.Length())
	}
}

func TestDiscard(t *testing.T) {
	tr := NewTracker(tol)
	feed(tr, Key{Feature: vocab.TagInnerPerimeter}, 0, square(0, 0, 1, 1)...)
	tr.Discard()
	if tr.Active() != nil || tr.Pending(GroupKey{}) {
		t.Error("Discard left state behind")
	}
}
