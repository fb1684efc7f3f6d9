package brick

import (
	"github.com/matzehuels/bricklayers/pkg/geom"
	"github.com/matzehuels/bricklayers/pkg/loop"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// Decision is what the engine did with a loop.
type Decision int

const (
	// DecisionIneligible: wrong feature, uncounted layer or too shallow.
	DecisionIneligible Decision = iota
	// DecisionParity: eligible, but the object's counter is not on a
	// shifted layer.
	DecisionParity
	// DecisionSkipped: eligible, but the geometry could not be rewritten.
	DecisionSkipped
	// DecisionRewritten: the seam was moved.
	DecisionRewritten
)

func (d Decision) String() string {
	switch d {
	case DecisionIneligible:
		return "ineligible"
	case DecisionParity:
		return "parity"
	case DecisionSkipped:
		return "skipped"
	case DecisionRewritten:
		return "rewritten"
	}
	return "unknown"
}

// LoopReport describes one loop of a finished group.
type LoopReport struct {
	Index    int
	Feature  vocab.Tag
	Parent   int // index of the enclosing loop, -1 for roots
	Depth    int
	Segments int
	Length   float64
	Volume   float64
	Bounds   geom.Rect
	Start    geom.Point
	Seam     geom.Point // new seam, only set when Decision is DecisionRewritten
	Decision Decision
	Reason   string // why a DecisionSkipped loop was left unchanged
}

// GroupReport describes the loops of one (object, layer) group after the
// engine decided on each of them.
type GroupReport struct {
	Object  string
	Layer   int
	Printed int // the object's printed-layer counter on this layer
	Loops   []LoopReport
}

func newGroupReport(g loop.GroupKey, printed int, loops []*loop.Loop, f *loop.Forest) *GroupReport {
	r := &GroupReport{Object: g.Object, Layer: g.Layer, Printed: printed, Loops: make([]LoopReport, len(loops))}
	for i, l := range loops {
		verts := l.Vertices()
		r.Loops[i] = LoopReport{
			Index:    i,
			Feature:  l.Key.Feature,
			Parent:   f.Parent[i],
			Depth:    f.Depth[i],
			Segments: len(l.Segments),
			Length:   l.Length(),
			Volume:   l.Volume(),
			Bounds:   geom.Bounds(verts),
			Start:    l.Start(),
		}
	}
	return r
}
