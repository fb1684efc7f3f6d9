// Package loop accumulates perimeter extrusion moves into loops and resolves
// how the loops of one layer nest inside each other.
package loop

import (
	"github.com/matzehuels/bricklayers/pkg/gcode"
	"github.com/matzehuels/bricklayers/pkg/geom"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// Key identifies the loop a move belongs to.
type Key struct {
	Object  string
	Layer   int
	Feature vocab.Tag
}

// GroupKey identifies the loops that are nested against each other.
type GroupKey struct {
	Object string
	Layer  int
}

// Group returns the group part of the key.
func (k Key) Group() GroupKey {
	return GroupKey{Object: k.Object, Layer: k.Layer}
}

// Segment is one extrusion move of a loop.
type Segment struct {
	Line *gcode.Line
	Move gcode.Move
	// Index is the caller's position of Line in its output queue.
	Index int
	// Prefix holds non-move lines that appeared between the previous segment
	// and this one, in order. They are re-emitted with the segment.
	Prefix []Ref
}

// Ref is a queued line that is not itself a segment.
type Ref struct {
	Line  *gcode.Line
	Index int
}

// From returns the start point of the segment.
func (s *Segment) From() geom.Point { return s.Move.From }

// To returns the end point of the segment.
func (s *Segment) To() geom.Point { return s.Move.To }

// Length returns the XY length of the segment along its sampled path.
func (s *Segment) Length() float64 { return s.Move.Length() }

// IsArc reports whether the segment came from a G2/G3 line.
func (s *Segment) IsArc() bool { return s.Move.Kind == gcode.MoveArc }

// Loop is a run of consecutive extrusion moves of one perimeter feature.
type Loop struct {
	Key      Key
	Index    int // order of the loop within its group
	Segments []Segment

	length float64
	volume float64
	closed bool
}

// Start returns the point the loop starts at.
func (l *Loop) Start() geom.Point {
	if len(l.Segments) == 0 {
		return geom.Point{}
	}
	return l.Segments[0].From()
}

// End returns the point the loop ends at.
func (l *Loop) End() geom.Point {
	if len(l.Segments) == 0 {
		return geom.Point{}
	}
	return l.Segments[len(l.Segments)-1].To()
}

// First returns the queue index of the first segment line.
func (l *Loop) First() int { return l.Segments[0].Index }

// Last returns the queue index of the last segment line.
func (l *Loop) Last() int { return l.Segments[len(l.Segments)-1].Index }

// Length returns the total XY length. It is computed when the loop is closed.
func (l *Loop) Length() float64 { return l.length }

// Volume returns the total filament length extruded by the loop.
func (l *Loop) Volume() float64 { return l.volume }

// Finalized reports whether the tracker has closed the loop.
func (l *Loop) Finalized() bool { return l.closed }

// Vertices returns the loop's path: the start point followed by every
// sampled point of every segment.
func (l *Loop) Vertices() []geom.Point {
	if len(l.Segments) == 0 {
		return nil
	}
	pts := []geom.Point{l.Start()}
	for i := range l.Segments {
		pts = append(pts, l.Segments[i].Move.Samples...)
	}
	return pts
}

// Polygon returns the vertices as a polygon.
func (l *Loop) Polygon() geom.Polygon {
	return geom.Polygon(l.Vertices())
}

// Closed reports whether the loop returns to its start within tol and has at
// least three distinct vertices.
func (l *Loop) Closed(tol float64) bool {
	if len(l.Segments) == 0 {
		return false
	}
	if !l.End().ApproxEqual(l.Start(), tol) {
		return false
	}
	return geom.DistinctAtLeast(l.Vertices(), 3, tol)
}

// Distinct reports whether the loop has at least three distinct vertices.
func (l *Loop) Distinct(tol float64) bool {
	return geom.DistinctAtLeast(l.Vertices(), 3, tol)
}

func (l *Loop) finalize() {
	l.length, l.volume = 0, 0
	for i := range l.Segments {
		l.length += l.Segments[i].Length()
		l.volume += l.Segments[i].Move.EDelta
	}
	l.closed = true
}
