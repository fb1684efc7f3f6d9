// Package geom provides the 2D primitives used to reason about perimeter loops.
//
// Everything in this package is a pure function over value types: points,
// polylines and polygons carry no hidden state, so the same helpers serve the
// loop tracker, the nesting resolver and the seam rewriter without any
// synchronisation.
//
// # Polylines
//
// A polyline is an ordered []Point. [PolylineLength] sums segment lengths and
// [SplitAtFraction] walks the segments to locate the point at a given fraction
// of the total arc length, reporting which segment was bisected:
//
//	pts := []geom.Point{{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 90}}
//	split := geom.SplitAtFraction(pts, 0.5)
//	// split.Point is on segment split.Segment at local fraction split.T
//
// # Containment
//
// [Polygon.Contains] uses ray casting with a half-open crossing rule. Points
// that lie within [EdgeEpsilon] of an edge are reported as inside, so a vertex
// shared with (or touching) another loop never flips depending on float noise.
//
// # Arcs
//
// [ArcSamples] flattens a circular arc (as described by G2/G3 moves) into a
// bounded number of chords.
package geom
