package geom

import "math"

// EdgeEpsilon is the distance under which a point counts as lying on an edge.
const EdgeEpsilon = 1e-7

// Polygon is a closed ring of points. The closing edge from the last point
// back to the first is implicit; a repeated closing vertex is harmless.
type Polygon []Point

// Bounds returns the bounding box of the polygon.
func (pg Polygon) Bounds() Rect {
	return Bounds(pg)
}

// Area returns the signed area (positive for counter-clockwise rings).
func (pg Polygon) Area() float64 {
	if len(pg) < 3 {
		return 0
	}
	var sum float64
	j := len(pg) - 1
	for i := range pg {
		sum += pg[j].Cross(pg[i])
		j = i
	}
	return sum / 2
}

// Contains reports whether p lies inside the polygon.
//
// Points on an edge (within EdgeEpsilon) are inside. Otherwise a horizontal
// ray is cast towards +X and crossings are counted with the half-open rule
// (an edge counts when exactly one endpoint lies strictly above p), which
// resolves rays passing through vertices deterministically.
func (pg Polygon) Contains(p Point) bool {
	if len(pg) < 3 {
		return false
	}
	if pg.OnEdge(p, EdgeEpsilon) {
		return true
	}

	inside := false
	j := len(pg) - 1
	for i := range pg {
		a, b := pg[i], pg[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := b.X + (p.Y-b.Y)*(a.X-b.X)/(a.Y-b.Y)
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// OnEdge reports whether p is within tol of any edge of the polygon.
func (pg Polygon) OnEdge(p Point, tol float64) bool {
	if len(pg) < 2 {
		return false
	}
	j := len(pg) - 1
	for i := range pg {
		if DistanceToSegment(p, pg[j], pg[i]) <= tol {
			return true
		}
		j = i
	}
	return false
}

// DistanceToSegment returns the distance from p to the segment a-b.
func DistanceToSegment(p, a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Distance(a)
	}
	t := clamp(p.Sub(a).Dot(ab)/l2, 0, 1)
	return p.Distance(a.Add(ab.Scale(t)))
}

// SegmentsIntersect reports whether segments p1-p2 and q1-q2 cross properly.
// Touching endpoints and collinear overlaps are not crossings.
func SegmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	return d1*d2 < 0 && d3*d4 < 0
}

// SelfIntersects reports whether two non-adjacent edges of the ring cross.
// Rings with more than limit edges are not checked and report false; a
// non-positive limit disables the bound.
func (pg Polygon) SelfIntersects(limit int) bool {
	type edge struct{ a, b Point }
	edges := make([]edge, 0, len(pg))
	for i := range pg {
		a, b := pg[i], pg[(i+1)%len(pg)]
		if a.ApproxEqual(b, Tolerance) {
			continue
		}
		edges = append(edges, edge{a, b})
	}
	n := len(edges)
	if n < 4 || (limit > 0 && n > limit) {
		return false
	}
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if SegmentsIntersect(edges[i].a, edges[i].b, edges[j].a, edges[j].b) {
				return true
			}
		}
	}
	return false
}

func orient(a, b, c Point) float64 {
	v := b.Sub(a).Cross(c.Sub(a))
	if math.Abs(v) < 1e-12 {
		return 0
	}
	return v
}
