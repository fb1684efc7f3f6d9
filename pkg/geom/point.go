package geom

import "math"

// Tolerance is the default distance under which two points are treated as equal.
const Tolerance = 1e-6

// Point represents a 2D point or vector in millimetres.
type Point struct {
	X, Y float64
}

// Pt is a convenience function to create a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points (vector addition).
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the difference of two points (vector subtraction).
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns the point scaled by s.
func (p Point) Scale(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Cross returns the 2D cross product (scalar).
func (p Point) Cross(q Point) float64 {
	return p.X*q.Y - p.Y*q.X
}

// Dot returns the dot product of two vectors.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Length returns the length of the vector.
func (p Point) Length() float64 {
	return math.Hypot(p.X, p.Y)
}

// Distance returns the distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Lerp performs linear interpolation between two points.
// t=0 returns p, t=1 returns q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{
		X: p.X + (q.X-p.X)*t,
		Y: p.Y + (q.Y-p.Y)*t,
	}
}

// ApproxEqual reports whether p and q are within tol of each other.
func (p Point) ApproxEqual(q Point, tol float64) bool {
	return p.Distance(q) <= tol
}

// Distance returns the distance between a and b.
func Distance(a, b Point) float64 {
	return a.Distance(b)
}

// Lerp interpolates between a and b at fraction t.
func Lerp(a, b Point, t float64) Point {
	return a.Lerp(b, t)
}

// Rect is an axis-aligned bounding box.
type Rect struct {
	Min, Max Point
}

// Bounds returns the bounding box of pts. The zero Rect is returned for an
// empty slice.
func Bounds(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}

// Within reports whether r lies inside o, allowing tol of slack on every side.
func (r Rect) Within(o Rect, tol float64) bool {
	return r.Min.X >= o.Min.X-tol && r.Min.Y >= o.Min.Y-tol &&
		r.Max.X <= o.Max.X+tol && r.Max.Y <= o.Max.Y+tol
}
