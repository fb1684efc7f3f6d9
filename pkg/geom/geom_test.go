package geom

import (
	"math"
	"testing"
)

func square() Polygon {
	return Polygon{{10, 10}, {90, 10}, {90, 90}, {10, 90}}
}

func TestDistanceAndLerp(t *testing.T) {
	a, b := Pt(0, 0), Pt(3, 4)
	if got := Distance(a, b); got != 5 {
		t.Errorf("Distance = %v, want 5", got)
	}
	if got := Lerp(a, b, 0.5); got != Pt(1.5, 2) {
		t.Errorf("Lerp = %v, want (1.5,2)", got)
	}
	if got := a.Lerp(b, 0); got != a {
		t.Errorf("Lerp(0) = %v, want %v", got, a)
	}
}

func TestSplitAtFraction(t *testing.T) {
	loop := []Point{{10, 10}, {90, 10}, {90, 90}, {10, 90}, {10, 10}}

	tests := []struct {
		name    string
		frac    float64
		want    Point
		segment int
	}{
		{"start", 0, Pt(10, 10), 0},
		{"quarter", 0.25, Pt(90, 10), 0},
		{"midpoint", 0.5, Pt(90, 90), 1},
		{"eighth", 0.125, Pt(50, 10), 0},
		{"end", 1, Pt(10, 10), 3},
		{"clamped above", 2, Pt(10, 10), 3},
		{"clamped below", -1, Pt(10, 10), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitAtFraction(loop, tt.frac)
			if !got.Point.ApproxEqual(tt.want, 1e-9) {
				t.Errorf("Point = %v, want %v", got.Point, tt.want)
			}
			if got.Segment != tt.segment {
				t.Errorf("Segment = %d, want %d", got.Segment, tt.segment)
			}
		})
	}
}

func TestSplitSkipsZeroLengthSegments(t *testing.T) {
	pts := []Point{{0, 0}, {0, 0}, {10, 0}}
	got := SplitAtFraction(pts, 0.5)
	if got.Segment != 1 {
		t.Errorf("Segment = %d, want 1", got.Segment)
	}
	if got.Point != Pt(5, 0) {
		t.Errorf("Point = %v, want (5,0)", got.Point)
	}
}

func TestSplitDegenerate(t *testing.T) {
	if got := SplitAtFraction(nil, 0.5); got != (Split{}) {
		t.Errorf("empty split = %+v", got)
	}
	if got := SplitAtFraction([]Point{{1, 1}, {1, 1}}, 0.5); got.Point != Pt(1, 1) {
		t.Errorf("zero-length split = %+v", got)
	}
}

func TestPolylineLength(t *testing.T) {
	if got := PolylineLength([]Point{{0, 0}, {3, 4}, {3, 10}}); got != 11 {
		t.Errorf("PolylineLength = %v, want 11", got)
	}
}

func TestDistinctAtLeast(t *testing.T) {
	pts := []Point{{0, 0}, {0, 0}, {1, 0}, {1, 0.0000001}}
	if DistinctAtLeast(pts, 3, 1e-6) {
		t.Error("expected fewer than 3 distinct points")
	}
	pts = append(pts, Pt(1, 1))
	if !DistinctAtLeast(pts, 3, 1e-6) {
		t.Error("expected 3 distinct points")
	}
}

func TestContains(t *testing.T) {
	sq := square()
	tests := []struct {
		p    Point
		want bool
	}{
		{Pt(50, 50), true},
		{Pt(0, 0), false},
		{Pt(95, 50), false},
		{Pt(50, 90.5), false},
		{Pt(10, 50), true}, // on left edge
		{Pt(90, 90), true}, // vertex
		{Pt(5, 10), false}, // on the ray through a vertex, outside
	}
	for _, tt := range tests {
		if got := sq.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestContainsEdgeIsInside(t *testing.T) {
	outer := square()
	// A vertex of an inner loop sitting exactly on the outer loop's edge.
	touching := Pt(50, 10)
	if !outer.Contains(touching) {
		t.Error("edge-touching point should be inside")
	}
	// Just outside the edge tolerance.
	if outer.Contains(Pt(50, 10-1e-3)) {
		t.Error("point beyond the edge should be outside")
	}
}

func TestAreaAndBounds(t *testing.T) {
	sq := square()
	if got := sq.Area(); got != 6400 {
		t.Errorf("Area = %v, want 6400", got)
	}
	rev := Polygon{{10, 90}, {90, 90}, {90, 10}, {10, 10}}
	if got := rev.Area(); got != -6400 {
		t.Errorf("clockwise Area = %v, want -6400", got)
	}
	b := sq.Bounds()
	if b.Min != Pt(10, 10) || b.Max != Pt(90, 90) {
		t.Errorf("Bounds = %+v", b)
	}
	inner := Bounds([]Point{{20, 20}, {80, 80}})
	if !inner.Within(b, 0) {
		t.Error("inner bounds should be within outer")
	}
	if b.Within(inner, 0) {
		t.Error("outer bounds should not be within inner")
	}
}

func TestSelfIntersects(t *testing.T) {
	if square().SelfIntersects(0) {
		t.Error("square should not self-intersect")
	}
	bowtie := Polygon{{0, 0}, {10, 10}, {10, 0}, {0, 10}}
	if !bowtie.SelfIntersects(0) {
		t.Error("bowtie should self-intersect")
	}
	if bowtie.SelfIntersects(3) {
		t.Error("limit below edge count should skip the check")
	}
	closed := Polygon{{10, 10}, {90, 10}, {90, 90}, {10, 90}, {10, 10}}
	if closed.SelfIntersects(0) {
		t.Error("repeated closing vertex should not count as intersection")
	}
}

func TestArcSamples(t *testing.T) {
	center := Pt(0, 0)
	start := Pt(10, 0)
	end := Pt(0, 10)

	pts := ArcSamples(start, end, center, false, 1, 64)
	if got := pts[len(pts)-1]; got != end {
		t.Errorf("last sample = %v, want %v", got, end)
	}
	wantLen := math.Pi * 10 / 2
	if got := PolylineLength(append([]Point{start}, pts...)); math.Abs(got-wantLen) > 0.05 {
		t.Errorf("sampled length = %v, want ~%v", got, wantLen)
	}
	for _, p := range pts {
		if p.X < -1e-9 || p.Y < -1e-9 {
			t.Errorf("counter-clockwise quarter arc left the first quadrant: %v", p)
		}
	}

	bounded := ArcSamples(start, end, center, false, 0.01, 8)
	if len(bounded) != 8 {
		t.Errorf("samples = %d, want 8 (bounded)", len(bounded))
	}
}

func TestArcSweepDirection(t *testing.T) {
	center := Pt(0, 0)
	ccw := ArcSweep(Pt(10, 0), Pt(0, 10), center, false)
	cw := ArcSweep(Pt(10, 0), Pt(0, 10), center, true)
	if math.Abs(ccw-math.Pi/2) > 1e-9 {
		t.Errorf("ccw sweep = %v, want pi/2", ccw)
	}
	if math.Abs(cw+3*math.Pi/2) > 1e-9 {
		t.Errorf("cw sweep = %v, want -3pi/2", cw)
	}
	full := ArcSweep(Pt(10, 0), Pt(10, 0), center, false)
	if math.Abs(full-2*math.Pi) > 1e-9 {
		t.Errorf("full circle sweep = %v, want 2pi", full)
	}
	if got := ArcLength(Pt(10, 0), Pt(10, 0), center, true); math.Abs(got-20*math.Pi) > 1e-9 {
		t.Errorf("full circle length = %v", got)
	}
}
