package geom

// PolylineLength returns the summed length of consecutive segments in pts.
func PolylineLength(pts []Point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += pts[i-1].Distance(pts[i])
	}
	return total
}

// Split describes where a polyline was cut.
type Split struct {
	Point   Point   // interpolated point on the polyline
	Segment int     // index i of the bisected segment pts[i] -> pts[i+1]
	T       float64 // local fraction within the bisected segment, in [0, 1]
}

// SplitAtFraction locates the point at fraction frac (clamped to [0, 1]) of
// the polyline's arc length.
//
// The walk stops at the first segment whose cumulative length reaches the
// target, so a target that falls exactly on a vertex is reported at the end
// of the segment leading into it (T == 1). Zero-length segments are never
// selected unless the whole polyline has zero length.
func SplitAtFraction(pts []Point, frac float64) Split {
	switch {
	case len(pts) == 0:
		return Split{}
	case len(pts) == 1:
		return Split{Point: pts[0]}
	}
	frac = clamp(frac, 0, 1)

	total := PolylineLength(pts)
	if total == 0 {
		return Split{Point: pts[0]}
	}
	return SplitAtLength(pts, total*frac)
}

// SplitAtLength is SplitAtFraction with an absolute arc length target.
func SplitAtLength(pts []Point, target float64) Split {
	if len(pts) < 2 {
		if len(pts) == 1 {
			return Split{Point: pts[0]}
		}
		return Split{}
	}

	var walked float64
	last := 0
	for i := 0; i+1 < len(pts); i++ {
		seg := pts[i].Distance(pts[i+1])
		if seg == 0 {
			continue
		}
		last = i
		if walked+seg >= target {
			t := clamp((target-walked)/seg, 0, 1)
			return Split{Point: pts[i].Lerp(pts[i+1], t), Segment: i, T: t}
		}
		walked += seg
	}
	// Float rounding left target a hair past the end.
	return Split{Point: pts[last+1], Segment: last, T: 1}
}

// DistinctAtLeast reports whether pts holds at least n points that are
// pairwise further apart than tol. It stops as soon as n are found.
func DistinctAtLeast(pts []Point, n int, tol float64) bool {
	if n <= 0 {
		return true
	}
	seen := make([]Point, 0, n)
	for _, p := range pts {
		dup := false
		for _, q := range seen {
			if p.ApproxEqual(q, tol) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, p)
		if len(seen) >= n {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
