package geom

import "math"

// ArcSweep returns the signed sweep angle (radians) of an arc around center
// from start to end. Clockwise arcs have a negative sweep. Coincident start
// and end points describe a full circle.
func ArcSweep(start, end, center Point, clockwise bool) float64 {
	a0 := math.Atan2(start.Y-center.Y, start.X-center.X)
	a1 := math.Atan2(end.Y-center.Y, end.X-center.X)
	sweep := a1 - a0
	if clockwise {
		if sweep >= 0 {
			sweep -= 2 * math.Pi
		}
	} else if sweep <= 0 {
		sweep += 2 * math.Pi
	}
	return sweep
}

// ArcLength returns the length of the arc described by start, end and center.
func ArcLength(start, end, center Point, clockwise bool) float64 {
	return math.Abs(ArcSweep(start, end, center, clockwise)) * start.Distance(center)
}

// ArcSamples flattens an arc into chords no longer than resolution, using at
// most maxSamples chords (and at least one). The returned slice excludes start
// and always ends exactly at end.
func ArcSamples(start, end, center Point, clockwise bool, resolution float64, maxSamples int) []Point {
	if maxSamples < 1 {
		maxSamples = 1
	}
	r := start.Distance(center)
	sweep := ArcSweep(start, end, center, clockwise)
	length := math.Abs(sweep) * r

	n := 1
	if resolution > 0 {
		n = int(math.Ceil(length / resolution))
	}
	n = max(1, min(n, maxSamples))

	a0 := math.Atan2(start.Y-center.Y, start.X-center.X)
	pts := make([]Point, 0, n)
	for k := 1; k < n; k++ {
		a := a0 + sweep*float64(k)/float64(n)
		pts = append(pts, Point{X: center.X + r*math.Cos(a), Y: center.Y + r*math.Sin(a)})
	}
	return append(pts, end)
}
