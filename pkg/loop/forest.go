package loop

import (
	"math"

	"github.com/matzehuels/bricklayers/pkg/geom"
)

// Forest is the containment structure of one group's loops. Indices refer to
// the loop slice the forest was built from.
type Forest struct {
	Parent   []int   // parent loop index, -1 for roots
	Depth    []int   // number of ancestors
	Children [][]int // child indices in input order
	Roots    []int   // root indices in input order
}

// Nest builds the containment forest of loops.
//
// Loop a is inside loop b when a's bounds lie within b's bounds (with tol
// slack) and a's first vertex lies inside b's polygon; vertices on b's edge
// count as inside. Only loops with at least three distinct vertices take
// part. The parent of a is the containing loop with the smallest absolute
// area. When two loops contain each other (coincident loops) the earlier one
// is the parent; remaining ties also go to the earlier loop.
func Nest(loops []*Loop, tol float64) *Forest {
	n := len(loops)
	f := &Forest{
		Parent:   make([]int, n),
		Depth:    make([]int, n),
		Children: make([][]int, n),
	}

	type shape struct {
		ok     bool
		poly   geom.Polygon
		bounds geom.Rect
		area   float64
		rep    geom.Point
	}
	shapes := make([]shape, n)
	for i, l := range loops {
		f.Parent[i] = -1
		if !l.Distinct(tol) {
			continue
		}
		poly := l.Polygon()
		shapes[i] = shape{
			ok:     true,
			poly:   poly,
			bounds: poly.Bounds(),
			area:   math.Abs(poly.Area()),
			rep:    poly[0],
		}
	}

	inside := func(a, b int) bool {
		sa, sb := &shapes[a], &shapes[b]
		return sa.bounds.Within(sb.bounds, tol) && sb.poly.Contains(sa.rep)
	}

	for a := range loops {
		if !shapes[a].ok {
			continue
		}
		best := -1
		for b := range loops {
			if a == b || !shapes[b].ok || !inside(a, b) {
				continue
			}
			// A later loop never parents an earlier loop it coincides with.
			if b > a && inside(b, a) {
				continue
			}
			if best < 0 || shapes[b].area < shapes[best].area {
				best = b
			}
		}
		f.Parent[a] = best
	}

	for i := range loops {
		p := f.Parent[i]
		if p < 0 {
			f.Roots = append(f.Roots, i)
			continue
		}
		f.Children[p] = append(f.Children[p], i)
	}

	for i := range loops {
		depth := 0
		// Bounded walk: a malformed containment cycle cannot loop forever.
		for p := f.Parent[i]; p >= 0 && depth <= n; p = f.Parent[p] {
			depth++
		}
		f.Depth[i] = depth
	}
	return f
}

// MaxDepth returns the deepest nesting level in the forest.
func (f *Forest) MaxDepth() int {
	deepest := 0
	for _, d := range f.Depth {
		deepest = max(deepest, d)
	}
	return deepest
}
