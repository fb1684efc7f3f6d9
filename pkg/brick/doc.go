// Package brick rewrites perimeter seams of sliced G-code into an alternating
// "brick" pattern.
//
// # Overview
//
// Slicers start every perimeter loop of a wall at roughly the same seam, so
// the seams of consecutive layers stack into a weak vertical line. The
// engine moves the seam of eligible loops to the point halfway along the
// loop on every other printed layer, which interlocks the walls the way
// bricks are laid in a course.
//
// # Processing Model
//
// A [Processor] holds an immutable [Config] and can be shared. Each call to
// [Processor.Stream] starts an independent run over a sequence of input
// lines and returns a pull-based [Stream]:
//
//	p, err := brick.New(brick.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	s := p.Stream(lines, brick.RunOptions{})
//	defer s.Close()
//	for s.Next() {
//		io.WriteString(w, s.Line())
//	}
//	if err := s.Err(); err != nil {
//		return err
//	}
//
// Lines are replayed through a [gcode.Simulator] and tagged by a
// [vocab.Classifier]. Perimeter extrusion moves are collected into loops by a
// [loop.Tracker]. From the first loop of an (object, layer) group onwards
// lines are held in a queue; at the next layer change, object change or end
// of input the group's nesting forest is built, eligible loops are rewritten
// and the queue is flushed in input order.
//
// # Eligibility
//
// A loop is rewritten when its feature is one of Config.EligibleFeatures,
// its layer is at least Config.StartAtLayer and not ignored, its nesting
// depth is at least Config.MinDepth, and its object's printed-layer counter
// falls on Config.ShiftParity. Loops that pass these checks but are open,
// degenerate, too short or self-intersecting are passed through and reported
// as GEOMETRY_AMBIGUITY diagnostics.
//
// # Output
//
// Lines that are not part of a rewritten loop are emitted byte for byte,
// including their original line endings. A rewritten loop gains a travel to
// the new seam and, depending on the positioning modes, an extruder resync,
// a travel back to the original end point and a feedrate restore.
package brick
