// Package gcode parses slicer G-code lines and replays them against a
// simulated printer state.
//
// # Lines
//
// [Parse] turns one raw input line into a [Line]. The original text and line
// ending are kept verbatim so that a line which is never modified can be
// written back byte-for-byte with [Line.String]. Parameters are kept in
// source order together with their raw spelling.
//
//	l, err := gcode.Parse("G1 X10 Y20 E0.5 ; wall\n")
//	l.Command       // "G1"
//	l.Value('X')    // 10, true
//	l.Comment       // " wall"
//
// Malformed lines are still returned (with Raw populated) alongside an error
// wrapping [ErrMalformed], so callers can pass them through untouched.
//
// # Simulation
//
// [Simulator] tracks absolute position, extrusion accounting, feedrate and
// positioning modes. [Simulator.Step] applies one line and reports the
// resulting [Move], sampling G2/G3 arcs into short chords for geometry work.
package gcode
