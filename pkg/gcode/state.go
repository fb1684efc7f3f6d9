package gcode

import "github.com/matzehuels/bricklayers/pkg/geom"

// Axis indexes the anchored flags of a State.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisE
	numAxes
)

var axisLetters = [numAxes]byte{'X', 'Y', 'Z', 'E'}

// String returns the axis letter.
func (a Axis) String() string {
	if a < 0 || a >= numAxes {
		return "?"
	}
	return string(axisLetters[a])
}

// State is the simulated printer state after some prefix of the input.
type State struct {
	X, Y, Z float64
	// E is the extruder position in the firmware's own accounting: the
	// absolute coordinate in M82 mode, the running sum of deltas in M83 mode.
	E float64
	F float64

	RelativeXYZ bool // G91
	RelativeE   bool // M83, or G91

	// extruderRelative remembers the M82/M83 choice across G90/G91.
	extruderRelative bool

	// Anchored reports, per axis, whether the absolute position is known.
	Anchored [numAxes]bool
}

// NewState returns the power-on state: absolute positioning, absolute
// extrusion, and only the extruder anchored (at zero).
func NewState() State {
	var s State
	s.Anchored[AxisE] = true
	return s
}

// XY returns the current position in the XY plane.
func (s State) XY() geom.Point {
	return geom.Pt(s.X, s.Y)
}

// AnchoredXY reports whether both X and Y are known.
func (s State) AnchoredXY() bool {
	return s.Anchored[AxisX] && s.Anchored[AxisY]
}

func (s *State) axis(a Axis) *float64 {
	switch a {
	case AxisX:
		return &s.X
	case AxisY:
		return &s.Y
	case AxisZ:
		return &s.Z
	default:
		return &s.E
	}
}

// MoveKind classifies the effect of a line on the toolhead.
type MoveKind int

const (
	MoveNone MoveKind = iota
	MoveLinear
	MoveArc
)

// String returns a lower-case name for the kind.
func (k MoveKind) String() string {
	switch k {
	case MoveLinear:
		return "linear"
	case MoveArc:
		return "arc"
	default:
		return "none"
	}
}

// Move is the resolved effect of one G0-G3 line.
type Move struct {
	Kind       MoveKind
	From, To   geom.Point
	FromZ, ToZ float64
	EDelta     float64 // filament pushed by this move (negative for retracts)
	EStart     float64 // extruder position before the move
	EEnd       float64 // extruder position after the move
	Feed       float64 // effective feedrate after the line
	FeedBefore float64 // effective feedrate before the line

	// Positioning modes the line was interpreted under.
	RelativeXYZ bool
	RelativeE   bool

	// Arc geometry, set for MoveArc only.
	Center    geom.Point
	Clockwise bool
	// Samples is the XY path of the move excluding From: []{To} for linear
	// moves, the flattened arc ending exactly at To for arcs.
	Samples []geom.Point
}

// IsMove reports whether the line was a motion command.
func (m Move) IsMove() bool {
	return m.Kind != MoveNone
}

// MovesXY reports whether the toolhead travels in the XY plane. A full-circle
// arc moves even though it ends where it started.
func (m Move) MovesXY() bool {
	switch m.Kind {
	case MoveLinear:
		return m.From != m.To
	case MoveArc:
		return m.From != m.To || m.Center != m.From
	}
	return false
}

// MovesZ reports whether the Z position changed.
func (m Move) MovesZ() bool {
	return m.Kind != MoveNone && m.FromZ != m.ToZ
}

// Extrudes reports whether the move deposits material.
func (m Move) Extrudes() bool {
	return m.EDelta > 0
}

// Retracts reports whether the move pulls filament back.
func (m Move) Retracts() bool {
	return m.EDelta < 0
}

// Travel reports whether the move changes XY without extruding.
func (m Move) Travel() bool {
	return m.MovesXY() && m.EDelta <= 0
}

// Path returns From followed by Samples.
func (m Move) Path() []geom.Point {
	pts := make([]geom.Point, 0, len(m.Samples)+1)
	pts = append(pts, m.From)
	return append(pts, m.Samples...)
}

// Length returns the XY length travelled along the sampled path.
func (m Move) Length() float64 {
	return geom.PolylineLength(m.Path())
}
