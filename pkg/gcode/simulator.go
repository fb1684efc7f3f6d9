package gcode

import (
	"fmt"

	"github.com/matzehuels/bricklayers/pkg/geom"
)

// Default arc flattening parameters.
const (
	DefaultArcResolution = 0.5
	DefaultMaxArcSamples = 32
)

// Warning is a recoverable problem found while simulating a line.
type Warning struct {
	Message string
}

func (w Warning) String() string { return w.Message }

// Simulator replays lines against a State. It is not safe for concurrent use.
type Simulator struct {
	state         State
	arcResolution float64
	maxArcSamples int
}

// NewSimulator creates a simulator in the power-on state. Non-positive arc
// parameters fall back to DefaultArcResolution and DefaultMaxArcSamples.
func NewSimulator(arcResolution float64, maxArcSamples int) *Simulator {
	if arcResolution <= 0 {
		arcResolution = DefaultArcResolution
	}
	if maxArcSamples <= 0 {
		maxArcSamples = DefaultMaxArcSamples
	}
	return &Simulator{
		state:         NewState(),
		arcResolution: arcResolution,
		maxArcSamples: maxArcSamples,
	}
}

// State returns a copy of the current state.
func (s *Simulator) State() State {
	return s.state
}

// Step applies l to the state and returns the resulting move. Lines that do
// not affect motion or modes return a Move with Kind MoveNone.
func (s *Simulator) Step(l *Line) (Move, []Warning) {
	switch l.Command {
	case "G0", "G1":
		return s.move(l, false)
	case "G2", "G3":
		if !l.Has('I') && !l.Has('J') {
			m, warns := s.move(l, false)
			return m, append(warns, Warning{Message: fmt.Sprintf("%s without I/J offsets treated as a linear move", l.Command)})
		}
		return s.move(l, true)
	case "G28":
		s.home(l)
	case "G90":
		s.state.RelativeXYZ = false
		s.state.RelativeE = s.state.extruderRelative
	case "G91":
		s.state.RelativeXYZ = true
		s.state.RelativeE = true
	case "M82":
		s.state.extruderRelative = false
		s.state.RelativeE = s.state.RelativeXYZ
	case "M83":
		s.state.extruderRelative = true
		s.state.RelativeE = true
	case "G92":
		s.setPosition(l)
	}
	return Move{Kind: MoveNone, Feed: s.state.F, FeedBefore: s.state.F}, nil
}

func (s *Simulator) move(l *Line, arc bool) (Move, []Warning) {
	st := &s.state
	m := Move{
		Kind:        MoveLinear,
		From:        st.XY(),
		FromZ:       st.Z,
		EStart:      st.E,
		FeedBefore:  st.F,
		RelativeXYZ: st.RelativeXYZ,
		RelativeE:   st.RelativeE,
	}
	var warns []Warning
	startAnchoredXY := st.AnchoredXY()

	for a := AxisX; a < numAxes; a++ {
		v, ok := l.Value(axisLetters[a])
		if !ok {
			continue
		}
		relative := st.RelativeXYZ
		if a == AxisE {
			relative = st.RelativeE
		}
		p := st.axis(a)
		if relative {
			if !st.Anchored[a] {
				warns = append(warns, unanchored(l, a))
			}
			*p += v
			if a == AxisE {
				m.EDelta = v
			}
			continue
		}
		if a == AxisE {
			m.EDelta = v - *p
		}
		*p = v
		st.Anchored[a] = true
	}
	if f, ok := l.Value('F'); ok && f > 0 {
		st.F = f
	}

	m.To = st.XY()
	m.ToZ = st.Z
	m.EEnd = st.E
	m.Feed = st.F

	if arc {
		m.Kind = MoveArc
		m.Clockwise = l.Command == "G2"
		i, _ := l.Value('I')
		j, _ := l.Value('J')
		m.Center = m.From.Add(geom.Pt(i, j))
		m.Samples = geom.ArcSamples(m.From, m.To, m.Center, m.Clockwise, s.arcResolution, s.maxArcSamples)
		if !startAnchoredXY {
			warns = append(warns, Warning{Message: fmt.Sprintf("unanchored position: %s starts from an unknown XY position", l.Command)})
		}
	} else {
		m.Samples = []geom.Point{m.To}
		if m.EDelta > 0 && m.MovesXY() && !startAnchoredXY {
			warns = append(warns, Warning{Message: "unanchored position: extrusion starts from an unknown XY position"})
		}
	}
	return m, warns
}

// setPosition applies G92. Without axis words every axis is reset to zero.
func (s *Simulator) setPosition(l *Line) {
	named := false
	for a := AxisX; a < numAxes; a++ {
		p, ok := l.Param(axisLetters[a])
		if !ok {
			continue
		}
		named = true
		*s.state.axis(a) = p.Value
		s.state.Anchored[a] = true
	}
	if named {
		return
	}
	for a := AxisX; a < numAxes; a++ {
		*s.state.axis(a) = 0
		s.state.Anchored[a] = true
	}
}

// home applies G28, which leaves the named axes (or X, Y and Z) at zero.
func (s *Simulator) home(l *Line) {
	named := false
	for a := AxisX; a <= AxisZ; a++ {
		if l.Has(axisLetters[a]) {
			named = true
			*s.state.axis(a) = 0
			s.state.Anchored[a] = true
		}
	}
	if named {
		return
	}
	for a := AxisX; a <= AxisZ; a++ {
		*s.state.axis(a) = 0
		s.state.Anchored[a] = true
	}
}

func unanchored(l *Line, a Axis) Warning {
	return Warning{Message: fmt.Sprintf("unanchored position: relative %s move on %s before its position is known", l.Command, a)}
}
