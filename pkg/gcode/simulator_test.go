package gcode

import (
	"math"
	"strings"
	"testing"

	"github.com/matzehuels/bricklayers/pkg/geom"
)

// run feeds lines through a fresh simulator and returns the last move and
// every warning produced.
func run(t *testing.T, lines ...string) (*Simulator, Move, []Warning) {
	t.Helper()
	sim := NewSimulator(0, 0)
	var last Move
	var warns []Warning
	for _, raw := range lines {
		l, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		m, w := sim.Step(l)
		last = m
		warns = append(warns, w...)
	}
	return sim, last, warns
}

func TestSimulatorAbsoluteMoves(t *testing.T) {
	sim, m, warns := run(t,
		"G28",
		"G1 X10 Y10 Z0.2 F3000",
		"G1 X90 Y10 E2.5",
	)
	if len(warns) != 0 {
		t.Errorf("warnings = %v, want none", warns)
	}
	if m.Kind != MoveLinear {
		t.Fatalf("Kind = %v, want linear", m.Kind)
	}
	if m.From != geom.Pt(10, 10) || m.To != geom.Pt(90, 10) {
		t.Errorf("From/To = %v/%v", m.From, m.To)
	}
	if m.EDelta != 2.5 || !m.Extrudes() || m.Travel() {
		t.Errorf("EDelta = %v, Extrudes = %v, Travel = %v", m.EDelta, m.Extrudes(), m.Travel())
	}
	if m.Feed != 3000 || m.FeedBefore != 3000 {
		t.Errorf("Feed = %v / before %v, want 3000", m.Feed, m.FeedBefore)
	}
	st := sim.State()
	if st.Z != 0.2 || st.E != 2.5 {
		t.Errorf("state Z = %v, E = %v", st.Z, st.E)
	}
}

func TestSimulatorExtrusionModes(t *testing.T) {
	_, m, _ := run(t,
		"G28",
		"M83",
		"G1 X10 Y0 E0.5",
		"G1 X20 Y0 E0.5",
	)
	if m.EDelta != 0.5 || m.EStart != 0.5 || m.EEnd != 1 {
		t.Errorf("relative E: delta %v start %v end %v", m.EDelta, m.EStart, m.EEnd)
	}

	_, m, _ = run(t,
		"G28",
		"M82",
		"G92 E10",
		"G1 X10 E11.5",
	)
	if m.EDelta != 1.5 || m.EStart != 10 || m.EEnd != 11.5 {
		t.Errorf("absolute E after G92: delta %v start %v end %v", m.EDelta, m.EStart, m.EEnd)
	}
}

func TestSimulatorRelativePositioning(t *testing.T) {
	sim, m, _ := run(t,
		"G28",
		"G1 X10 Y10",
		"G91",
		"G1 X5 Y-2 E0.3",
	)
	if m.To != geom.Pt(15, 8) {
		t.Errorf("To = %v, want (15,8)", m.To)
	}
	if !sim.State().RelativeE {
		t.Error("G91 should make extrusion relative")
	}

	// G90 restores the M82 choice.
	l, _ := Parse("G90")
	sim.Step(l)
	if st := sim.State(); st.RelativeXYZ || st.RelativeE {
		t.Errorf("after G90: RelativeXYZ = %v, RelativeE = %v", st.RelativeXYZ, st.RelativeE)
	}

	// ... and M83 survives G90.
	sim, _, _ = run(t, "M83", "G91", "G90")
	if !sim.State().RelativeE {
		t.Error("M83 lost across G91/G90")
	}
}

func TestSimulatorG92(t *testing.T) {
	sim, _, _ := run(t, "G92 X5 Y6")
	st := sim.State()
	if st.X != 5 || st.Y != 6 || !st.AnchoredXY() || st.Anchored[AxisZ] {
		t.Errorf("G92 X5 Y6 -> %+v", st)
	}

	sim, _, _ = run(t, "G1 E5", "G92")
	st = sim.State()
	if st.E != 0 || !st.Anchored[AxisZ] {
		t.Errorf("bare G92 -> %+v", st)
	}
}

func TestSimulatorArc(t *testing.T) {
	_, m, warns := run(t,
		"G28",
		"G1 X10 Y0",
		"G3 X0 Y10 I-10 J0 E1",
	)
	if len(warns) != 0 {
		t.Errorf("warnings = %v", warns)
	}
	if m.Kind != MoveArc || m.Clockwise {
		t.Fatalf("Kind = %v, Clockwise = %v", m.Kind, m.Clockwise)
	}
	if m.Center != geom.Pt(0, 0) {
		t.Errorf("Center = %v", m.Center)
	}
	if got := m.Samples[len(m.Samples)-1]; got != geom.Pt(0, 10) {
		t.Errorf("last sample = %v", got)
	}
	if len(m.Samples) > DefaultMaxArcSamples {
		t.Errorf("samples = %d, want <= %d", len(m.Samples), DefaultMaxArcSamples)
	}
	if want := math.Pi * 5; math.Abs(m.Length()-want) > 0.05 {
		t.Errorf("Length = %v, want ~%v", m.Length(), want)
	}
}

func TestSimulatorFullCircleArc(t *testing.T) {
	_, m, _ := run(t, "G28", "G1 X10 Y0", "G2 X10 Y0 I-10 J0 E3")
	if !m.MovesXY() {
		t.Error("full circle should move in XY")
	}
	if want := 2 * math.Pi * 10; math.Abs(m.Length()-want) > 0.5 {
		t.Errorf("Length = %v, want ~%v", m.Length(), want)
	}
}

func TestSimulatorArcWithoutOffsets(t *testing.T) {
	_, m, warns := run(t, "G28", "G2 X10 Y10 R5")
	if m.Kind != MoveLinear {
		t.Errorf("Kind = %v, want linear", m.Kind)
	}
	if len(warns) != 1 || !strings.Contains(warns[0].Message, "without I/J") {
		t.Errorf("warnings = %v", warns)
	}
}

func TestSimulatorUnanchored(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  int
	}{
		{"relative before anchor", []string{"G91", "G1 X5"}, 1},
		{"extrusion before anchor", []string{"G1 X5 E1"}, 1},
		{"arc before anchor", []string{"G2 X5 Y5 I1 J1"}, 1},
		{"absolute travel anchors", []string{"G1 X5 Y5", "G1 X10 Y5 E1"}, 0},
		{"relative after G92", []string{"G92 X0 Y0", "G91", "G1 X5 E1"}, 0},
		{"relative extrusion", []string{"M83", "G1 E2"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, warns := run(t, tt.lines...)
			if len(warns) != tt.want {
				t.Errorf("warnings = %v, want %d", warns, tt.want)
			}
			for _, w := range warns {
				if !strings.HasPrefix(w.Message, "unanchored position") {
					t.Errorf("unexpected warning %q", w.Message)
				}
			}
		})
	}
}

func TestSimulatorIgnoresOtherCommands(t *testing.T) {
	sim, m, _ := run(t, "G28", "G1 X1 Y1", "M104 S200", "; comment", "EXCLUDE_OBJECT_START NAME=a")
	if m.IsMove() {
		t.Errorf("Kind = %v, want none", m.Kind)
	}
	if st := sim.State(); st.X != 1 || st.Y != 1 {
		t.Errorf("state moved: %+v", st)
	}
}
