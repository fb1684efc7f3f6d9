package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/bricklayers/pkg/brick"
	"github.com/matzehuels/bricklayers/pkg/pipeline"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// square prints an 80 mm square perimeter on n layers.
func square(n int) string {
	var b strings.Builder
	b.WriteString("G90\nM83\nG28\n")
	for i := range n {
		fmt.Fprintf(&b, ";LAYER_CHANGE\nG1 Z%.1f F600\n", 0.2*float64(i+1))
		b.WriteString("G1 X10 Y10 F9000\n;TYPE:Perimeter\n")
		b.WriteString("G1 X90 Y10 E2.4 F1800\nG1 X90 Y90 E2.4\nG1 X10 Y90 E2.4\nG1 X10 Y10 E2.4\n")
		b.WriteString("G1 X0 Y0 F9000\n")
	}
	return b.String()
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	want := []string{"process", "inspect", "vocab", "serve", "cache", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestProcessCommand(t *testing.T) {
	input := writeInput(t, "benchy.gcode", square(5))

	if _, err := execute(t, "process", input); err != nil {
		t.Fatalf("process: %v", err)
	}

	output := filepath.Join(filepath.Dir(input), "benchy_processed.gcode")
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "G0 X50 Y10\n") {
		t.Errorf("output has no shifted seam:\n%s", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(input))
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want input and output only", len(entries))
	}
}

func TestProcessCommandOutputFlag(t *testing.T) {
	input := writeInput(t, "part.gcode", square(5))
	output := filepath.Join(t.TempDir(), "out.gcode")

	if _, err := execute(t, "process", input, "-o", output, "--no-cache", "--start-at-layer", "100"); err != nil {
		t.Fatalf("process: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != square(5) {
		t.Error("no layer is eligible, output should equal input")
	}
}

func TestProcessCommandRejectsOptions(t *testing.T) {
	input := writeInput(t, "part.gcode", square(5))
	tests := [][]string{
		{"--extrusion-multiplier", "2"},
		{"--parity", "sometimes"},
		{"--dialect", "unknown"},
		{"--ignore-layers", "5-3"},
	}
	for _, args := range tests {
		_, err := execute(t, append([]string{"process", input}, args...)...)
		if err == nil {
			t.Errorf("process %v: expected error", args)
		}
	}
	entries, _ := os.ReadDir(filepath.Dir(input))
	if len(entries) != 1 {
		t.Errorf("rejected runs left %d files", len(entries)-1)
	}
}

func TestProcessCommandMissingInput(t *testing.T) {
	_, err := execute(t, "process", filepath.Join(t.TempDir(), "missing.gcode"))
	if err == nil || !strings.Contains(err.Error(), "open input") {
		t.Errorf("err = %v, want open input error", err)
	}
}

func TestInspectCommand(t *testing.T) {
	input := writeInput(t, "part.gcode", square(6))
	output := filepath.Join(t.TempDir(), "forest.dot")

	if _, err := execute(t, "inspect", input, "--layer", "3", "-o", output); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "digraph Forest") {
		t.Errorf("output is not DOT:\n%s", data)
	}
}

func TestInspectCommandRequiresLayer(t *testing.T) {
	input := writeInput(t, "part.gcode", square(2))
	if _, err := execute(t, "inspect", input); err == nil {
		t.Error("inspect without --layer should fail")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"forest.svg":  pipeline.FormatSVG,
		"forest.DOT":  pipeline.FormatDOT,
		"forest.gv":   pipeline.FormatDOT,
		"groups.json": pipeline.FormatJSON,
		"":            pipeline.FormatSVG,
	}
	for path, want := range tests {
		if got := formatFromPath(path); got != want {
			t.Errorf("formatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestVocabCommand(t *testing.T) {
	out, err := execute(t, "vocab")
	if err != nil {
		t.Fatalf("vocab: %v", err)
	}
	for _, name := range vocab.Dialects() {
		if !strings.Contains(out, name) {
			t.Errorf("dialect %q missing from listing", name)
		}
	}

	out, err = execute(t, "vocab", "prusa")
	if err != nil {
		t.Fatalf("vocab prusa: %v", err)
	}
	if !strings.Contains(out, "TYPE:External perimeter") {
		t.Errorf("prusa synonyms missing:\n%s", out)
	}

	if _, err := execute(t, "vocab", "nosuchslicer"); err == nil {
		t.Error("unknown dialect should fail")
	}
}

func TestVocabExportRoundTrip(t *testing.T) {
	out, err := execute(t, "vocab", "cura", "--export", "yaml")
	if err != nil {
		t.Fatalf("vocab --export: %v", err)
	}
	path := writeInput(t, "cura.yaml", out)
	got, err := vocab.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Name != vocab.DialectCura {
		t.Errorf("Name = %q, want %q", got.Name, vocab.DialectCura)
	}
}

func TestCachePathCommand(t *testing.T) {
	out, err := execute(t, "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "bricklayers") {
		t.Errorf("cache path = %q", out)
	}
}

func TestProgressModel(t *testing.T) {
	cancelled := false
	m := NewProgressModel("benchy.gcode", func() { cancelled = true })

	next, _ := m.Update(progressMsg{consumed: 50, total: 200})
	m = next.(ProgressModel)
	if m.Consumed != 50 || m.Total != 200 {
		t.Errorf("progress = %d/%d", m.Consumed, m.Total)
	}
	if view := m.View(); !strings.Contains(view, "25%") {
		t.Errorf("view missing percentage:\n%s", view)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(ProgressModel)
	if !cancelled {
		t.Error("q should cancel the run")
	}

	res := &pipeline.Result{}
	res.Stats.Stats = brick.Stats{LinesIn: 200, Loops: 5, Rewritten: 1}
	next, cmd := m.Update(doneMsg{result: res})
	m = next.(ProgressModel)
	if !m.Done || m.Result != res || cmd == nil {
		t.Errorf("done message not applied: %+v", m)
	}
	if view := m.View(); !strings.Contains(view, "shifted") {
		t.Errorf("final view missing stats:\n%s", view)
	}
}

func TestProgressModelError(t *testing.T) {
	m := NewProgressModel("x.gcode", nil)
	boom := errors.New("boom")
	next, _ := m.Update(doneMsg{err: boom})
	if got := next.(ProgressModel); got.Err != boom || !got.Done {
		t.Errorf("model = %+v", got)
	}
}

func TestFlagCompletion(t *testing.T) {
	out, err := execute(t, "__complete", "process", "part.gcode", "--dialect", "pr")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "prusa") || strings.Contains(out, "cura") {
		t.Errorf("dialect completion = %q", out)
	}

	out, err = execute(t, "__complete", "inspect", "part.gcode", "--format", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"dot", "json", "svg"} {
		if !strings.Contains(out, f) {
			t.Errorf("format completion %q missing %s", out, f)
		}
	}
}
