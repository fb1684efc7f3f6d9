package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/bricklayers/pkg/pipeline"
)

const progressWidth = 40

var (
	barFullStyle  = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
	tuiLabelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(10)
)

// =============================================================================
// Messages
// =============================================================================

type progressMsg struct {
	consumed, total int
}

type doneMsg struct {
	result *pipeline.Result
	err    error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// =============================================================================
// ProgressModel - live view of one processing run
// =============================================================================

// ProgressModel shows the progress of a run. Quitting the view cancels the
// run.
type ProgressModel struct {
	Name     string
	Consumed int
	Total    int // 0 when the input is streamed
	Start    time.Time
	Now      time.Time
	Result   *pipeline.Result
	Err      error
	Done     bool

	cancel context.CancelFunc
}

// NewProgressModel creates a model for a run over name.
func NewProgressModel(name string, cancel context.CancelFunc) ProgressModel {
	now := time.Now()
	return ProgressModel{Name: name, Start: now, Now: now, cancel: cancel}
}

func (m ProgressModel) Init() tea.Cmd {
	return tick()
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	case progressMsg:
		m.Consumed, m.Total = msg.consumed, msg.total
	case tickMsg:
		m.Now = time.Time(msg)
		if !m.Done {
			return m, tick()
		}
	case doneMsg:
		m.Done = true
		m.Result, m.Err = msg.result, msg.err
		m.Now = time.Now()
		if msg.result != nil {
			m.Consumed = msg.result.Stats.LinesIn
			m.Total = m.Consumed
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("Processing " + m.Name))
	b.WriteString("\n\n")

	if m.Total > 0 {
		frac := float64(m.Consumed) / float64(m.Total)
		full := min(int(frac*progressWidth), progressWidth)
		b.WriteString(barFullStyle.Render(strings.Repeat("█", full)))
		b.WriteString(barEmptyStyle.Render(strings.Repeat("░", progressWidth-full)))
		b.WriteString(fmt.Sprintf(" %3.0f%%\n", frac*100))
	}
	b.WriteString(tuiLabelStyle.Render("lines") + StyleValue.Render(fmt.Sprint(m.Consumed)) + "\n")
	b.WriteString(tuiLabelStyle.Render("elapsed") + StyleValue.Render(m.Now.Sub(m.Start).Round(100*time.Millisecond).String()) + "\n")

	if m.Result != nil {
		s := m.Result.Stats
		b.WriteString(tuiLabelStyle.Render("loops") + StyleValue.Render(fmt.Sprint(s.Loops)) + "\n")
		b.WriteString(tuiLabelStyle.Render("shifted") + StyleValue.Render(fmt.Sprint(s.Rewritten)) + "\n")
	}
	if !m.Done {
		b.WriteString("\n" + StyleDim.Render("q cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// =============================================================================
// Runner
// =============================================================================

// runWithTUI runs fn while showing a ProgressModel on stderr. fn receives a
// context cancelled when the user quits and a progress callback.
func runWithTUI(ctx context.Context, name string, fn func(context.Context, func(consumed, total int)) (*pipeline.Result, error)) (*pipeline.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(name, cancel), tea.WithContext(ctx), tea.WithOutput(os.Stderr))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, err := fn(runCtx, func(consumed, total int) {
			p.Send(progressMsg{consumed: consumed, total: total})
		})
		p.Send(doneMsg{result: result, err: err})
	}()

	final, perr := p.Run()
	if perr != nil {
		cancel()
		<-finished
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("progress view: %w", perr)
	}
	m := final.(ProgressModel)
	return m.Result, m.Err
}
