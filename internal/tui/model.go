// Package tui renders the popup in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/codebuddy-cli/internal/popup"
)

// Controller is what the TUI needs from the popup controller.
type Controller interface {
	State() popup.State
	Changes() <-chan struct{}
	Closed() <-chan struct{}
	Dispatch(a popup.Action) error
}

type stateChangedMsg struct{}

type closedMsg struct{}

type model struct {
	// ctx ends when the program exits; waiting commands give up with it.
	ctx     context.Context
	ctrl    Controller
	state   popup.State
	spinner spinner.Model
	err     error
}

func newModel(ctx context.Context, ctrl Controller) *model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(accent)
	return &model{
		ctx:     ctx,
		ctrl:    ctrl,
		state:   ctrl.State(),
		spinner: s,
	}
}

// Run shows the popup until the user quits, the popup closes itself or ctx
// is cancelled.
func Run(ctx context.Context, ctrl Controller) error {
	// The controller outlives the program in `run`; cancelling releases the
	// commands still waiting on it.
	progCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(progCtx, ctrl), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to run popup TUI: %w", err)
	}
	return nil
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForChange(m.ctx, m.ctrl), waitForClose(m.ctx, m.ctrl))
}

func waitForChange(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctrl.Changes():
			return stateChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func waitForClose(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctrl.Closed():
			return closedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case stateChangedMsg:
		m.state = m.ctrl.State()
		return m, waitForChange(m.ctx, m.ctrl)
	case closedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	}
	for _, ctl := range popup.View(m.state).Controls {
		if ctl.Key != msg.String() {
			continue
		}
		if !ctl.Enabled {
			return m, nil
		}
		m.err = m.ctrl.Dispatch(ctl.Action)
		return m, nil
	}
	return m, nil
}

func (m *model) View() string {
	sc := popup.View(m.state)
	var b strings.Builder

	b.WriteString(titleStyle.Render("Code Buddy"))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Current Problem"))
	b.WriteString("\n")
	b.WriteString(problemStyle.Render(sc.Problem))
	b.WriteString("\n\n")

	rows := make([]string, 0, len(sc.Controls)/2+1)
	for i := 0; i < len(sc.Controls); i += 2 {
		end := i + 2
		if end > len(sc.Controls) {
			end = len(sc.Controls)
		}
		cells := make([]string, 0, 2)
		for _, ctl := range sc.Controls[i:end] {
			cells = append(cells, m.renderControl(ctl))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))

	if sc.Panel != popup.PanelNone {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(sc.PanelTitle))
		b.WriteString("\n")
		b.WriteString(m.renderLines(sc.PanelLines, sc.Panel == popup.PanelSimilar))
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Companies Asked"))
	b.WriteString("\n")
	b.WriteString(m.renderLines(sc.Companies, len(m.state.Companies.Value) > 0))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("press a key to run an action, q to close"))
	return frameStyle.Render(b.String())
}

func (m *model) renderControl(ctl popup.Control) string {
	label := fmt.Sprintf("[%s] %s", ctl.Key, ctl.Label)
	if ctl.Label == popup.MsgLoading {
		label = fmt.Sprintf("[%s] %s %s", ctl.Key, m.spinner.View(), ctl.Label)
	}
	if !ctl.Enabled {
		return disabledControlStyle.Render(label)
	}
	return controlStyle.Render(label)
}

func (m *model) renderLines(lines []string, bulleted bool) string {
	if len(lines) == 1 && lines[0] == popup.MsgLoading {
		return listStyle.Render(m.spinner.View() + " " + popup.MsgLoading)
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if bulleted {
			out = append(out, listStyle.Render("• "+l))
			continue
		}
		out = append(out, panelStyle.Render(l))
	}
	return strings.Join(out, "\n")
}
