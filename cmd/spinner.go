package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/swarmchat/internal/application"
	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

// connectPhases names what the spinner shows at each step of a connect.
type connectPhases struct {
	checking   string
	connecting string
	syncing    string
}

func newConnectPhases(connecting string) connectPhases {
	return connectPhases{
		checking:   "Checking node...",
		connecting: connecting,
		syncing:    "Starting sync...",
	}
}

// label maps a session change to the phase it starts. Unknown states keep
// the current label.
func (p connectPhases) label(session domain.Session) (string, bool) {
	switch session.State {
	case domain.SessionConnecting:
		if session.BaseURL != "" {
			return fmt.Sprintf("%s (%s)", p.connecting, session.BaseURL), true
		}
		return p.connecting, true
	case domain.SessionConnected:
		if session.UserID != "" {
			return fmt.Sprintf("%s as %s", p.syncing, session.UserID), true
		}
		return p.syncing, true
	default:
		return "", false
	}
}

type phaseMsg string

type connectDoneMsg struct {
	err error
}

type connectSpinnerModel struct {
	spinner spinner.Model
	label   string
	task    tea.Cmd
	err     error
	done    bool
}

func newConnectSpinnerModel(label string, task tea.Cmd) connectSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("42"))),
	)

	return connectSpinnerModel{spinner: s, label: label, task: task}
}

func (m connectSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.task)
}

func (m connectSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case phaseMsg:
		m.label = string(msg)
		return m, nil
	case connectDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m connectSpinnerModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

type sessionFeed interface {
	Subscribe(fn func(application.SessionEvent)) ports.Subscription
}

// runConnectSpinner runs task while the spinner follows the session through
// its connect phases, and returns the task's error.
func runConnectSpinner(ctx context.Context, output io.Writer, sessions sessionFeed, phases connectPhases, task func(context.Context) error) error {
	taskCmd := func() tea.Msg {
		return connectDoneMsg{err: task(ctx)}
	}

	p := tea.NewProgram(
		newConnectSpinnerModel(phases.checking, taskCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	sub := sessions.Subscribe(func(ev application.SessionEvent) {
		if label, ok := phases.label(ev.Session); ok {
			p.Send(phaseMsg(label))
		}
	})
	defer sub.Close()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(connectSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}
	return result.err
}
