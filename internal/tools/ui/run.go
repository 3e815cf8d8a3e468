// Package ui renders a single tool action in the terminal while it runs.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const defaultTimeout = 2 * time.Minute

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Faint(true)
)

type Action func(context.Context) ([]string, error)

type resultMsg struct {
	details []string
	err     error
	elapsed time.Duration
}

type model struct {
	title    string
	timeout  time.Duration
	action   Action
	details  []string
	err      error
	elapsed  time.Duration
	done     bool
	canceled bool
}

func newModel(title string, timeout time.Duration, action Action) model {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return model{title: title, timeout: timeout, action: action}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		start := time.Now()
		details, err := m.action(ctx)
		return resultMsg{details: details, err: err, elapsed: time.Since(start)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.canceled = true
			m.err = context.Canceled
			return m, tea.Quit
		}
	case resultMsg:
		m.details = msg.details
		m.err = msg.err
		m.elapsed = msg.elapsed
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	switch {
	case m.canceled:
		b.WriteString(failStyle.Render("CANCELED"))
		b.WriteString("\n")
		return b.String()
	case !m.done:
		b.WriteString("\nRunning...\n")
		return b.String()
	case m.err != nil:
		fmt.Fprintf(&b, "%s: %v", failStyle.Render("FAILED"), m.err)
	default:
		b.WriteString(okStyle.Render("OK"))
	}
	fmt.Fprintf(&b, " %s\n", detailStyle.Render(fmt.Sprintf("(%s)", m.elapsed.Round(time.Millisecond))))
	for _, d := range m.details {
		b.WriteString("- " + d + "\n")
	}
	return b.String()
}

// Run executes action under a timeout and returns its details once the
// program exits. ctrl+c aborts with context.Canceled.
func Run(title string, timeout time.Duration, action Action) ([]string, error) {
	p := tea.NewProgram(newModel(title, timeout, action))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	res := final.(model)
	return res.details, res.err
}
