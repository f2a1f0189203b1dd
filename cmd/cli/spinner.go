package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

type taskDoneMsg struct {
	value any
	err   error
}

// taskModel shows a spinner while a single blocking call runs.
type taskModel struct {
	title   string
	spinner spinner.Model
	run     func() (any, error)
	cancel  context.CancelFunc

	done  bool
	value any
	err   error
}

func (m taskModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		value, err := m.run()
		return taskDoneMsg{value: value, err: err}
	})
}

func (m taskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.done = true
			m.err = context.Canceled
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case taskDoneMsg:
		m.done = true
		m.value, m.err = msg.value, msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m taskModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.title)
}

// withSpinner runs fn behind a terminal spinner in text mode. Machine
// readable output skips the terminal UI entirely.
func withSpinner[T any](cmd *cobra.Command, title string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if outputFormat(cmd) != outputText {
		return fn(ctx)
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b82f6"))

	model := taskModel{
		title:   title,
		spinner: s,
		cancel:  cancel,
		run: func() (any, error) {
			return fn(ctx)
		},
	}

	var zero T
	final, err := tea.NewProgram(model, tea.WithOutput(cmd.ErrOrStderr())).Run()
	if err != nil {
		return zero, fmt.Errorf("failed to run terminal ui: %w", err)
	}

	result := final.(taskModel)
	if result.err != nil {
		return zero, result.err
	}
	value, _ := result.value.(T)
	return value, nil
}
