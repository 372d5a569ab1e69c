package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type claimPassDoneMsg struct {
	err error
}

type claimSpinnerModel struct {
	spinner spinner.Model
	label   string
	pass    tea.Cmd
	err     error
	done    bool
}

func newClaimSpinnerModel(label string, pass tea.Cmd) claimSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return claimSpinnerModel{
		spinner: s,
		label:   label,
		pass:    pass,
	}
}

func (m claimSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.pass)
}

func (m claimSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case claimPassDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m claimSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// runClaimSpinner shows a spinner on output while pass runs and returns its
// error.
func runClaimSpinner(ctx context.Context, output io.Writer, label string, pass func(context.Context) error) error {
	passCmd := func() tea.Msg {
		return claimPassDoneMsg{err: pass(ctx)}
	}

	p := tea.NewProgram(
		newClaimSpinnerModel(label, passCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(claimSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}
