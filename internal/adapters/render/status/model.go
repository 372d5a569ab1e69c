package status

import (
	"errors"
	"io"
	"sort"

	"github.com/bnema/pocketfi-claimer/internal/application"
	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type viewReadyMsg struct{}

type model struct {
	statuses []application.Status
	opts     RenderOptions
	styles   styles
	output   string
}

// newModel orders accounts by how soon they can claim. Halted accounts go
// last.
func newModel(statuses []application.Status, opts RenderOptions) model {
	ordered := append([]application.Status(nil), statuses...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Halted() != b.Halted() {
			return !a.Halted()
		}
		if a.Remaining != b.Remaining {
			return a.Remaining < b.Remaining
		}
		return a.Account.ID < b.Account.ID
	})

	return model{
		statuses: ordered,
		opts:     opts,
		styles:   newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return viewReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(viewReadyMsg); ok {
		m.output = renderView(m.statuses, m.opts, m.styles)
		return m, tea.Quit
	}

	return m, nil
}

func (m model) View() string {
	return m.output
}

// Render lays out the claim windows of statuses and returns the frame.
func Render(statuses []application.Status, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newModel(statuses, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
