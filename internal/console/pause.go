package console

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// PausePrompt is shown while waiting for a key press.
const PausePrompt = "Press any key to close this window . . ."

type pauseModel struct {
	prompt string
	done   bool
}

func (m pauseModel) Init() tea.Cmd {
	return nil
}

func (m pauseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(tea.KeyMsg); ok {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pauseModel) View() string {
	if m.done {
		return ""
	}
	return m.prompt + "\n"
}

// Pause blocks until a single key is pressed on in. Callers check Interactive
// first; on a pipe this would wait for input that never comes.
func Pause(ctx context.Context, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(
		pauseModel{prompt: PausePrompt},
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}
