package console

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestConsole_PlainOutputOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	c.Step("Installing dependencies")
	c.Success("Environment ready")
	c.Warn("Secrets file not found")
	c.Error("Python 3 was not found", "Install it from python.org")

	out := buf.String()
	for _, want := range []string{
		"==> Installing dependencies",
		"ok  Environment ready",
		"!   Secrets file not found",
		"ERROR: Python 3 was not found",
		"Install it from python.org",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("non-terminal output should not contain escape codes")
	}
}

func TestConsole_Banner(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Banner("exptrack dev", Field{Label: "Dashboard", Value: "http://localhost:8501"})

	out := buf.String()
	if !strings.Contains(out, "exptrack dev") || !strings.Contains(out, "http://localhost:8501") {
		t.Errorf("banner missing content:\n%s", out)
	}
}

func TestPauseModel_QuitsOnKey(t *testing.T) {
	m := pauseModel{prompt: PausePrompt}
	if m.View() != PausePrompt+"\n" {
		t.Errorf("View = %q", m.View())
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if cmd == nil {
		t.Fatal("a key press should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command should be tea.Quit")
	}
	if next.View() != "" {
		t.Error("prompt should clear after the key press")
	}
}

func TestPauseModel_IgnoresOtherMessages(t *testing.T) {
	m := pauseModel{prompt: PausePrompt}
	_, cmd := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	if cmd != nil {
		t.Error("window resize must not end the pause")
	}
}
