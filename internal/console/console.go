// Package console prints operator-facing messages. Diagnostic detail goes to
// the slog logger; this package is what a person watching the window reads.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Console writes styled lines to a terminal or plain text elsewhere.
type Console struct {
	out io.Writer

	title  lipgloss.Style
	box    lipgloss.Style
	label  lipgloss.Style
	step   lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	hint   lipgloss.Style
	subtle lipgloss.Style
}

// New creates a Console writing to out. Colours are used only when out is a terminal.
func New(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:    out,
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		box:    r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1),
		label:  r.NewStyle().Foreground(lipgloss.Color("8")).Width(11),
		step:   r.NewStyle().Foreground(lipgloss.Color("12")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("11")),
		fail:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		hint:   r.NewStyle().PaddingLeft(2),
		subtle: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Field is one labelled line in a banner.
type Field struct {
	Label string
	Value string
}

// Banner prints a boxed heading with labelled fields.
func (c *Console) Banner(heading string, fields ...Field) {
	lines := []string{c.title.Render(heading)}
	for _, f := range fields {
		lines = append(lines, c.label.Render(f.Label+":")+" "+f.Value)
	}
	fmt.Fprintln(c.out, c.box.Render(strings.Join(lines, "\n")))
}

// Step announces work in progress.
func (c *Console) Step(msg string) {
	fmt.Fprintln(c.out, c.step.Render("==> ")+msg)
}

// Success reports a completed step.
func (c *Console) Success(msg string) {
	fmt.Fprintln(c.out, c.ok.Render("ok  ")+msg)
}

// Warn reports a non-fatal problem.
func (c *Console) Warn(msg string) {
	fmt.Fprintln(c.out, c.warn.Render("!   ")+msg)
}

// Error reports a fatal problem and, when given, how to fix it.
func (c *Console) Error(msg, remediation string) {
	fmt.Fprintln(c.out, c.fail.Render("ERROR: ")+msg)
	if remediation != "" {
		fmt.Fprintln(c.out, c.hint.Render(remediation))
	}
}

// Hint prints indented guidance.
func (c *Console) Hint(msg string) {
	fmt.Fprintln(c.out, c.hint.Render(msg))
}

// Line prints a plain, dimmed line.
func (c *Console) Line(msg string) {
	fmt.Fprintln(c.out, c.subtle.Render(msg))
}

// Interactive reports whether f is attached to a terminal.
func Interactive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
