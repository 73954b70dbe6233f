// Package proc starts the subprocesses the launcher depends on: the Python
// interpreter, venv, pip and the dashboard server.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single subprocess invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the launcher's own environment.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs and console messages.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Process is a started subprocess.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	Wait() error
}

// Executor resolves and starts commands.
type Executor interface {
	LookPath(file string) (string, error)
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExitError reports a subprocess that ran and exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
}

// ExitCode extracts the exit status from an error returned by Run or Wait.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Run starts cmd and waits for it.
func Run(ctx context.Context, ex Executor, cmd Command) error {
	p, err := ex.Start(ctx, cmd)
	if err != nil {
		return err
	}
	return p.Wait()
}

// Output runs cmd and returns stdout and stderr combined. Interpreters differ on
// which stream --version writes to.
func Output(ctx context.Context, ex Executor, cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := Run(ctx, ex, cmd)
	return buf.Bytes(), err
}

// OS runs commands on the host with os/exec.
type OS struct{}

// LookPath searches PATH for file.
func (OS) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Start launches cmd. The returned Process is bound to ctx: cancelling ctx kills it.
func (OS) Start(ctx context.Context, c Command) (Process, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}
	return &osProcess{cmd: cmd, line: c.String()}, nil
}

type osProcess struct {
	cmd  *exec.Cmd
	line string
}

func (p *osProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *osProcess) Wait() error {
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return &ExitError{Command: p.line, Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("%s: %w", p.line, err)
}
