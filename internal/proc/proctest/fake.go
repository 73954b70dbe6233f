// Package proctest provides a scripted proc.Executor for tests.
package proctest

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/onllm-dev/exptrack/internal/proc"
)

// Result is what a scripted command produces.
type Result struct {
	Output string
	Code   int
	// StartErr makes Start itself fail, as for a missing binary.
	StartErr error
}

// Fake records every started command and answers with Handler.
type Fake struct {
	// Paths maps names to LookPath results. Missing names are not found.
	Paths map[string]string
	// Handler decides the outcome of each command. Nil means success.
	Handler func(cmd proc.Command) Result

	mu    sync.Mutex
	calls []proc.Command
}

// LookPath implements proc.Executor.
func (f *Fake) LookPath(file string) (string, error) {
	if p, ok := f.Paths[file]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH: " + file)
}

// Start implements proc.Executor. The command runs synchronously.
func (f *Fake) Start(ctx context.Context, cmd proc.Command) (proc.Process, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	res := Result{}
	if f.Handler != nil {
		res = f.Handler(cmd)
	}
	if res.StartErr != nil {
		return nil, res.StartErr
	}
	if res.Output != "" && cmd.Stdout != nil {
		io.WriteString(cmd.Stdout, res.Output)
	}

	p := &Process{}
	if res.Code != 0 {
		p.err = &proc.ExitError{Command: cmd.String(), Code: res.Code}
	}
	return p, nil
}

// Calls returns a copy of the recorded commands.
func (f *Fake) Calls() []proc.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]proc.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo counts recorded commands whose arguments contain all of args in order.
func (f *Fake) CallsTo(args ...string) int {
	n := 0
	for _, c := range f.Calls() {
		if containsSeq(c.Args, args) {
			n++
		}
	}
	return n
}

func containsSeq(haystack, needle []string) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Process is a finished fake process.
type Process struct {
	err     error
	Signals []os.Signal
}

func (p *Process) Pid() int { return 4242 }

func (p *Process) Signal(sig os.Signal) error {
	p.Signals = append(p.Signals, sig)
	return nil
}

func (p *Process) Wait() error { return p.err }
