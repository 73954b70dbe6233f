package bootstrap

import (
	"errors"
	"fmt"
)

// ErrRuntimeNotFound indicates no usable Python 3 interpreter was found.
var ErrRuntimeNotFound = errors.New("python runtime not found")

// ErrEnvCreate indicates the virtual environment could not be created.
var ErrEnvCreate = errors.New("failed to create virtual environment")

// ErrInstall indicates the package installer exited with an error.
var ErrInstall = errors.New("dependency installation failed")

// Phase names the bootstrap step that failed.
type Phase string

const (
	PhaseRuntime Phase = "runtime"
	PhaseEnv     Phase = "environment"
	PhaseInstall Phase = "install"
)

// Error is a fatal bootstrap failure with operator-facing remediation.
type Error struct {
	Phase       Phase
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(phase Phase, remediation string, err error) *Error {
	return &Error{Phase: phase, Remediation: remediation, Err: err}
}
