// Package sentinel guards an expensive setup step with a marker file.
//
// A Guard runs its step at most once per marker. The marker is an empty file whose
// only meaning is its existence; it is written after the step succeeds and never
// before, so a failed or interrupted step is retried from scratch on the next run.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Guard tracks completion of a single step through a marker file.
type Guard struct {
	path string
}

// New returns a Guard backed by the marker at path.
func New(path string) *Guard {
	return &Guard{path: path}
}

// Path returns the marker location.
func (g *Guard) Path() string {
	return g.path
}

// Done reports whether the marker exists.
func (g *Guard) Done() (bool, error) {
	_, err := os.Stat(g.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("sentinel.Done: %w", err)
}

// Mark writes the marker. An existing marker is left untouched.
func (g *Guard) Mark() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("sentinel.Mark: %w", err)
	}
	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("sentinel.Mark: %w", err)
	}
	return f.Close()
}

// Reset removes the marker so the next Do runs the step again.
func (g *Guard) Reset() error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sentinel.Reset: %w", err)
	}
	return nil
}

// Do runs step unless the marker is present. It returns ran=true when step was
// invoked. The marker is written only when step returns nil.
func (g *Guard) Do(ctx context.Context, step func(context.Context) error) (ran bool, err error) {
	done, err := g.Done()
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	if err := step(ctx); err != nil {
		return true, err
	}

	if err := g.Mark(); err != nil {
		return true, err
	}
	return true, nil
}
