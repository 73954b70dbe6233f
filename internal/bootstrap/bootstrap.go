// Package bootstrap prepares the Python environment the dashboard runs in.
//
// A run discovers an interpreter, creates the virtual environment when it is
// missing and installs requirements when the installation marker is missing.
// Each step completes or fails fatally before the next begins.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/onllm-dev/exptrack/internal/proc"
	"github.com/onllm-dev/exptrack/internal/sentinel"
)

// MarkerName is the installation marker inside the environment directory.
const MarkerName = ".deps-installed"

const runtimeRemediation = `Python 3 was not found on PATH.
Install it from https://www.python.org/downloads/ (on Windows, tick "Add python.exe to PATH"
during setup), or point EXPTRACK_PYTHON / --python at an interpreter, then run exptrack again.`

// Options configures a Bootstrapper.
type Options struct {
	WorkDir string
	// Python is an explicit interpreter. When empty, Candidates are searched on PATH.
	Python     string
	Candidates []string
	// EnvDir and Requirements are resolved against WorkDir when relative.
	EnvDir       string
	Requirements string
	// Reinstall removes the installation marker before checking it.
	Reinstall bool

	// Installer output goes here.
	Stdout io.Writer
	Stderr io.Writer
	// Progress receives one line per step that does real work.
	Progress func(msg string)
}

// Runtime is a discovered interpreter.
type Runtime struct {
	Path    string
	Version string
}

// Result summarises a successful bootstrap.
type Result struct {
	Runtime       Runtime
	EnvDir        string
	EnvPython     string
	EnvCreated    bool
	DepsInstalled bool
}

// Bootstrapper runs the setup sequence.
type Bootstrapper struct {
	opts   Options
	exec   proc.Executor
	logger *slog.Logger
}

// New creates a Bootstrapper.
func New(opts Options, exec proc.Executor, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = DefaultCandidates
	}
	if opts.EnvDir == "" {
		opts.EnvDir = ".venv"
	}
	if opts.Requirements == "" {
		opts.Requirements = "requirements.txt"
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	return &Bootstrapper{opts: opts, exec: exec, logger: logger}
}

// EnvDir returns the absolute-or-workdir-relative environment directory.
func (b *Bootstrapper) EnvDir() string {
	return b.resolve(b.opts.EnvDir)
}

// EnvPython returns the interpreter inside the environment.
func (b *Bootstrapper) EnvPython() string {
	return venvPython(b.EnvDir())
}

// Marker returns the guard for the installation marker.
func (b *Bootstrapper) Marker() *sentinel.Guard {
	return sentinel.New(filepath.Join(b.EnvDir(), MarkerName))
}

func (b *Bootstrapper) resolve(p string) string {
	if filepath.IsAbs(p) || b.opts.WorkDir == "" {
		return p
	}
	return filepath.Join(b.opts.WorkDir, p)
}

func (b *Bootstrapper) progress(msg string) {
	if b.opts.Progress != nil {
		b.opts.Progress(msg)
	}
}

// Run executes the full sequence. A returned error is always a *Error.
func (b *Bootstrapper) Run(ctx context.Context) (*Result, error) {
	rt, err := b.FindRuntime(ctx)
	if err != nil {
		return nil, err
	}

	created, err := b.EnsureEnv(ctx, rt)
	if err != nil {
		return nil, err
	}

	installed, err := b.EnsureDeps(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{
		Runtime:       *rt,
		EnvDir:        b.EnvDir(),
		EnvPython:     b.EnvPython(),
		EnvCreated:    created,
		DepsInstalled: installed,
	}, nil
}

// FindRuntime locates a Python 3 interpreter and confirms it runs.
func (b *Bootstrapper) FindRuntime(ctx context.Context) (*Runtime, error) {
	candidates := b.opts.Candidates
	if b.opts.Python != "" {
		candidates = []string{b.opts.Python}
	}

	var lastErr error
	for _, name := range candidates {
		path, err := b.exec.LookPath(name)
		if err != nil {
			b.logger.Debug("Interpreter candidate not on PATH", "name", name)
			lastErr = err
			continue
		}

		out, err := proc.Output(ctx, b.exec, proc.Command{Path: path, Args: []string{"--version"}})
		if err != nil {
			b.logger.Debug("Interpreter candidate not invocable", "path", path, "error", err)
			lastErr = err
			continue
		}

		version := strings.TrimSpace(string(out))
		if !strings.HasPrefix(version, "Python 3") {
			b.logger.Debug("Interpreter candidate is not Python 3", "path", path, "version", version)
			lastErr = fmt.Errorf("%s reports %q", path, version)
			continue
		}

		b.logger.Info("Runtime found", "path", path, "version", version)
		return &Runtime{Path: path, Version: version}, nil
	}

	err := ErrRuntimeNotFound
	if lastErr != nil {
		err = fmt.Errorf("%w: %v", ErrRuntimeNotFound, lastErr)
	}
	return nil, newError(PhaseRuntime, runtimeRemediation, err)
}

// EnsureEnv creates the virtual environment when its directory is absent.
// It reports whether a new environment was created.
func (b *Bootstrapper) EnsureEnv(ctx context.Context, rt *Runtime) (bool, error) {
	dir := b.EnvDir()

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		b.logger.Debug("Environment present", "dir", dir)
		return false, nil
	case err == nil:
		return false, newError(PhaseEnv,
			fmt.Sprintf("%s exists but is not a directory. Move it aside and run exptrack again.", dir),
			fmt.Errorf("%w: %s is a file", ErrEnvCreate, dir))
	case !errors.Is(err, fs.ErrNotExist):
		return false, newError(PhaseEnv, "", fmt.Errorf("%w: %v", ErrEnvCreate, err))
	}

	b.progress(fmt.Sprintf("Creating virtual environment in %s ...", dir))
	b.logger.Info("Creating environment", "dir", dir, "runtime", rt.Path)

	err = proc.Run(ctx, b.exec, proc.Command{
		Path:   rt.Path,
		Args:   []string{"-m", "venv", dir},
		Dir:    b.opts.WorkDir,
		Stdout: b.opts.Stdout,
		Stderr: b.opts.Stderr,
	})
	if err != nil {
		return false, newError(PhaseEnv,
			"The venv module may be missing. On Debian/Ubuntu install python3-venv, then run exptrack again.",
			fmt.Errorf("%w: %v", ErrEnvCreate, err))
	}
	return true, nil
}

// EnsureDeps installs requirements unless the installation marker is present.
// It reports whether the installer ran. The marker is written only after the
// installer succeeds.
func (b *Bootstrapper) EnsureDeps(ctx context.Context) (bool, error) {
	guard := b.Marker()
	if b.opts.Reinstall {
		if err := guard.Reset(); err != nil {
			return false, newError(PhaseInstall, "", err)
		}
		b.logger.Info("Installation marker removed", "path", guard.Path())
	}

	reqs := b.resolve(b.opts.Requirements)
	ran, err := guard.Do(ctx, func(ctx context.Context) error {
		b.progress(fmt.Sprintf("Installing dependencies from %s ...", reqs))
		b.logger.Info("Installing dependencies", "requirements", reqs, "python", b.EnvPython())
		return proc.Run(ctx, b.exec, proc.Command{
			Path:   b.EnvPython(),
			Args:   []string{"-m", "pip", "install", "-r", reqs},
			Dir:    b.opts.WorkDir,
			Stdout: b.opts.Stdout,
			Stderr: b.opts.Stderr,
		})
	})
	if err != nil {
		return ran, newError(PhaseInstall, b.installRemediation(reqs), fmt.Errorf("%w: %v", ErrInstall, err))
	}

	if ran {
		b.logger.Info("Dependencies installed", "marker", guard.Path())
	} else {
		b.logger.Debug("Installation marker present, skipping install", "marker", guard.Path())
	}
	return ran, nil
}

func (b *Bootstrapper) installRemediation(reqs string) string {
	if _, err := os.Stat(b.EnvPython()); errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("%s has no interpreter, probably from an interrupted setup. Delete %s and run exptrack again.",
			b.EnvDir(), b.EnvDir())
	}
	if _, err := os.Stat(reqs); errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("%s does not exist. Run exptrack from the application directory or set --requirements.", reqs)
	}
	return "Check the installer output above and your network connection. The next run retries the install."
}
