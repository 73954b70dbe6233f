// Package launcher runs the dashboard server in the foreground.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/browser"

	"github.com/onllm-dev/exptrack/internal/proc"
)

// ErrAppNotFound indicates the application entry script does not exist.
var ErrAppNotFound = errors.New("application script not found")

// Flags the launcher always sets itself.
const (
	flagHeadless = "--server.headless"
	flagPort     = "--server.port"
	flagAddress  = "--server.address"
)

// Options configures a Launcher.
type Options struct {
	WorkDir string
	App     string
	Port    int
	Address string
	// ExtraArgs are appended after the managed server flags.
	ExtraArgs   []string
	OpenBrowser bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher starts `streamlit run` from the bootstrapped environment.
type Launcher struct {
	opts    Options
	exec    proc.Executor
	logger  *slog.Logger
	openURL func(url string) error
}

// New creates a Launcher.
func New(opts Options, exec proc.Executor, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.App == "" {
		opts.App = "app.py"
	}
	if opts.Port == 0 {
		opts.Port = 8501
	}
	return &Launcher{opts: opts, exec: exec, logger: logger, openURL: browser.OpenURL}
}

// URL is where the dashboard will be reachable from this machine.
func (l *Launcher) URL() string {
	host := l.opts.Address
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, l.opts.Port)
}

// Command builds the server invocation. Extra args that repeat a managed flag,
// or repeat each other, are returned as dropped instead of being passed twice.
func (l *Launcher) Command(envPython string) (cmd proc.Command, dropped []string) {
	args := []string{"-m", "streamlit", "run", l.opts.App,
		flagHeadless + "=true",
		flagPort + "=" + strconv.Itoa(l.opts.Port),
	}
	seen := map[string]bool{flagHeadless: true, flagPort: true}
	if l.opts.Address != "" {
		args = append(args, flagAddress+"="+l.opts.Address)
		seen[flagAddress] = true
	}

	extra := l.opts.ExtraArgs
	for i := 0; i < len(extra); i++ {
		arg := extra[i]
		if arg == "--" {
			// Everything after the separator belongs to the script.
			args = append(args, extra[i:]...)
			break
		}
		if !strings.HasPrefix(arg, "--") {
			args = append(args, arg)
			continue
		}

		name, _, hasValue := strings.Cut(arg, "=")
		takesNext := !hasValue && i+1 < len(extra) && !strings.HasPrefix(extra[i+1], "--")
		if seen[name] {
			dropped = append(dropped, arg)
			if takesNext {
				dropped = append(dropped, extra[i+1])
				i++
			}
			continue
		}
		seen[name] = true
		args = append(args, arg)
		if takesNext {
			args = append(args, extra[i+1])
			i++
		}
	}

	return proc.Command{
		Path:   envPython,
		Args:   args,
		Dir:    l.opts.WorkDir,
		Stdin:  l.opts.Stdin,
		Stdout: l.opts.Stdout,
		Stderr: l.opts.Stderr,
	}, dropped
}

// Run starts the server and blocks until it exits. Signals received on sigs
// never end the launcher: interrupts are absorbed since the server gets them
// from the terminal too, anything else is forwarded to the server. A non-zero exit of
// the server is reported through the exit code, not the error.
func (l *Launcher) Run(ctx context.Context, envPython string, sigs <-chan os.Signal) (int, error) {
	app := l.opts.App
	if !filepath.IsAbs(app) && l.opts.WorkDir != "" {
		app = filepath.Join(l.opts.WorkDir, app)
	}
	if _, err := os.Stat(app); errors.Is(err, fs.ErrNotExist) {
		return 1, fmt.Errorf("%w: %s", ErrAppNotFound, app)
	}

	cmd, dropped := l.Command(envPython)
	if len(dropped) > 0 {
		l.logger.Warn("Ignoring repeated server flags", "args", strings.Join(dropped, " "))
	}

	l.logger.Info("Starting application", "command", cmd.String(), "url", l.URL())
	p, err := l.exec.Start(ctx, cmd)
	if err != nil {
		return 1, fmt.Errorf("launcher: %w", err)
	}

	if l.opts.OpenBrowser {
		if err := l.openURL(l.URL()); err != nil {
			l.logger.Warn("Failed to open browser", "url", l.URL(), "error", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Wait()
	}()

	for {
		select {
		case sig := <-sigs:
			if sig == os.Interrupt {
				// The terminal delivers Ctrl+C to the whole foreground group,
				// the server included.
				l.logger.Info("Interrupt received, waiting for application to exit")
				continue
			}
			l.logger.Info("Forwarding signal to application", "signal", sig, "pid", p.Pid())
			if err := p.Signal(sig); err != nil {
				l.logger.Warn("Failed to forward signal", "signal", sig, "error", err)
			}
		case err := <-done:
			if err == nil {
				l.logger.Info("Application exited")
				return 0, nil
			}
			if code, ok := proc.ExitCode(err); ok {
				l.logger.Info("Application exited", "code", code)
				return code, nil
			}
			return 1, fmt.Errorf("launcher: %w", err)
		}
	}
}
