package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onllm-dev/exptrack/internal/bootstrap"
	"github.com/onllm-dev/exptrack/internal/config"
	"github.com/onllm-dev/exptrack/internal/console"
	"github.com/onllm-dev/exptrack/internal/proc"
	"github.com/onllm-dev/exptrack/internal/store"
)

var version = "dev"

// Exit codes.
const (
	exitOK             = 0
	exitFailure        = 1
	exitRuntimeMissing = 2
	exitEnvFailed      = 3
	exitInstallFailed  = 4
	exitSecretsInvalid = 5
)

// appExitError carries the dashboard's own exit status out of a command.
type appExitError struct {
	code int
}

func (e *appExitError) Error() string {
	return fmt.Sprintf("application exited with status %d", e.code)
}

var errSecretsInvalid = errors.New("secrets check found errors")

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, proc.OS{}))
}

func execute(args []string, stdout io.Writer, ex proc.Executor) int {
	root, a := newRootCmd(stdout, ex)
	defer a.close()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var (
		appErr   *appExitError
		reported *reportedError
	)
	if !errors.As(err, &appErr) && !errors.As(err, &reported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var appErr *appExitError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &appErr):
		return appErr.code
	case errors.Is(err, bootstrap.ErrRuntimeNotFound):
		return exitRuntimeMissing
	case errors.Is(err, bootstrap.ErrEnvCreate):
		return exitEnvFailed
	case errors.Is(err, bootstrap.ErrInstall):
		return exitInstallFailed
	case errors.Is(err, errSecretsInvalid):
		return exitSecretsInvalid
	default:
		return exitFailure
	}
}

// app holds the wiring shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	con     *console.Console
	exec    proc.Executor
	history *store.Store
	out     io.Writer

	logCloser io.Closer
}

func newRootCmd(stdout io.Writer, ex proc.Executor) (*cobra.Command, *app) {
	flags := &config.Flags{}
	a := &app{exec: ex, con: console.New(stdout), out: stdout, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	root := &cobra.Command{
		Use:   "exptrack",
		Short: "Set up and launch the expense tracker dashboard",
		Long: `exptrack prepares a Python virtual environment for the expense tracker
dashboard, installs its requirements once, and starts it in headless mode.

Run it without arguments from the application directory (or double-click it)
to bootstrap and launch in one go.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(flags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAll(cmd.Context(), false)
		},
	}
	root.SetOut(stdout)
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&flags.Dir, "dir", "", "Application directory (default: current directory)")
	pf.StringVar(&flags.Python, "python", "", "Python interpreter to use (default: python3/python on PATH)")
	pf.StringVar(&flags.EnvDir, "env-dir", "", "Virtual environment directory (default: .venv)")
	pf.StringVar(&flags.Requirements, "requirements", "", "Requirements file (default: requirements.txt)")
	pf.StringVar(&flags.App, "app", "", "Dashboard entry script (default: app.py)")
	pf.IntVar(&flags.Port, "port", 0, "Dashboard HTTP port (default: 8501)")
	pf.StringVar(&flags.Address, "address", "", "Address the dashboard binds to")
	pf.StringVar(&flags.Secrets, "secrets", "", "Secrets file (default: .streamlit/secrets.toml)")
	pf.StringVar(&flags.DB, "db", "", "Run history database (default: .exptrack/history.db)")
	pf.BoolVar(&flags.NoPause, "no-pause", false, "Do not wait for a key press when the dashboard exits")
	pf.BoolVar(&flags.Open, "open", false, "Open the dashboard in the default browser after start")
	pf.BoolVar(&flags.Debug, "debug", false, "Log to stdout instead of the log file")

	root.AddCommand(
		newRunCmd(a),
		newBootstrapCmd(a),
		newLaunchCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newSecretsCmd(a),
	)
	return root, a
}

// setup loads configuration, logging and the run history.
func (a *app) setup(flags *config.Flags) error {
	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	logWriter, err := cfg.LogWriter()
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if closer, ok := logWriter.(io.Closer); ok && !cfg.DebugMode {
		a.logCloser = closer
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	a.logger = slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(a.logger)
	a.logger.Debug("Configuration loaded", "config", cfg.String())

	// History is informational; a broken database must not stop a launch.
	db, err := store.New(cfg.Resolve(cfg.DBPath))
	if err != nil {
		a.logger.Warn("Run history unavailable", "error", err)
		return nil
	}
	a.history = db
	if closed, err := db.CloseOrphanedRuns(time.Now()); err != nil {
		a.logger.Warn("Failed to close orphaned runs", "error", err)
	} else if closed > 0 {
		a.logger.Info("Closed orphaned runs", "count", closed)
	}
	return nil
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil && a.logger != nil {
			a.logger.Error("History close error", "error", err)
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// pause keeps the console window open until a key is pressed.
func (a *app) pause(ctx context.Context) {
	if a.cfg == nil || a.cfg.NoPause || !console.Interactive(os.Stdin) || !console.Interactive(os.Stdout) {
		return
	}
	if err := console.Pause(ctx, os.Stdin, os.Stdout); err != nil {
		a.logger.Warn("Pause failed", "error", err)
	}
}
