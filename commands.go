package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/onllm-dev/exptrack/internal/bootstrap"
	"github.com/onllm-dev/exptrack/internal/console"
	"github.com/onllm-dev/exptrack/internal/launcher"
	"github.com/onllm-dev/exptrack/internal/secrets"
	"github.com/onllm-dev/exptrack/internal/store"
)

var errEnvNotReady = errors.New("environment not bootstrapped")

// reportedError wraps an error that was already shown on the console.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func newRunCmd(a *app) *cobra.Command {
	var reinstall bool
	cmd := &cobra.Command{
		Use:   "run [-- APP_ARGS...]",
		Short: "Bootstrap the environment, then launch the dashboard (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.AppArgs = append(a.cfg.AppArgs, args...)
			return a.runAll(cmd.Context(), reinstall)
		},
	}
	cmd.Flags().BoolVar(&reinstall, "reinstall", false, "Reinstall requirements even if they were installed before")
	return cmd
}

func newBootstrapCmd(a *app) *cobra.Command {
	var reinstall bool
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the virtual environment and install requirements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := a.beginRun("bootstrap")
			defer a.endRun(rec)

			if _, err := a.runBootstrap(cmd.Context(), reinstall, rec); err != nil {
				return err
			}
			rec.Outcome = store.OutcomeOK
			a.con.Success("Environment ready")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reinstall, "reinstall", false, "Remove the installation marker and install again")
	return cmd
}

func newLaunchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "launch [-- APP_ARGS...]",
		Short: "Launch the dashboard from an already bootstrapped environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.AppArgs = append(a.cfg.AppArgs, args...)
			ctx := cmd.Context()

			rec := a.beginRun("launch")
			err := a.launchPrepared(ctx, rec)
			a.endRun(rec)
			a.pause(ctx)
			return err
		},
	}
}

// runAll is the double-click path: bootstrap, launch, then keep the window open.
func (a *app) runAll(ctx context.Context, reinstall bool) error {
	rec := a.beginRun("run")

	err := func() error {
		res, err := a.runBootstrap(ctx, reinstall, rec)
		if err != nil {
			return err
		}
		return a.launch(ctx, res.EnvPython, rec)
	}()

	a.endRun(rec)
	a.pause(ctx)
	return err
}

func (a *app) newBootstrapper(reinstall bool) *bootstrap.Bootstrapper {
	return bootstrap.New(bootstrap.Options{
		WorkDir:      a.cfg.WorkDir,
		Python:       a.cfg.Python,
		EnvDir:       a.cfg.EnvDir,
		Requirements: a.cfg.Requirements,
		Reinstall:    reinstall,
		Stdout:       a.out,
		Stderr:       os.Stderr,
		Progress:     a.con.Step,
	}, a.exec, a.logger)
}

// runBootstrap runs the setup sequence and reports its outcome on the console
// and in rec.
func (a *app) runBootstrap(ctx context.Context, reinstall bool, rec *store.Run) (*bootstrap.Result, error) {
	res, err := a.newBootstrapper(reinstall).Run(ctx)
	if err != nil {
		var bErr *bootstrap.Error
		if errors.As(err, &bErr) {
			a.con.Error(bErr.Err.Error(), bErr.Remediation)
			a.logger.Error("Bootstrap failed", "phase", bErr.Phase, "error", bErr.Err)
		} else {
			a.con.Error(err.Error(), "")
			a.logger.Error("Bootstrap failed", "error", err)
		}
		rec.Outcome = bootstrapOutcome(err)
		rec.ExitCode = exitCode(err)
		rec.Error = err.Error()
		return nil, &reportedError{err: err}
	}

	rec.RuntimePath = res.Runtime.Path
	rec.RuntimeVersion = res.Runtime.Version
	rec.EnvCreated = res.EnvCreated
	rec.DepsInstalled = res.DepsInstalled

	a.con.Success(fmt.Sprintf("%s at %s", res.Runtime.Version, res.Runtime.Path))
	if res.EnvCreated {
		a.con.Success("Virtual environment created in " + res.EnvDir)
	}
	if res.DepsInstalled {
		a.con.Success("Dependencies installed")
	} else {
		a.con.Line("Dependencies already installed, skipping (use --reinstall to force)")
	}
	return res, nil
}

func bootstrapOutcome(err error) string {
	switch {
	case errors.Is(err, bootstrap.ErrRuntimeNotFound):
		return store.OutcomeRuntimeMissing
	case errors.Is(err, bootstrap.ErrEnvCreate):
		return store.OutcomeEnvFailed
	case errors.Is(err, bootstrap.ErrInstall):
		return store.OutcomeInstallFailed
	default:
		return store.OutcomeFailed
	}
}

// launchPrepared launches without bootstrapping, refusing when the environment
// was never completed.
func (a *app) launchPrepared(ctx context.Context, rec *store.Run) error {
	b := a.newBootstrapper(false)

	installed, err := b.Marker().Done()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(b.EnvPython()); errors.Is(statErr, fs.ErrNotExist) || !installed {
		a.con.Error("The virtual environment is missing or incomplete", "Run: exptrack bootstrap")
		rec.Outcome = store.OutcomeFailed
		rec.ExitCode = exitFailure
		rec.Error = errEnvNotReady.Error()
		return &reportedError{err: errEnvNotReady}
	}
	return a.launch(ctx, b.EnvPython(), rec)
}

// launch runs the dashboard in the foreground until it exits.
func (a *app) launch(ctx context.Context, envPython string, rec *store.Run) error {
	l := launcher.New(launcher.Options{
		WorkDir:     a.cfg.WorkDir,
		App:         a.cfg.App,
		Port:        a.cfg.Port,
		Address:     a.cfg.Address,
		ExtraArgs:   a.cfg.AppArgs,
		OpenBrowser: a.cfg.OpenBrowser,
		Stdin:       os.Stdin,
		Stdout:      a.out,
		Stderr:      os.Stderr,
	}, a.exec, a.logger)

	storage := a.preflightSecrets()

	logDest := "stdout"
	if !a.cfg.DebugMode {
		logDest = filepath.Join(filepath.Dir(a.cfg.Resolve(a.cfg.DBPath)), "exptrack.log")
	}
	a.con.Banner("exptrack "+version,
		console.Field{Label: "Dashboard", Value: l.URL()},
		console.Field{Label: "App", Value: a.cfg.Resolve(a.cfg.App)},
		console.Field{Label: "Python", Value: envPython},
		console.Field{Label: "Storage", Value: storage},
		console.Field{Label: "Log", Value: logDest},
	)
	if _, dropped := l.Command(envPython); len(dropped) > 0 {
		a.con.Warn("Ignoring repeated dashboard flags: " + strings.Join(dropped, " "))
	}
	a.con.Line("Press Ctrl+C to stop the dashboard.")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, launchSignals...)
	defer signal.Stop(sigs)

	started := time.Now()
	code, err := l.Run(ctx, envPython, sigs)
	if err != nil {
		remediation := ""
		if errors.Is(err, launcher.ErrAppNotFound) {
			remediation = "Run exptrack from the application directory or pass --app."
		}
		a.con.Error(err.Error(), remediation)
		rec.Outcome = store.OutcomeFailed
		rec.ExitCode = exitFailure
		rec.Error = err.Error()
		return &reportedError{err: err}
	}

	rec.Outcome = store.OutcomeAppExited
	rec.ExitCode = code
	a.logger.Info("Dashboard stopped", "code", code, "uptime", time.Since(started).Round(time.Second))

	if code != 0 {
		a.con.Warn(fmt.Sprintf("Dashboard exited with status %d", code))
		return &appExitError{code: code}
	}
	a.con.Success("Dashboard stopped")
	return nil
}

// preflightSecrets warns about credential problems without blocking the
// launch; the dashboard itself falls back to local storage. It returns a
// description of the storage the dashboard will use.
func (a *app) preflightSecrets() string {
	const (
		sheets   = "Google Sheets"
		localCSV = "local CSV (no usable service account)"
	)

	path := a.cfg.Resolve(a.cfg.SecretsPath)
	b, err := secrets.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.con.Warn("No secrets file at " + path + ", expenses will be stored locally")
			a.con.Hint("See docs/DEPLOYMENT.md to connect a spreadsheet.")
		} else {
			a.con.Warn("Secrets file is not valid TOML: " + err.Error())
		}
		return localCSV
	}

	findings := b.Check()
	if secrets.HasErrors(findings) {
		a.con.Warn(fmt.Sprintf("Secrets file has %d problem(s), run: exptrack secrets check", countErrors(findings)))
		return localCSV
	}
	return sheets
}

func countErrors(findings []secrets.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == secrets.SeverityError {
			n++
		}
	}
	return n
}

func (a *app) beginRun(command string) *store.Run {
	rec := &store.Run{Command: command}
	if a.history == nil {
		return rec
	}
	id, err := a.history.StartRun(command, time.Now())
	if err != nil {
		a.logger.Warn("Failed to record run", "error", err)
		return rec
	}
	rec.ID = id
	return rec
}

func (a *app) endRun(rec *store.Run) {
	if a.history == nil || rec.ID == "" {
		return
	}
	if err := a.history.FinishRun(rec, time.Now()); err != nil {
		a.logger.Warn("Failed to record run result", "error", err)
	}
}
