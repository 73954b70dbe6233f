package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/onllm-dev/exptrack/internal/console"
	"github.com/onllm-dev/exptrack/internal/secrets"
	"github.com/onllm-dev/exptrack/internal/store"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the runtime, environment, secrets and last runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.status(cmd)
		},
	}
}

// status inspects without changing anything: no environment, marker or
// secrets file is created.
func (a *app) status(cmd *cobra.Command) error {
	b := a.newBootstrapper(false)
	var fields []console.Field

	if rt, err := b.FindRuntime(cmd.Context()); err != nil {
		fields = append(fields, console.Field{Label: "Runtime", Value: "not found"})
	} else {
		fields = append(fields, console.Field{Label: "Runtime", Value: rt.Version + " (" + rt.Path + ")"})
	}

	envState := "missing"
	if info, err := os.Stat(b.EnvDir()); err == nil && info.IsDir() {
		envState = "present"
	} else if err == nil {
		envState = "blocked by a file"
	}
	fields = append(fields, console.Field{Label: "Env", Value: b.EnvDir() + " (" + envState + ")"})

	installed, err := b.Marker().Done()
	if err != nil {
		return err
	}
	deps := "not installed"
	if installed {
		deps = "installed"
	}
	fields = append(fields, console.Field{Label: "Deps", Value: deps})

	secretsPath := a.cfg.Resolve(a.cfg.SecretsPath)
	var findings []secrets.Finding
	storage := secrets.BackendCSV
	bundle, err := secrets.Load(secretsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fields = append(fields, console.Field{Label: "Secrets", Value: secretsPath + " (missing)"})
	case err != nil:
		fields = append(fields, console.Field{Label: "Secrets", Value: secretsPath + " (unreadable)"})
		findings = append(findings, secrets.Finding{Severity: secrets.SeverityError, Field: "file", Message: err.Error()})
	default:
		findings = bundle.Check()
		storage = secrets.Backend(findings)
		fields = append(fields, console.Field{Label: "Secrets", Value: secretsPath})
	}
	fields = append(fields, console.Field{Label: "Storage", Value: storage})

	if a.history != nil {
		if runs, err := a.history.RecentRuns(1); err != nil {
			a.logger.Warn("Failed to read run history", "error", err)
		} else if len(runs) > 0 {
			fields = append(fields, console.Field{Label: "Last run", Value: describeRun(&runs[0])})
		}
		if last, err := a.history.LastInstall(); err != nil {
			a.logger.Warn("Failed to read run history", "error", err)
		} else if last != nil {
			fields = append(fields, console.Field{Label: "Installed", Value: last.StartedAt.Local().Format(time.DateTime)})
		}
	}

	a.con.Banner("exptrack "+version+" in "+a.cfg.WorkDir, fields...)
	a.reportFindings(findings)
	return nil
}

func describeRun(r *store.Run) string {
	s := fmt.Sprintf("%s %s", r.Command, r.StartedAt.Local().Format(time.DateTime))
	if r.Outcome != "" {
		s += " " + r.Outcome
	}
	if r.Outcome == store.OutcomeAppExited {
		s += fmt.Sprintf(" (status %d)", r.ExitCode)
	}
	return s
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent launcher runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.history == nil {
				return errors.New("run history is unavailable, see the log file for details")
			}
			runs, err := a.history.RecentRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				a.con.Line("No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tCOMMAND\tOUTCOME\tCODE\tDURATION\tDETAIL")
			for i := range runs {
				r := &runs[i]
				duration := "-"
				if r.FinishedAt != nil {
					duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
				}
				outcome := r.Outcome
				if outcome == "" {
					outcome = "running"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Command, outcome,
					r.ExitCode, duration, firstLine(r.Error))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
