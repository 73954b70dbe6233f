package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/onllm-dev/exptrack/internal/secrets"
)

func newSecretsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Check or create the dashboard's credentials file",
	}
	cmd.AddCommand(newSecretsCheckCmd(a), newSecretsImportCmd(a))
	return cmd
}

func newSecretsCheckCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the secrets file and predict which storage the dashboard will use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Resolve(a.cfg.SecretsPath)
			if file != "" {
				path = a.cfg.Resolve(file)
			}

			b, err := secrets.Load(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					a.con.Error("No secrets file at "+path,
						"Create one with: exptrack secrets import KEY.json --sheet URL")
				} else {
					a.con.Error(err.Error(), "Fix the TOML syntax, or recreate the file with: exptrack secrets import")
				}
				return &reportedError{err: errSecretsInvalid}
			}

			findings := b.Check()
			a.reportFindings(findings)

			if secrets.HasErrors(findings) {
				a.con.Line("Storage: local CSV (the dashboard will not reach the spreadsheet)")
				return &reportedError{err: errSecretsInvalid}
			}
			a.con.Success("Storage: Google Sheets via " + b.ServiceAccount.ClientEmail)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Secrets file to check (default: the configured secrets path)")
	return cmd
}

func newSecretsImportCmd(a *app) *cobra.Command {
	var (
		sheet    string
		password string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "import KEY.json",
		Short: "Write the secrets file from a downloaded service-account key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(a.cfg.Resolve(args[0]))
			if err != nil {
				return fmt.Errorf("failed to open key file: %w", err)
			}
			defer f.Close()

			b, err := secrets.ImportKey(f, sheet)
			if err != nil {
				return err
			}
			b.AppPassword = password

			path := a.cfg.Resolve(a.cfg.SecretsPath)
			if err := secrets.Write(path, b, force); err != nil {
				if errors.Is(err, secrets.ErrExists) {
					a.con.Error("A secrets file already exists at "+path, "Pass --force to replace it.")
					return &reportedError{err: err}
				}
				return err
			}
			a.logger.Info("Secrets file written", "path", path, "client_email", b.ServiceAccount.ClientEmail)
			a.con.Success("Wrote " + path)

			a.reportFindings(b.Check())
			a.con.Step("Share the spreadsheet with " + b.ServiceAccount.ClientEmail + " as Editor")
			a.con.Hint("Without that step the dashboard cannot open the sheet. See docs/DEPLOYMENT.md.")
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "URL of the expense spreadsheet")
	cmd.Flags().StringVar(&password, "password", "", "Dashboard login password to store")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing secrets file")
	return cmd
}

func (a *app) reportFindings(findings []secrets.Finding) {
	for _, f := range findings {
		if f.Severity == secrets.SeverityError {
			a.con.Error(f.Field+": "+f.Message, f.Remediation)
			continue
		}
		a.con.Warn(f.Field + ": " + f.Message)
		if f.Remediation != "" {
			a.con.Hint(f.Remediation)
		}
	}
}
