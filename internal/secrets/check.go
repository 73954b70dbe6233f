package secrets

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/url"
	"strings"
)

// Severity grades a finding.
type Severity string

const (
	// SeverityError means the dashboard will fall back to local CSV storage.
	SeverityError Severity = "error"
	// SeverityWarning means the dashboard works but something is off.
	SeverityWarning Severity = "warning"
)

// Storage backends the dashboard selects between.
const (
	BackendSheets = "sheets"
	BackendCSV    = "csv"
)

// Finding is one problem found in a bundle.
type Finding struct {
	Severity    Severity
	Field       string
	Message     string
	Remediation string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Severity, f.Field, f.Message)
}

// Backend predicts the storage the dashboard will use with these findings.
func Backend(findings []Finding) string {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return BackendCSV
		}
	}
	return BackendSheets
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []Finding) bool {
	return Backend(findings) == BackendCSV
}

const serviceAccountDomain = ".iam.gserviceaccount.com"

// Check inspects the bundle without contacting any service.
func (b *Bundle) Check() []Finding {
	var out []Finding
	add := func(sev Severity, field, msg, fix string) {
		out = append(out, Finding{Severity: sev, Field: field, Message: msg, Remediation: fix})
	}

	for _, k := range b.unknownKeys {
		add(SeverityWarning, k, "unrecognised key", "Check the spelling against docs/DEPLOYMENT.md.")
	}
	if b.looseMode != 0 {
		add(SeverityWarning, "file", fmt.Sprintf("permissions %04o allow other users to read the key", b.looseMode),
			"chmod 600 the secrets file.")
	}

	if b.AppPassword == "" {
		add(SeverityWarning, "app_password", "not set, the dashboard shows its login setup screen",
			`Add app_password = "..." at the top of the file.`)
	}

	switch {
	case b.SpreadsheetURL == "":
		add(SeverityWarning, "spreadsheet_url", `not set, the dashboard looks for a sheet named "ExpenseTracker_Data"`,
			"Add spreadsheet_url with the full URL of the shared sheet.")
	default:
		if _, err := SpreadsheetID(b.SpreadsheetURL); err != nil {
			add(SeverityError, "spreadsheet_url", err.Error(),
				"Copy the URL from the browser address bar while the sheet is open.")
		}
	}

	sa := b.ServiceAccount
	if sa == nil {
		add(SeverityError, "gcp_service_account", "table missing, expenses will be stored in a local CSV file",
			"Run: exptrack secrets import <key.json> --sheet <url>")
		return out
	}

	field := func(name string) string { return "gcp_service_account." + name }

	if sa.Type != "service_account" {
		add(SeverityError, field("type"), fmt.Sprintf("is %q, want \"service_account\"", sa.Type),
			`Set type = "service_account".`)
	}
	if sa.ProjectID == "" {
		add(SeverityWarning, field("project_id"), "empty", "Copy project_id from the key file.")
	}
	if sa.PrivateKeyID == "" {
		add(SeverityWarning, field("private_key_id"), "empty", "Copy private_key_id from the key file.")
	}
	if sa.ClientID == "" {
		add(SeverityWarning, field("client_id"), "empty", "Copy client_id from the key file.")
	}

	if msg := checkPrivateKey(sa.PrivateKey); msg != "" {
		add(SeverityError, field("private_key"), msg,
			`Paste the key as a double-quoted string with \n escapes, exactly as in the key file.`)
	}

	switch {
	case sa.ClientEmail == "":
		add(SeverityError, field("client_email"), "empty", "Copy client_email from the key file.")
	case !strings.Contains(sa.ClientEmail, "@"):
		add(SeverityError, field("client_email"), fmt.Sprintf("%q is not an email address", sa.ClientEmail),
			"Copy client_email from the key file.")
	case !strings.HasSuffix(sa.ClientEmail, serviceAccountDomain):
		add(SeverityWarning, field("client_email"), "is not a service-account address",
			"Use the client_email from the service-account key, not a personal account.")
	default:
		project := strings.TrimSuffix(sa.ClientEmail[strings.Index(sa.ClientEmail, "@")+1:], serviceAccountDomain)
		if sa.ProjectID != "" && project != sa.ProjectID {
			add(SeverityWarning, field("client_email"),
				fmt.Sprintf("belongs to project %q but project_id is %q", project, sa.ProjectID),
				"Make sure every field comes from the same key file.")
		}
	}

	switch {
	case sa.TokenURI == "":
		add(SeverityError, field("token_uri"), "empty", "Copy token_uri from the key file.")
	case !isHTTPS(sa.TokenURI):
		add(SeverityError, field("token_uri"), "must be an https URL", "Copy token_uri from the key file.")
	}
	if sa.AuthURI != "" && !isHTTPS(sa.AuthURI) {
		add(SeverityWarning, field("auth_uri"), "must be an https URL", "Copy auth_uri from the key file.")
	}
	if sa.UniverseDomain == "" {
		add(SeverityWarning, field("universe_domain"), "empty, googleapis.com is assumed",
			`Add universe_domain = "googleapis.com".`)
	}

	return out
}

// checkPrivateKey returns a description of what is wrong with key, or "".
func checkPrivateKey(key string) string {
	if strings.TrimSpace(key) == "" {
		return "empty"
	}
	if !strings.Contains(key, "\n") && strings.Contains(key, `\n`) {
		return `contains literal \n sequences; the value was probably single-quoted`
	}

	block, _ := pem.Decode([]byte(key))
	if block == nil {
		return "not a PEM block"
	}

	var err error
	switch block.Type {
	case "PRIVATE KEY":
		_, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		_, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return fmt.Sprintf("unexpected PEM block %q", block.Type)
	}
	if err != nil {
		return fmt.Sprintf("cannot be parsed: %v", err)
	}
	return ""
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}
