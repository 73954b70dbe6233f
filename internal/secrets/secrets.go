// Package secrets reads, checks and writes the dashboard's credential bundle.
//
// The bundle is the TOML secrets file the dashboard reads at start-up. It holds
// the service-account key in a [gcp_service_account] table and the spreadsheet
// URL and login password as top-level keys. Without a usable service account
// the dashboard silently stores expenses in a local CSV file instead of the
// spreadsheet; Check exists to catch that before the operator notices.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrExists is returned by Write when the target exists and overwriting was not requested.
var ErrExists = errors.New("secrets file already exists")

// ServiceAccount mirrors the key document downloaded from the cloud console.
type ServiceAccount struct {
	Type                    string `toml:"type" json:"type"`
	ProjectID               string `toml:"project_id" json:"project_id"`
	PrivateKeyID            string `toml:"private_key_id" json:"private_key_id"`
	PrivateKey              string `toml:"private_key" json:"private_key"`
	ClientEmail             string `toml:"client_email" json:"client_email"`
	ClientID                string `toml:"client_id" json:"client_id"`
	AuthURI                 string `toml:"auth_uri" json:"auth_uri"`
	TokenURI                string `toml:"token_uri" json:"token_uri"`
	AuthProviderX509CertURL string `toml:"auth_provider_x509_cert_url" json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `toml:"client_x509_cert_url" json:"client_x509_cert_url"`
	UniverseDomain          string `toml:"universe_domain,omitempty" json:"universe_domain,omitempty"`
}

// Bundle is the full secrets file.
type Bundle struct {
	AppPassword    string          `toml:"app_password,omitempty"`
	SpreadsheetURL string          `toml:"spreadsheet_url,omitempty"`
	ServiceAccount *ServiceAccount `toml:"gcp_service_account,omitempty"`

	// Populated by Load.
	unknownKeys []string
	looseMode   fs.FileMode
}

// Load decodes the secrets file at path.
func Load(path string) (*Bundle, error) {
	var b Bundle
	md, err := toml.DecodeFile(path, &b)
	if err != nil {
		return nil, fmt.Errorf("secrets.Load: %w", err)
	}
	for _, k := range md.Undecoded() {
		b.unknownKeys = append(b.unknownKeys, k.String())
	}

	if runtime.GOOS != "windows" {
		if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0077 != 0 {
			b.looseMode = info.Mode().Perm()
		}
	}
	return &b, nil
}

// ImportKey builds a bundle from a downloaded service-account key document.
// sheetURL may be empty.
func ImportKey(r io.Reader, sheetURL string) (*Bundle, error) {
	var sa ServiceAccount
	if err := json.NewDecoder(r).Decode(&sa); err != nil {
		return nil, fmt.Errorf("secrets.ImportKey: invalid key document: %w", err)
	}
	if sa.Type != "service_account" {
		return nil, fmt.Errorf("secrets.ImportKey: key type is %q, want \"service_account\"", sa.Type)
	}
	if sa.PrivateKey == "" || sa.ClientEmail == "" {
		return nil, fmt.Errorf("secrets.ImportKey: key document lacks private_key or client_email")
	}
	if sheetURL != "" {
		if _, err := SpreadsheetID(sheetURL); err != nil {
			return nil, fmt.Errorf("secrets.ImportKey: %w", err)
		}
	}
	return &Bundle{SpreadsheetURL: sheetURL, ServiceAccount: &sa}, nil
}

// Write encodes b to path with owner-only permissions, creating the parent
// directory. An existing file is replaced only when force is set.
func Write(path string, b *Bundle, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("secrets.Write: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("secrets.Write: %w: %s", ErrExists, path)
		}
		return fmt.Errorf("secrets.Write: %w", err)
	}
	defer f.Close()

	// The open mode only applies on create; a forced write keeps the old mode.
	if runtime.GOOS != "windows" {
		if err := f.Chmod(0600); err != nil {
			return fmt.Errorf("secrets.Write: %w", err)
		}
	}

	if _, err := io.WriteString(f, "# Dashboard secrets. Keep this file out of version control.\n\n"); err != nil {
		return fmt.Errorf("secrets.Write: %w", err)
	}
	enc := toml.NewEncoder(f)
	enc.Indent = ""
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("secrets.Write: %w", err)
	}
	return f.Close()
}

// SpreadsheetID extracts the document id from a Google Sheets URL.
func SpreadsheetID(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid spreadsheet URL: %w", err)
	}
	if u.Scheme != "https" || u.Host != "docs.google.com" {
		return "", fmt.Errorf("spreadsheet URL must start with https://docs.google.com/, got %q", raw)
	}

	rest, ok := strings.CutPrefix(u.Path, "/spreadsheets/d/")
	if !ok {
		return "", fmt.Errorf("spreadsheet URL must contain /spreadsheets/d/<id>, got %q", raw)
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return "", fmt.Errorf("spreadsheet URL has an empty document id")
	}
	return id, nil
}
