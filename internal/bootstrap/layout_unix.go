//go:build !windows

package bootstrap

import "path/filepath"

// DefaultCandidates are tried in order when no interpreter is configured.
var DefaultCandidates = []string{"python3", "python"}

// venvPython returns the interpreter inside a virtual environment.
func venvPython(envDir string) string {
	return filepath.Join(envDir, "bin", "python")
}
