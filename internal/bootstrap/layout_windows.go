//go:build windows

package bootstrap

import "path/filepath"

// DefaultCandidates are tried in order when no interpreter is configured.
// "py" is the launcher installed by the python.org installer.
var DefaultCandidates = []string{"python", "py"}

func venvPython(envDir string) string {
	return filepath.Join(envDir, "Scripts", "python.exe")
}
