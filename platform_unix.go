//go:build !windows

package main

import (
	"os"
	"syscall"
)

// launchSignals are caught while the dashboard runs in the foreground so the
// launcher survives them and can pause afterwards.
var launchSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
