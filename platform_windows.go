//go:build windows

package main

import "os"

var launchSignals = []os.Signal{os.Interrupt}
