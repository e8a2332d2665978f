//go:build unix

package cmd

import (
	"syscall"

	"github.com/pyneda/apifuzz/pkg/scan/control"
)

// watchPauseSignals lets a long run be paused with SIGUSR1 and resumed with
// SIGUSR2.
func watchPauseSignals(rc *control.RunControl) func() {
	return rc.PauseOnSignals(syscall.SIGUSR1, syscall.SIGUSR2)
}
