//go:build unix

package command

import (
	"os"
	"syscall"
)

// visibilitySignals are delivered when the process returns to the
// foreground after being stopped.
func visibilitySignals() []os.Signal {
	return []os.Signal{syscall.SIGCONT}
}
