//go:build !unix

package command

import "os"

func visibilitySignals() []os.Signal { return nil }
