//go:build windows

package control

import (
	"os"
	"syscall"
)

func stopSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

func interrogateSignals() []os.Signal {
	return nil
}
