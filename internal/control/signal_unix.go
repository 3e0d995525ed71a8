//go:build unix

package control

import (
	"os"
	"syscall"
)

func stopSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

func interrogateSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP}
}
