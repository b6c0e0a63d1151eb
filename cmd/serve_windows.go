//go:build windows

package cmd

import "os"

// shutdownSignals returns the OS signals to listen for graceful shutdown.
// Windows only delivers os.Interrupt.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
