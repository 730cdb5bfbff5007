// +build !windows

// Package cmdutil collects small command-line support pieces shared by this
// repository's single binary, grounded on the teacher's cmd package.
package cmdutil

import (
	"os"
	"syscall"
)

// TerminationSignals are the signals this agent treats as a request to shut
// down its protocol loop and exit cleanly.
var TerminationSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}
