//go:build !linux

package instrument

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("raising traps is not supported on " + runtime.GOOS)

func raiseTrap() error {
	return errUnsupported
}

// OnMainThread reports whether the calling goroutine runs on the thread
// group leader.
func OnMainThread() bool {
	return false
}
