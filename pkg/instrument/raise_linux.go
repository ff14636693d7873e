package instrument

import (
	"errors"

	sys "golang.org/x/sys/unix"
)

// ErrNotMainThread is returned when the trap would be raised on a thread
// other than the thread group leader, the only one that is traced.
var ErrNotMainThread = errors.New("hook called outside of the main thread")

// raiseTrap sends SIGTRAP to the calling thread, so that the signal is
// synchronous with the call site.
func raiseTrap() error {
	pid, tid := sys.Getpid(), sys.Gettid()
	if pid != tid {
		return ErrNotMainThread
	}
	return sys.Tgkill(pid, tid, sys.SIGTRAP)
}

// OnMainThread reports whether the calling goroutine runs on the thread
// group leader.
func OnMainThread() bool {
	return sys.Getpid() == sys.Gettid()
}
