package target

import (
	"errors"
	"os"
	"os/signal"
	"time"

	sys "golang.org/x/sys/unix"
)

const notifyTimeout = 5 * time.Second

var errNotNotified = errors.New("SIGUSR1 was not delivered")

// notifySelf raises SIGUSR1 on the calling thread and waits for it to be
// delivered. Under a tracer this only succeeds if the signal is forwarded.
func notifySelf() error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sys.SIGUSR1)
	defer signal.Stop(ch)

	if err := sys.Tgkill(sys.Getpid(), sys.Gettid(), sys.SIGUSR1); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-time.After(notifyTimeout):
		return errNotNotified
	}
}

func abort() error {
	return sys.Kill(sys.Getpid(), sys.SIGKILL)
}
