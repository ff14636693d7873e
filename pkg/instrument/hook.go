// Package instrument is the target side of a logpoint: a hook called at
// fixed points of the instrumented code that raises a trap, observed by the
// tracer, when the configured location is reached.
package instrument

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-delve/logpoint/pkg/logflags"
)

// Mode selects what the hook compares against the configured location.
type Mode uint8

const (
	// ModeOff never raises a trap.
	ModeOff Mode = iota
	// ModeCounter compares the number of hook calls made so far, starting
	// at zero, in the whole process.
	ModeCounter
	// ModeLine compares the source line of the hook's caller.
	ModeLine
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeCounter:
		return "counter"
	case ModeLine:
		return "line"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeOff, ModeCounter, ModeLine} {
		if m.String() == s {
			return m, nil
		}
	}
	return ModeOff, fmt.Errorf("unknown hook mode %q", s)
}

// Hook raises a trap when the configured location is reached.
type Hook struct {
	mode     Mode
	location int64
	calls    atomic.Int64
	raise    func() error
}

// New returns a hook that raises SIGTRAP on the calling thread.
func New(mode Mode, location int64) *Hook {
	return &Hook{mode: mode, location: location, raise: raiseTrap}
}

// Maybe raises the trap if the location matches. It has no other effect on
// the calling program. Maybe must be called directly from the instrumented
// function for line matching to work.
func (h *Hook) Maybe() {
	n := h.calls.Add(1) - 1
	switch h.mode {
	case ModeCounter:
		if n != h.location {
			return
		}
	case ModeLine:
		_, _, line, ok := runtime.Caller(1)
		if !ok || int64(line) != h.location {
			return
		}
	default:
		return
	}
	if err := h.raise(); err != nil {
		logflags.TargetLogger().Errorf("could not raise trap at hook call %d: %v", n, err)
	}
}

// Calls returns the number of times Maybe was called.
func (h *Hook) Calls() int64 {
	return h.calls.Load()
}
