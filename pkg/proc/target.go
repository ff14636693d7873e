package proc

import (
	"errors"
	"fmt"
	"syscall"
)

// State is the lifecycle state of a trace session.
type State uint8

const (
	// StateSpawned means the target process was created but the tracer has
	// not observed its initial stop yet.
	StateSpawned State = iota
	// StateAttached means the target stopped itself with the synchronization
	// trap and the tracer observed it.
	StateAttached
	// StateRunning means trace options are set and the target was resumed.
	StateRunning
	// StateStopped means the target is in a signal-delivery-stop, see
	// Session.LastStop for the reason.
	StateStopped
	// StateExited means the target exited normally.
	StateExited
	// StateSignaled means the target was terminated by a signal.
	StateSignaled
	// StateClosed means the tracer released every resource of the session.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateAttached:
		return "attached"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateExited:
		return "exited"
	case StateSignaled:
		return "signaled"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// StopReason describes why the target is stopped.
type StopReason uint8

const (
	StopNone StopReason = iota
	// StopTrap is a trap recognized by the session's trap source.
	StopTrap
	// StopSignal is any other signal, which is forwarded on resume.
	StopSignal
)

func (sr StopReason) String() string {
	switch sr {
	case StopNone:
		return "none"
	case StopTrap:
		return "trap"
	case StopSignal:
		return "signal"
	}
	return fmt.Sprintf("unknown(%d)", uint8(sr))
}

// Session is the state of the trace relationship with one target process.
// It is owned and mutated only by the control loop.
type Session struct {
	Pid   int
	State State

	LastStop   StopReason
	LastSignal syscall.Signal

	ExitStatus int
	Signal     syscall.Signal

	// Hits counts the recognized traps.
	Hits int
}

// NewSession returns a session for a freshly spawned process.
func NewSession(pid int) *Session {
	return &Session{Pid: pid, State: StateSpawned}
}

// ErrInvalidTransition is returned when the control loop tries to move a
// session to a state that can not follow the current one.
var ErrInvalidTransition = errors.New("invalid session state transition")

var transitions = map[State][]State{
	StateSpawned:  {StateAttached, StateExited, StateSignaled},
	StateAttached: {StateRunning, StateExited, StateSignaled},
	StateRunning:  {StateStopped, StateExited, StateSignaled},
	StateStopped:  {StateRunning, StateExited, StateSignaled},
	StateExited:   {},
	StateSignaled: {},
}

// Transition moves the session to state to. Moving to StateClosed is always
// allowed.
func (s *Session) Transition(to State) error {
	if to == StateClosed {
		s.State = StateClosed
		return nil
	}
	for _, next := range transitions[s.State] {
		if next == to {
			s.State = to
			if to != StateStopped {
				s.LastStop = StopNone
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
}

// Stop records a signal-delivery-stop.
func (s *Session) Stop(reason StopReason, sig syscall.Signal) error {
	if err := s.Transition(StateStopped); err != nil {
		return err
	}
	s.LastStop = reason
	s.LastSignal = sig
	if reason == StopTrap {
		s.Hits++
	}
	return nil
}

// Exit records the normal termination of the target.
func (s *Session) Exit(status int) error {
	if err := s.Transition(StateExited); err != nil {
		return err
	}
	s.ExitStatus = status
	return nil
}

// Kill records the termination of the target by a signal.
func (s *Session) Kill(sig syscall.Signal) error {
	if err := s.Transition(StateSignaled); err != nil {
		return err
	}
	s.Signal = sig
	return nil
}

// Outcome returns the final outcome of a session in a terminal state.
func (s *Session) Outcome() Outcome {
	return Outcome{
		Pid:        s.Pid,
		Exited:     s.State == StateExited,
		ExitStatus: s.ExitStatus,
		Signal:     s.Signal,
		Hits:       s.Hits,
	}
}

// Outcome describes how a traced process terminated.
type Outcome struct {
	Pid int
	// Exited is true if the process exited normally, false if it was
	// killed by Signal.
	Exited     bool
	ExitStatus int
	Signal     syscall.Signal
	Hits       int
}

func (o Outcome) String() string {
	if o.Exited {
		return fmt.Sprintf("exit status for tracee: %d", o.ExitStatus)
	}
	return fmt.Sprintf("exit signal for tracee: %d", int(o.Signal))
}

// SetupError is returned when the trace session could not be established:
// spawning the target, the synchronization handshake, setting trace options
// or arming the trap source failed.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("could not %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// WaitError is returned when waiting for a state change of the target
// fails.
type WaitError struct {
	Pid int
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("failed to wait for tracee %d: %v", e.Pid, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// ResumeError is returned when the target could not be resumed.
type ResumeError struct {
	Pid int
	Sig syscall.Signal
	Err error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("unable to resume tracee %d with signal %d: %v", e.Pid, int(e.Sig), e.Err)
}

func (e *ResumeError) Unwrap() error { return e.Err }

// ReadError is returned when a word of the target's memory could not be
// read. The error status of the read is reported separately from the data,
// so a word holding -1 never causes a ReadError.
type ReadError struct {
	Pid  int
	Addr uint64
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("unable to peek at %#x in tracee %d: %v", e.Addr, e.Pid, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
