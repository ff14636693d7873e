package proc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-delve/logpoint/pkg/logflags"
)

// TrapSource decides whether a SIGTRAP stop of the target is a logpoint
// hit.
type TrapSource interface {
	// Arm is called once, while the target is stopped after the
	// synchronization handshake and before it is first resumed.
	Arm(t Tracee) error
	// Hit is called for every SIGTRAP stop. It returns true if the trap
	// belongs to this source, in which case the target is resumed without a
	// pending signal and Hit must leave it in a state where that is safe.
	// Traps not recognized are forwarded to the target.
	Hit(t Tracee) (bool, error)
	String() string
}

// SelfReportingTrap is the trap source of instrumented targets that raise
// SIGTRAP on themselves when they reach the configured location. Every
// SIGTRAP after the handshake is a hit.
type SelfReportingTrap struct{}

// Arm implements TrapSource. There is nothing to do in the target.
func (SelfReportingTrap) Arm(Tracee) error { return nil }

// Hit implements TrapSource.
func (SelfReportingTrap) Hit(Tracee) (bool, error) { return true, nil }

func (SelfReportingTrap) String() string { return "self-reporting" }

// InjectedTrap writes a breakpoint instruction at Addr in the target. It is
// one-shot: when hit the original instruction is restored and the PC is
// moved back on it, so the target resumes as if nothing happened.
type InjectedTrap struct {
	Addr uint64
	Arch *Arch

	original []byte
	armed    bool
}

// NewInjectedTrap returns an injected trap source for address addr.
func NewInjectedTrap(addr uint64, arch *Arch) *InjectedTrap {
	return &InjectedTrap{Addr: addr, Arch: arch}
}

// ErrTrapAlreadyArmed is returned by Arm when called twice.
var ErrTrapAlreadyArmed = errors.New("trap already armed")

// Arm implements TrapSource.
func (bp *InjectedTrap) Arm(t Tracee) error {
	if bp.armed || bp.original != nil {
		return ErrTrapAlreadyArmed
	}
	log := logflags.TracerLogger()

	if logflags.Tracer() {
		mem := make([]byte, bp.Arch.MaxInstructionLength())
		if n, err := t.ReadMemory(mem, bp.Addr); err == nil && n > 0 {
			text, _ := bp.Arch.Disassemble(mem[:n], bp.Addr)
			log.Debugf("arming trap at %#x over %q", bp.Addr, text)
		}
	}

	original := make([]byte, bp.Arch.BreakpointSize())
	if _, err := t.ReadMemory(original, bp.Addr); err != nil {
		return fmt.Errorf("could not read instruction at %#x: %w", bp.Addr, err)
	}
	if bytes.Equal(original, bp.Arch.BreakpointInstruction()) {
		return fmt.Errorf("breakpoint instruction already present at %#x", bp.Addr)
	}
	if _, err := t.WriteMemory(bp.Addr, bp.Arch.BreakpointInstruction()); err != nil {
		return fmt.Errorf("could not write breakpoint at %#x: %w", bp.Addr, err)
	}
	bp.original = original
	bp.armed = true
	return nil
}

// Hit implements TrapSource.
func (bp *InjectedTrap) Hit(t Tracee) (bool, error) {
	if !bp.armed {
		return false, nil
	}
	pc, err := t.PC()
	if err != nil {
		return false, err
	}
	if bp.Arch.TrapPC(pc) != bp.Addr {
		return false, nil
	}
	if _, err := t.WriteMemory(bp.Addr, bp.original); err != nil {
		return false, fmt.Errorf("could not restore instruction at %#x: %w", bp.Addr, err)
	}
	if err := t.SetPC(bp.Addr); err != nil {
		return false, err
	}
	bp.armed = false
	return true, nil
}

// Armed reports whether the breakpoint instruction is currently written in
// the target.
func (bp *InjectedTrap) Armed() bool {
	return bp.armed
}

func (bp *InjectedTrap) String() string {
	return fmt.Sprintf("injected at %#x", bp.Addr)
}
