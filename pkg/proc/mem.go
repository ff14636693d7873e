package proc

import "syscall"

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// MemoryReadWriter can also write to memory.
type MemoryReadWriter interface {
	MemoryReader
	WriteMemory(addr uint64, data []byte) (written int, err error)
}

// Tracee is a stopped traced process as seen by a TrapSource.
type Tracee interface {
	MemoryReadWriter
	Pid() int
	// PeekWord reads the machine word at addr.
	PeekWord(addr uint64) (uint64, error)
	// PC returns the program counter of the traced thread.
	PC() (uint64, error)
	// SetPC changes the program counter of the traced thread.
	SetPC(pc uint64) error
}

// Hit is a logpoint hit, reported once per recognized trap.
type Hit struct {
	// N is the 1-based ordinal of the hit within the session.
	N      int
	Pid    int
	Symbol Symbol
	Addr   uint64
	Value  int64
}

// Reporter receives the events of a trace session.
type Reporter interface {
	// Hit is called with the value read at every recognized trap, before
	// the target is resumed.
	Hit(Hit)
	// Forwarded is called for every stop that was not a recognized trap,
	// before sig is re-injected.
	Forwarded(pid int, sig syscall.Signal)
	// Exited is called once, when the target exits or is killed.
	Exited(Outcome)
}

// Logpoint is what the control loop needs to service traps: where they come
// from and the resolved address of the symbol to read.
type Logpoint struct {
	Source TrapSource
	Symbol Symbol
	Addr   uint64
}
