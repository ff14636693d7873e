package native

import (
	"encoding/binary"
	"io"

	sys "golang.org/x/sys/unix"

	"github.com/go-delve/logpoint/pkg/proc"
)

// ptraceCont executes ptrace PTRACE_CONT
func ptraceCont(tid, sig int) error {
	return sys.PtraceCont(tid, sig)
}

// ptraceSetOptions executes ptrace PTRACE_SETOPTIONS
func ptraceSetOptions(tid, options int) error {
	return sys.PtraceSetOptions(tid, options)
}

// ReadMemory reads len(buf) bytes of the target's memory at addr.
func (dbp *Process) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	if len(buf) == 0 {
		return 0, nil
	}
	dbp.execPtraceFunc(func() { n, err = sys.PtracePeekData(dbp.Pid(), uintptr(addr), buf) })
	if err == nil && n < len(buf) {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// WriteMemory writes data to the target's memory at addr. Text pages are
// writable through ptrace even when they are mapped read-only.
func (dbp *Process) WriteMemory(addr uint64, data []byte) (written int, err error) {
	if len(data) == 0 {
		return 0, nil
	}
	dbp.execPtraceFunc(func() { written, err = sys.PtracePokeData(dbp.Pid(), uintptr(addr), data) })
	return written, err
}

// PeekWord reads the machine word at addr. The data and the error status
// are separate, so a word holding all ones is a valid result.
func (dbp *Process) PeekWord(addr uint64) (uint64, error) {
	var buf [8]byte
	if _, err := dbp.ReadMemory(buf[:], addr); err != nil {
		return 0, &proc.ReadError{Pid: dbp.Pid(), Addr: addr, Err: err}
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
