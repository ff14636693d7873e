//go:build linux

// Package native is the ptrace backend of the tracer: it spawns the target,
// synchronizes with it and runs the wait/inspect/resume loop.
package native

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/go-delve/logpoint/pkg/proc"
)

// Process is a target process traced through ptrace.
type Process struct {
	session *proc.Session
	cmd     *exec.Cmd
	ctty    *os.File

	// reaped is set once the exit status of the target was collected.
	reaped bool

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}
}

func newProcess() *Process {
	dbp := &Process{
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

// Pid returns the process ID of the target.
func (dbp *Process) Pid() int {
	return dbp.session.Pid
}

// Session returns the state of the trace session. It must not be modified.
func (dbp *Process) Session() *proc.Session {
	return dbp.session
}

func (dbp *Process) handlePtraceFuncs() {
	// The thread that spawned the target is its tracer and every ptrace(2)
	// request must come from it. When this goroutine returns the thread
	// exits, which kills the target through PTRACE_O_EXITKILL.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
}

func (dbp *Process) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// release stops the ptrace thread. It must only be called once the target
// was reaped, or to have it killed.
func (dbp *Process) release() {
	if dbp.ptraceChan == nil {
		return
	}
	close(dbp.ptraceChan)
	dbp.ptraceChan = nil
	if dbp.ctty != nil {
		dbp.ctty.Close()
		dbp.ctty = nil
	}
}
