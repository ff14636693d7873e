package native

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/go-delve/logpoint/pkg/logflags"
	"github.com/go-delve/logpoint/pkg/proc"
)

// LaunchOptions configures the target process.
type LaunchOptions struct {
	// Dir is the working directory of the target, the tracer's if empty.
	Dir string
	// Env is the environment of the target, the tracer's if nil.
	Env []string

	// Stdin, Stdout and Stderr are the standard streams of the target. A
	// nil file is connected to the null device.
	Stdin, Stdout, Stderr *os.File

	// TTY, if not empty, is the path of a terminal that becomes the
	// controlling terminal and standard streams of the target.
	TTY string
}

// Launch starts cmd under ptrace and waits for it to stop at the
// synchronization trap raised by execve. On success the target is stopped
// and trace options are set; it runs once Run is called.
func Launch(cmd []string, opts LaunchOptions) (*Process, error) {
	if len(cmd) == 0 {
		return nil, &proc.SetupError{Op: "launch", Err: errors.New("empty command line")}
	}
	var (
		process *exec.Cmd
		err     error
	)
	log := logflags.TracerLogger()

	dbp := newProcess()
	dbp.execPtraceFunc(func() {
		process = exec.Command(cmd[0])
		process.Args = cmd
		process.Env = opts.Env
		process.Dir = opts.Dir
		process.Stdin = opts.Stdin
		process.Stdout = opts.Stdout
		process.Stderr = opts.Stderr
		process.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:  true,
			Setpgid: true,
		}
		if opts.TTY != "" {
			dbp.ctty, err = openTTY(opts.TTY)
			if err != nil {
				return
			}
			redirectToTTY(process, dbp.ctty)
		}
		err = process.Start()
	})
	if err != nil {
		dbp.release()
		return nil, &proc.SetupError{Op: "launch " + cmd[0], Err: err}
	}
	dbp.cmd = process
	dbp.session = proc.NewSession(process.Process.Pid)
	log.Debugf("spawned %q as %d", cmd, dbp.Pid())

	if err := dbp.handshake(); err != nil {
		dbp.Close()
		return nil, err
	}
	return dbp, nil
}

// handshake waits for the first stop of the target, which must be the
// SIGTRAP delivered by execve to a process that called PTRACE_TRACEME, and
// arms the trace options.
func (dbp *Process) handshake() error {
	ws, err := dbp.wait()
	if err != nil {
		return &proc.SetupError{Op: "wait for the initial stop", Err: err}
	}
	switch {
	case ws.Exited():
		dbp.reaped = true
		dbp.session.Exit(ws.ExitStatus())
		return &proc.SetupError{Op: "synchronize with tracee", Err: fmt.Errorf("tracee exited with status %d", ws.ExitStatus())}
	case ws.Signaled():
		dbp.reaped = true
		dbp.session.Kill(ws.Signal())
		return &proc.SetupError{Op: "synchronize with tracee", Err: fmt.Errorf("tracee killed by %v", ws.Signal())}
	case !ws.Stopped() || ws.StopSignal() != sys.SIGTRAP:
		return &proc.SetupError{Op: "synchronize with tracee", Err: fmt.Errorf("unexpected wait status %#x", uint32(ws))}
	}
	if err := dbp.session.Transition(proc.StateAttached); err != nil {
		return &proc.SetupError{Op: "synchronize with tracee", Err: err}
	}

	dbp.execPtraceFunc(func() { err = ptraceSetOptions(dbp.Pid(), sys.PTRACE_O_EXITKILL) })
	if err != nil {
		return &proc.SetupError{Op: "set trace options", Err: err}
	}
	logflags.TracerLogger().Debugf("tracee %d attached", dbp.Pid())
	return nil
}

// wait blocks until the state of the target changes.
func (dbp *Process) wait() (sys.WaitStatus, error) {
	var s sys.WaitStatus
	for {
		_, err := sys.Wait4(dbp.Pid(), &s, sys.WALL, nil)
		if err == sys.EINTR {
			continue
		}
		return s, err
	}
}

func (dbp *Process) resume(sig syscall.Signal) (err error) {
	dbp.execPtraceFunc(func() { err = ptraceCont(dbp.Pid(), int(sig)) })
	if err != nil {
		return &proc.ResumeError{Pid: dbp.Pid(), Sig: sig, Err: err}
	}
	return dbp.session.Transition(proc.StateRunning)
}

// Run arms the trap source of lp, resumes the target and services its stops
// until it terminates. Every recognized trap is reported with the value of
// the word at lp.Addr, every other stop is forwarded to the target with its
// signal. Errors are fatal and leave the target stopped: closing the
// process kills it.
func (dbp *Process) Run(lp proc.Logpoint, rep proc.Reporter) (proc.Outcome, error) {
	log := logflags.TracerLogger().WithField("pid", dbp.Pid())

	if dbp.session.State != proc.StateAttached {
		return proc.Outcome{}, fmt.Errorf("%w: can not run a %s session", proc.ErrInvalidTransition, dbp.session.State)
	}
	if err := lp.Source.Arm(dbp); err != nil {
		return proc.Outcome{}, &proc.SetupError{Op: "arm " + lp.Source.String() + " trap", Err: err}
	}
	log.Debugf("reading %s at %#x on %s traps", lp.Symbol, lp.Addr, lp.Source)
	if err := dbp.resume(0); err != nil {
		return proc.Outcome{}, err
	}

	for {
		ws, err := dbp.wait()
		if err != nil {
			return proc.Outcome{}, &proc.WaitError{Pid: dbp.Pid(), Err: err}
		}

		switch {
		case ws.Exited():
			dbp.reaped = true
			if err := dbp.session.Exit(ws.ExitStatus()); err != nil {
				return proc.Outcome{}, err
			}
			o := dbp.session.Outcome()
			log.Debugf("tracee %d exited with status %d after %d hits", o.Pid, o.ExitStatus, o.Hits)
			rep.Exited(o)
			return o, nil

		case ws.Signaled():
			dbp.reaped = true
			if err := dbp.session.Kill(ws.Signal()); err != nil {
				return proc.Outcome{}, err
			}
			o := dbp.session.Outcome()
			log.Debugf("tracee %d killed by %v after %d hits", o.Pid, o.Signal, o.Hits)
			rep.Exited(o)
			return o, nil

		case ws.Stopped():
			sig := ws.StopSignal()
			if sig == sys.SIGTRAP {
				hit, err := lp.Source.Hit(dbp)
				if err != nil {
					return proc.Outcome{}, fmt.Errorf("could not service trap of tracee %d: %w", dbp.Pid(), err)
				}
				if hit {
					if err := dbp.session.Stop(proc.StopTrap, sig); err != nil {
						return proc.Outcome{}, err
					}
					v, err := dbp.PeekWord(lp.Addr)
					if err != nil {
						return proc.Outcome{}, err
					}
					log.Debugf("hit %d: %s = %d", dbp.session.Hits, lp.Symbol, int64(v))
					rep.Hit(proc.Hit{
						N:      dbp.session.Hits,
						Pid:    dbp.Pid(),
						Symbol: lp.Symbol,
						Addr:   lp.Addr,
						Value:  int64(v),
					})
					if err := dbp.resume(0); err != nil {
						return proc.Outcome{}, err
					}
					continue
				}
			}
			if err := dbp.session.Stop(proc.StopSignal, sig); err != nil {
				return proc.Outcome{}, err
			}
			log.Debugf("forwarding %v to tracee %d", sig, dbp.Pid())
			rep.Forwarded(dbp.Pid(), sig)
			if err := dbp.resume(sig); err != nil {
				return proc.Outcome{}, err
			}

		default:
			return proc.Outcome{}, fmt.Errorf("unexpected wait status %#x for tracee %d", uint32(ws), dbp.Pid())
		}
	}
}

// Kill sends SIGKILL to the target.
func (dbp *Process) Kill() error {
	if dbp.reaped {
		return nil
	}
	if err := sys.Kill(dbp.Pid(), sys.SIGKILL); err != nil && err != sys.ESRCH {
		return err
	}
	return nil
}

// Close kills the target if it is still alive, collects its exit status
// and releases the ptrace thread.
func (dbp *Process) Close() error {
	if dbp.session == nil || dbp.session.State == proc.StateClosed {
		dbp.release()
		return nil
	}
	var err error
	if !dbp.reaped {
		err = dbp.Kill()
		for err == nil {
			var ws sys.WaitStatus
			ws, err = dbp.wait()
			if err != nil {
				break
			}
			if ws.Exited() || ws.Signaled() {
				dbp.reaped = true
				if ws.Signaled() {
					dbp.session.Kill(ws.Signal())
				} else {
					dbp.session.Exit(ws.ExitStatus())
				}
				break
			}
		}
	}
	dbp.release()
	dbp.session.Transition(proc.StateClosed)
	return err
}
