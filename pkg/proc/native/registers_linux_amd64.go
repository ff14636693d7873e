package native

import (
	sys "golang.org/x/sys/unix"
)

// PC returns the program counter of the traced thread.
func (dbp *Process) PC() (pc uint64, err error) {
	var regs sys.PtraceRegs
	dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(dbp.Pid(), &regs) })
	if err != nil {
		return 0, err
	}
	return regs.PC(), nil
}

// SetPC moves the program counter of the traced thread to pc.
func (dbp *Process) SetPC(pc uint64) (err error) {
	dbp.execPtraceFunc(func() {
		var regs sys.PtraceRegs
		if err = sys.PtraceGetRegs(dbp.Pid(), &regs); err != nil {
			return
		}
		regs.SetPC(pc)
		err = sys.PtraceSetRegs(dbp.Pid(), &regs)
	})
	return err
}
