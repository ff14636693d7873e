package native

import (
	sys "golang.org/x/sys/unix"
)

const _NT_PRSTATUS = 1

// PC returns the program counter of the traced thread.
func (dbp *Process) PC() (pc uint64, err error) {
	var regs sys.PtraceRegsArm64
	dbp.execPtraceFunc(func() { err = sys.PtraceGetRegSetArm64(dbp.Pid(), _NT_PRSTATUS, &regs) })
	if err != nil {
		return 0, err
	}
	return regs.Pc, nil
}

// SetPC moves the program counter of the traced thread to pc.
func (dbp *Process) SetPC(pc uint64) (err error) {
	dbp.execPtraceFunc(func() {
		var regs sys.PtraceRegsArm64
		if err = sys.PtraceGetRegSetArm64(dbp.Pid(), _NT_PRSTATUS, &regs); err != nil {
			return
		}
		regs.Pc = pc
		err = sys.PtraceSetRegSetArm64(dbp.Pid(), _NT_PRSTATUS, &regs)
	})
	return err
}
