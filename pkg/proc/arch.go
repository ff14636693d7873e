package proc

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Arch describes the properties of a CPU architecture that the injected
// trap source needs.
type Arch struct {
	Name string

	maxInstructionLength  int
	breakpointInstruction []byte
	// breakInstrMovesPC is true if hitting the breakpoint instruction leaves
	// the PC after it, false if it leaves it on the instruction.
	breakInstrMovesPC bool
	asmDecode         func(mem []byte, pc uint64) (string, int, error)
}

var amd64BreakInstruction = []byte{0xCC}
var arm64BreakInstruction = []byte{0x0, 0x0, 0x20, 0xd4}

// AMD64Arch returns an initialized AMD64 struct.
func AMD64Arch() *Arch {
	return &Arch{
		Name:                  "amd64",
		maxInstructionLength:  15,
		breakpointInstruction: amd64BreakInstruction,
		breakInstrMovesPC:     true,
		asmDecode:             x86AsmDecode,
	}
}

// ARM64Arch returns an initialized ARM64 struct.
func ARM64Arch() *Arch {
	return &Arch{
		Name:                  "arm64",
		maxInstructionLength:  4,
		breakpointInstruction: arm64BreakInstruction,
		breakInstrMovesPC:     false,
		asmDecode:             arm64AsmDecode,
	}
}

// ArchForGOARCH returns the Arch for goarch, or an error if injected traps
// are not supported on it.
func ArchForGOARCH(goarch string) (*Arch, error) {
	switch goarch {
	case "amd64":
		return AMD64Arch(), nil
	case "arm64":
		return ARM64Arch(), nil
	}
	return nil, fmt.Errorf("injected traps are not supported on %s", goarch)
}

// MaxInstructionLength is the maximum size in bytes of an instruction.
func (a *Arch) MaxInstructionLength() int {
	return a.maxInstructionLength
}

// BreakpointInstruction returns the breakpoint instruction for this
// architecture.
func (a *Arch) BreakpointInstruction() []byte {
	return a.breakpointInstruction
}

// BreakpointSize returns the size of the breakpoint instruction.
func (a *Arch) BreakpointSize() int {
	return len(a.breakpointInstruction)
}

// TrapPC returns the address of the breakpoint instruction that caused a
// trap, given the PC observed when the thread stopped.
func (a *Arch) TrapPC(pc uint64) uint64 {
	if a.breakInstrMovesPC {
		return pc - uint64(a.BreakpointSize())
	}
	return pc
}

// Disassemble decodes the first instruction in mem, located at pc, and
// returns its text and length. Undecodable bytes are returned in hex with a
// length of 1.
func (a *Arch) Disassemble(mem []byte, pc uint64) (string, int) {
	text, n, err := a.asmDecode(mem, pc)
	if err != nil || n <= 0 {
		return "?? " + hex.EncodeToString(mem[:1]), 1
	}
	return text, n
}

func x86AsmDecode(mem []byte, pc uint64) (string, int, error) {
	inst, err := x86asm.Decode(mem, 64)
	if err != nil {
		return "", 0, err
	}
	return x86asm.GNUSyntax(inst, pc, nil), inst.Len, nil
}

func arm64AsmDecode(mem []byte, pc uint64) (string, int, error) {
	if len(mem) < 4 {
		return "", 0, fmt.Errorf("short instruction at %#x", pc)
	}
	inst, err := arm64asm.Decode(mem)
	if err != nil {
		return "", 0, err
	}
	return arm64asm.GNUSyntax(inst), 4, nil
}
