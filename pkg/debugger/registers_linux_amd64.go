package debugger

import (
	"golang.org/x/sys/unix"

	"github.com/9chu/lperf/pkg/lperferr"
)

// Register names the general-purpose and segment registers exposed by
// PTRACE_GETREGS/PTRACE_SETREGS on linux/amd64, mirroring the Registers
// enum in the grounding source's Debugger.hpp.
type Register int

const (
	RAX Register = iota
	RBX
	RCX
	RDX
	RDI
	RSI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
	EFLAGS
	CS
	ORIG_RAX
	FS_BASE
	GS_BASE
	FS
	GS
	SS
	DS
	ES
)

func (r Register) String() string {
	switch r {
	case RAX:
		return "rax"
	case RBX:
		return "rbx"
	case RCX:
		return "rcx"
	case RDX:
		return "rdx"
	case RDI:
		return "rdi"
	case RSI:
		return "rsi"
	case RBP:
		return "rbp"
	case RSP:
		return "rsp"
	case R8:
		return "r8"
	case R9:
		return "r9"
	case R10:
		return "r10"
	case R11:
		return "r11"
	case R12:
		return "r12"
	case R13:
		return "r13"
	case R14:
		return "r14"
	case R15:
		return "r15"
	case RIP:
		return "rip"
	case EFLAGS:
		return "eflags"
	case CS:
		return "cs"
	case ORIG_RAX:
		return "orig_rax"
	case FS_BASE:
		return "fs_base"
	case GS_BASE:
		return "gs_base"
	case FS:
		return "fs"
	case GS:
		return "gs"
	case SS:
		return "ss"
	case DS:
		return "ds"
	case ES:
		return "es"
	default:
		return "unknown"
	}
}

// regField returns a pointer to the field of regs backing r, mirroring the
// switch dispatch of Debugger::GetRegister/Debugger::SetRegister.
func regField(regs *unix.PtraceRegs, r Register) (*uint64, error) {
	switch r {
	case RAX:
		return &regs.Rax, nil
	case RBX:
		return &regs.Rbx, nil
	case RCX:
		return &regs.Rcx, nil
	case RDX:
		return &regs.Rdx, nil
	case RDI:
		return &regs.Rdi, nil
	case RSI:
		return &regs.Rsi, nil
	case RBP:
		return &regs.Rbp, nil
	case RSP:
		return &regs.Rsp, nil
	case R8:
		return &regs.R8, nil
	case R9:
		return &regs.R9, nil
	case R10:
		return &regs.R10, nil
	case R11:
		return &regs.R11, nil
	case R12:
		return &regs.R12, nil
	case R13:
		return &regs.R13, nil
	case R14:
		return &regs.R14, nil
	case R15:
		return &regs.R15, nil
	case RIP:
		return &regs.Rip, nil
	case EFLAGS:
		return &regs.Eflags, nil
	case CS:
		return &regs.Cs, nil
	case ORIG_RAX:
		return &regs.Orig_rax, nil
	case FS_BASE:
		return &regs.Fs_base, nil
	case GS_BASE:
		return &regs.Gs_base, nil
	case FS:
		return &regs.Fs, nil
	case GS:
		return &regs.Gs, nil
	case SS:
		return &regs.Ss, nil
	case DS:
		return &regs.Ds, nil
	case ES:
		return &regs.Es, nil
	default:
		return nil, lperferr.NewBadArgument("unknown register %v", r)
	}
}

// GetRegister reads a single register from the stopped tracee. The process
// must be Paused; ptrace only accepts PTRACE_GETREGS while the tracee is
// stopped.
func (c *Controller) GetRegister(r Register) (uint64, error) {
	if c.Status() != Paused {
		return 0, lperferr.NewInvalidCall("GetRegister: process is not paused")
	}
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(c.pid, &regs); err != nil {
		return 0, lperferr.NewApiError("PTRACE_GETREGS", err)
	}
	f, err := regField(&regs, r)
	if err != nil {
		return 0, err
	}
	return *f, nil
}

// SetRegister writes a single register on the stopped tracee, read-modify-
// write since PTRACE_SETREGS takes the whole register set at once.
func (c *Controller) SetRegister(r Register, value uint64) error {
	if c.Status() != Paused {
		return lperferr.NewInvalidCall("SetRegister: process is not paused")
	}
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(c.pid, &regs); err != nil {
		return lperferr.NewApiError("PTRACE_GETREGS", err)
	}
	f, err := regField(&regs, r)
	if err != nil {
		return err
	}
	*f = value
	if err := unix.PtraceSetRegs(c.pid, &regs); err != nil {
		return lperferr.NewApiError("PTRACE_SETREGS", err)
	}
	return nil
}
