package debugger

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/9chu/lperf/pkg/lperferr"
)

// ptraceSeize issues PTRACE_SEIZE, the non-interrupting attach used so the
// tracee's current signal-delivery state is left untouched (Debugger's
// constructor default path).
func ptraceSeize(pid int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := unix.PtraceSeize(pid); err != nil {
		return lperferr.NewApiError("PTRACE_SEIZE", err)
	}
	return nil
}

// ptraceInterrupt issues PTRACE_INTERRUPT, used to force a Running tracee
// (attached via PTRACE_SEIZE) into group-stop without delivering a signal.
func ptraceInterrupt(pid int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := unix.PtraceInterrupt(pid); err != nil {
		return lperferr.NewApiError("PTRACE_INTERRUPT", err)
	}
	return nil
}

// ptraceCont issues PTRACE_CONT, resuming the tracee and optionally
// delivering sig (0 for no signal).
func ptraceCont(pid, sig int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := unix.PtraceCont(pid, sig); err != nil {
		return lperferr.NewApiError("PTRACE_CONT", err)
	}
	return nil
}

// ptraceSingleStep issues PTRACE_SINGLESTEP.
func ptraceSingleStep(pid int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := unix.PtraceSingleStep(pid); err != nil {
		return lperferr.NewApiError("PTRACE_SINGLESTEP", err)
	}
	return nil
}

// ptraceDetach issues PTRACE_DETACH, releasing the tracee back to running
// independently.
func ptraceDetach(pid int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := unix.PtraceDetach(pid); err != nil {
		return lperferr.NewApiError("PTRACE_DETACH", err)
	}
	return nil
}

// ptracePeekData reads len(out) bytes from the tracee's address space at
// addr via PTRACE_PEEKDATA, word at a time under the hood.
func ptracePeekData(pid int, addr uintptr, out []byte) (int, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	n, err := unix.PtracePeekData(pid, addr, out)
	if err != nil {
		return n, lperferr.NewApiError("PTRACE_PEEKDATA", err)
	}
	return n, nil
}

// ptracePokeData writes data into the tracee's address space at addr via
// PTRACE_POKEDATA.
func ptracePokeData(pid int, addr uintptr, data []byte) (int, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	n, err := unix.PtracePokeData(pid, addr, data)
	if err != nil {
		return n, lperferr.NewApiError("PTRACE_POKEDATA", err)
	}
	return n, nil
}
