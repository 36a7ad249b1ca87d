// Package debugger implements the non-cooperative process controller: it
// attaches to a foreign x86_64 Linux process via ptrace, exposes register
// and memory access, manages software breakpoints, and resolves DWARF
// symbols — everything spec.md's Debugger.hpp groups under one type, here
// split across controller.go, breakpoint.go, memory.go and symbolizer.go.
package debugger

import (
	"fmt"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/9chu/lperf/pkg/lperferr"
)

// ProcessStatus mirrors the grounding source's ProcessStatus enum.
type ProcessStatus int

const (
	Terminated ProcessStatus = iota
	Running
	Paused
)

func (s ProcessStatus) String() string {
	switch s {
	case Terminated:
		return "terminated"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Controller owns a ptrace attachment to a single tracee, its breakpoint
// table, and the symbolizer built from the tracee's own executable image.
// Grounded on the grounding source's Debugger class.
type Controller struct {
	pid        int
	status     ProcessStatus
	exitCode   int
	lastSignal syscall.Signal

	breakpoints map[uintptr]*Breakpoint

	sym *Symbolizer

	log *logrus.Entry
}

// Attach seizes pid via PTRACE_SEIZE and, when interrupt is true, follows
// up with PTRACE_INTERRUPT and waits for the resulting group-stop before
// returning — mirroring Debugger::Debugger's two-mode constructor.
func Attach(pid int, interrupt bool, log *logrus.Entry) (*Controller, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("subsystem", "controller")

	sym, err := newSymbolizer(pid, log)
	if err != nil {
		return nil, err
	}

	if err := ptraceSeize(pid); err != nil {
		return nil, lperferr.NewApiError(fmt.Sprintf("attach to process %d", pid), err)
	}

	c := &Controller{
		pid:         pid,
		breakpoints: make(map[uintptr]*Breakpoint),
		sym:         sym,
		log:         log,
	}

	if interrupt {
		if err := ptraceInterrupt(pid); err != nil {
			_ = ptraceDetach(pid)
			return nil, err
		}
		ok, err := c.Wait()
		if err != nil {
			_ = ptraceDetach(pid)
			return nil, err
		}
		if !ok || c.status != Paused {
			_ = ptraceDetach(pid)
			return nil, lperferr.NewApiError(fmt.Sprintf("attach and wait on process %d", pid), nil)
		}
	} else {
		c.status = Running
	}
	return c, nil
}

// Close tears the controller down: it pauses a still-running tracee,
// removes every breakpoint (restoring original bytes), resumes the tracee
// and detaches. Mirrors Debugger::~Debugger's nothrow cleanup discipline —
// every step here logs and continues rather than returning early.
func (c *Controller) Close() {
	if c.status == Terminated {
		return
	}

	if c.status == Running {
		c.log.Trace("pausing process before teardown")
		c.InterruptSafe()
	}

	c.log.WithField("count", len(c.breakpoints)).Trace("removing breakpoints")
	for addr, bp := range c.breakpoints {
		if err := bp.Disable(); err != nil {
			c.log.WithError(err).Warnf("cannot disable breakpoint at 0x%x", addr)
		}
	}
	c.breakpoints = nil

	if c.status == Paused {
		c.log.Trace("resuming process before detach")
		if err := c.Continue(); err != nil {
			c.log.WithError(err).Warn("continue on close failed")
		}
	}

	c.log.Trace("detaching")
	if err := ptraceDetach(c.pid); err != nil {
		c.log.WithError(err).Warn("detach on close failed")
	}
}

// Status reports the last-observed process state.
func (c *Controller) Status() ProcessStatus { return c.status }

// ExitCode reports the tracee's exit status, valid once Status is Terminated.
func (c *Controller) ExitCode() int { return c.exitCode }

// LastSignal reports the signal observed by the most recent Wait call.
func (c *Controller) LastSignal() syscall.Signal { return c.lastSignal }

// Pid reports the tracee's process id.
func (c *Controller) Pid() int { return c.pid }

// Symbolizer exposes the DWARF/ELF symbol resolver built over this tracee's
// executable image.
func (c *Controller) Symbolizer() *Symbolizer { return c.sym }

// Wait blocks for the next ptrace event on the tracee. SIGCHLD is absorbed
// transparently (the tracee's own children stopping/exiting must not be
// mistaken for the tracee's own stop), exactly as Debugger::Wait does.
// Returns false once the tracee has exited.
func (c *Controller) Wait() (bool, error) {
	if c.status == Terminated {
		return false, lperferr.NewInvalidCall("process %d already terminated", c.pid)
	}

	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(c.pid, &ws, 0, nil)
		if err != nil {
			if err == unix.EINTR {
				c.log.Debug("waitpid received EINTR")
				continue
			}
			return false, lperferr.NewApiError(fmt.Sprintf("wait on process %d", c.pid), err)
		}

		switch {
		case ws.Stopped():
			c.status = Paused
			c.lastSignal = ws.StopSignal()
			c.log.Tracef("process %d stopped on signal %v", c.pid, c.lastSignal)

			if c.lastSignal == syscall.SIGCHLD {
				if err := c.Continue(); err != nil {
					return false, err
				}
				continue
			}
			return true, nil

		case ws.Exited():
			c.status = Terminated
			c.exitCode = ws.ExitStatus()
			c.log.Tracef("process %d terminated", c.pid)
			return false, nil

		case ws.Signaled():
			c.status = Terminated
			c.lastSignal = ws.Signal()
			c.log.Tracef("process %d killed by signal %v", c.pid, c.lastSignal)
			return false, nil

		default:
			return false, lperferr.NewApiError(fmt.Sprintf("wait on process %d got unexpected status %v", c.pid, ws), nil)
		}
	}
}

// Interrupt issues PTRACE_INTERRUPT and blocks until the tracee stops.
func (c *Controller) Interrupt() error {
	if err := ptraceInterrupt(c.pid); err != nil {
		return err
	}
	ok, err := c.Wait()
	if err != nil {
		return err
	}
	if !ok {
		return lperferr.NewInvalidCall("process %d terminated on interrupt", c.pid)
	}
	return nil
}

// InterruptSafe is Interrupt with errors logged instead of returned, for
// use in cleanup paths that must not fail.
func (c *Controller) InterruptSafe() {
	if err := c.Interrupt(); err != nil {
		c.log.WithError(err).Error("interrupt failed")
	}
}

// Continue resumes a Paused tracee. If the tracee is currently stopped on a
// breakpoint's trap, the breakpoint is stepped over first so the patched
// 0xCC byte is not re-executed in place.
func (c *Controller) Continue() error {
	if c.status != Paused {
		return lperferr.NewInvalidCall("invalid call on process %d: not paused", c.pid)
	}

	if c.lastSignal == syscall.SIGTRAP {
		if _, err := c.StepOverBreakpoint(); err != nil {
			return err
		}
	}

	if err := ptraceCont(c.pid, 0); err != nil {
		return lperferr.NewApiError(fmt.Sprintf("continue on process %d", c.pid), err)
	}
	c.status = Running
	c.lastSignal = 0
	return nil
}

// ContinueSafe is Continue with errors logged instead of returned.
func (c *Controller) ContinueSafe() {
	if err := c.Continue(); err != nil {
		c.log.WithError(err).Error("continue failed")
	}
}

// SingleStep executes exactly one instruction on the tracee, stepping over
// a breakpoint trap first if that's what's currently stopping it.
func (c *Controller) SingleStep() error {
	if c.status != Paused {
		return lperferr.NewInvalidCall("invalid call on process %d: not paused", c.pid)
	}

	if c.lastSignal == syscall.SIGTRAP {
		stepped, err := c.StepOverBreakpoint()
		if err != nil {
			return err
		}
		if stepped {
			return nil
		}
	}
	return c.internalStepOver()
}

func (c *Controller) internalStepOver() error {
	if err := ptraceSingleStep(c.pid); err != nil {
		return lperferr.NewApiError(fmt.Sprintf("single step on process %d", c.pid), err)
	}
	_, err := c.Wait()
	return err
}

// StepOverBreakpoint detects whether the tracee is currently stopped one
// byte past a live breakpoint (PC-1 convention) and, if so, rewinds PC,
// disables the patched byte, single-steps the real instruction, and
// re-enables the breakpoint. Returns whether a breakpoint was stepped over.
func (c *Controller) StepOverBreakpoint() (bool, error) {
	pc, err := c.GetRegister(RIP)
	if err != nil {
		return false, err
	}
	lastLocation := uintptr(pc - 1)
	bp := c.GetBreakpoint(lastLocation)
	if bp != nil && bp.IsEnabled() {
		if err := c.SetRegister(RIP, uint64(lastLocation)); err != nil {
			return false, err
		}
		if err := bp.Disable(); err != nil {
			return false, err
		}
		if err := c.internalStepOver(); err != nil {
			return false, err
		}
		if err := bp.Enable(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// SendSignal delivers signum to the tracee directly via kill(2), used to
// forward SIGINT to the target while the profiler itself absorbs it.
func (c *Controller) SendSignal(signum syscall.Signal) error {
	if c.status == Terminated {
		return lperferr.NewInvalidCall("invalid call on process %d: terminated", c.pid)
	}
	if err := unix.Kill(c.pid, signum); err != nil {
		return lperferr.NewApiError(fmt.Sprintf("send signal to process %d", c.pid), err)
	}
	return nil
}

// GetPC returns the instruction pointer, a thin convenience over GetRegister.
func (c *Controller) GetPC() (uint64, error) { return c.GetRegister(RIP) }

// SetPC sets the instruction pointer, a thin convenience over SetRegister.
func (c *Controller) SetPC(pc uint64) error { return c.SetRegister(RIP, pc) }
