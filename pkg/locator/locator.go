// Package locator finds the address of a running process's lua_State by
// hooking its call-in entrypoints (lua_callk, lua_pcallk, or
// caller-supplied addresses) and reading the first argument register off
// the first hit. Grounded on LuaSampler.cpp's LuaSampler::FetchLuaState,
// ProcessPauseScope and ProcessWatchScope.
package locator

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/9chu/lperf/pkg/debugger"
	"github.com/9chu/lperf/pkg/lperferr"
)

// pauseScope interrupts a running tracee for the duration of the scope
// and ignores the terminal signals that would otherwise kill the
// profiler while it owns the tracee, mirroring ProcessPauseScope.
type pauseScope struct {
	ctrl *debugger.Controller
	sigs chan os.Signal
}

func newPauseScope(ctrl *debugger.Controller) *pauseScope {
	if ctrl.Status() == debugger.Running {
		ctrl.InterruptSafe()
	}
	s := &pauseScope{ctrl: ctrl, sigs: make(chan os.Signal, 1)}
	signal.Notify(s.sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for range s.sigs {
			// Swallowed: the terminal signal must not reach the
			// profiler itself while it holds the tracee paused.
		}
	}()
	return s
}

func (s *pauseScope) Close() {
	signal.Stop(s.sigs)
	close(s.sigs)
	if s.ctrl.Status() == debugger.Paused {
		s.ctrl.ContinueSafe()
	}
}

// watchScope forwards SIGINT/SIGTERM/SIGHUP to the tracee as SIGINT for
// the duration of the scope, so Ctrl-C cancels the locate wait cleanly
// instead of killing the profiler mid-attach. Mirrors ProcessWatchScope.
type watchScope struct {
	ctrl *debugger.Controller
	sigs chan os.Signal
	done chan struct{}
	log  *logrus.Entry
}

func newWatchScope(ctrl *debugger.Controller, log *logrus.Entry) *watchScope {
	s := &watchScope{ctrl: ctrl, sigs: make(chan os.Signal, 1), done: make(chan struct{}), log: log}
	signal.Notify(s.sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-s.sigs:
				if s.ctrl.Status() == debugger.Running {
					if err := s.ctrl.SendSignal(syscall.SIGINT); err != nil {
						s.log.WithError(err).Error("cannot send signal to process")
					}
				}
			case <-s.done:
				return
			}
		}
	}()
	return s
}

func (s *watchScope) Close() {
	close(s.done)
	signal.Stop(s.sigs)
}

// hookSet tracks the breakpoints this locate pass installed, so they can
// all be torn down together regardless of which one is ultimately hit.
type hookSet struct {
	ctrl *debugger.Controller
	bps  map[uintptr]*debugger.Breakpoint
	log  *logrus.Entry
}

func newHookSet(ctrl *debugger.Controller, log *logrus.Entry) *hookSet {
	return &hookSet{ctrl: ctrl, bps: make(map[uintptr]*debugger.Breakpoint), log: log}
}

func (h *hookSet) hookByName(name string) {
	bp, err := h.ctrl.CreateBreakpointByFunction(name, false)
	if err != nil {
		h.log.WithError(err).Warnf("hook function %s failed", name)
		return
	}
	if err := bp.Enable(); err != nil {
		h.log.WithError(err).Warnf("hook function %s failed", name)
		return
	}
	h.log.Infof("hooked lua function %s", name)
	h.bps[bp.Address()] = bp
}

func (h *hookSet) hookByAddress(addr uintptr) {
	bp := h.ctrl.CreateBreakpoint(addr + h.ctrl.Symbolizer().AddressOffset())
	if err := bp.Enable(); err != nil {
		h.log.WithError(err).Warnf("hook function 0x%x failed", addr)
		h.ctrl.RemoveBreakpoint(bp)
		return
	}
	h.log.Infof("hooked lua function at 0x%x", addr)
	h.bps[bp.Address()] = bp
}

func (h *hookSet) isHit(bp *debugger.Breakpoint) bool {
	if bp == nil {
		return false
	}
	_, ok := h.bps[bp.Address()]
	return ok
}

func (h *hookSet) count() int { return len(h.bps) }

func (h *hookSet) teardown() {
	for addr, bp := range h.bps {
		if err := h.ctrl.RemoveBreakpoint(bp); err != nil {
			h.log.WithError(err).Warnf("cannot clear hook at 0x%x", addr)
		}
	}
	h.bps = nil
}

// FetchLuaState hooks lua_callk, lua_pcallk and any caller-supplied custom
// entrypoints, resumes the already-running tracee, and returns the
// lua_State pointer passed as the first argument (RDI on x86_64) of
// whichever hook fires first. ctrl must already be attached and Running.
func FetchLuaState(ctrl *debugger.Controller, customEntryPoints []uintptr, log *logrus.Entry) (uintptr, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("subsystem", "locator")

	if ctrl.Status() != debugger.Running {
		return 0, lperferr.NewInvalidCall("locate requires a running process")
	}

	hooks := newHookSet(ctrl, log)
	defer func() {
		pause := newPauseScope(ctrl)
		defer pause.Close()
		hooks.teardown()
	}()

	func() {
		pause := newPauseScope(ctrl)
		defer pause.Close()
		hooks.hookByName("lua_callk")
		hooks.hookByName("lua_pcallk")
		for _, addr := range customEntryPoints {
			hooks.hookByAddress(addr)
		}
	}()

	if hooks.count() == 0 {
		return 0, lperferr.NewOperationNotSupported("no hook could be inserted")
	}

	watch := newWatchScope(ctrl, log)
	defer watch.Close()

	for {
		ok, err := ctrl.Wait()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, lperferr.NewInvalidCall("target terminated before lua_State was located")
		}

		switch ctrl.LastSignal() {
		case syscall.SIGINT:
			log.Error("debugger interrupted by SIGINT, cancelling")
			return 0, lperferr.NewOperationCancelled("user cancelled")
		case syscall.SIGTRAP:
			bp, err := ctrl.IsHitBreakpoint()
			if err != nil {
				return 0, err
			}
			if hooks.isHit(bp) {
				l, err := ctrl.GetRegister(debugger.RDI) // lua_State is always the first argument
				if err != nil {
					return 0, err
				}
				if err := ctrl.Continue(); err != nil {
					return 0, err
				}
				return uintptr(l), nil
			}
		default:
			return 0, lperferr.NewOperationNotSupported("unknown signal %v received while locating", ctrl.LastSignal())
		}

		if err := ctrl.Continue(); err != nil {
			return 0, err
		}
	}
}
