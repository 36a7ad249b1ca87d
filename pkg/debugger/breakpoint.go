package debugger

import "github.com/9chu/lperf/pkg/lperferr"

const int3 = 0xCC

// Breakpoint is a software breakpoint: patching the byte at address with
// an INT3 (0xCC) instruction and restoring the original byte on disable.
// Grounded on the grounding source's Breakpoint class.
type Breakpoint struct {
	ctrl    *Controller
	address uintptr

	enabled  bool
	original byte
}

// Address returns the address this breakpoint is set at.
func (b *Breakpoint) Address() uintptr { return b.address }

// IsEnabled reports whether the INT3 byte is currently patched in.
func (b *Breakpoint) IsEnabled() bool { return b.enabled }

// Enable patches the 0xCC byte in, saving the original byte first. Calling
// Enable twice in a row is a no-op (idempotent), matching
// Breakpoint::Enable's "already enabled and byte reads 0xCC" short-circuit.
func (b *Breakpoint) Enable() error {
	code, err := b.ctrl.ReadByte(b.address)
	if err != nil {
		return err
	}
	if b.enabled && code == int3 {
		return nil
	}

	if err := b.ctrl.WriteByte(b.address, int3); err != nil {
		return err
	}
	b.enabled = true
	b.original = code
	b.ctrl.log.Infof("breakpoint enabled, address 0x%x", b.address)
	return nil
}

// Disable restores the original byte. A no-op if the breakpoint isn't
// currently enabled. If the byte at address no longer reads 0xCC (the
// target's own code changed underneath the breakpoint), the breakpoint is
// marked disabled without attempting to write back a stale original byte,
// matching Breakpoint::Disable's "code modified" branch.
func (b *Breakpoint) Disable() error {
	if !b.enabled {
		return nil
	}

	code, err := b.ctrl.ReadByte(b.address)
	if err != nil {
		return err
	}
	if code != int3 {
		b.enabled = false
		b.original = code
		b.ctrl.log.Warnf("code at breakpoint modified, address 0x%x", b.address)
		return nil
	}

	if err := b.ctrl.WriteByte(b.address, b.original); err != nil {
		return err
	}
	b.enabled = false
	b.ctrl.log.Infof("breakpoint disabled, address 0x%x", b.address)
	return nil
}

// CreateBreakpoint returns the existing breakpoint at address, or creates
// and registers a new (disabled) one.
func (c *Controller) CreateBreakpoint(address uintptr) *Breakpoint {
	if bp, ok := c.breakpoints[address]; ok {
		return bp
	}
	bp := &Breakpoint{ctrl: c, address: address}
	c.breakpoints[address] = bp
	return bp
}

// CreateBreakpointByFunction resolves func via DWARF and creates a
// breakpoint at its entry, optionally skipping the compiler-generated
// prologue so the breakpoint lands after the stack frame is set up.
// Grounded on Debugger::CreateBreakpoint(const char*, bool).
func (c *Controller) CreateBreakpointByFunction(name string, skipPrologue bool) (*Breakpoint, error) {
	entry, err := c.sym.FindFunctionEntry(name, skipPrologue)
	if err != nil {
		return nil, err
	}
	return c.CreateBreakpoint(entry), nil
}

// GetBreakpoint returns the breakpoint registered at address, or nil.
func (c *Controller) GetBreakpoint(address uintptr) *Breakpoint {
	return c.breakpoints[address]
}

// IsHitBreakpoint checks whether the tracee is currently stopped one byte
// past a registered breakpoint (the PC-1 convention of an INT3 trap) and
// returns it, or nil if the current trap isn't one of ours.
func (c *Controller) IsHitBreakpoint() (*Breakpoint, error) {
	pc, err := c.GetPC()
	if err != nil {
		return nil, err
	}
	return c.GetBreakpoint(uintptr(pc - 1)), nil
}

// RemoveBreakpoint disables bp (restoring its original byte) and drops it
// from the controller's table.
func (c *Controller) RemoveBreakpoint(bp *Breakpoint) error {
	if bp == nil {
		return lperferr.NewBadArgument("RemoveBreakpoint: nil breakpoint")
	}
	if err := bp.Disable(); err != nil {
		return err
	}
	delete(c.breakpoints, bp.address)
	return nil
}
