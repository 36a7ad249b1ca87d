package debugger

import (
	"debug/dwarf"
	"testing"

	"golang.org/x/sys/unix"
)

func TestRegisterRoundTrip(t *testing.T) {
	var regs unix.PtraceRegs
	all := []Register{
		RAX, RBX, RCX, RDX, RDI, RSI, RBP, RSP,
		R8, R9, R10, R11, R12, R13, R14, R15,
		RIP, EFLAGS, CS, ORIG_RAX, FS_BASE, GS_BASE, FS, GS, SS, DS, ES,
	}
	for i, r := range all {
		f, err := regField(&regs, r)
		if err != nil {
			t.Fatalf("regField(%v): %v", r, err)
		}
		*f = uint64(i + 1)
	}
	for i, r := range all {
		f, err := regField(&regs, r)
		if err != nil {
			t.Fatalf("regField(%v): %v", r, err)
		}
		if *f != uint64(i+1) {
			t.Errorf("register %v: got %d, want %d", r, *f, i+1)
		}
	}
}

func TestRegFieldUnknown(t *testing.T) {
	var regs unix.PtraceRegs
	if _, err := regField(&regs, Register(999)); err == nil {
		t.Fatal("expected error for unknown register")
	}
}

func TestRegisterString(t *testing.T) {
	cases := map[Register]string{
		RAX:      "rax",
		RIP:      "rip",
		ORIG_RAX: "orig_rax",
		FS_BASE:  "fs_base",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Errorf("Register(%d).String() = %q, want %q", r, got, want)
		}
	}
	if got := Register(999).String(); got != "unknown" {
		t.Errorf("Register(999).String() = %q, want %q", got, "unknown")
	}
}

func TestProcessStatusString(t *testing.T) {
	cases := map[ProcessStatus]string{
		Terminated: "terminated",
		Running:    "running",
		Paused:     "paused",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("ProcessStatus(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestLowHighPCAddressClass(t *testing.T) {
	entry := &dwarf.Entry{
		Tag: dwarf.TagSubprogram,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrLowpc, Val: uint64(0x1000), Class: dwarf.ClassAddress},
			{Attr: dwarf.AttrHighpc, Val: uint64(0x1100), Class: dwarf.ClassAddress},
		},
	}
	low, high, ok := lowHighPC(entry)
	if !ok || low != 0x1000 || high != 0x1100 {
		t.Fatalf("lowHighPC = (%x, %x, %v), want (0x1000, 0x1100, true)", low, high, ok)
	}
}

func TestLowHighPCConstantClass(t *testing.T) {
	entry := &dwarf.Entry{
		Tag: dwarf.TagSubprogram,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrLowpc, Val: uint64(0x2000), Class: dwarf.ClassAddress},
			{Attr: dwarf.AttrHighpc, Val: int64(0x50), Class: dwarf.ClassConstant},
		},
	}
	low, high, ok := lowHighPC(entry)
	if !ok || low != 0x2000 || high != 0x2050 {
		t.Fatalf("lowHighPC = (%x, %x, %v), want (0x2000, 0x2050, true)", low, high, ok)
	}
}

func TestLowHighPCNoLowpc(t *testing.T) {
	entry := &dwarf.Entry{Tag: dwarf.TagSubprogram}
	if _, _, ok := lowHighPC(entry); ok {
		t.Fatal("expected ok=false for entry without low_pc")
	}
}
