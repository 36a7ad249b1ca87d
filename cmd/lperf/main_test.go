package main

import (
	"testing"

	"github.com/9chu/lperf/pkg/lua"
)

func TestParseHooksEmpty(t *testing.T) {
	hooks, err := parseHooks("")
	if err != nil {
		t.Fatalf("parseHooks: %v", err)
	}
	if hooks != nil {
		t.Fatalf("expected nil, got %v", hooks)
	}
}

func TestParseHooksMixedBase(t *testing.T) {
	hooks, err := parseHooks("0x12FFBB0, 12345678,0XAB")
	if err != nil {
		t.Fatalf("parseHooks: %v", err)
	}
	want := []uintptr{0x12FFBB0, 12345678, 0xAB}
	if len(hooks) != len(want) {
		t.Fatalf("got %v, want %v", hooks, want)
	}
	for i := range want {
		if hooks[i] != want[i] {
			t.Errorf("hooks[%d] = 0x%x, want 0x%x", i, hooks[i], want[i])
		}
	}
}

func TestParseHooksSkipsEmptyFields(t *testing.T) {
	hooks, err := parseHooks("0x1,,0x2,")
	if err != nil {
		t.Fatalf("parseHooks: %v", err)
	}
	if len(hooks) != 2 {
		t.Fatalf("got %v, want 2 entries", hooks)
	}
}

func TestParseHooksInvalid(t *testing.T) {
	if _, err := parseHooks("not-a-number"); err == nil {
		t.Fatal("expected error for invalid hook address")
	}
}

func TestFormatFrameNativeNamed(t *testing.T) {
	f := lua.StackFrame{Type: lua.FunctionNative, Name: "luaB_pcall", Address: 0x401000}
	if got, want := formatFrame(f), "[luaB_pcall]"; got != want {
		t.Errorf("formatFrame() = %q, want %q", got, want)
	}
}

func TestFormatFrameNativeAnonymous(t *testing.T) {
	f := lua.StackFrame{Type: lua.FunctionNative, Address: 0x401000}
	if got, want := formatFrame(f), "[0x0000000000401000]"; got != want {
		t.Errorf("formatFrame() = %q, want %q", got, want)
	}
}

func TestFormatFrameLuaNamed(t *testing.T) {
	f := lua.StackFrame{Type: lua.FunctionLua, Name: "update", ShortSource: "main.lua", Line: 42}
	if got, want := formatFrame(f), "update @ main.lua:42"; got != want {
		t.Errorf("formatFrame() = %q, want %q", got, want)
	}
}

func TestFormatFrameLuaAnonymous(t *testing.T) {
	f := lua.StackFrame{Type: lua.FunctionLua, ShortSource: "main.lua", Line: 7}
	if got, want := formatFrame(f), "? @ main.lua:7"; got != want {
		t.Errorf("formatFrame() = %q, want %q", got, want)
	}
}

func TestFormatFrameUnknown(t *testing.T) {
	f := lua.StackFrame{Type: lua.FunctionUnknown}
	if got, want := formatFrame(f), "?"; got != want {
		t.Errorf("formatFrame() = %q, want %q", got, want)
	}
}

func TestFormatStackOrdering(t *testing.T) {
	// DumpStack returns innermost-first; formatStack must render
	// outermost-first after the leading "(base)" marker.
	stack := []lua.StackFrame{
		{Type: lua.FunctionLua, Name: "inner", ShortSource: "a.lua", Line: 1},
		{Type: lua.FunctionLua, Name: "outer", ShortSource: "a.lua", Line: 2},
	}
	got := formatStack(stack)
	want := "(base);outer @ a.lua:2;inner @ a.lua:1"
	if got != want {
		t.Errorf("formatStack() = %q, want %q", got, want)
	}
}

func TestFormatStackEmpty(t *testing.T) {
	if got, want := formatStack(nil), "(base)"; got != want {
		t.Errorf("formatStack() = %q, want %q", got, want)
	}
}
