package lua

import (
	"unsafe"

	"github.com/9chu/lperf/pkg/lperferr"
	"github.com/9chu/lperf/pkg/remote"
)

// baseCIOffset is offsetof(lua_State, BaseCI): the call chain's fixed
// sentinel address is always a LuaState's own address plus this offset.
var baseCIOffset = unsafe.Offsetof(LuaState{}.BaseCI)

// GetStack mirrors lua_State::GetStack: walks the CallInfo chain rooted
// at ci back level frames towards base_ci, returning the CallInfo found
// there.
func GetStack(stateAddr uintptr, level int) (RemoteCallInfo, error) {
	if level < 0 {
		return RemoteCallInfo{}, lperferr.NewBadArgument("invalid negative level %d", level)
	}

	state, err := remote.Ptr[LuaState](stateAddr).Deref()
	if err != nil {
		return RemoteCallInfo{}, err
	}

	baseAddr := stateAddr + baseCIOffset
	cur := state.CI
	for level > 0 && cur.Address != baseAddr {
		ci, err := cur.Deref()
		if err != nil {
			return RemoteCallInfo{}, err
		}
		cur = ci.Previous
		level--
	}
	if level == 0 && cur.Address != baseAddr {
		ci, err := cur.Deref()
		if err != nil {
			return RemoteCallInfo{}, err
		}
		return RemoteCallInfo{Address: cur.Address, CI: ci}, nil
	}
	return RemoteCallInfo{}, lperferr.NewObjectNotFound("stack level %d not found", level)
}

// GetInfo mirrors lua_State::GetInfo, filling a Debug record for the
// function identified by ar.ci. A what string starting with '>' is not
// supported and returns OperationNotSupported.
func GetInfo(g GlobalState, what string, ar *Debug) error {
	var closure *ClosureInfo
	var ci *RemoteCallInfo
	var fn TValue

	if len(what) > 0 && what[0] == '>' {
		return lperferr.NewOperationNotSupported("'>' level selector is not used by the stack walker")
	}

	ci = &ar.ci
	f, err := ci.CI.Func.Deref()
	if err != nil {
		return err
	}
	fn = f
	if !fn.IsFunction() {
		return lperferr.NewBadState("call info func is not a function")
	}

	if fn.IsClosure() {
		c, err := derefClosure(fn.Value.GC())
		if err != nil {
			return err
		}
		closure = &c
	} else if fn.IsLightCFunction() {
		ar.Address = fn.Value.Pointer()
	}

	for _, c := range what {
		switch c {
		case 'S':
			if err := funcinfo(ar, closure); err != nil {
				return err
			}
			if closure != nil && closure.IsC {
				ar.Address = closure.C.F
			}
		case 'l':
			if ci != nil && ci.CI.IsLua() {
				line, err := currentline(ci.CI)
				if err != nil {
					return err
				}
				ar.CurrentLine = line
			} else {
				ar.CurrentLine = -1
			}
		case 't':
			ar.IsTailCall = ci != nil && ci.CI.IsTailCall()
		case 'n':
			namewhat, name, err := getfuncname(g, ci)
			if err != nil {
				return err
			}
			ar.NameWhat = namewhat
			ar.Name = name
		}
	}
	return nil
}

// NativeNameResolver looks up the symbol name of a native (non-Lua)
// return address, e.g. via pkg/debugger's DWARF-backed Symbolizer.
type NativeNameResolver func(address uintptr) (string, error)

// DumpStack walks the full call chain of the Lua thread at stateAddr,
// from the innermost active call back to base_ci, resolving each frame's
// source, name and defining line. A frame that cannot be resolved is
// recorded as FunctionUnknown carrying its CallInfo address, and the walk
// goes on rather than aborting the whole dump. resolveNative may be nil, in which case native frames keep
// whatever name the Lua debug info recorded (often none).
func DumpStack(stateAddr uintptr, g GlobalState, maxDepth int, resolveNative NativeNameResolver) ([]StackFrame, error) {
	state, err := remote.Ptr[LuaState](stateAddr).Deref()
	if err != nil {
		return nil, err
	}

	baseAddr := stateAddr + baseCIOffset
	var frames []StackFrame

	for cur := state.CI; cur.Address != baseAddr && (maxDepth <= 0 || len(frames) < maxDepth); {
		ciVal, err := cur.Deref()
		if err != nil {
			return frames, err
		}

		frame, err := resolveFrame(g, RemoteCallInfo{Address: cur.Address, CI: ciVal})
		if err != nil {
			frames = append(frames, StackFrame{Type: FunctionUnknown, Address: cur.Address})
		} else {
			if frame.Type == FunctionNative && frame.Address != 0 && resolveNative != nil {
				if name, err := resolveNative(frame.Address); err == nil && name != "" {
					frame.Name = name
				}
			}
			frames = append(frames, frame)
		}

		cur = ciVal.Previous
	}
	return frames, nil
}

func resolveFrame(g GlobalState, rci RemoteCallInfo) (StackFrame, error) {
	ar := Debug{ci: rci}
	if err := GetInfo(g, "Snt", &ar); err != nil {
		return StackFrame{}, err
	}

	ft := FunctionNative
	if ar.What == "Lua" || ar.What == "main" {
		ft = FunctionLua
	}

	// DumpStack reports the defining line, not the currently executing
	// one: distinct definitions of same-named functions then collapse
	// correctly when aggregating samples by stack, whereas the exact
	// executing line would make otherwise-identical stacks differ on
	// every sample.
	line := ar.LineDefined
	if line == -1 {
		line = 0
	}

	return StackFrame{
		Type:        ft,
		Address:     ar.Address,
		Source:      ar.Source,
		ShortSource: ar.ShortSource,
		Name:        ar.Name,
		NameWhat:    ar.NameWhat,
		Line:        line,
		LineDefined: ar.LineDefined,
	}, nil
}
