package lua

import (
	"strconv"

	"github.com/9chu/lperf/pkg/lperferr"
	"github.com/9chu/lperf/pkg/remote"
)

// pcRel converts an absolute saved-pc pointer back into an instruction
// index relative to p.Code, biased by -1 to land on the instruction that
// was executing rather than the one about to execute.
func pcRel(savedpc uintptr, p Proto) int {
	return int((savedpc-p.Code.Address)/4) - 1
}

// currentline mirrors currentline(): the source line the given Lua
// CallInfo is paused at.
func currentline(ci CallInfo) (int, error) {
	if !ci.IsLua() {
		return 0, lperferr.NewBadState("call info does not belong to a Lua function")
	}
	tv, err := ci.Func.Deref()
	if err != nil {
		return 0, err
	}
	cl, err := derefClosure(tv.Value.GC())
	if err != nil {
		return 0, err
	}
	proto, err := cl.L.P.Deref()
	if err != nil {
		return 0, err
	}
	pc := pcRel(ci.L.SavedPC.Address, proto)
	if proto.LineInfo.IsNil() {
		return -1, nil
	}
	lp := remote.Ptr[int32](proto.LineInfo.Address + uintptr(pc)*4)
	v, err := lp.Deref()
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// funcinfo mirrors funcinfo(): fills the 'S' fields of ar from a
// (possibly absent) closure.
func funcinfo(ar *Debug, f *ClosureInfo) error {
	if noLuaClosure(f) {
		ar.Source = "=[C]"
		ar.LineDefined = -1
		ar.LastLineDefined = -1
		ar.What = "C"
	} else {
		proto, err := f.L.P.Deref()
		if err != nil {
			return err
		}
		if proto.Source.IsNil() {
			ar.Source = "=?"
		} else {
			s, err := getstr(proto.Source)
			if err != nil {
				return err
			}
			ar.Source = s
		}
		ar.LineDefined = int(proto.LineDefined)
		ar.LastLineDefined = int(proto.LastLineDefined)
		if ar.LineDefined == 0 {
			ar.What = "main"
		} else {
			ar.What = "Lua"
		}
	}
	ar.ShortSource = ShortSource(ar.Source, LUA_IDSIZE)
	return nil
}

// luaF_getlocalname mirrors luaF_getlocalname(): the name of the
// localNumber-th variable active at pc, or "" if none.
func luaF_getlocalname(p Proto, localNumber, pc int) (string, error) {
	remaining := localNumber
	for i := 0; i < int(p.SizeLocVars); i++ {
		lv, err := remote.Ptr[LocVar](p.LocVars.Address + uintptr(i)*localVarSize).Deref()
		if err != nil {
			return "", err
		}
		if int(lv.StartPC) > pc {
			break
		}
		if pc < int(lv.EndPC) {
			remaining--
			if remaining == 0 {
				return getstr(lv.VarName)
			}
		}
	}
	return "", nil
}

// localVarSize is sizeof(LocVar): a RemotePtr<TString> plus two int32s,
// padded to 16 bytes on x86_64.
const localVarSize = 16

// filterpc mirrors filterpc(): an instruction inside a forward jump's
// span cannot be blamed for setting a register unconditionally.
func filterpc(pc, jmptarget int) int {
	if pc < jmptarget {
		return -1
	}
	return pc
}

// findsetreg mirrors findsetreg(): a forward scan over the instructions
// strictly before lastpc, returning the last one that could have set reg.
func findsetreg(p Proto, lastpc, reg int) (int, error) {
	setreg := -1
	jmptarget := 0
	for pc := 0; pc < lastpc; pc++ {
		inst, err := instructionAt(p, pc)
		if err != nil {
			return 0, err
		}
		op := GetOpCode(inst)
		a := GetArgA(inst)
		switch op {
		case OP_LOADNIL:
			b := GetArgB(inst)
			if a <= reg && reg <= a+b {
				setreg = filterpc(pc, jmptarget)
			}
		case OP_TFORCALL:
			if reg >= a+2 {
				setreg = filterpc(pc, jmptarget)
			}
		case OP_CALL, OP_TAILCALL:
			if reg >= a {
				setreg = filterpc(pc, jmptarget)
			}
		case OP_JMP:
			b := GetArgSBx(inst)
			dest := pc + 1 + b
			if pc < dest && dest <= lastpc && dest > jmptarget {
				jmptarget = dest
			}
		default:
			if testAMode(op) && reg == a {
				setreg = filterpc(pc, jmptarget)
			}
		}
	}
	return setreg, nil
}

func instructionAt(p Proto, pc int) (uint32, error) {
	return remote.Ptr[uint32](p.Code.Address + uintptr(pc)*4).Deref()
}

// upvalname mirrors upvalname(): the declared name of upvalue index uv,
// or "?" if it was not recorded.
func upvalname(p Proto, uv int) (string, error) {
	if uv >= int(p.SizeUpvalues) {
		return "", lperferr.NewBadState("invalid upvalue index " + strconv.Itoa(uv))
	}
	desc, err := remote.Ptr[Upvaldesc](p.Upvalues.Address + uintptr(uv)*upvaldescSize).Deref()
	if err != nil {
		return "", err
	}
	if desc.Name.IsNil() {
		return "?", nil
	}
	return getstr(desc.Name)
}

// upvaldescSize is sizeof(Upvaldesc): a RemotePtr<TString> plus two
// bytes, padded to 16 bytes on x86_64.
const upvaldescSize = 16

func constantAt(p Proto, index int) (TValue, error) {
	return remote.Ptr[TValue](p.K.Address + uintptr(index)*16).Deref()
}

// kname mirrors kname(): best-effort name for register/constant operand
// c of the instruction at pc.
func kname(p Proto, pc, c int) (string, error) {
	if IsK(c) {
		kv, err := constantAt(p, IndexK(c))
		if err != nil {
			return "", err
		}
		if kv.IsString() {
			return getstr(remote.CastTo[TString](kv.Value.GC()))
		}
		return "?", nil
	}
	what, name, err := getobjname(p, pc, c)
	if err != nil {
		return "", err
	}
	if what == "constant" {
		return name, nil
	}
	return "?", nil
}

// getobjname mirrors getobjname(): a best-effort classification
// ("local"/"global"/"field"/"upvalue"/"constant"/"method") and name for
// register reg as of instruction lastpc.
func getobjname(p Proto, lastpc, reg int) (string, string, error) {
	const luaEnv = "_ENV"

	name, err := luaF_getlocalname(p, reg+1, lastpc)
	if err != nil {
		return "", "", err
	}
	if name != "" {
		return "local", name, nil
	}

	pc, err := findsetreg(p, lastpc, reg)
	if err != nil {
		return "", "", err
	}
	if pc == -1 {
		return "", "", nil
	}

	inst, err := instructionAt(p, pc)
	if err != nil {
		return "", "", err
	}
	op := GetOpCode(inst)

	switch op {
	case OP_MOVE:
		b := GetArgB(inst)
		if b < GetArgA(inst) {
			return getobjname(p, pc, b)
		}
	case OP_GETTABUP, OP_GETTABLE:
		k := GetArgC(inst)
		t := GetArgB(inst)
		var vn string
		if op == OP_GETTABLE {
			vn, err = luaF_getlocalname(p, t+1, pc)
		} else {
			vn, err = upvalname(p, t)
		}
		if err != nil {
			return "", "", err
		}
		kn, err := kname(p, pc, k)
		if err != nil {
			return "", "", err
		}
		if vn != "" && vn == luaEnv {
			return "global", kn, nil
		}
		return "field", kn, nil
	case OP_GETUPVAL:
		n, err := upvalname(p, GetArgB(inst))
		if err != nil {
			return "", "", err
		}
		return "upvalue", n, nil
	case OP_LOADK, OP_LOADKX:
		var b int
		if op == OP_LOADK {
			b = GetArgBx(inst)
		} else {
			next, err := instructionAt(p, pc+1)
			if err != nil {
				return "", "", err
			}
			b = GetArgAx(next)
		}
		kv, err := constantAt(p, b)
		if err != nil {
			return "", "", err
		}
		if kv.IsString() {
			n, err := getstr(remote.CastTo[TString](kv.Value.GC()))
			if err != nil {
				return "", "", err
			}
			return "constant", n, nil
		}
	case OP_SELF:
		kn, err := kname(p, pc, GetArgC(inst))
		if err != nil {
			return "", "", err
		}
		return "method", kn, nil
	}
	return "", "", nil
}

// arithTM returns the TMS ordinal of an arithmetic opcode, mirroring
// funcnamefromcode's contiguous OP_ADD..OP_SHR -> TM_ADD..TM_SHR mapping.
func arithTM(op OpCode) (TMS, bool) {
	switch op {
	case OP_ADD, OP_SUB, OP_MUL, OP_MOD, OP_POW, OP_DIV, OP_IDIV, OP_BAND,
		OP_BOR, OP_BXOR, OP_SHL, OP_SHR:
		return TM_ADD + TMS(op-OP_ADD), true
	}
	return 0, false
}

// funcnamefromcode mirrors funcnamefromcode(): infers the name and kind
// of the function a given call-site CallInfo called.
func funcnamefromcode(g GlobalState, ci CallInfo) (string, string, error) {
	tv, err := ci.Func.Deref()
	if err != nil {
		return "", "", err
	}
	if !tv.IsFunction() {
		return "", "", lperferr.NewBadState("call info func is not a function")
	}
	cl, err := derefClosure(tv.Value.GC())
	if err != nil {
		return "", "", err
	}
	proto, err := cl.L.P.Deref()
	if err != nil {
		return "", "", err
	}
	pc := pcRel(ci.L.SavedPC.Address, proto)
	inst, err := instructionAt(proto, pc)
	if err != nil {
		return "", "", err
	}
	if ci.IsHooked() {
		return "hook", "?", nil
	}

	op := GetOpCode(inst)
	switch op {
	case OP_CALL, OP_TAILCALL:
		what, name, err := getobjname(proto, pc, GetArgA(inst))
		if err != nil {
			return "", "", err
		}
		return what, name, nil
	case OP_TFORCALL:
		return "for iterator", "for iterator", nil
	case OP_SELF, OP_GETTABUP, OP_GETTABLE:
		return metamethodName(g, TM_INDEX)
	case OP_SETTABUP, OP_SETTABLE:
		return metamethodName(g, TM_NEWINDEX)
	case OP_UNM:
		return metamethodName(g, TM_UNM)
	case OP_BNOT:
		return metamethodName(g, TM_BNOT)
	case OP_LEN:
		return metamethodName(g, TM_LEN)
	case OP_CONCAT:
		return metamethodName(g, TM_CONCAT)
	case OP_EQ:
		return metamethodName(g, TM_EQ)
	case OP_LT:
		return metamethodName(g, TM_LT)
	case OP_LE:
		return metamethodName(g, TM_LE)
	default:
		if tm, ok := arithTM(op); ok {
			return metamethodName(g, tm)
		}
		return "", "", nil
	}
}

func metamethodName(g GlobalState, tm TMS) (string, string, error) {
	name, err := getstr(g.TMName[tm])
	if err != nil {
		return "", "", err
	}
	return "metamethod", name, nil
}

// getfuncname mirrors getfuncname(): best-effort name for the function
// that is executing inside the given CallInfo, inferred from its caller.
func getfuncname(g GlobalState, ci *RemoteCallInfo) (string, string, error) {
	if ci == nil {
		return "", "", nil
	}
	if ci.CI.IsFinalizer() {
		return "metamethod", "__gc", nil
	}
	prev, err := ci.CI.Previous.Deref()
	if err != nil {
		return "", "", err
	}
	if !ci.CI.IsTailCall() && prev.IsLua() {
		return funcnamefromcode(g, prev)
	}
	return "", "", nil
}
