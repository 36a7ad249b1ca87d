package lua

import "github.com/9chu/lperf/pkg/remote"

// GCObject is the common header shared by every collectable object
// (strings, tables, closures, userdata, threads, prototypes).
type GCObject struct {
	Next   remote.RemotePtr[GCObject]
	Tt     uint8
	Marked uint8
}

func (g GCObject) typeTag() int { return int(g.Tt) & 0x3F }

// The GC header's tt never carries the collectable bit (that only ever
// appears in a TValue's tt_) so these compare against the plain tags,
// unlike TValue's IsTable/IsLClosure/IsCClosure.
func (g GCObject) IsTable() bool    { return g.typeTag() == LUA_TTABLE }
func (g GCObject) IsLClosure() bool { return g.typeTag() == LUA_TLCL }
func (g GCObject) IsCClosure() bool { return g.typeTag() == LUA_TCCL }
func (g GCObject) IsString() bool   { return int(g.Tt)&0x0F == LUA_TSTRING }

// TString is a Lua string object's header; its payload bytes follow
// immediately after a max-alignment-padded UTString union (see getstr).
type TString struct {
	Next    remote.RemotePtr[GCObject]
	Tt      uint8
	Marked  uint8
	Extra   uint8
	ShrLen  uint8
	Hash    uint32
	LngLen  uint64 // union with Hnext; only meaningful for long strings
}

// utStringSize is sizeof(UTString) in the grounding source: a union of
// TString (next(8)+tt/marked/extra/shrlen(4)+hash(4)+u(8) = 24 bytes) with
// L_Umaxalign, whose widest member on x86_64 is 8 bytes — already a
// divisor of 24, so the union's size is exactly TString's size.
const utStringSize = 24

type stringtable struct {
	Hash remote.RemotePtr[remote.RemotePtr[TString]]
	Nuse int32
	Size int32
}

type tKeyNode struct {
	Value Value
	Tt    int32
	Next  int32
}

type Node struct {
	IVal TValue
	IKey tKeyNode
}

type Table struct {
	Next        remote.RemotePtr[GCObject]
	Tt          uint8
	Marked      uint8
	Flags       uint8
	LSizeNode   uint8
	SizeArray   uint32
	Array       remote.RemotePtr[TValue]
	NodeArr     remote.RemotePtr[Node]
	LastFree    remote.RemotePtr[Node]
	Metatable   remote.RemotePtr[Table]
	GCList      remote.RemotePtr[GCObject]
}

type Udata struct {
	Next      remote.RemotePtr[GCObject]
	Tt        uint8
	Marked    uint8
	Ttuv      uint8
	Metatable remote.RemotePtr[Table]
	Len       uint64
	User      Value
}

// CClosure is a native (C) function closure. The flexible upvalue array
// that follows it in the grounding source is not modeled: this profiler
// never reconstructs upvalue/argument values (spec Non-goals), only
// prototype identity and names.
type CClosure struct {
	Next      remote.RemotePtr[GCObject]
	Tt        uint8
	Marked    uint8
	Nupvalues uint8
	GCList    remote.RemotePtr[GCObject]
	F         uintptr // lua_CFunction, address only
}

type upValInner struct {
	Next    remote.RemotePtr[UpVal]
	Touched int32
}

type UpVal struct {
	V        remote.RemotePtr[TValue]
	RefCount uint64
	Open     upValInner
}

// LClosure is a Lua function closure. As with CClosure, the trailing
// upvals array is intentionally not modeled.
type LClosure struct {
	Next      remote.RemotePtr[GCObject]
	Tt        uint8
	Marked    uint8
	Nupvalues uint8
	GCList    remote.RemotePtr[GCObject]
	P         remote.RemotePtr[Proto]
}

type Upvaldesc struct {
	Name    remote.RemotePtr[TString]
	InStack uint8
	Idx     uint8
}

type LocVar struct {
	VarName remote.RemotePtr[TString]
	StartPC int32
	EndPC   int32
}

// Proto is a compiled Lua function prototype: bytecode, constants, nested
// prototypes and full debug information.
type Proto struct {
	Next            remote.RemotePtr[GCObject]
	Tt              uint8
	Marked          uint8
	NumParams       uint8
	IsVararg        uint8
	MaxStackSize    uint8
	SizeUpvalues    int32
	SizeK           int32
	SizeCode        int32
	SizeLineInfo    int32
	SizeP           int32
	SizeLocVars     int32
	LineDefined     int32
	LastLineDefined int32
	K               remote.RemotePtr[TValue]
	Code            remote.RemotePtr[uint32]
	P               remote.RemotePtr[remote.RemotePtr[Proto]]
	LineInfo        remote.RemotePtr[int32]
	LocVars         remote.RemotePtr[LocVar]
	Upvalues        remote.RemotePtr[Upvaldesc]
	Cache           remote.RemotePtr[LClosure]
	Source          remote.RemotePtr[TString]
	GCList          remote.RemotePtr[GCObject]
}

// GlobalState carries the process-wide Lua interpreter state shared by
// every lua_State thread spawned from it. The walker reads only the
// tag-method name table (TMName); the fields before it are declared so
// that TMName lands at its real global_State offset.
type GlobalState struct {
	FRealloc     uintptr
	UD           uintptr
	TotalBytes   int64
	GCDebt       int64
	GCMemTrav    uint64
	GCEstimate   uint64
	Strt         stringtable
	LRegistry    TValue
	Seed         uint32
	CurrentWhite uint8
	GCState      uint8
	GCKind       uint8
	GCRunning    uint8
	AllGC        remote.RemotePtr[GCObject]
	SweepGC      remote.RemotePtr[remote.RemotePtr[GCObject]]
	FinObj       remote.RemotePtr[GCObject]
	Gray         remote.RemotePtr[GCObject]
	GrayAgain    remote.RemotePtr[GCObject]
	Weak         remote.RemotePtr[GCObject]
	Ephemeron    remote.RemotePtr[GCObject]
	AllWeak      remote.RemotePtr[GCObject]
	ToBeFnz      remote.RemotePtr[GCObject]
	FixedGC      remote.RemotePtr[GCObject]
	Twups        remote.RemotePtr[LuaState]
	GCFinNum     uint32
	GCPause      int32
	GCStepMul    int32
	Panic        uintptr
	MainThread   remote.RemotePtr[LuaState]
	Version      remote.RemotePtr[float64]
	MemErrMsg    remote.RemotePtr[TString]
	TMName       [TM_N]remote.RemotePtr[TString]
	MT           [LUA_NUMTAGS]remote.RemotePtr[Table]
}

// callInfoLua is the Lua-call variant of CallInfo's u union. The real
// union is sized by its C-call variant (k, old_errfunc, ctx — three
// pointers, 24 bytes), not by this 16-byte variant, so a trailing filler
// word is needed to keep every field after the union at its real offset.
type callInfoLua struct {
	Base    remote.RemotePtr[TValue]
	SavedPC remote.RemotePtr[uint32]
	_       uint64
}

// CallInfo is one activation-record node in the doubly-linked call chain
// rooted at lua_State.ci, terminating at lua_State.base_ci.
type CallInfo struct {
	Func       remote.RemotePtr[TValue]
	Top        remote.RemotePtr[TValue]
	Previous   remote.RemotePtr[CallInfo]
	Next       remote.RemotePtr[CallInfo]
	L          callInfoLua // the C-function union member is never consulted
	Extra      int64
	NResults   int16
	CallStatus uint16
}

func (ci CallInfo) IsLua() bool      { return ci.CallStatus&CIST_LUA != 0 }
func (ci CallInfo) IsHooked() bool   { return ci.CallStatus&CIST_HOOKED != 0 }
func (ci CallInfo) IsTailCall() bool { return ci.CallStatus&CIST_TAIL != 0 }
func (ci CallInfo) IsFinalizer() bool { return ci.CallStatus&CIST_FIN != 0 }

// LuaState is a Lua thread's header. base_ci is the call-chain's fixed
// sentinel: its remote address is always
// (address of this lua_State) + offsetof(LuaState, BaseCI).
type LuaState struct {
	Next       remote.RemotePtr[GCObject]
	Tt         uint8
	Marked     uint8
	NCI        uint16
	Status     uint8
	Top        remote.RemotePtr[TValue]
	G          remote.RemotePtr[GlobalState]
	CI         remote.RemotePtr[CallInfo]
	OldPC      remote.RemotePtr[uint32]
	StackLast  remote.RemotePtr[TValue]
	Stack      remote.RemotePtr[TValue]
	OpenUpVal  remote.RemotePtr[UpVal]
	GCList     remote.RemotePtr[GCObject]
	Twups      remote.RemotePtr[LuaState]
	ErrorJmp   uintptr
	BaseCI     CallInfo
	Hook       uintptr
	ErrFunc    int64
	StackSize  int32
	BaseHookCount int32
	HookCount  int32
	NNY        uint16
	NCCalls    uint16
	HookMask   int32
	AllowHook  uint8
}
