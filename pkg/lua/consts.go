// Package lua mirrors the internal structures of an embedded Lua 5.3
// runtime — lua_State, CallInfo, Proto, TValue and friends — as remote
// types dereferenced through pkg/remote, and reimplements lua_getstack /
// lua_getinfo / the luaG_* symbolic-execution name-recovery routines
// against that remote memory. Grounded on RemoteLuaWrapper.hpp/.cpp.
package lua

// TMS enumerates Lua's tag methods, in the exact order the reference
// implementation's global_State.tmname array is indexed by.
type TMS int

const (
	TM_INDEX TMS = iota
	TM_NEWINDEX
	TM_GC
	TM_MODE
	TM_LEN
	TM_EQ // last tag method with fast access
	TM_ADD
	TM_SUB
	TM_MUL
	TM_MOD
	TM_POW
	TM_DIV
	TM_IDIV
	TM_BAND
	TM_BOR
	TM_BXOR
	TM_SHL
	TM_SHR
	TM_UNM
	TM_BNOT
	TM_LT
	TM_LE
	TM_CONCAT
	TM_CALL
	TM_N // number of elements in the enum
)

const (
	LUA_NUMTAGS = 9
	STRCACHE_N  = 53
	STRCACHE_M  = 2
	LUA_IDSIZE  = 60
)

const (
	LUA_TNIL          = 0
	LUA_TBOOLEAN      = 1
	LUA_TLIGHTUSERDATA = 2
	LUA_TNUMBER       = 3
	LUA_TSTRING       = 4
	LUA_TTABLE        = 5
	LUA_TFUNCTION     = 6
	LUA_TUSERDATA     = 7
	LUA_TTHREAD       = 8
	LUA_TSHRSTR       = LUA_TSTRING | (0 << 4)
	LUA_TLNGSTR       = LUA_TSTRING | (1 << 4)
	LUA_TNUMFLT       = LUA_TNUMBER | (0 << 4)
	LUA_TNUMINT       = LUA_TNUMBER | (1 << 4)
	LUA_TLCL          = LUA_TFUNCTION | (0 << 4)
	LUA_TLCF          = LUA_TFUNCTION | (1 << 4)
	LUA_TCCL          = LUA_TFUNCTION | (2 << 4)
)

// MarkAsCollectableType sets the collectable bit (bit 6), matching every
// GC-header tt value and every collectable TValue's variant tag.
func MarkAsCollectableType(t int) int { return t | (1 << 6) }

const (
	CIST_LUA    = 1 << 1
	CIST_HOOKED = 1 << 2 // call is running a debug hook
	CIST_TAIL   = 1 << 5 // call was tail called
	CIST_FIN    = 1 << 8 // call is running a finalizer
)
