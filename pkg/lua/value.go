package lua

import (
	"math"

	"github.com/9chu/lperf/pkg/remote"
)

// Value is the raw 8-byte payload of a Lua TValue — a union in the
// grounding source of {gc pointer, light userdata pointer, bool, light C
// function pointer, integer, float}. Interpretation depends on the
// TValue's tt_ tag, so Value exposes one accessor per interpretation
// rather than trying to model the union directly (Go has none).
type Value uint64

// GC reinterprets the value as a collectable-object pointer.
func (v Value) GC() remote.RemotePtr[GCObject] { return remote.Ptr[GCObject](uintptr(v)) }

// Pointer reinterprets the value as a light userdata / light C function
// address.
func (v Value) Pointer() uintptr { return uintptr(v) }

// Bool reinterprets the value as a Lua boolean.
func (v Value) Bool() bool { return v != 0 }

// Integer reinterprets the value as a Lua integer.
func (v Value) Integer() int64 { return int64(v) }

// Number reinterprets the value as a Lua float.
func (v Value) Number() float64 { return math.Float64frombits(uint64(v)) }

// TValue is Lua's tagged value: an 8-byte Value payload plus a 4-byte type
// tag (the struct pads to 16 bytes on x86_64, same as the grounding
// source's lua_TValue, since Value's alignment is 8).
type TValue struct {
	Value Value
	Tt    int32
}

func (t TValue) typeTag() int { return int(t.Tt) & 0x3F }
func (t TValue) baseTag() int { return int(t.Tt) & 0x0F }

func (t TValue) GetTypeTag() int          { return t.typeTag() }
func (t TValue) GetTypeTagNoVariant() int { return t.baseTag() }
func (t TValue) IsNumber() bool           { return t.baseTag() == LUA_TNUMBER }
func (t TValue) IsFloat() bool            { return t.typeTag() == LUA_TNUMFLT }
func (t TValue) IsInteger() bool          { return t.typeTag() == LUA_TNUMINT }
func (t TValue) IsNil() bool              { return t.typeTag() == LUA_TNIL }
func (t TValue) IsBoolean() bool          { return t.typeTag() == LUA_TBOOLEAN }
func (t TValue) IsLightUserData() bool    { return t.typeTag() == LUA_TLIGHTUSERDATA }
func (t TValue) IsString() bool           { return t.baseTag() == LUA_TSTRING }
func (t TValue) IsShrString() bool        { return int(t.Tt) == MarkAsCollectableType(LUA_TSHRSTR) }
func (t TValue) IsLngString() bool        { return int(t.Tt) == MarkAsCollectableType(LUA_TLNGSTR) }
func (t TValue) IsTable() bool            { return int(t.Tt) == MarkAsCollectableType(LUA_TTABLE) }
func (t TValue) IsFunction() bool         { return t.baseTag() == LUA_TFUNCTION }
func (t TValue) IsClosure() bool          { return int(t.Tt)&0x1F == LUA_TFUNCTION }
func (t TValue) IsCClosure() bool         { return int(t.Tt) == MarkAsCollectableType(LUA_TCCL) }
func (t TValue) IsLClosure() bool         { return int(t.Tt) == MarkAsCollectableType(LUA_TLCL) }
func (t TValue) IsLightCFunction() bool   { return t.typeTag() == LUA_TLCF }
func (t TValue) IsFullUserData() bool     { return int(t.Tt) == MarkAsCollectableType(LUA_TUSERDATA) }
func (t TValue) IsThread() bool           { return int(t.Tt) == MarkAsCollectableType(LUA_TTHREAD) }
