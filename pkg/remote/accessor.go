// Package remote implements the memory-access abstraction the Lua ABI
// mirror is built on: a word-aligned byte reader plus a generic typed
// pointer that dereferences through a process-wide installed accessor.
// Grounded on RemoteLuaWrapper.hpp's MemoryAccessorBase<Align> and
// RemotePtr<T>.
package remote

import (
	"sync"
	"unsafe"

	"github.com/9chu/lperf/pkg/lperferr"
)

// wordAlign matches Align = sizeof(size_t) in the grounding source's
// MemoryAccessorBase<Align> default.
const wordAlign = 8

// MemoryReader is the capability a process controller exposes to this
// package: raw word-aligned byte reads and NUL-terminated string reads.
// pkg/debugger.Controller satisfies this without pkg/remote importing it.
type MemoryReader interface {
	ReadBytes(address uintptr, count int) ([]byte, error)
	ReadString(address uintptr, maxlen int) (string, error)
}

// Accessor adapts a MemoryReader to the word-aligned, zero-filled typed
// reads RemotePtr[T].Deref needs.
type Accessor struct {
	reader MemoryReader
}

// NewAccessor wraps r.
func NewAccessor(r MemoryReader) *Accessor {
	return &Accessor{reader: r}
}

func roundDown(n uintptr) uintptr { return n &^ (wordAlign - 1) }
func roundUp(n uintptr) uintptr   { return (n + wordAlign - 1) &^ (wordAlign - 1) }

// ReadRaw fills out with bytes read starting at address.
func (a *Accessor) ReadRaw(address uintptr, out []byte) error {
	buf, err := a.reader.ReadBytes(address, len(out))
	if err != nil {
		return err
	}
	copy(out, buf)
	return nil
}

// ReadString reads a NUL-terminated string up to maxlen bytes.
func (a *Accessor) ReadString(address uintptr, maxlen int) (string, error) {
	return a.reader.ReadString(address, maxlen)
}

// ReadStruct reads sizeof(T) bytes at address — rounding the underlying
// read down/up to a word boundary exactly as
// MemoryAccessorBase<Align>::Read<T> does — and copies them into a fresh T.
// This is a function, not a method on Accessor, because Go methods cannot
// introduce a type parameter beyond their receiver's.
func ReadStruct[T any](a *Accessor, address uintptr) (T, error) {
	var out T
	size := unsafe.Sizeof(out)
	low := roundDown(address)
	high := roundUp(address + size)

	buf := make([]byte, high-low)
	if err := a.ReadRaw(low, buf); err != nil {
		return out, err
	}

	offset := address - low
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&out)), int(size))
	copy(dst, buf[offset:offset+size])
	return out, nil
}

var (
	mu      sync.Mutex
	current *Accessor
)

// Install sets the process-wide accessor used by RemotePtr[T].Deref and
// returns a function that restores whatever was installed before it —
// the Go equivalent of the grounding source's MemoryAccessorScope RAII
// guard (GetGlobalMemoryAccessor/SetGlobalMemoryAccessor).
func Install(a *Accessor) func() {
	mu.Lock()
	prev := current
	current = a
	mu.Unlock()
	return func() {
		mu.Lock()
		current = prev
		mu.Unlock()
	}
}

// Current returns the accessor installed by the innermost active Install
// scope, or nil if none is active.
func Current() *Accessor {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// errNoAccessor is returned by RemotePtr[T].Deref when no accessor scope
// is active, mirroring RemotePtr<T>::Read's "Memory accessor not set"
// InvalidCallException.
func errNoAccessor() error {
	return ErrNoAccessor()
}

// ErrNoAccessor reports that no Accessor is installed via Install. Callers
// outside this package (e.g. pkg/lua's getstr) use it to surface the same
// condition Deref does.
func ErrNoAccessor() error {
	return lperferr.NewInvalidCall("memory accessor not set")
}
