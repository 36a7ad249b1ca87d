package remote

import (
	"fmt"

	"github.com/9chu/lperf/pkg/lperferr"
)

// RemotePtr is a (target virtual address, Go type) pair standing in for a
// pointer into a foreign process's address space. It carries no data of
// its own; dereferencing goes through the currently installed Accessor.
// Grounded on RemoteLuaWrapper.hpp's RemotePtr<T> template.
type RemotePtr[T any] struct {
	Address uintptr
}

// Ptr constructs a RemotePtr[T] at the given remote address.
func Ptr[T any](address uintptr) RemotePtr[T] {
	return RemotePtr[T]{Address: address}
}

// IsNil reports whether this pointer is the null pointer.
func (p RemotePtr[T]) IsNil() bool { return p.Address == 0 }

// Deref reads the pointee out of the target process through the currently
// installed Accessor. Mirrors RemotePtr<T>::Read, which throws
// InvalidCallException for either a missing accessor or a null pointer.
func (p RemotePtr[T]) Deref() (T, error) {
	var zero T
	acc := Current()
	if acc == nil {
		return zero, errNoAccessor()
	}
	if p.IsNil() {
		return zero, lperferr.NewInvalidCall("object pointer is null")
	}
	return ReadStruct[T](acc, p.Address)
}

// String renders the pointer the way the grounding source's
// RemotePtr<T>::ToString does: a zero-padded 16-hex-digit address.
func (p RemotePtr[T]) String() string {
	return fmt.Sprintf("0x%016x", p.Address)
}

// CastTo reinterprets a remote pointer as pointing to a P instead of a T,
// keeping the same address. A free function rather than a method, since a
// RemotePtr[T] method cannot introduce the additional type parameter P.
func CastTo[P any, T any](p RemotePtr[T]) RemotePtr[P] {
	return RemotePtr[P]{Address: p.Address}
}
