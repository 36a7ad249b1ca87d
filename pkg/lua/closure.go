package lua

import "github.com/9chu/lperf/pkg/remote"

// ClosureInfo is the Go stand-in for the grounding source's Closure union
// (CClosure/LClosure share a common GCObject header at the same address;
// which variant is live is decided by the tag). IsC reports which of C/L
// holds the meaningful data.
type ClosureInfo struct {
	IsC bool
	C   CClosure
	L   LClosure
}

// IsCClosureTag mirrors noLuaClosure's closure->c.tt == LUA_TCCL check.
func (c ClosureInfo) IsCClosureTag() bool { return c.IsC }

// derefClosure reads the GCObject header at addr to discover the real
// type, then re-reads the full CClosure or LClosure at the same address.
func derefClosure(addr remote.RemotePtr[GCObject]) (ClosureInfo, error) {
	hdr, err := addr.Deref()
	if err != nil {
		return ClosureInfo{}, err
	}
	switch hdr.typeTag() {
	case LUA_TCCL: // GC header tt never carries the collectable bit
		c, err := remote.CastTo[CClosure](addr).Deref()
		if err != nil {
			return ClosureInfo{}, err
		}
		return ClosureInfo{IsC: true, C: c}, nil
	default: // LUA_TLCL
		l, err := remote.CastTo[LClosure](addr).Deref()
		if err != nil {
			return ClosureInfo{}, err
		}
		return ClosureInfo{IsC: false, L: l}, nil
	}
}

// noLuaClosure mirrors noLuaClosure(): true when there is no closure, or
// the closure is a native (C) one.
func noLuaClosure(closure *ClosureInfo) bool {
	return closure == nil || closure.IsC
}
