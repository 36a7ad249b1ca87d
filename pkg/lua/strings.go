package lua

import "github.com/9chu/lperf/pkg/remote"

// getstr reads the character payload of a TString, which lives
// immediately after the UTString-sized header rather than behind a
// pointer field — mirrors the getstr() macro.
func getstr(p remote.RemotePtr[TString]) (string, error) {
	ts, err := p.Deref()
	if err != nil {
		return "", err
	}
	length := int(ts.ShrLen)
	if ts.typeTag()&0xF0 == (1 << 4) { // LUA_TLNGSTR variant
		length = int(ts.LngLen)
	}
	acc := remote.Current()
	if acc == nil {
		return "", remote.ErrNoAccessor()
	}
	return acc.ReadString(p.Address+utStringSize, length+1)
}

func (t TString) typeTag() int { return int(t.Tt) & 0x3F }
