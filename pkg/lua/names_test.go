package lua

import (
	"testing"
	"unsafe"

	"github.com/9chu/lperf/pkg/remote"
)

// sparseMemory is a fakeMemory backing arbitrary sparse addresses, used
// to lay out a Proto plus its satellite arrays (code, constants, locals)
// at whatever addresses putStruct/putBytes choose, without needing a
// single contiguous buffer sized to the highest address used.
type sparseMemory struct {
	bytes map[uintptr]byte
}

func newSparseMemory() *sparseMemory { return &sparseMemory{bytes: map[uintptr]byte{}} }

func (m *sparseMemory) ReadBytes(address uintptr, count int) ([]byte, error) {
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		out[i] = m.bytes[address+uintptr(i)]
	}
	return out, nil
}

func (m *sparseMemory) ReadString(address uintptr, maxlen int) (string, error) {
	var buf []byte
	for i := 0; i < maxlen; i++ {
		b := m.bytes[address+uintptr(i)]
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func (m *sparseMemory) putBytes(address uintptr, data []byte) {
	for i, b := range data {
		m.bytes[address+uintptr(i)] = b
	}
}

// putStruct copies v's in-memory representation verbatim into the fake
// address space, relying on the fact that ReadStruct[T] does the same
// raw byte copy in reverse — so a value built this way round-trips
// exactly through the real decode path under test.
func putStruct[T any](m *sparseMemory, address uintptr, v T) {
	size := unsafe.Sizeof(v)
	src := unsafe.Slice((*byte)(unsafe.Pointer(&v)), int(size))
	m.putBytes(address, src)
}

func putInstructions(m *sparseMemory, address uintptr, code []uint32) {
	for i, inst := range code {
		putStruct(m, address+uintptr(i)*4, inst)
	}
}

func putString(m *sparseMemory, address uintptr, s string) remote.RemotePtr[TString] {
	hdr := TString{ShrLen: uint8(len(s))}
	putStruct(m, address, hdr)
	m.putBytes(address+utStringSize, append([]byte(s), 0))
	return remote.Ptr[TString](address)
}

// layout reserves non-overlapping regions in the fake address space for
// a Proto's satellite arrays, well clear of the Proto struct itself.
const (
	protoAddr    = 0x1000
	codeAddr     = 0x2000
	constAddr    = 0x3000
	locVarAddr   = 0x4000
	upvalAddr    = 0x5000
	stringAddr   = 0x6000
)

func TestFindSetRegLocalMove(t *testing.T) {
	mem := newSparseMemory()

	code := []uint32{
		encodeABC(OP_MOVE, 1, 0, 0), // R(1) := R(0)
		encodeABC(OP_CALL, 1, 1, 1),
	}
	putInstructions(mem, codeAddr, code)

	proto := Proto{
		SizeCode: int32(len(code)),
		Code:     remote.Ptr[uint32](codeAddr),
	}
	putStruct(mem, protoAddr, proto)

	acc := remote.NewAccessor(mem)
	defer remote.Install(acc)()

	got, err := findsetreg(proto, 2, 1)
	if err != nil {
		t.Fatalf("findsetreg: %v", err)
	}
	if got != 0 {
		t.Errorf("findsetreg = %d, want 0 (the OP_MOVE instruction)", got)
	}
}

func TestFindSetRegSkipsConditionalJump(t *testing.T) {
	mem := newSparseMemory()

	// pc0: JMP forward over pc1, so pc1's MOVE into R(1) is conditional
	// and must not be reported as the setter.
	code := []uint32{
		encodeABx(OP_JMP, 0, MaxArgSBx+1), // jump to pc2
		encodeABC(OP_MOVE, 1, 0, 0),
	}
	putInstructions(mem, codeAddr, code)

	proto := Proto{SizeCode: int32(len(code)), Code: remote.Ptr[uint32](codeAddr)}
	putStruct(mem, protoAddr, proto)

	acc := remote.NewAccessor(mem)
	defer remote.Install(acc)()

	got, err := findsetreg(proto, 2, 1)
	if err != nil {
		t.Fatalf("findsetreg: %v", err)
	}
	if got != -1 {
		t.Errorf("findsetreg = %d, want -1 (instruction is inside a forward jump)", got)
	}
}

func TestGetObjNameGlobal(t *testing.T) {
	mem := newSparseMemory()

	envStr := putString(mem, stringAddr, "_ENV")
	keyStr := putString(mem, stringAddr+0x100, "print")

	// K[0] = "print" (as a string constant, used for the field name).
	constants := []TValue{{Value: Value(keyStr.Address), Tt: int32(MarkAsCollectableType(LUA_TSHRSTR))}}
	putStruct(mem, constAddr, constants[0])

	upvals := []Upvaldesc{{Name: envStr}}
	putStruct(mem, upvalAddr, upvals[0])

	code := []uint32{
		encodeABC(OP_GETTABUP, 0, 0, IndexK(0)|BitRK), // R(0) := Upvalue[0]["print"]
		encodeABC(OP_CALL, 0, 1, 1),
	}
	putInstructions(mem, codeAddr, code)

	proto := Proto{
		SizeCode:     int32(len(code)),
		Code:         remote.Ptr[uint32](codeAddr),
		K:            remote.Ptr[TValue](constAddr),
		SizeK:        1,
		Upvalues:     remote.Ptr[Upvaldesc](upvalAddr),
		SizeUpvalues: 1,
	}
	putStruct(mem, protoAddr, proto)

	acc := remote.NewAccessor(mem)
	defer remote.Install(acc)()

	what, name, err := getobjname(proto, 1, 0)
	if err != nil {
		t.Fatalf("getobjname: %v", err)
	}
	if what != "global" {
		t.Errorf("what = %q, want global", what)
	}
	if name != "print" {
		t.Errorf("name = %q, want print", name)
	}
}

func TestShrStringTValueIsString(t *testing.T) {
	tv := TValue{Tt: int32(MarkAsCollectableType(LUA_TSHRSTR))}
	if !tv.IsString() {
		t.Error("expected short string TValue to report IsString")
	}
	if !tv.IsShrString() {
		t.Error("expected short string TValue to report IsShrString")
	}
}
