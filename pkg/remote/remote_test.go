package remote

import (
	"encoding/binary"
	"testing"
)

// fakeMemory implements MemoryReader over a flat byte slice, addresses
// being plain offsets into it.
type fakeMemory struct {
	data []byte
}

func (f *fakeMemory) ReadBytes(address uintptr, count int) ([]byte, error) {
	end := int(address) + count
	if end > len(f.data) {
		end = len(f.data)
	}
	buf := make([]byte, count)
	copy(buf, f.data[address:end])
	return buf, nil
}

func (f *fakeMemory) ReadString(address uintptr, maxlen int) (string, error) {
	end := int(address)
	for end < len(f.data) && end < int(address)+maxlen && f.data[end] != 0 {
		end++
	}
	return string(f.data[address:end]), nil
}

type testStruct struct {
	A uint64
	B uint32
}

func TestRoundDownUp(t *testing.T) {
	cases := []struct{ in, down, up uintptr }{
		{0, 0, 0},
		{1, 0, 8},
		{8, 8, 8},
		{9, 8, 16},
		{15, 8, 16},
	}
	for _, c := range cases {
		if got := roundDown(c.in); got != c.down {
			t.Errorf("roundDown(%d) = %d, want %d", c.in, got, c.down)
		}
		if got := roundUp(c.in); got != c.up {
			t.Errorf("roundUp(%d) = %d, want %d", c.in, got, c.up)
		}
	}
}

func TestReadStructUnaligned(t *testing.T) {
	// Place testStruct at an address not itself word-aligned, to exercise
	// the round-down/round-up path.
	buf := make([]byte, 64)
	offset := 3
	binary.LittleEndian.PutUint64(buf[offset:], 0xdeadbeefcafebabe)
	binary.LittleEndian.PutUint32(buf[offset+8:], 0x11223344)

	acc := NewAccessor(&fakeMemory{data: buf})
	got, err := ReadStruct[testStruct](acc, uintptr(offset))
	if err != nil {
		t.Fatalf("ReadStruct: %v", err)
	}
	if got.A != 0xdeadbeefcafebabe {
		t.Errorf("A = %#x, want %#x", got.A, uint64(0xdeadbeefcafebabe))
	}
	if got.B != 0x11223344 {
		t.Errorf("B = %#x, want %#x", got.B, uint32(0x11223344))
	}
}

func TestRemotePtrDerefNoAccessor(t *testing.T) {
	p := Ptr[testStruct](8)
	if _, err := p.Deref(); err == nil {
		t.Fatal("expected error with no accessor installed")
	}
}

func TestRemotePtrDerefNil(t *testing.T) {
	acc := NewAccessor(&fakeMemory{data: make([]byte, 32)})
	defer Install(acc)()

	p := Ptr[testStruct](0)
	if _, err := p.Deref(); err == nil {
		t.Fatal("expected error dereferencing a nil RemotePtr")
	}
}

func TestRemotePtrDerefAndInstallScoping(t *testing.T) {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[8:], 42)
	acc := NewAccessor(&fakeMemory{data: buf})

	if Current() != nil {
		t.Fatal("expected no accessor installed before first Install")
	}

	restore := Install(acc)
	if Current() != acc {
		t.Fatal("Current() did not return the installed accessor")
	}

	p := Ptr[testStruct](8)
	got, err := p.Deref()
	if err != nil {
		t.Fatalf("Deref: %v", err)
	}
	if got.A != 42 {
		t.Errorf("A = %d, want 42", got.A)
	}

	restore()
	if Current() != nil {
		t.Fatal("expected accessor to be cleared after restore")
	}
}

func TestCastTo(t *testing.T) {
	p := Ptr[testStruct](0x1000)
	q := CastTo[uint64](p)
	if q.Address != p.Address {
		t.Errorf("CastTo changed address: %#x vs %#x", q.Address, p.Address)
	}
}

func TestRemotePtrString(t *testing.T) {
	p := Ptr[testStruct](0xabc)
	if got, want := p.String(), "0x0000000000000abc"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFakeMemoryReadString(t *testing.T) {
	data := append([]byte("hello"), 0, 'x')
	f := &fakeMemory{data: data}
	s, err := f.ReadString(0, 512)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Errorf("ReadString = %q, want %q", s, "hello")
	}
}
