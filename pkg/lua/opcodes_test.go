package lua

import "testing"

func encodeABC(op OpCode, a, b, c int) uint32 {
	return uint32(op) | uint32(a)<<PosA | uint32(b)<<PosB | uint32(c)<<PosC
}

func encodeABx(op OpCode, a, bx int) uint32 {
	return uint32(op) | uint32(a)<<PosA | uint32(bx)<<PosBx
}

func TestGetOpCodeRoundTrip(t *testing.T) {
	for op := OP_MOVE; op <= OP_EXTRAARG; op++ {
		inst := encodeABC(op, 1, 2, 3)
		if got := GetOpCode(inst); got != op {
			t.Errorf("GetOpCode(%#x) = %v, want %v", inst, got, op)
		}
	}
}

func TestGetArgFields(t *testing.T) {
	inst := encodeABC(OP_ADD, 5, 10, 200)
	if GetArgA(inst) != 5 {
		t.Errorf("A = %d, want 5", GetArgA(inst))
	}
	if GetArgB(inst) != 10 {
		t.Errorf("B = %d, want 10", GetArgB(inst))
	}
	if GetArgC(inst) != 200 {
		t.Errorf("C = %d, want 200", GetArgC(inst))
	}
}

func TestGetArgBx(t *testing.T) {
	inst := encodeABx(OP_LOADK, 3, 12345)
	if got := GetArgBx(inst); got != 12345 {
		t.Errorf("Bx = %d, want 12345", got)
	}
}

func TestGetArgSBx(t *testing.T) {
	inst := encodeABx(OP_JMP, 0, MaxArgSBx+7)
	if got := GetArgSBx(inst); got != 7 {
		t.Errorf("sBx = %d, want 7", got)
	}
	inst = encodeABx(OP_JMP, 0, MaxArgSBx-7)
	if got := GetArgSBx(inst); got != -7 {
		t.Errorf("sBx = %d, want -7", got)
	}
}

func TestIsKIndexK(t *testing.T) {
	k := IndexK(5) | BitRK
	if !IsK(k) {
		t.Fatal("expected IsK true")
	}
	if IndexK(k) != 5 {
		t.Errorf("IndexK = %d, want 5", IndexK(k))
	}
	if IsK(5) {
		t.Fatal("expected IsK false for a plain register operand")
	}
}

func TestTestAMode(t *testing.T) {
	if !testAMode(OP_MOVE) {
		t.Error("OP_MOVE should set register A")
	}
	if testAMode(OP_JMP) {
		t.Error("OP_JMP should not set register A")
	}
}

func TestOpCodeString(t *testing.T) {
	if OP_CALL.String() != "CALL" {
		t.Errorf("String() = %q, want CALL", OP_CALL.String())
	}
	if OpCode(999).String() != "OP_INVALID" {
		t.Errorf("unexpected string for out-of-range opcode")
	}
}
