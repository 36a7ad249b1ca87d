package debugger

import (
	"encoding/binary"

	"github.com/9chu/lperf/pkg/lperferr"
)

// wordSize is sizeof(Word) in the grounding source (size_t on x86_64).
const wordSize = 8

// ReadWord reads one machine word from the tracee's address space via
// PTRACE_PEEKDATA. Mirrors Debugger::Read.
func (c *Controller) ReadWord(address uintptr) (uint64, error) {
	if c.status != Paused {
		return 0, lperferr.NewInvalidCall("invalid call on process %d: not paused", c.pid)
	}

	var buf [wordSize]byte
	if _, err := ptracePeekData(c.pid, address, buf[:]); err != nil {
		return 0, lperferr.NewApiError("read data", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadByte reads a single byte, taking the low byte of a word read.
// Mirrors Debugger::ReadByte.
func (c *Controller) ReadByte(address uintptr) (byte, error) {
	w, err := c.ReadWord(address)
	if err != nil {
		return 0, err
	}
	return byte(w), nil
}

// ReadString reads a NUL-terminated string, up to maxlen bytes, one word
// at a time. Mirrors Debugger::ReadString.
func (c *Controller) ReadString(address uintptr, maxlen int) (string, error) {
	buf := make([]byte, 0, 128)
	for offset := 0; offset < maxlen; offset += wordSize {
		w, err := c.ReadWord(address + uintptr(offset))
		if err != nil {
			return "", err
		}
		var word [wordSize]byte
		binary.LittleEndian.PutUint64(word[:], w)
		for _, ch := range word {
			if ch == 0 {
				return string(buf), nil
			}
			buf = append(buf, ch)
			if len(buf) >= maxlen {
				return string(buf[:maxlen]), nil
			}
		}
	}
	if len(buf) > maxlen {
		buf = buf[:maxlen]
	}
	return string(buf), nil
}

// ReadBytes reads count bytes into a fresh slice, rounded down to a whole
// number of words as Debugger::ReadBytes does; the returned slice's length
// is the number of bytes actually read.
func (c *Controller) ReadBytes(address uintptr, count int) ([]byte, error) {
	if count%wordSize != 0 {
		count -= count % wordSize
	}
	buf := make([]byte, count)
	for offset := 0; offset < count; offset += wordSize {
		w, err := c.ReadWord(address + uintptr(offset))
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(buf[offset:offset+wordSize], w)
	}
	return buf, nil
}

// WriteWord writes one machine word via PTRACE_POKEDATA. Mirrors
// Debugger::Write.
func (c *Controller) WriteWord(address uintptr, data uint64) error {
	if c.status != Paused {
		return lperferr.NewInvalidCall("invalid call on process %d: not paused", c.pid)
	}

	var buf [wordSize]byte
	binary.LittleEndian.PutUint64(buf[:], data)
	if _, err := ptracePokeData(c.pid, address, buf[:]); err != nil {
		return lperferr.NewApiError("poke data", err)
	}
	return nil
}

// WriteByte patches a single byte, read-modify-write over the containing
// word. Mirrors Debugger::WriteByte.
func (c *Controller) WriteByte(address uintptr, data byte) error {
	w, err := c.ReadWord(address)
	if err != nil {
		return err
	}
	w = (w &^ 0xFF) | uint64(data)
	return c.WriteWord(address, w)
}
