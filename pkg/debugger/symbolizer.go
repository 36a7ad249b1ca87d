package debugger

import (
	"bufio"
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/9chu/lperf/pkg/lperferr"
)

const symbolCacheSize = 4096

// Symbolizer resolves addresses in a foreign process's executable image to
// DWARF function names, and locates function entry points by name. It owns
// the ELF/DWARF readers built from the tracee's own /proc/<pid>/exe, and a
// bounded cache of address->name lookups since a DWARF DIE scan is not
// cheap and a sampling profiler repeats the same few addresses constantly.
// Grounded on Debugger::GetFunctionName / Debugger::CreateBreakpoint(name).
type Symbolizer struct {
	elfFile *elf.File
	dwarf   *dwarf.Data // nil if the binary carries no usable debug info

	addressOffset uintptr // load bias for a PIE image, 0 for a static one

	cache *lru.Cache

	log *logrus.Entry
}

func newSymbolizer(pid int, log *logrus.Entry) (*Symbolizer, error) {
	log = log.WithField("subsystem", "symbolizer")

	path := fmt.Sprintf("/proc/%d/exe", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, lperferr.NewApiError(fmt.Sprintf("open executable file %q", path), err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, lperferr.NewApiError(fmt.Sprintf("parse ELF file %q", path), err)
	}

	var dw *dwarf.Data
	dw, err = ef.DWARF()
	if err != nil {
		log.WithError(err).Warn("load dwarf error")
		dw = nil
	}

	cache, err := lru.New(symbolCacheSize)
	if err != nil {
		return nil, lperferr.NewApiError("create symbol cache", err)
	}

	s := &Symbolizer{
		elfFile: ef,
		dwarf:   dw,
		cache:   cache,
		log:     log,
	}

	if ef.Type == elf.ET_DYN {
		base, err := processBaseAddress(pid, path)
		if err != nil {
			return nil, err
		}
		s.addressOffset = base
	}

	return s, nil
}

// AddressOffset returns the load bias to add to a file-relative address to
// get a runtime virtual address (0 for non-PIE images).
func (s *Symbolizer) AddressOffset() uintptr { return s.addressOffset }

// processBaseAddress scans /proc/<pid>/maps for the executable mapping of
// the tracee's own binary and returns its start address. Grounded on
// Debugger::GetProcessBaseAddress (pmparser-based in the grounding source;
// here read directly since /proc/<pid>/maps is already line-oriented text).
func processBaseAddress(pid int, exePath string) (uintptr, error) {
	real, err := os.Readlink(exePath)
	if err != nil {
		return 0, lperferr.NewApiError(fmt.Sprintf("cannot get real path of process %d", pid), err)
	}

	mapsPath := fmt.Sprintf("/proc/%d/maps", pid)
	mf, err := os.Open(mapsPath)
	if err != nil {
		return 0, lperferr.NewApiError(fmt.Sprintf("cannot parse memory map of process %d", pid), err)
	}
	defer mf.Close()

	scanner := bufio.NewScanner(mf)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		perms := fields[1]
		pathname := fields[5]
		if pathname != real {
			continue
		}
		if !strings.Contains(perms, "x") {
			continue
		}
		addrRange := fields[0]
		startStr := strings.SplitN(addrRange, "-", 2)[0]
		start, err := strconv.ParseUint(startStr, 16, 64)
		if err != nil {
			continue
		}
		return uintptr(start), nil
	}
	return 0, lperferr.NewApiError(fmt.Sprintf("cannot get base address of process %d", pid), nil)
}

// lowHighPC extracts a subprogram DIE's [low, high) PC range, handling both
// DWARF high_pc encodings: an absolute address, or (DWARF4+) an offset from
// low_pc.
func lowHighPC(entry *dwarf.Entry) (low, high uint64, ok bool) {
	lowField := entry.Val(dwarf.AttrLowpc)
	lowAddr, isAddr := lowField.(uint64)
	if !isAddr {
		return 0, 0, false
	}

	highField := entry.AttrField(dwarf.AttrHighpc)
	if highField == nil {
		return lowAddr, lowAddr, true
	}
	switch highField.Class {
	case dwarf.ClassAddress:
		h, _ := highField.Val.(uint64)
		return lowAddr, h, true
	case dwarf.ClassConstant:
		off, _ := highField.Val.(int64)
		return lowAddr, lowAddr + uint64(off), true
	default:
		return lowAddr, lowAddr, true
	}
}

// FindFunctionEntry resolves name to a subprogram DIE and returns its entry
// address (runtime, with the PIE load bias applied), optionally skipping
// the compiler-generated prologue by advancing to the line table's second
// row for that function. Grounded on
// Debugger::CreateBreakpoint(const char* func, bool skipPrologue).
func (s *Symbolizer) FindFunctionEntry(name string, skipPrologue bool) (uintptr, error) {
	if s.dwarf == nil {
		return 0, lperferr.NewObjectNotFound("function %q not found: no debug info", name)
	}

	r := s.dwarf.Reader()
	var curCU *dwarf.Entry
	for {
		entry, err := r.Next()
		if err != nil {
			return 0, lperferr.NewApiError("read dwarf entries", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag == dwarf.TagCompileUnit {
			curCU = entry
			continue
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		fname, _ := entry.Val(dwarf.AttrName).(string)
		if fname != name {
			continue
		}

		low, _, ok := lowHighPC(entry)
		if !ok {
			continue
		}

		entryPC := low
		if skipPrologue && curCU != nil {
			if pc, err := s.skipPrologue(curCU, low); err == nil {
				entryPC = pc
			}
		}
		return uintptr(entryPC) + s.addressOffset, nil
	}
	return 0, lperferr.NewObjectNotFound("function %q not found", name)
}

// skipPrologue walks the line table of cu starting at low and returns the
// address of the row immediately following the one containing low —
// mirroring GetLineEntryFromPC followed by ++entry in the grounding source.
func (s *Symbolizer) skipPrologue(cu *dwarf.Entry, low uint64) (uint64, error) {
	lr, err := s.dwarf.LineReader(cu)
	if err != nil || lr == nil {
		return low, lperferr.NewObjectNotFound("cannot find line entry")
	}

	var entry dwarf.LineEntry
	if err := lr.SeekPC(low, &entry); err != nil {
		return low, lperferr.NewObjectNotFound("cannot find line entry")
	}
	if err := lr.Next(&entry); err != nil {
		return low, nil // no next row; fall back to the unskipped entry
	}
	return entry.Address, nil
}

// GetFunctionName resolves a runtime address to the enclosing function's
// name, or "" if no DWARF subprogram covers it. Results (including
// negative ones) are cached since a sampling run re-resolves the same
// handful of native addresses on every sample. Grounded on
// Debugger::GetFunctionName.
func (s *Symbolizer) GetFunctionName(address uintptr) (string, error) {
	fileAddr := uint64(address) - uint64(s.addressOffset)

	if v, ok := s.cache.Get(fileAddr); ok {
		return v.(string), nil
	}

	if s.dwarf == nil {
		s.cache.Add(fileAddr, "")
		return "", nil
	}

	r := s.dwarf.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return "", lperferr.NewApiError("read dwarf entries", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		low, high, ok := lowHighPC(entry)
		if !ok {
			continue
		}
		if fileAddr < low || fileAddr >= high {
			continue
		}
		name, _ := entry.Val(dwarf.AttrName).(string)
		s.cache.Add(fileAddr, name)
		return name, nil
	}

	s.cache.Add(fileAddr, "")
	return "", nil
}
