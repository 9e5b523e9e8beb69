// Package loader provides ELF binary loading for x86 and x86-64 executables.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

func (f SegmentFlags) String() string {
	b := []byte("---")
	if f&SegmentFlagRead != 0 {
		b[0] = 'r'
	}
	if f&SegmentFlagWrite != 0 {
		b[1] = 'w'
	}
	if f&SegmentFlagExecute != 0 {
		b[2] = 'x'
	}

	return string(b)
}

// ErrNoSegment is returned when no segment contains an address.
var ErrNoSegment = errors.New("address is not in a loaded segment")

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
	// Bitness is the code size the segment is decoded with: 32 or 64.
	Bitness int
}

// IsExecutable reports whether the segment holds code.
func (s *Segment) IsExecutable() bool {
	return s.Flags&SegmentFlagExecute != 0
}

// Contains reports whether addr falls inside the file-backed part of the
// segment.
func (s *Segment) Contains(addr uint64) bool {
	return addr >= s.VirtAddr && addr-s.VirtAddr < uint64(len(s.Data))
}

// End returns the address just past the file-backed bytes.
func (s *Segment) End() uint64 {
	return s.VirtAddr + uint64(len(s.Data))
}

// Program represents a loaded ELF program ready for disassembly.
type Program struct {
	// EntryPoint is the virtual address where execution begins.
	EntryPoint uint64
	// Bitness is 32 for i386 and 64 for x86-64 executables.
	Bitness int
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
}

// ExecutableSegments returns the segments that hold code, in file order.
func (p *Program) ExecutableSegments() []Segment {
	var segs []Segment

	for _, seg := range p.Segments {
		if seg.IsExecutable() {
			segs = append(segs, seg)
		}
	}

	return segs
}

// SegmentAt returns the segment whose file-backed bytes contain addr.
func (p *Program) SegmentAt(addr uint64) (*Segment, error) {
	for i := range p.Segments {
		if p.Segments[i].Contains(addr) {
			return &p.Segments[i], nil
		}
	}

	return nil, fmt.Errorf("0x%x: %w", addr, ErrNoSegment)
}

// Load parses an i386 or x86-64 ELF binary and returns its loadable
// segments.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	bitness, err := bitnessOf(f)
	if err != nil {
		return nil, err
	}

	prog := &Program{
		EntryPoint: f.Entry,
		Bitness:    bitness,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    segmentFlags(phdr.Flags),
			Bitness:  bitness,
		})
	}

	return prog, nil
}

// bitnessOf validates the class and machine pair. x32 objects
// (ELFCLASS32 with EM_X86_64) run 64-bit code.
func bitnessOf(f *elf.File) (int, error) {
	switch f.Machine {
	case elf.EM_386:
		if f.Class != elf.ELFCLASS32 {
			return 0, fmt.Errorf("i386 ELF file must be 32-bit (class: %v)", f.Class)
		}

		return 32, nil
	case elf.EM_X86_64:
		return 64, nil
	}

	return 0, fmt.Errorf("not an x86 ELF file (machine type: %v)", f.Machine)
}

func segmentFlags(pf elf.ProgFlag) SegmentFlags {
	var flags SegmentFlags
	if pf&elf.PF_X != 0 {
		flags |= SegmentFlagExecute
	}
	if pf&elf.PF_W != 0 {
		flags |= SegmentFlagWrite
	}
	if pf&elf.PF_R != 0 {
		flags |= SegmentFlagRead
	}

	return flags
}
