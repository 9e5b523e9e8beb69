// Package info computes the data flow of decoded instructions: which
// registers and memory locations an instruction reads and writes, the
// access of each operand, and its RFLAGS usage.
//
// A Factory keeps one reusable output buffer. The InstructionInfo returned
// by Info is only valid until the next call on the same Factory.
//
//	f := info.NewFactory()
//	for inst := range d.Instructions() {
//		for _, ur := range f.Info(&inst).UsedRegisters() {
//			fmt.Println(ur)
//		}
//	}
package info

import (
	"fmt"
	"slices"

	"github.com/sarchlab/x86dec/insts"
)

// OpAccess is how an instruction accesses a register, memory location or
// operand.
type OpAccess uint8

// Operand accesses.
const (
	// None means the operand is not accessed (immediates of some forms,
	// operands cancelled by a self-zeroing idiom).
	None OpAccess = iota
	// Read means the value is read.
	Read
	// CondRead means the value may be read.
	CondRead
	// Write means the value is written.
	Write
	// CondWrite means the value may be written.
	CondWrite
	// ReadWrite means the value is read and written.
	ReadWrite
	// ReadCondWrite means the value is read and may be written.
	ReadCondWrite
	// NoMemAccess means the memory operand only computes an address.
	NoMemAccess

	opAccessCount
)

var opAccessNames = [opAccessCount]string{
	"None", "Read", "CondRead", "Write", "CondWrite", "ReadWrite", "ReadCondWrite", "NoMemAccess",
}

func (a OpAccess) String() string {
	if a >= opAccessCount {
		return fmt.Sprintf("OpAccess(%d)", uint8(a))
	}

	return opAccessNames[a]
}

// Reads reports whether a includes a possible read.
func (a OpAccess) Reads() bool {
	switch a {
	case Read, CondRead, ReadWrite, ReadCondWrite:
		return true
	}

	return false
}

// Writes reports whether a includes a possible write.
func (a OpAccess) Writes() bool {
	switch a {
	case Write, CondWrite, ReadWrite, ReadCondWrite:
		return true
	}

	return false
}

// conditional turns every part of a into its conditional form.
func (a OpAccess) conditional() OpAccess {
	switch a {
	case Read:
		return CondRead
	case Write:
		return CondWrite
	case ReadWrite:
		return ReadCondWrite
	}

	return a
}

// UsedRegister is one register access.
type UsedRegister struct {
	Register insts.Register
	Access   OpAccess
}

func (u UsedRegister) String() string {
	return fmt.Sprintf("%s:%s", u.Register, u.Access)
}

// UsedMemory is one memory access. IP-relative operands have no base or
// index; Displacement then holds the absolute address.
type UsedMemory struct {
	Segment      insts.Register
	Base         insts.Register
	Index        insts.Register
	Scale        int
	Displacement uint64
	MemorySize   insts.MemorySize
	Access       OpAccess

	// AddressSize is the effective address size in bytes.
	AddressSize int

	// VSIBSize is the size in bytes of one VSIB index element, or 0.
	VSIBSize int
}

func (u UsedMemory) String() string {
	s := "["
	if u.Segment != insts.RegisterNone {
		s += u.Segment.String() + ":"
	}

	sep := ""
	if u.Base != insts.RegisterNone {
		s += u.Base.String()
		sep = "+"
	}

	if u.Index != insts.RegisterNone {
		s += fmt.Sprintf("%s%s*%d", sep, u.Index, u.Scale)
		sep = "+"
	}

	if u.Displacement != 0 || sep == "" {
		s += fmt.Sprintf("%s0x%X", sep, u.Displacement)
	}

	return fmt.Sprintf("%s];%s;%s", s, u.MemorySize, u.Access)
}

// Options select what the factory computes.
type Options uint8

// Factory options.
const (
	OptionNone Options = 0
	// OptionNoMemoryUsage skips UsedMemory.
	OptionNoMemoryUsage Options = 1 << iota
	// OptionNoRegisterUsage skips UsedRegisters.
	OptionNoRegisterUsage
)

// InstructionInfo is the data flow of one instruction.
type InstructionInfo struct {
	usedRegisters []UsedRegister
	usedMemory    []UsedMemory
	opAccesses    [5]OpAccess
	opCount       int
	rflags        insts.Rflags
}

// UsedRegisters returns every register the instruction accesses. The
// slice is reused by the next call on the factory.
func (i *InstructionInfo) UsedRegisters() []UsedRegister { return i.usedRegisters }

// UsedMemory returns every memory location the instruction accesses. The
// slice is reused by the next call on the factory.
func (i *InstructionInfo) UsedMemory() []UsedMemory { return i.usedMemory }

// OpAccess returns the access of operand n. It panics if n is out of range.
func (i *InstructionInfo) OpAccess(n int) OpAccess {
	a, err := i.TryOpAccess(n)
	if err != nil {
		panic(err)
	}

	return a
}

// TryOpAccess returns the access of operand n.
func (i *InstructionInfo) TryOpAccess(n int) (OpAccess, error) {
	if n < 0 || n >= len(i.opAccesses) {
		return None, fmt.Errorf("%w: %d", insts.ErrInvalidOperandIndex, n)
	}

	return i.opAccesses[n], nil
}

// OpAccesses returns the accesses of all operands.
func (i *InstructionInfo) OpAccesses() []OpAccess {
	return append([]OpAccess(nil), i.opAccesses[:i.opCount]...)
}

// RflagsRead returns the RFLAGS bits read.
func (i *InstructionInfo) RflagsRead() uint32 { return i.rflags.Read }

// RflagsWritten returns the RFLAGS bits written with a computed value.
func (i *InstructionInfo) RflagsWritten() uint32 { return i.rflags.Written }

// RflagsCleared returns the RFLAGS bits always cleared.
func (i *InstructionInfo) RflagsCleared() uint32 { return i.rflags.Cleared }

// RflagsSet returns the RFLAGS bits always set.
func (i *InstructionInfo) RflagsSet() uint32 { return i.rflags.Set }

// RflagsUndefined returns the RFLAGS bits left undefined.
func (i *InstructionInfo) RflagsUndefined() uint32 { return i.rflags.Undefined }

// RflagsModified returns every RFLAGS bit the instruction can change.
func (i *InstructionInfo) RflagsModified() uint32 { return i.rflags.Modified() }

// Clone returns a copy that later factory calls do not overwrite.
func (i *InstructionInfo) Clone() *InstructionInfo {
	c := *i
	c.usedRegisters = slices.Clone(i.usedRegisters)
	c.usedMemory = slices.Clone(i.usedMemory)

	return &c
}
