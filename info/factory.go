package info

import (
	"github.com/sarchlab/x86dec/insts"
)

// Factory computes InstructionInfo for decoded instructions. It is not
// safe for concurrent use; give each goroutine its own Factory.
type Factory struct {
	info InstructionInfo
	opts Options
	inst *insts.Instruction
	rep  bool
}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{
		info: InstructionInfo{
			usedRegisters: make([]UsedRegister, 0, 32),
			usedMemory:    make([]UsedMemory, 0, 8),
		},
	}
}

// Info returns the register, memory and flags usage of inst. The result
// is overwritten by the next call.
func (f *Factory) Info(inst *insts.Instruction) *InstructionInfo {
	return f.InfoOptions(inst, OptionNone)
}

// InfoOptions is like Info but skips the parts opts turns off.
func (f *Factory) InfoOptions(inst *insts.Instruction, opts Options) *InstructionInfo {
	res := &f.info
	res.usedRegisters = res.usedRegisters[:0]
	res.usedMemory = res.usedMemory[:0]
	res.opAccesses = [5]OpAccess{}
	res.opCount = 0
	res.rflags = insts.Rflags{}

	code := inst.Code()
	if inst.IsInvalid() || code.IsDeclareData() || int(code) >= insts.CodeCount() {
		return res
	}

	f.inst, f.opts = inst, opts
	defer func() { f.inst = nil }()

	prog := &programs()[code]
	f.rep = prog.stringOp && (inst.HasRepPrefix() || inst.HasRepnePrefix())

	res.rflags = code.Rflags()
	res.opCount = inst.OpCount()

	idiom := f.idiom()

	for n := 0; n < res.opCount; n++ {
		acc := f.slotAccess(n, prog)
		if f.rep {
			acc = acc.conditional()
		}

		acc = idiomAccess(idiom, n, acc)
		res.opAccesses[n] = acc

		if acc == None {
			continue
		}

		switch inst.OpKind(n) {
		case insts.OpKindRegister:
			reg := inst.OpRegister(n)
			f.addRegister(reg, acc)

			if n == 0 && code.IsKPair() && reg.IsK() {
				f.addRegister(insts.K0+insts.Register(reg.Number()^1), acc)
			}
		case insts.OpKindMemory:
			if prog.lea {
				f.addAddressRegisters()
				continue
			}

			f.addMemoryOperand(n, acc)
		}
	}

	if inst.HasOpMask() {
		acc := Read
		if code.WritesOpMask() {
			acc = ReadWrite
		}

		f.addRegister(inst.OpMask(), acc)
	}

	for i := range prog.cmds {
		f.run(&prog.cmds[i])
	}

	if idiom == insts.IdiomClearRflags {
		res.rflags.Written = 0
		res.rflags.Undefined = 0
		res.rflags.Cleared = insts.RflagsOF | insts.RflagsSF | insts.RflagsAF | insts.RflagsCF
		res.rflags.Set = insts.RflagsZF | insts.RflagsPF
	}

	return res
}

// idiom returns the self-zeroing idiom that applies to the current
// instruction, or IdiomNone. It only matches identical source registers.
func (f *Factory) idiom() insts.Idiom {
	inst := f.inst
	id := inst.Code().Idiom()

	if id == insts.IdiomNone || inst.MvexRegMemConv().IsRegSwizzle() {
		return insts.IdiomNone
	}

	if inst.HasOpMask() && inst.MergingMasking() {
		return insts.IdiomNone
	}

	first := 0
	if id == insts.IdiomClearRegRegRegmem {
		first = 1
	}

	if inst.OpCount() < first+2 {
		return insts.IdiomNone
	}

	a, b := first, first+1
	if inst.OpKind(a) != insts.OpKindRegister || inst.OpKind(b) != insts.OpKindRegister {
		return insts.IdiomNone
	}

	if inst.OpRegister(a) != inst.OpRegister(b) {
		return insts.IdiomNone
	}

	return id
}

func idiomAccess(id insts.Idiom, n int, acc OpAccess) OpAccess {
	switch id {
	case insts.IdiomClearRegRegmem, insts.IdiomClearRflags:
		switch n {
		case 0:
			return Write
		case 1:
			return None
		}
	case insts.IdiomClearRegRegRegmem:
		switch n {
		case 0:
			return Write
		case 1, 2:
			return None
		}
	}

	return acc
}

// slotAccess resolves the table access of operand n against the decoded
// instruction.
func (f *Factory) slotAccess(n int, prog *program) OpAccess {
	inst := f.inst
	isReg := inst.OpKind(n) == insts.OpKindRegister
	merging := inst.HasOpMask() && inst.MergingMasking()

	switch inst.Code().OperandAccess(n) {
	case insts.AccessRead:
		return Read
	case insts.AccessCondRead:
		return CondRead
	case insts.AccessWrite:
		if n == 0 && merging {
			if isReg {
				return ReadWrite
			}

			return CondWrite
		}

		return Write
	case insts.AccessWriteForce:
		return Write
	case insts.AccessWriteVmm:
		if merging {
			if isReg {
				return ReadCondWrite
			}

			return CondWrite
		}

		return Write
	case insts.AccessReadWrite:
		if n == 0 && prog.arpl {
			return ReadCondWrite
		}

		return ReadWrite
	case insts.AccessReadWriteVmm:
		if merging {
			return ReadCondWrite
		}

		return ReadWrite
	case insts.AccessCondWrite:
		return CondWrite
	case insts.AccessReadCondWrite:
		return ReadCondWrite
	case insts.AccessNoMemAccess:
		return NoMemAccess
	case insts.AccessCondWrite32ReadWrite64:
		if inst.CodeSize() == insts.CodeSize64 {
			return ReadWrite
		}

		return CondWrite
	case insts.AccessWriteMemReadWriteReg:
		if isReg {
			return ReadWrite
		}

		return Write
	}

	return None
}

// addRegister records a register access. Writes that clear the upper
// bits of the containing register (32-bit GPRs in 64-bit mode, XMM and
// YMM under VEX, EVEX, XOP and MVEX) are recorded on the full register,
// preceded by a read of the narrow register when the old value is used.
func (f *Factory) addRegister(reg insts.Register, acc OpAccess) {
	if f.opts&OptionNoRegisterUsage != 0 || reg == insts.RegisterNone {
		return
	}

	if acc.Writes() && f.zeroExtends(reg) {
		switch acc {
		case ReadWrite:
			f.info.usedRegisters = append(f.info.usedRegisters, UsedRegister{reg, Read})
			acc = Write
		case ReadCondWrite:
			f.info.usedRegisters = append(f.info.usedRegisters, UsedRegister{reg, Read})
			acc = CondWrite
		}

		reg = reg.FullRegister()
	}

	f.info.usedRegisters = append(f.info.usedRegisters, UsedRegister{reg, acc})
}

// addSegment records a segment register used to form an address. In
// 64-bit mode only FS and GS have a base, so the others are left out.
func (f *Factory) addSegment(seg insts.Register, acc OpAccess) {
	if f.inst.CodeSize() == insts.CodeSize64 && seg != insts.FS && seg != insts.GS {
		return
	}

	f.addRegister(seg, acc)
}

func (f *Factory) zeroExtends(reg insts.Register) bool {
	switch {
	case reg.IsGPR32():
		return f.inst.CodeSize() == insts.CodeSize64
	case reg.IsXMM(), reg.IsYMM():
		switch f.inst.Encoding() {
		case insts.EncodingVEX, insts.EncodingEVEX, insts.EncodingXOP, insts.EncodingMVEX:
			return true
		}
	}

	return false
}

func (f *Factory) addMemory(m UsedMemory) {
	if f.opts&OptionNoMemoryUsage != 0 {
		return
	}

	f.info.usedMemory = append(f.info.usedMemory, m)
}

func (f *Factory) addMemoryOperand(n int, acc OpAccess) {
	inst := f.inst
	code := inst.Code()

	seg := inst.MemorySegment()
	if !code.IgnoresSegment() {
		f.addSegment(seg, Read)
	}

	base, index := inst.MemoryBase(), inst.MemoryIndex()
	displ := inst.MemoryDisplacement64()

	if inst.IsIPRelativeMemoryOperand() {
		base, index = insts.RegisterNone, insts.RegisterNone
		displ = inst.IPRelativeMemoryAddress()
	} else {
		f.addRegister(base, Read)
		f.addRegister(index, Read)
	}

	scale := 1
	if index != insts.RegisterNone {
		scale = inst.MemoryIndexScale()
	}

	f.addMemory(UsedMemory{
		Segment:      seg,
		Base:         base,
		Index:        index,
		Scale:        scale,
		Displacement: displ,
		MemorySize:   inst.MemorySize(),
		Access:       acc,
		AddressSize:  addressSize(inst),
		VSIBSize:     code.OperandKind(n).VSIBIndexSize(),
	})
}

// addAddressRegisters records the registers LEA reads to form its result.
// Only the low bits that reach the destination are used, so base and index
// are resized to the destination width. Nothing is read from memory.
func (f *Factory) addAddressRegisters() {
	inst := f.inst
	if inst.IsIPRelativeMemoryOperand() {
		return
	}

	size := inst.OpRegister(0).Size()

	for _, r := range [...]insts.Register{inst.MemoryBase(), inst.MemoryIndex()} {
		if r.IsGPR() {
			r = insts.GPR(r.Number(), size, false)
		}

		f.addRegister(r, Read)
	}
}

// addressSize returns the effective address size in bytes.
func addressSize(inst *insts.Instruction) int {
	if n := inst.AddressSize(); n != 0 {
		return n
	}

	return stackSize(inst)
}

// stackSize returns the stack width in bytes, which follows the code size.
func stackSize(inst *insts.Instruction) int {
	switch inst.CodeSize() {
	case insts.CodeSize16:
		return 2
	case insts.CodeSize32:
		return 4
	}

	return 8
}

func uintMemorySize(n int) insts.MemorySize {
	switch n {
	case 1:
		return insts.MemorySizeUInt8
	case 2:
		return insts.MemorySizeUInt16
	case 4:
		return insts.MemorySizeUInt32
	case 8:
		return insts.MemorySizeUInt64
	case 16:
		return insts.MemorySizeUInt128
	}

	return insts.MemorySizeUnknown
}
