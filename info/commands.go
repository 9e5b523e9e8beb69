package info

import (
	"github.com/sarchlab/x86dec/insts"
)

func (f *Factory) run(cmd *command) {
	inst := f.inst

	switch cmd.kind {
	case cmdReg:
		f.addRegister(cmd.reg.resolve(inst), cmd.access)
	case cmdPush:
		f.push(cmd.count)
	case cmdPop:
		f.pop(cmd.count)
	case cmdPusha:
		f.pusha(cmd.count)
	case cmdPopa:
		f.popa(cmd.count)
	case cmdEnter:
		f.enter(cmd.count)
	case cmdLeave:
		f.leave(cmd.count)
	case cmdIns, cmdOuts, cmdMovs, cmdCmps, cmdLods, cmdScas, cmdStos:
		f.stringOp(cmd.kind)
	case cmdXstore:
		f.xstore(cmd.count)
	case cmdMem:
		f.implicitMemory(cmd)
	case cmdEmmi:
		if inst.OpKind(0) == insts.OpKindRegister {
			mm := inst.OpRegister(0)
			f.addRegister(insts.MM0+insts.Register(mm.Number()^1), cmd.access)
		}
	case cmdVzeroupper:
		for i := 0; i < vectorCount(inst); i++ {
			f.addRegister(insts.XMM0+insts.Register(i), ReadWrite)
		}
	case cmdVzeroall:
		for i := 0; i < vectorCount(inst); i++ {
			f.addRegister(insts.XMM0+insts.Register(i), Write)
		}
	case cmdArpl, cmdLea:
		// resolved with the explicit operands
	}
}

func vectorCount(inst *insts.Instruction) int {
	if inst.CodeSize() == insts.CodeSize64 {
		return 16
	}

	return 8
}

func (f *Factory) stackPointer() insts.Register {
	return insts.GPR(4, stackSize(f.inst), false)
}

// stackOffset wraps a stack displacement to the stack width.
func (f *Factory) stackOffset(off int) uint64 {
	v := uint64(int64(off))

	switch stackSize(f.inst) {
	case 2:
		return v & 0xFFFF
	case 4:
		return v & 0xFFFF_FFFF
	}

	return v
}

// stackSlot returns the width of one pushed item for a transfer of n
// bytes: the operand size when n is a multiple of it, else n.
func (f *Factory) stackSlot(n int) int {
	op := f.inst.OperandSize()
	if op == 0 || op > n || n%op != 0 {
		return n
	}

	return op
}

func (f *Factory) stackMemory(base insts.Register, off, size int, acc OpAccess) {
	f.addMemory(UsedMemory{
		Segment:      insts.SS,
		Base:         base,
		Scale:        1,
		Displacement: f.stackOffset(off),
		MemorySize:   uintMemorySize(size),
		Access:       acc,
		AddressSize:  stackSize(f.inst),
	})
}

func (f *Factory) push(n int) {
	sp := f.stackPointer()
	f.addSegment(insts.SS, Read)
	f.addRegister(sp, ReadWrite)

	slot := f.stackSlot(n)
	for off := -n; off < 0; off += slot {
		f.stackMemory(sp, off, slot, Write)
	}
}

func (f *Factory) pop(n int) {
	sp := f.stackPointer()
	f.addSegment(insts.SS, Read)
	f.addRegister(sp, ReadWrite)

	slot := f.stackSlot(n)
	for off := 0; off < n; off += slot {
		f.stackMemory(sp, off, slot, Read)
	}
}

func (f *Factory) pusha(size int) {
	sp := f.stackPointer()
	f.addSegment(insts.SS, Read)
	f.addRegister(sp, ReadWrite)

	for i := 0; i < 8; i++ {
		f.addRegister(insts.GPR(i, size, false), Read)
	}

	for i := 0; i < 8; i++ {
		f.stackMemory(sp, -(i+1)*size, size, Write)
	}
}

func (f *Factory) popa(size int) {
	sp := f.stackPointer()
	f.addSegment(insts.SS, Read)
	f.addRegister(sp, ReadWrite)

	for i := 0; i < 8; i++ {
		if i != 4 {
			f.addRegister(insts.GPR(i, size, false), Write)
		}
	}

	for i := 0; i < 8; i++ {
		f.stackMemory(sp, i*size, size, Read)
	}
}

// enter pushes the frame pointer and, for a nesting level L > 0, copies
// L-1 outer frame pointers and pushes the new frame pointer.
func (f *Factory) enter(size int) {
	sp := f.stackPointer()
	bp := insts.GPR(5, size, false)

	f.addSegment(insts.SS, Read)
	f.addRegister(sp, ReadWrite)
	f.addRegister(bp, ReadWrite)
	f.stackMemory(sp, -size, size, Write)

	level := int(f.inst.Immediate8_2nd() & 0x1F)
	if level == 0 {
		return
	}

	for i := 1; i < level; i++ {
		f.stackMemory(bp, -i*size, size, Read)
		f.stackMemory(sp, -(i+1)*size, size, Write)
	}

	f.stackMemory(sp, -(level+1)*size, size, Write)
}

func (f *Factory) leave(size int) {
	sp := f.stackPointer()
	frame := insts.GPR(5, stackSize(f.inst), false)
	bp := insts.GPR(5, size, false)

	f.addSegment(insts.SS, Read)
	f.addRegister(sp, Write)

	if frame == bp {
		f.addRegister(bp, ReadWrite)
	} else {
		f.addRegister(frame, Read)
		f.addRegister(bp, Write)
	}

	f.stackMemory(frame, 0, size, Read)
}

// stringReg records rSI or rDI. Under REP the register is only touched
// when rCX is not zero.
func (f *Factory) stringReg(reg insts.Register) {
	if f.rep {
		f.addRegister(reg, CondRead)
		f.addRegister(reg, CondWrite)

		return
	}

	f.addRegister(reg, ReadWrite)
}

func (f *Factory) stringMemory(seg, base insts.Register, acc OpAccess) {
	if f.rep {
		acc = acc.conditional()
	}

	f.addMemory(UsedMemory{
		Segment:     seg,
		Base:        base,
		Scale:       1,
		MemorySize:  f.inst.MemorySize(),
		Access:      acc,
		AddressSize: addressSize(f.inst),
	})
}

func (f *Factory) segmentRead(seg insts.Register) {
	if f.rep {
		f.addSegment(seg, CondRead)
		return
	}

	f.addSegment(seg, Read)
}

func (f *Factory) stringOp(kind cmdKind) {
	inst := f.inst
	a := addressSize(inst)
	rsi := insts.GPR(6, a, false)
	rdi := insts.GPR(7, a, false)
	seg := inst.MemorySegment()

	if f.rep {
		f.addRegister(insts.GPR(1, a, false), ReadCondWrite)
	}

	source := func(acc OpAccess) {
		f.segmentRead(seg)
		f.stringReg(rsi)
		f.stringMemory(seg, rsi, acc)
	}

	dest := func(acc OpAccess) {
		f.segmentRead(insts.ES)
		f.stringReg(rdi)
		f.stringMemory(insts.ES, rdi, acc)
	}

	switch kind {
	case cmdIns:
		dest(Write)
	case cmdOuts, cmdLods:
		source(Read)
	case cmdMovs:
		source(Read)
		dest(Write)
	case cmdCmps:
		source(Read)
		dest(Read)
	case cmdScas:
		dest(Read)
	case cmdStos:
		dest(Write)
	}
}

// xstore stores random bytes at ES:rDI. The F3 prefix is part of the
// opcode, so the accesses are always conditional on rCX.
func (f *Factory) xstore(addrSize int) {
	rdi := insts.GPR(7, addrSize, false)

	f.addSegment(insts.ES, CondRead)
	f.addRegister(insts.GPR(1, addrSize, false), ReadCondWrite)
	f.addRegister(rdi, CondRead)
	f.addRegister(rdi, CondWrite)
	f.addRegister(insts.EDX, Read)
	f.addRegister(insts.EAX, Write)

	f.addMemory(UsedMemory{
		Segment:     insts.ES,
		Base:        rdi,
		Scale:       1,
		MemorySize:  insts.MemorySizeUnknown,
		Access:      CondWrite,
		AddressSize: addrSize,
	})
}

func (f *Factory) implicitMemory(cmd *command) {
	inst := f.inst

	seg := cmd.segment
	if seg == insts.RegisterNone {
		seg = inst.MemorySegment()
	}

	base := cmd.base.resolve(inst)
	index := cmd.index.resolve(inst)

	f.addSegment(seg, Read)
	// op0 is already recorded with the explicit operands
	if cmd.base.size != sizeOperand {
		f.addRegister(base, Read)
	}
	f.addRegister(index, Read)

	f.addMemory(UsedMemory{
		Segment:     seg,
		Base:        base,
		Index:       index,
		Scale:       1,
		MemorySize:  cmd.size,
		Access:      cmd.access,
		AddressSize: addressSize(inst),
	})
}
