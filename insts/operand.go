package insts

func (d *Decoder) setReg(inst *Instruction, i int, r Register) {
	inst.kinds[i] = OpKindRegister
	inst.regs[i] = r
}

// decodeModRMOperand decodes operand i if it comes from ModRM, VEX.vvvv,
// the opcode byte or a fixed register. Memory operands read their SIB and
// displacement here, before any immediate.
func (d *Decoder) decodeModRMOperand(inst *Instruction, i int, ci *codeInfo) {
	st := &d.st
	kind := ci.ops[i]
	info := &operandKindInfos[kind]

	switch info.loc {
	case locReg:
		d.setReg(inst, i, d.regField(kind, i))
	case locRM:
		if st.mod == 3 {
			d.setReg(inst, i, d.rmRegister(kind))
		} else {
			d.decodeMemory(inst, i, ci, kind)
		}
	case locRMReg:
		d.setReg(inst, i, d.rmRegister(kind))
	case locMem:
		d.decodeMemory(inst, i, ci, kind)
	case locVVVV:
		d.setReg(inst, i, d.vvvvRegister(kind))
	case locOpcode:
		n := st.opcode&7 | st.b<<3
		d.setReg(inst, i, GPR(int(n), info.gprSize, st.hasRex))
	case locST0, locFixed:
		d.setReg(inst, i, info.fixed)
	case locSTi:
		d.setReg(inst, i, ST0+Register(st.rm))
	}
}

// decodeTrailingOperand decodes the operands encoded after ModRM, SIB and
// the displacement.
func (d *Decoder) decodeTrailingOperand(inst *Instruction, i int, ci *codeInfo) {
	st := &d.st
	kind := ci.ops[i]

	switch operandKindInfos[kind].loc {
	case locIs4:
		n := d.is4Byte() >> 4
		if !d.is64() {
			n &= 7
		}

		d.setReg(inst, i, operandKindInfos[kind].regBase+Register(n))
	case locImm:
		d.decodeImmediate(inst, i, kind)
	case locBranch:
		d.decodeBranch(inst, i, kind)
	case locMoffs:
		inst.kinds[i] = OpKindMemory
		inst.memSize = ci.mem

		switch st.addrSize {
		case 16:
			inst.memDispl = uint64(d.readUint16())
			inst.displSize = 2
		case 32:
			inst.memDispl = uint64(d.readUint32())
			inst.displSize = 4
		default:
			inst.memDispl = d.readUint64()
			inst.displSize = 8
		}
	case locString:
		inst.kinds[i] = stringOpKind(kind, st.addrSize)
		inst.memSize = ci.mem
	}
}

func stringOpKind(kind OperandKind, addrSize int) OpKind {
	var base OpKind

	switch kind {
	case OperandSegRSI:
		base = OpKindMemorySegSI
	case OperandESRDI:
		base = OpKindMemoryESDI
	default:
		base = OpKindMemorySegDI
	}

	switch addrSize {
	case 32:
		return base + 1
	case 64:
		return base + 2
	}

	return base
}

func (d *Decoder) is4Byte() uint32 {
	st := &d.st
	if !st.is4Read {
		st.is4 = d.readByte()
		st.is4Read = true
	}

	return st.is4
}

func (d *Decoder) decodeImmediate(inst *Instruction, i int, kind OperandKind) {
	switch kind {
	case OperandImm1:
		inst.kinds[i] = OpKindImmediate8
		inst.immediate = 1
	case OperandImm8:
		inst.kinds[i] = OpKindImmediate8
		inst.immediate = uint64(d.readByte())
	case OperandImm8_2nd:
		inst.kinds[i] = OpKindImmediate8_2nd
		inst.imm8_2nd = uint8(d.readByte())
	case OperandImm16:
		inst.kinds[i] = OpKindImmediate16
		inst.immediate = uint64(d.readUint16())
	case OperandImm32:
		inst.kinds[i] = OpKindImmediate32
		inst.immediate = uint64(d.readUint32())
	case OperandImm64:
		inst.kinds[i] = OpKindImmediate64
		inst.immediate = d.readUint64()
	case OperandImm8Sex16:
		inst.kinds[i] = OpKindImmediate8to16
		inst.immediate = uint64(d.readByte())
	case OperandImm8Sex32:
		inst.kinds[i] = OpKindImmediate8to32
		inst.immediate = uint64(d.readByte())
	case OperandImm8Sex64:
		inst.kinds[i] = OpKindImmediate8to64
		inst.immediate = uint64(d.readByte())
	case OperandImm32Sex64:
		inst.kinds[i] = OpKindImmediate32to64
		inst.immediate = uint64(d.readUint32())
	case OperandImm4M2Z:
		inst.kinds[i] = OpKindImmediate8
		inst.immediate = uint64(d.is4Byte() & 0xF)
	}
}

// decodeBranch reads a relative or far branch operand. Relative targets
// are computed from the end of the instruction, so the branch must be the
// last encoded operand.
func (d *Decoder) decodeBranch(inst *Instruction, i int, kind OperandKind) {
	var rel int64

	switch kind {
	case OperandRel8_16, OperandRel8_32, OperandRel8_64:
		rel = int64(int8(d.readByte()))
	case OperandRel16:
		rel = int64(int16(d.readUint16()))
	case OperandRel32_32, OperandRel32_64:
		rel = int64(int32(d.readUint32()))
	case OperandPtr1616:
		inst.kinds[i] = OpKindFarBranch16
		inst.nearBranch = uint64(d.readUint16())
		inst.farSelector = uint16(d.readUint16())

		return
	case OperandPtr1632:
		inst.kinds[i] = OpKindFarBranch32
		inst.nearBranch = uint64(d.readUint32())
		inst.farSelector = uint16(d.readUint16())

		return
	}

	target := d.ip + uint64(d.pos-d.start) + uint64(rel)

	switch kind {
	case OperandRel8_16, OperandRel16:
		inst.kinds[i] = OpKindNearBranch16
		inst.nearBranch = uint64(uint16(target))
	case OperandRel8_32, OperandRel32_32:
		inst.kinds[i] = OpKindNearBranch32
		inst.nearBranch = uint64(uint32(target))
	default:
		inst.kinds[i] = OpKindNearBranch64
		inst.nearBranch = target
	}
}

// regField decodes a ModRM.reg operand.
func (d *Decoder) regField(kind OperandKind, i int) Register {
	st := &d.st
	info := &operandKindInfos[kind]
	n := st.reg | st.r<<3

	if info.gprSize != 0 {
		if st.r2 != 0 {
			st.soft = true
		}

		return GPR(int(n), info.gprSize, st.hasRex)
	}

	switch kind {
	case OperandSreg:
		if st.reg >= 6 || (i == 0 && st.reg == 1) {
			st.failed |= failInvalid
		}

		return ES + Register(st.reg)
	case OperandCR:
		switch n {
		case 0, 2, 3, 4, 8:
		default:
			st.failed |= failInvalid
		}

		return CR0 + Register(n)
	case OperandDR:
		if n > 7 {
			st.failed |= failInvalid
		}

		return DR0 + Register(n)
	case OperandTR, OperandMM:
		return info.regBase + Register(st.reg)
	case OperandK:
		if st.r != 0 || st.r2 != 0 {
			st.soft = true
		}

		return K0 + Register(st.reg)
	case OperandBND, OperandTMM:
		if n >= regLimit(info.regBase) {
			st.failed |= failInvalid
		}

		return info.regBase + Register(n)
	}

	return info.regBase + Register(n|st.r2<<4)
}

// rmRegister decodes the register form of a ModRM.rm operand.
func (d *Decoder) rmRegister(kind OperandKind) Register {
	st := &d.st
	info := &operandKindInfos[kind]
	n := st.rm | st.b<<3

	if info.gprSize != 0 {
		return GPR(int(n), info.gprSize, st.hasRex)
	}

	switch info.regBase {
	case MM0, K0:
		return info.regBase + Register(st.rm)
	case BND0, TMM0:
		if n >= regLimit(info.regBase) {
			st.failed |= failInvalid
		}

		return info.regBase + Register(n)
	}

	if st.encoding == EncodingEVEX || st.encoding == EncodingMVEX {
		n |= st.x << 4
	}

	return info.regBase + Register(n)
}

// vvvvRegister decodes a VEX/EVEX/XOP/MVEX vvvv operand.
func (d *Decoder) vvvvRegister(kind OperandKind) Register {
	st := &d.st
	info := &operandKindInfos[kind]
	n := st.vvvv

	st.vvvvUsed = true

	if info.gprSize != 0 {
		return GPR(int(n), info.gprSize, true)
	}

	switch info.regBase {
	case K0, TMM0:
		if n > 7 || st.v2 != 0 {
			st.soft = true
		}

		st.v2Used = true

		return info.regBase + Register(n&7)
	}

	st.v2Used = true

	return info.regBase + Register(n|st.v2<<4)
}

// regLimit returns the number of registers in the BND and TMM classes.
func regLimit(base Register) uint32 {
	if base == BND0 {
		return 4
	}

	return 8
}

var (
	mem16Base  = [8]Register{BX, BX, BP, BP, SI, DI, BP, BX}
	mem16Index = [8]Register{SI, DI, SI, DI, RegisterNone, RegisterNone, RegisterNone, RegisterNone}
)

// decodeMemory decodes a ModRM memory operand into slot i. ci may be nil
// when the row is not yet known (3DNow!).
func (d *Decoder) decodeMemory(inst *Instruction, i int, ci *codeInfo, kind OperandKind) {
	st := &d.st
	inst.kinds[i] = OpKindMemory

	if st.memDone {
		return
	}

	info := &operandKindInfos[kind]
	vsib := info.vsibBase != RegisterNone
	n := d.disp8N(inst, ci)

	if st.addrSize == 16 {
		if vsib {
			st.failed |= failInvalid
			return
		}

		d.decodeMemory16(inst, n)

		return
	}

	base0 := EAX
	if st.addrSize == 64 {
		base0 = RAX
	}

	switch {
	case st.rm == 4:
		sib := d.readByte()
		index := sib>>3&7 | st.x<<3
		inst.memScale = uint8(sib >> 6)

		switch {
		case vsib:
			st.v2Used = true
			inst.memIndex = info.vsibBase + Register(index|st.v2<<4)
		case index != 4:
			inst.memIndex = base0 + Register(index)
		}

		if sib&7 == 5 && st.mod == 0 {
			d.readDisp32(inst)
			return
		}

		inst.memBase = base0 + Register(sib&7|st.b<<3)
	case vsib:
		st.failed |= failInvalid
		return
	case st.rm == 5 && st.mod == 0:
		d.readDisp32(inst)

		if d.is64() {
			inst.memBase = RIP
			if st.addrSize == 32 {
				inst.memBase = EIP
			}

			inst.memDispl = uint64(int64(int32(inst.memDispl)))
		}

		return
	default:
		inst.memBase = base0 + Register(st.rm|st.b<<3)
	}

	switch st.mod {
	case 1:
		disp := int64(int8(d.readByte())) * int64(n)
		inst.displSize = 1
		inst.memDispl = d.addrDispl(disp)
	case 2:
		d.readDisp32(inst)
	}
}

func (d *Decoder) readDisp32(inst *Instruction) {
	inst.displSize = 4
	inst.memDispl = d.addrDispl(int64(int32(d.readUint32())))
}

// addrDispl stores a displacement the way the address size wraps it.
func (d *Decoder) addrDispl(disp int64) uint64 {
	if d.st.addrSize == 64 {
		return uint64(disp)
	}

	return uint64(uint32(disp))
}

func (d *Decoder) decodeMemory16(inst *Instruction, n uint32) {
	st := &d.st

	if st.mod == 0 && st.rm == 6 {
		inst.memDispl = uint64(d.readUint16())
		inst.displSize = 2

		return
	}

	inst.memBase = mem16Base[st.rm]
	inst.memIndex = mem16Index[st.rm]

	switch st.mod {
	case 1:
		inst.memDispl = uint64(uint16(int32(int8(d.readByte())) * int32(n)))
		inst.displSize = 1
	case 2:
		inst.memDispl = uint64(d.readUint16())
		inst.displSize = 2
	}
}

// disp8N returns the disp8 scale of the memory operand and records the
// EVEX broadcast or MVEX conversion that goes with it.
func (d *Decoder) disp8N(inst *Instruction, ci *codeInfo) uint32 {
	st := &d.st

	if ci == nil {
		return 1
	}

	switch st.encoding {
	case EncodingEVEX:
		if st.bcst && ci.has(flagBcst) {
			inst.set(instBroadcast, true)
			inst.memSize = ci.bcst
		}

		return ci.tuple.Disp8N(st.bcst)
	case EncodingMVEX:
		conv, ok := mvexMemConv(ci.mvexKind, st.sss)
		if !ok || ci.mvexNoConv&(1<<st.sss) != 0 {
			st.soft = true
			return 64
		}

		inst.mvexConv = conv.conv
		if ci.mvexKind != mvexNone {
			inst.memSize = conv.mem
		}

		return conv.n
	}

	return 1
}
