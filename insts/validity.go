package insts

// checkValidity applies the rules that OptionNoInvalidCheck relaxes. Rules
// that make the bytes undecodable are enforced while decoding.
func (d *Decoder) checkValidity(inst *Instruction, ci *codeInfo) {
	st := &d.st

	if d.options&OptionNoInvalidCheck != 0 {
		return
	}

	if st.soft || !d.lockValid(inst, ci) || !d.vexFieldsValid(ci) {
		st.failed |= failInvalid
		return
	}

	switch st.encoding {
	case EncodingEVEX:
		if !d.evexValid(inst, ci) {
			st.failed |= failInvalid
			return
		}
	case EncodingMVEX:
		if !d.mvexValid(inst, ci) {
			st.failed |= failInvalid
			return
		}
	}

	if inst.IsVSIB() && !vsibRegistersUnique(inst, ci) {
		st.failed |= failInvalid
	}
}

// lockValid reports whether a LOCK prefix is allowed: the row must accept
// it and the destination must be memory.
func (d *Decoder) lockValid(inst *Instruction, ci *codeInfo) bool {
	if !d.st.lock {
		return true
	}

	return ci.has(flagLock) && ci.opCount > 0 && inst.kinds[0] == OpKindMemory
}

// vexFieldsValid rejects a non-zero vvvv or V' when the row has no operand
// encoded there.
func (d *Decoder) vexFieldsValid(ci *codeInfo) bool {
	st := &d.st

	if !st.vexLike() {
		return true
	}

	if !st.vvvvUsed && st.vvvv != 0 {
		return false
	}

	return st.v2Used || st.v2 == 0
}

func (d *Decoder) evexValid(inst *Instruction, ci *codeInfo) bool {
	st := &d.st
	memDest := ci.opCount > 0 && inst.kinds[0] == OpKindMemory
	regForm := !hasMemoryKind(inst)

	switch {
	case st.aaa != 0 && !ci.has(flagK1):
		return false
	case st.aaa == 0 && ci.has(flagKReq):
		return false
	case st.z && (!ci.has(flagZ) || st.aaa == 0 || memDest):
		return false
	}

	if st.bcst {
		if regForm && !ci.has(flagER|flagSAE) {
			return false
		}

		if !regForm && !ci.has(flagBcst) {
			return false
		}
	}

	if st.ll == 3 && ci.l != lIG && !(st.bcst && regForm && ci.has(flagER|flagSAE)) {
		return false
	}

	return true
}

func (d *Decoder) mvexValid(inst *Instruction, ci *codeInfo) bool {
	st := &d.st

	if hasMemoryKind(inst) {
		return true
	}

	if st.mvxE {
		return ci.has(flagER | flagSAE)
	}

	return ci.mvexNoSwizzle&(1<<st.sss) == 0
}

// vsibRegistersUnique reports whether the destination, index and VEX mask
// registers of a gather are distinct.
func vsibRegistersUnique(inst *Instruction, ci *codeInfo) bool {
	index := inst.memIndex.Number()

	if inst.kinds[0] == OpKindRegister && inst.regs[0].IsVectorRegister() {
		dest := inst.regs[0].Number()
		if dest == index {
			return false
		}

		for i := 1; i < ci.opCount; i++ {
			if operandKindInfos[ci.ops[i]].loc != locVVVV {
				continue
			}

			mask := inst.regs[i].Number()
			if mask == index || mask == dest {
				return false
			}
		}
	}

	return true
}
