package insts

// selectRow returns the first row of node that matches the decoded
// prefixes, ModRM and mode, or nil.
func (d *Decoder) selectRow(node *dispatchNode) *codeInfo {
	for _, ci := range node.rows {
		if d.matches(ci) {
			return ci
		}
	}

	return nil
}

func (d *Decoder) matches(ci *codeInfo) bool {
	st := &d.st

	if ci.modes&d.mode() == 0 {
		return false
	}

	if ci.ifOpt != 0 && d.options&ci.ifOpt == 0 {
		return false
	}

	if d.options&ci.unlessOpt != 0 {
		return false
	}

	if d.is64() && d.options&ci.unless64Opt != 0 {
		return false
	}

	if ci.mandatory != mpAny && ci.mandatory != st.mp {
		return false
	}

	if ci.opSize != 0 && int(ci.opSize) != d.operandSize(ci) {
		return false
	}

	if ci.addrSize != 0 && int(ci.addrSize) != st.addrSize {
		return false
	}

	if ci.hasModRM && !d.modRMMatches(ci) {
		return false
	}

	if ci.has(flagNoRexB) && st.b != 0 {
		return false
	}

	if st.vexLike() {
		return vexMatches(ci, st, d.is64())
	}

	return true
}

func (d *Decoder) modRMMatches(ci *codeInfo) bool {
	st := &d.st

	if ci.group >= 0 && st.reg != uint32(ci.group) {
		return false
	}

	if ci.fixedRM >= 0 && st.rm != uint32(ci.fixedRM) {
		return false
	}

	regForm := st.mod == 3 || ci.has(flagAnyMod)
	if ci.requireMod3 && !regForm {
		return false
	}

	return !ci.requireMem || st.mod != 3
}

func vexMatches(ci *codeInfo, st *decodeState, is64 bool) bool {
	switch ci.w {
	case w0:
		if st.w != 0 {
			return false
		}
	case w1:
		if st.w != 1 {
			return false
		}
	case wIG32:
		if is64 && st.w != 0 {
			return false
		}
	}

	return ci.l == lIG || ci.l == st.effL
}

// operandSize returns the effective operand size in bits for ci. A 66
// prefix that selects an SSE row does not change the operand size.
func (d *Decoder) operandSize(ci *codeInfo) int {
	st := &d.st
	has66 := st.has66 && ci.mandatory != mp66

	switch d.bitness {
	case 64:
		switch {
		case st.w != 0 && st.encoding == EncodingLegacy:
			return 64
		case ci.has(flagD64):
			if has66 {
				return 16
			}

			return 64
		case ci.has(flagF64):
			if has66 && d.options&OptionAMD != 0 {
				return 16
			}

			return 64
		case has66:
			return 16
		}

		return 32
	case 32:
		if has66 {
			return 16
		}

		return 32
	}

	if has66 {
		return 32
	}

	return 16
}

// decodeRow decodes the operands of the selected row, applies prefix
// semantics and runs the validity checks.
func (d *Decoder) decodeRow(inst *Instruction, ci *codeInfo) {
	st := &d.st
	st.opSize = d.operandSize(ci)

	inst.code = ci.code
	inst.opCnt = uint8(ci.opCount)
	inst.addrSize = uint8(st.addrSize / 8)
	inst.opSize = uint8(st.opSize / 8)

	for i := 0; i < ci.opCount; i++ {
		d.decodeModRMOperand(inst, i, ci)
	}

	for i := 0; i < ci.opCount; i++ {
		d.decodeTrailingOperand(inst, i, ci)
	}

	if st.failed != 0 {
		return
	}

	if inst.memSize == MemorySizeUnknown && hasMemoryKind(inst) {
		inst.memSize = ci.mem
	}

	d.applyPrefixes(inst, ci)

	if st.encoding == EncodingEVEX || st.encoding == EncodingMVEX {
		d.applyMasking(inst, ci)
	}

	d.checkValidity(inst, ci)
}

func hasMemoryKind(inst *Instruction) bool {
	for i := 0; i < int(inst.opCnt); i++ {
		if inst.kinds[i].IsMemory() {
			return true
		}
	}

	return false
}

// applyPrefixes turns the raw F2/F3/F0/3E prefixes into the semantic
// flags of the selected row.
func (d *Decoder) applyPrefixes(inst *Instruction, ci *codeInfo) {
	st := &d.st

	inst.segPrefix = st.segPrefix

	rep := st.hasF3 && ci.mandatory != mpF3
	repne := st.hasF2 && ci.mandatory != mpF2

	if ci.has(flagNoRepPrefix) || st.vexLike() {
		rep, repne = false, false
	}

	inst.set(instRep, rep)
	inst.set(instRepne, repne)
	inst.set(instLock, st.lock)

	memDest := ci.opCount > 0 && inst.kinds[0] == OpKindMemory
	if memDest && (st.lock || ci.has(flagHleNoLock)) {
		inst.set(instXacquire, repne && st.lastRep == 0xF2 && ci.has(flagXacquire))
		inst.set(instXrelease, rep && st.lastRep == 0xF3 && ci.has(flagXrelease))
	}

	inst.set(instBnd, repne && ci.has(flagBnd))
	inst.set(instNotrack, ci.has(flagNotrack) && st.segPrefix == DS && d.bitness != 16)
}

// applyMasking records EVEX/MVEX opmask, zeroing, rounding and SAE.
func (d *Decoder) applyMasking(inst *Instruction, ci *codeInfo) {
	st := &d.st

	if st.aaa != 0 {
		inst.opMask = K0 + Register(st.aaa)
	}

	regForm := !hasMemoryKind(inst)

	if st.encoding == EncodingEVEX {
		inst.set(instZeroing, st.z)

		if st.bcst && regForm {
			switch {
			case ci.has(flagER):
				inst.rc = RoundToNearest + RoundingControl(st.ll)
			case ci.has(flagSAE):
				inst.set(instSAE, true)
			}
		}

		return
	}

	if regForm {
		if st.mvxE {
			// SSS bits 0-1 select the rounding mode, bit 2 suppresses
			// exceptions.
			if ci.has(flagER) {
				inst.rc = RoundToNearest + RoundingControl(st.sss&3)
			}

			inst.set(instSAE, st.sss&4 != 0)

			return
		}

		inst.mvexConv = mvexSwizzle(st.sss)

		return
	}

	inst.set(instMvexEH, st.mvxE)
}
