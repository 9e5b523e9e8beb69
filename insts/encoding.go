package insts

type failFlags uint8

const (
	failInvalid failFlags = 1 << iota
	failNoMoreBytes
	failInternal
)

// lReserved is the vector length of EVEX.L'L=3. No row matches it except
// LIG rows.
const lReserved lBit = 4

// decodeState is the scratch state of one Decode call. Extension bits
// (r, x, b, r2, v2, w) hold 0 or 1 with the inversion already undone.
type decodeState struct {
	failed failFlags

	// soft marks a violation of a rule that OptionNoInvalidCheck relaxes.
	soft bool

	prefixes  int
	segPrefix Register
	has66     bool
	has67     bool
	lock      bool
	hasF2     bool
	hasF3     bool
	lastRep   uint32
	rex       uint32
	hasRex    bool

	encoding EncodingKind
	table    OpCodeTable
	opcode   uint32
	mp       mandatoryPrefix

	w, r, x, b, r2, v2 uint32

	vvvv uint32
	ll   uint32
	effL lBit
	aaa  uint32
	z    bool
	bcst bool
	mvxE bool
	sss  uint32

	hasModRM      bool
	modrm         uint32
	mod, reg, rm  uint32
	opSize        int
	addrSize      int
	memDone       bool
	is4           uint32
	is4Read       bool
	vvvvUsed      bool
	v2Used        bool
	mvexConvValid bool
}

func (s *decodeState) prefixCount() int { return s.prefixes }

func (s *decodeState) vexLike() bool {
	switch s.encoding {
	case EncodingVEX, EncodingEVEX, EncodingXOP, EncodingMVEX:
		return true
	}

	return false
}

// scanPrefixes consumes legacy and REX prefixes. A REX prefix only counts
// if it is the last prefix before the opcode.
func (d *Decoder) scanPrefixes() {
	st := &d.st

	for {
		b, ok := d.peekByte()
		if !ok {
			break
		}

		switch b {
		case 0x26, 0x2E, 0x36, 0x3E:
			seg := ES + Register((b-0x26)>>3)
			if !d.is64() || (st.segPrefix != FS && st.segPrefix != GS) {
				st.segPrefix = seg
			}
		case 0x64:
			st.segPrefix = FS
		case 0x65:
			st.segPrefix = GS
		case 0x66:
			st.has66 = true
		case 0x67:
			st.has67 = true
		case 0xF0:
			st.lock = true
		case 0xF2:
			st.hasF2 = true
			st.lastRep = 0xF2
		case 0xF3:
			st.hasF3 = true
			st.lastRep = 0xF3
		default:
			if d.is64() && b&0xF0 == 0x40 {
				st.rex = b
				st.hasRex = true
				st.prefixes++
				d.pos++

				continue
			}

			d.setAddrSize()

			return
		}

		st.rex = 0
		st.hasRex = false
		st.prefixes++
		d.pos++
	}

	d.setAddrSize()
}

func (d *Decoder) setAddrSize() {
	st := &d.st

	switch d.bitness {
	case 64:
		st.addrSize = 64
		if st.has67 {
			st.addrSize = 32
		}
	case 32:
		st.addrSize = 32
		if st.has67 {
			st.addrSize = 16
		}
	default:
		st.addrSize = 16
		if st.has67 {
			st.addrSize = 32
		}
	}
}

// legacyMandatoryPrefix returns the prefix a legacy SSE row is selected
// by: the last of F2/F3, else 66.
func (s *decodeState) legacyMandatoryPrefix() mandatoryPrefix {
	switch {
	case s.lastRep == 0xF3:
		return mpF3
	case s.lastRep == 0xF2:
		return mpF2
	case s.has66:
		return mp66
	}

	return mpNP
}

var ppPrefix = [4]mandatoryPrefix{mpNP, mp66, mpF3, mpF2}

func (d *Decoder) decodeLegacy0F(inst *Instruction) {
	b := d.readByte()

	switch b {
	case 0x38:
		d.decodeLegacy(inst, Table0F38, d.readByte())
	case 0x3A:
		d.decodeLegacy(inst, Table0F3A, d.readByte())
	case 0x0F:
		d.decode3DNow(inst)
	default:
		d.decodeLegacy(inst, Table0F, b)
	}
}

func (d *Decoder) applyRex() {
	st := &d.st
	if st.hasRex {
		st.w = st.rex >> 3 & 1
		st.r = st.rex >> 2 & 1
		st.x = st.rex >> 1 & 1
		st.b = st.rex & 1
	}
}

func (d *Decoder) decodeLegacy(inst *Instruction, table OpCodeTable, op uint32) {
	if d.st.failed != 0 {
		return
	}

	st := &d.st
	st.encoding = EncodingLegacy
	st.table = table
	st.opcode = op
	st.mp = st.legacyMandatoryPrefix()
	d.applyRex()

	d.decodeNode(inst, dispatch[EncodingLegacy][table][op])
}

// decode3DNow handles 0F 0F /r suffix. The suffix byte that selects the
// instruction follows the ModRM operand, so the memory operand is decoded
// before the row is known.
func (d *Decoder) decode3DNow(inst *Instruction) {
	st := &d.st
	st.encoding = Encoding3DNow
	st.table = Table0F
	st.mp = st.legacyMandatoryPrefix()
	d.applyRex()

	d.readModRM()

	if st.failed == 0 && st.mod != 3 {
		d.decodeMemory(inst, 1, nil, OperandMMM64)
		st.memDone = true
	}

	suffix := d.readByte()
	if st.failed != 0 {
		return
	}

	st.opcode = suffix
	node := dispatch[Encoding3DNow][Table0F][suffix]

	if node == nil {
		st.failed |= failInvalid
		return
	}

	ci := d.selectRow(node)
	if ci == nil {
		st.failed |= failInvalid
		return
	}

	d.decodeRow(inst, ci)
}

// checkVexPrefixes flags legacy prefixes that may not precede VEX, EVEX,
// XOP or MVEX.
func (d *Decoder) checkVexPrefixes() {
	st := &d.st
	if st.has66 || st.hasF2 || st.hasF3 || st.hasRex || st.lock {
		st.soft = true
	}
}

func (d *Decoder) decodeVEX2(inst *Instruction) {
	st := &d.st
	d.checkVexPrefixes()

	b1 := d.readByte()
	st.encoding = EncodingVEX
	st.table = Table0F
	st.r = ^b1 >> 7 & 1
	st.vvvv = ^b1 >> 3 & 0xF
	st.ll = b1 >> 2 & 1
	st.mp = ppPrefix[b1&3]

	if !d.is64() {
		st.r = 0
		st.vvvv &= 7
	}

	d.decodeVexOpcode(inst)
}

var vexTables = map[uint32]OpCodeTable{1: Table0F, 2: Table0F38, 3: Table0F3A}

var xopTables = map[uint32]OpCodeTable{8: TableXOP8, 9: TableXOP9, 0xA: TableXOPA}

// decodeVEX3 handles the three-byte VEX (C4) and XOP (8F) prefixes, which
// share a layout.
func (d *Decoder) decodeVEX3(inst *Instruction, enc EncodingKind) {
	st := &d.st
	d.checkVexPrefixes()

	b1 := d.readByte()
	b2 := d.readByte()

	st.encoding = enc
	st.r = ^b1 >> 7 & 1
	st.x = ^b1 >> 6 & 1
	st.b = ^b1 >> 5 & 1
	st.w = b2 >> 7
	st.vvvv = ^b2 >> 3 & 0xF
	st.ll = b2 >> 2 & 1
	st.mp = ppPrefix[b2&3]

	if !d.is64() {
		st.r, st.x, st.b = 0, 0, 0
		st.vvvv &= 7
	}

	tables := vexTables
	if enc == EncodingXOP {
		tables = xopTables
	}

	table, ok := tables[b1&0x1F]
	if !ok {
		st.failed |= failInvalid
		return
	}

	st.table = table

	d.decodeVexOpcode(inst)
}

var evexTables = map[uint32]OpCodeTable{1: Table0F, 2: Table0F38, 3: Table0F3A, 5: TableMap5, 6: TableMap6}

func (d *Decoder) decodeEVEX(inst *Instruction) {
	st := &d.st
	d.checkVexPrefixes()

	p0 := d.readByte()
	p1 := d.readByte()
	p2 := d.readByte()

	if st.failed != 0 {
		return
	}

	if p1&4 == 0 {
		if d.is64() && d.options&OptionKNC != 0 {
			d.decodeMVEX(inst, p0, p1, p2)
			return
		}

		st.failed |= failInvalid

		return
	}

	st.encoding = EncodingEVEX

	table, ok := evexTables[p0&7]
	if !ok || p0&8 != 0 {
		st.failed |= failInvalid
		return
	}

	st.table = table
	d.evexCommon(p0, p1)

	st.z = p2&0x80 != 0
	st.ll = p2 >> 5 & 3
	st.bcst = p2&0x10 != 0
	st.v2 = ^p2 >> 3 & 1
	st.aaa = p2 & 7

	if !d.is64() {
		if st.r2 != 0 || st.v2 != 0 {
			st.failed |= failInvalid
			return
		}

		st.vvvv &= 7
		st.x, st.b = 0, 0
	}

	d.decodeVexOpcode(inst)
}

func (d *Decoder) evexCommon(p0, p1 uint32) {
	st := &d.st
	st.r = ^p0 >> 7 & 1
	st.x = ^p0 >> 6 & 1
	st.b = ^p0 >> 5 & 1
	st.r2 = ^p0 >> 4 & 1
	st.w = p1 >> 7
	st.vvvv = ^p1 >> 3 & 0xF
	st.mp = ppPrefix[p1&3]
}

func (d *Decoder) decodeMVEX(inst *Instruction, p0, p1, p2 uint32) {
	st := &d.st
	st.encoding = EncodingMVEX

	table, ok := vexTables[p0&0xF]
	if !ok {
		st.failed |= failInvalid
		return
	}

	st.table = table
	d.evexCommon(p0, p1)

	st.mvxE = p2&0x80 != 0
	st.sss = p2 >> 4 & 7
	st.v2 = ^p2 >> 3 & 1
	st.aaa = p2 & 7
	st.effL = l512

	d.decodeVexOpcode(inst)
}

func (d *Decoder) decodeVexOpcode(inst *Instruction) {
	st := &d.st

	op := d.readByte()
	if st.failed != 0 {
		return
	}

	st.opcode = op
	node := dispatch[st.encoding][st.table][op]

	if node != nil && node.hasModRM {
		d.readModRM()
		if st.failed != 0 {
			return
		}
	}

	switch st.encoding {
	case EncodingVEX, EncodingXOP:
		st.effL = l128 + lBit(st.ll)
	case EncodingEVEX:
		st.effL = l128 + lBit(st.ll)
		if st.ll == 3 {
			st.effL = lReserved
		}

		if st.hasModRM && st.mod == 3 && st.bcst && node != nil && node.hasERSAE {
			st.effL = l512
		}
	}

	d.decodeSelected(inst, node)
}

func (d *Decoder) readModRM() {
	st := &d.st

	m := d.readByte()
	st.hasModRM = true
	st.modrm = m
	st.mod = m >> 6
	st.reg = m >> 3 & 7
	st.rm = m & 7
}

// decodeNode reads ModRM if the node needs it and decodes the first row
// that matches.
func (d *Decoder) decodeNode(inst *Instruction, node *dispatchNode) {
	st := &d.st

	if node != nil && node.hasModRM {
		d.readModRM()
		if st.failed != 0 {
			return
		}
	}

	d.decodeSelected(inst, node)
}

func (d *Decoder) decodeSelected(inst *Instruction, node *dispatchNode) {
	st := &d.st

	if node == nil {
		st.failed |= failInvalid
		return
	}

	ci := d.selectRow(node)
	if ci == nil {
		st.failed |= failInvalid
		return
	}

	if st.hasModRM != ci.hasModRM {
		st.failed |= failInternal
		return
	}

	d.decodeRow(inst, ci)
}
