package insts

import (
	"fmt"
	"strings"
)

// Code identifies one architectural instruction form, e.g. "Add_rm32_r32".
// Codes are assigned in opcode table order, after the pseudo codes below.
type Code uint16

// Pseudo codes that do not come from the opcode table.
const (
	CodeInvalid Code = iota
	CodeDeclareByte
	CodeDeclareWord
	CodeDeclareDword
	CodeDeclareQword

	firstTableCode
)

// OperandKind is the static (table) kind of an operand slot. It says where
// the decoder finds the operand, not what the decoded operand is.
type OperandKind uint8

// Table operand kinds.
const (
	OperandNone OperandKind = iota

	// ModRM.reg
	OperandR8
	OperandR16
	OperandR32
	OperandR64
	OperandSreg
	OperandCR
	OperandDR
	OperandTR
	OperandMM
	OperandXMM
	OperandYMM
	OperandZMM
	OperandK
	OperandBND
	OperandTMM

	// ModRM.rm, register or memory
	OperandRM8
	OperandRM16
	OperandRM32
	OperandRM64
	OperandR32M8
	OperandR32M16
	OperandR64M16
	OperandMMM32
	OperandMMM64
	OperandXMMM8
	OperandXMMM16
	OperandXMMM32
	OperandXMMM64
	OperandXMMM128
	OperandYMMM256
	OperandZMMM512
	OperandKM8
	OperandKM16
	OperandKM32
	OperandKM64
	OperandBNDM64
	OperandBNDM128

	// ModRM.rm, register only
	OperandR16RM
	OperandR32RM
	OperandR64RM
	OperandMMRM
	OperandXMMRM
	OperandYMMRM
	OperandZMMRM
	OperandKRM
	OperandTMMRM

	// ModRM.rm, memory only
	OperandMem
	OperandVSIB32X
	OperandVSIB64X
	OperandVSIB32Y
	OperandVSIB64Y
	OperandVSIB32Z
	OperandVSIB64Z
	OperandSibMem
	OperandMib

	// VEX/EVEX/XOP vvvv
	OperandR32VVVV
	OperandR64VVVV
	OperandXMMVVVV
	OperandYMMVVVV
	OperandZMMVVVV
	OperandKVVVV
	OperandTMMVVVV

	// register in imm8[7:4]
	OperandXMMIs4
	OperandYMMIs4
	OperandXMMIs5
	OperandYMMIs5

	// register in opcode[2:0]
	OperandR8Opc
	OperandR16Opc
	OperandR32Opc
	OperandR64Opc

	OperandST0
	OperandSTi

	// fixed registers
	OperandAL
	OperandAX
	OperandEAX
	OperandRAX
	OperandCL
	OperandDX
	OperandES
	OperandCS
	OperandSS
	OperandDS
	OperandFS
	OperandGS

	// immediates
	OperandImm1
	OperandImm8
	OperandImm8_2nd
	OperandImm16
	OperandImm32
	OperandImm64
	OperandImm8Sex16
	OperandImm8Sex32
	OperandImm8Sex64
	OperandImm32Sex64
	OperandImm4M2Z

	// branches
	OperandRel8_16
	OperandRel8_32
	OperandRel8_64
	OperandRel16
	OperandRel32_32
	OperandRel32_64
	OperandPtr1616
	OperandPtr1632

	OperandMoffs
	OperandSegRSI
	OperandESRDI
	OperandSegRDI

	operandKindCount
)

type operandLoc uint8

const (
	locNone operandLoc = iota
	locReg
	locRM
	locRMReg
	locMem
	locVVVV
	locIs4
	locOpcode
	locST0
	locSTi
	locFixed
	locImm
	locBranch
	locMoffs
	locString
)

type operandKindInfo struct {
	name string
	loc  operandLoc

	// regBase is the first register of the class; gprSize is set for GPR
	// classes so 8-bit REX rules can apply.
	regBase Register
	gprSize int

	mem      MemorySize
	vsibBase Register
	fixed    Register
}

func gprOp(name string, loc operandLoc, size int, mem MemorySize) operandKindInfo {
	return operandKindInfo{name: name, loc: loc, gprSize: size, mem: mem}
}

func regOp(name string, loc operandLoc, base Register, mem MemorySize) operandKindInfo {
	return operandKindInfo{name: name, loc: loc, regBase: base, mem: mem}
}

func fixedOp(name string, r Register) operandKindInfo {
	return operandKindInfo{name: name, loc: locFixed, fixed: r}
}

var operandKindInfos = [operandKindCount]operandKindInfo{
	OperandNone: {name: "-"},

	OperandR8:   gprOp("r8", locReg, 1, 0),
	OperandR16:  gprOp("r16", locReg, 2, 0),
	OperandR32:  gprOp("r32", locReg, 4, 0),
	OperandR64:  gprOp("r64", locReg, 8, 0),
	OperandSreg: regOp("sreg", locReg, ES, 0),
	OperandCR:   regOp("cr", locReg, CR0, 0),
	OperandDR:   regOp("dr", locReg, DR0, 0),
	OperandTR:   regOp("tr", locReg, TR0, 0),
	OperandMM:   regOp("mm", locReg, MM0, 0),
	OperandXMM:  regOp("xmm", locReg, XMM0, 0),
	OperandYMM:  regOp("ymm", locReg, YMM0, 0),
	OperandZMM:  regOp("zmm", locReg, ZMM0, 0),
	OperandK:    regOp("k", locReg, K0, 0),
	OperandBND:  regOp("bnd", locReg, BND0, 0),
	OperandTMM:  regOp("tmm", locReg, TMM0, 0),

	OperandRM8:     gprOp("rm8", locRM, 1, MemorySizeUInt8),
	OperandRM16:    gprOp("rm16", locRM, 2, MemorySizeUInt16),
	OperandRM32:    gprOp("rm32", locRM, 4, MemorySizeUInt32),
	OperandRM64:    gprOp("rm64", locRM, 8, MemorySizeUInt64),
	OperandR32M8:   gprOp("r32m8", locRM, 4, MemorySizeUInt8),
	OperandR32M16:  gprOp("r32m16", locRM, 4, MemorySizeUInt16),
	OperandR64M16:  gprOp("r64m16", locRM, 8, MemorySizeUInt16),
	OperandMMM32:   regOp("mmm32", locRM, MM0, MemorySizeUInt32),
	OperandMMM64:   regOp("mmm64", locRM, MM0, MemorySizeUInt64),
	OperandXMMM8:   regOp("xmmm8", locRM, XMM0, MemorySizeUInt8),
	OperandXMMM16:  regOp("xmmm16", locRM, XMM0, MemorySizeUInt16),
	OperandXMMM32:  regOp("xmmm32", locRM, XMM0, MemorySizeUInt32),
	OperandXMMM64:  regOp("xmmm64", locRM, XMM0, MemorySizeUInt64),
	OperandXMMM128: regOp("xmmm128", locRM, XMM0, MemorySizeUInt128),
	OperandYMMM256: regOp("ymmm256", locRM, YMM0, MemorySizeUInt256),
	OperandZMMM512: regOp("zmmm512", locRM, ZMM0, MemorySizeUInt512),
	OperandKM8:     regOp("km8", locRM, K0, MemorySizeUInt8),
	OperandKM16:    regOp("km16", locRM, K0, MemorySizeUInt16),
	OperandKM32:    regOp("km32", locRM, K0, MemorySizeUInt32),
	OperandKM64:    regOp("km64", locRM, K0, MemorySizeUInt64),
	OperandBNDM64:  regOp("bndm64", locRM, BND0, MemorySizeBnd32),
	OperandBNDM128: regOp("bndm128", locRM, BND0, MemorySizeBnd64),

	OperandR16RM: gprOp("r16_rm", locRMReg, 2, 0),
	OperandR32RM: gprOp("r32_rm", locRMReg, 4, 0),
	OperandR64RM: gprOp("r64_rm", locRMReg, 8, 0),
	OperandMMRM:  regOp("mm_rm", locRMReg, MM0, 0),
	OperandXMMRM: regOp("xmm_rm", locRMReg, XMM0, 0),
	OperandYMMRM: regOp("ymm_rm", locRMReg, YMM0, 0),
	OperandZMMRM: regOp("zmm_rm", locRMReg, ZMM0, 0),
	OperandKRM:   regOp("k_rm", locRMReg, K0, 0),
	OperandTMMRM: regOp("tmm_rm", locRMReg, TMM0, 0),

	OperandMem:     {name: "m", loc: locMem},
	OperandVSIB32X: {name: "vsib32x", loc: locMem, vsibBase: XMM0, mem: MemorySizeUInt32},
	OperandVSIB64X: {name: "vsib64x", loc: locMem, vsibBase: XMM0, mem: MemorySizeUInt64},
	OperandVSIB32Y: {name: "vsib32y", loc: locMem, vsibBase: YMM0, mem: MemorySizeUInt32},
	OperandVSIB64Y: {name: "vsib64y", loc: locMem, vsibBase: YMM0, mem: MemorySizeUInt64},
	OperandVSIB32Z: {name: "vsib32z", loc: locMem, vsibBase: ZMM0, mem: MemorySizeUInt32},
	OperandVSIB64Z: {name: "vsib64z", loc: locMem, vsibBase: ZMM0, mem: MemorySizeUInt64},
	OperandSibMem:  {name: "sibmem", loc: locMem, mem: MemorySizeTile},
	OperandMib:     {name: "mib", loc: locMem},

	OperandR32VVVV: gprOp("r32_vvvv", locVVVV, 4, 0),
	OperandR64VVVV: gprOp("r64_vvvv", locVVVV, 8, 0),
	OperandXMMVVVV: regOp("xmm_vvvv", locVVVV, XMM0, 0),
	OperandYMMVVVV: regOp("ymm_vvvv", locVVVV, YMM0, 0),
	OperandZMMVVVV: regOp("zmm_vvvv", locVVVV, ZMM0, 0),
	OperandKVVVV:   regOp("k_vvvv", locVVVV, K0, 0),
	OperandTMMVVVV: regOp("tmm_vvvv", locVVVV, TMM0, 0),

	OperandXMMIs4: regOp("xmm_is4", locIs4, XMM0, 0),
	OperandYMMIs4: regOp("ymm_is4", locIs4, YMM0, 0),
	OperandXMMIs5: regOp("xmm_is5", locIs4, XMM0, 0),
	OperandYMMIs5: regOp("ymm_is5", locIs4, YMM0, 0),

	OperandR8Opc:  gprOp("r8_opc", locOpcode, 1, 0),
	OperandR16Opc: gprOp("r16_opc", locOpcode, 2, 0),
	OperandR32Opc: gprOp("r32_opc", locOpcode, 4, 0),
	OperandR64Opc: gprOp("r64_opc", locOpcode, 8, 0),

	OperandST0: {name: "st0", loc: locST0, fixed: ST0},

	OperandSTi: {name: "sti", loc: locSTi, regBase: ST0},

	OperandAL:  fixedOp("al", AL),
	OperandAX:  fixedOp("ax", AX),
	OperandEAX: fixedOp("eax", EAX),
	OperandRAX: fixedOp("rax", RAX),
	OperandCL:  fixedOp("cl", CL),
	OperandDX:  fixedOp("dx", DX),
	OperandES:  fixedOp("es", ES),
	OperandCS:  fixedOp("cs", CS),
	OperandSS:  fixedOp("ss", SS),
	OperandDS:  fixedOp("ds", DS),
	OperandFS:  fixedOp("fs", FS),
	OperandGS:  fixedOp("gs", GS),

	OperandImm1:       {name: "imm1", loc: locImm},
	OperandImm8:       {name: "imm8", loc: locImm},
	OperandImm8_2nd:   {name: "imm8_2nd", loc: locImm},
	OperandImm16:      {name: "imm16", loc: locImm},
	OperandImm32:      {name: "imm32", loc: locImm},
	OperandImm64:      {name: "imm64", loc: locImm},
	OperandImm8Sex16:  {name: "imm8sex16", loc: locImm},
	OperandImm8Sex32:  {name: "imm8sex32", loc: locImm},
	OperandImm8Sex64:  {name: "imm8sex64", loc: locImm},
	OperandImm32Sex64: {name: "imm32sex64", loc: locImm},
	OperandImm4M2Z:    {name: "imm4m2z", loc: locImm},

	OperandRel8_16:  {name: "rel8_16", loc: locBranch},
	OperandRel8_32:  {name: "rel8_32", loc: locBranch},
	OperandRel8_64:  {name: "rel8_64", loc: locBranch},
	OperandRel16:    {name: "rel16", loc: locBranch},
	OperandRel32_32: {name: "rel32_32", loc: locBranch},
	OperandRel32_64: {name: "rel32_64", loc: locBranch},
	OperandPtr1616:  {name: "ptr1616", loc: locBranch},
	OperandPtr1632:  {name: "ptr1632", loc: locBranch},

	OperandMoffs: {name: "moffs", loc: locMoffs},

	OperandSegRSI: {name: "seg_rsi", loc: locString},
	OperandESRDI:  {name: "es_rdi", loc: locString},
	OperandSegRDI: {name: "seg_rdi", loc: locString},
}

var operandKindByName = func() map[string]OperandKind {
	m := make(map[string]OperandKind, operandKindCount)
	for i := range operandKindInfos {
		m[operandKindInfos[i].name] = OperandKind(i)
	}

	return m
}()

func (k OperandKind) String() string {
	if k >= operandKindCount {
		return fmt.Sprintf("OperandKind(%d)", uint8(k))
	}

	return operandKindInfos[k].name
}

// IsMemoryOnly reports whether the slot never holds a register.
func (k OperandKind) IsMemoryOnly() bool {
	return k < operandKindCount && operandKindInfos[k].loc == locMem
}

// IsVSIB reports whether the slot is a VSIB memory operand.
func (k OperandKind) IsVSIB() bool {
	return k < operandKindCount && operandKindInfos[k].vsibBase != RegisterNone
}

// VSIBIndexSize returns the size in bytes of one VSIB index element, or 0
// if k is not a VSIB operand.
func (k OperandKind) VSIBIndexSize() int {
	if !k.IsVSIB() {
		return 0
	}

	return operandKindInfos[k].mem.Size()
}

// OperandAccess is the static access pattern of an operand slot. Some
// patterns are resolved against the decoded instruction by the info
// factory (for example WriteVmm under merging masking).
type OperandAccess uint8

// Operand access patterns.
const (
	AccessNone OperandAccess = iota
	AccessRead
	AccessWrite
	AccessReadWrite
	AccessCondRead
	AccessCondWrite
	AccessReadCondWrite
	AccessNoMemAccess
	AccessWriteForce
	AccessWriteVmm
	AccessReadWriteVmm
	AccessCondWrite32ReadWrite64
	AccessWriteMemReadWriteReg

	operandAccessCount
)

var operandAccessTokens = [operandAccessCount]string{
	"x", "r", "w", "rw", "cr", "cw", "rcw", "n", "wf", "wvmm", "rwvmm", "cw32", "wmrw",
}

var operandAccessNames = [operandAccessCount]string{
	"None", "Read", "Write", "ReadWrite", "CondRead", "CondWrite", "ReadCondWrite",
	"NoMemAccess", "WriteForce", "WriteVmm", "ReadWriteVmm",
	"CondWrite32_ReadWrite64", "WriteMem_ReadWriteReg",
}

func (a OperandAccess) String() string {
	if a >= operandAccessCount {
		return fmt.Sprintf("OperandAccess(%d)", uint8(a))
	}

	return operandAccessNames[a]
}

// Idiom marks instructions whose register usage collapses when source
// registers repeat.
type Idiom uint8

// Self-zeroing idioms.
const (
	IdiomNone Idiom = iota
	// IdiomClearRegRegmem: op0 = f(op0, op1) is zero when op0 == op1.
	IdiomClearRegRegmem
	// IdiomClearRegRegRegmem: op0 = f(op1, op2) is zero when op1 == op2.
	IdiomClearRegRegRegmem
	// IdiomClearRflags: like IdiomClearRegRegmem and the flags become constant.
	IdiomClearRflags
)

// Rflags bits.
const (
	RflagsOF uint32 = 1 << iota
	RflagsSF
	RflagsZF
	RflagsAF
	RflagsCF
	RflagsPF
	RflagsDF
	RflagsIF
	RflagsAC
)

var rflagsLetters = map[byte]uint32{
	'o': RflagsOF, 's': RflagsSF, 'z': RflagsZF, 'a': RflagsAF,
	'c': RflagsCF, 'p': RflagsPF, 'd': RflagsDF, 'i': RflagsIF, 'u': RflagsAC,
}

// Rflags is the static RFLAGS usage of a code.
type Rflags struct {
	Read      uint32
	Written   uint32
	Cleared   uint32
	Set       uint32
	Undefined uint32
}

// Modified returns every flag the instruction can change.
func (r Rflags) Modified() uint32 {
	return r.Written | r.Cleared | r.Set | r.Undefined
}

// RflagsString spells a flag mask in the table's letters ("oszacpdiu"
// order), or "-" for an empty mask.
func RflagsString(bits uint32) string {
	var b []byte

	for _, c := range []byte("oszacpdiu") {
		if bits&rflagsLetters[c] != 0 {
			b = append(b, c)
		}
	}

	if len(b) == 0 {
		return "-"
	}

	return string(b)
}

type mandatoryPrefix uint8

const (
	mpAny mandatoryPrefix = iota
	mpNP
	mp66
	mpF3
	mpF2
)

type wBit uint8

const (
	wIG wBit = iota
	w0
	w1
	wIG32
)

type lBit uint8

const (
	lIG lBit = iota
	l128
	l256
	l512
)

type modeMask uint8

const (
	mode16 modeMask = 1 << iota
	mode32
	mode64

	modeAll = mode16 | mode32 | mode64
)

type codeFlags uint64

const (
	flagLock codeFlags = 1 << iota
	flagXacquire
	flagXrelease
	flagHleNoLock
	flagRep
	flagRepe
	flagBnd
	flagNotrack
	flagD64
	flagF64
	flagK1
	flagZ
	flagBcst
	flagER
	flagSAE
	flagKReq
	flagKW
	flagKPair
	flagFwait
	flagNoSeg
	flagNoRexB
	flagAnyMod
	flagNoRepPrefix
)

// codeInfo is one parsed opcode table row.
type codeInfo struct {
	code     Code
	name     string
	mnemonic string

	encoding  EncodingKind
	table     OpCodeTable
	opcode    uint8
	mandatory mandatoryPrefix
	opSize    uint8
	addrSize  uint8
	w         wBit
	l         lBit
	modes     modeMask

	hasModRM    bool
	regInOpcode bool
	group       int8
	fixedRM     int8
	requireMod3 bool
	requireMem  bool
	suffix      uint8

	ops     [5]OperandKind
	access  [5]OperandAccess
	opCount int
	flags   codeFlags
	mem     MemorySize
	bcst    MemorySize
	tuple   TupleType

	mvexKind      mvexTupleKind
	mvexNoConv    uint8
	mvexNoSwizzle uint8

	ifOpt       DecoderOptions
	unlessOpt   DecoderOptions
	unless64Opt DecoderOptions

	cpuid   string
	implied string
	idiom   Idiom
	rflags  Rflags

	fwaitTwin Code
	priority  int
}

func (c *codeInfo) has(f codeFlags) bool { return c.flags&f != 0 }

var codeInfos []*codeInfo

var codeByName = map[string]Code{}

func (c Code) info() *codeInfo {
	if int(c) < len(codeInfos) {
		return codeInfos[c]
	}

	return codeInfos[CodeInvalid]
}

// CodeByName looks up a code by its name, e.g. "Add_rm32_r32".
func CodeByName(name string) (Code, bool) {
	c, ok := codeByName[name]
	return c, ok
}

// MustCode is like CodeByName but panics on unknown names. It is meant for
// tests and package-level variables.
func MustCode(name string) Code {
	c, ok := codeByName[name]
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrUnknownCode, name))
	}

	return c
}

// CodeCount returns the number of codes, including pseudo codes.
func CodeCount() int {
	return len(codeInfos)
}

func (c Code) String() string {
	if int(c) >= len(codeInfos) {
		return fmt.Sprintf("Code(%d)", uint16(c))
	}

	return codeInfos[c].name
}

// Mnemonic returns the lower-case mnemonic, e.g. "add".
func (c Code) Mnemonic() string { return c.info().mnemonic }

// Encoding returns the encoding family of c.
func (c Code) Encoding() EncodingKind { return c.info().encoding }

// Table returns the opcode map of c.
func (c Code) Table() OpCodeTable { return c.info().table }

// OpCode returns the primary opcode byte (the 3DNow! suffix for 3DNow! codes).
func (c Code) OpCode() uint8 {
	if ci := c.info(); ci.encoding == Encoding3DNow {
		return ci.suffix
	}

	return c.info().opcode
}

// OpCount returns the number of operands of c.
func (c Code) OpCount() int { return c.info().opCount }

// OperandKind returns the table operand kind of slot i, or OperandNone.
func (c Code) OperandKind(i int) OperandKind {
	if i < 0 || i >= len(c.info().ops) {
		return OperandNone
	}

	return c.info().ops[i]
}

// OperandAccess returns the table access pattern of slot i.
func (c Code) OperandAccess(i int) OperandAccess {
	if i < 0 || i >= len(c.info().access) {
		return AccessNone
	}

	return c.info().access[i]
}

// TupleType returns the EVEX disp8 tuple type of c.
func (c Code) TupleType() TupleType { return c.info().tuple }

// CPUIDFeature returns the CPUID feature name that enables c.
func (c Code) CPUIDFeature() string { return c.info().cpuid }

// Implied returns the implied-access program of c (see package info).
func (c Code) Implied() string { return c.info().implied }

// Rflags returns the static RFLAGS usage of c.
func (c Code) Rflags() Rflags { return c.info().rflags }

// Idiom returns the self-zeroing idiom class of c.
func (c Code) Idiom() Idiom { return c.info().idiom }

// HasFwait reports whether c includes a leading FWAIT (9B).
func (c Code) HasFwait() bool { return c.info().has(flagFwait) }

// IgnoresSegment reports whether the memory operand's segment is not
// accessed (LEA, prefetches and similar).
func (c Code) IgnoresSegment() bool { return c.info().has(flagNoSeg) }

// WritesOpMask reports whether c writes the opmask register in EVEX.aaa.
func (c Code) WritesOpMask() bool { return c.info().has(flagKW) }

// IsKPair reports whether the K destination names a pair k(n), k(n^1).
func (c Code) IsKPair() bool { return c.info().has(flagKPair) }

// CanBroadcast reports whether c accepts EVEX embedded broadcast.
func (c Code) CanBroadcast() bool { return c.info().has(flagBcst) }

// BroadcastMemorySize returns the memory size used with EVEX.b, if any.
func (c Code) BroadcastMemorySize() MemorySize { return c.info().bcst }

// CanUseLock reports whether c accepts a LOCK prefix.
func (c Code) CanUseLock() bool { return c.info().has(flagLock) }

// IsStringOp reports whether c is a string instruction accepting REP.
func (c Code) IsStringOp() bool { return c.info().has(flagRep | flagRepe) }

// IsDeclareData reports whether c is one of the DeclareXxx pseudo codes.
func (c Code) IsDeclareData() bool {
	return c >= CodeDeclareByte && c <= CodeDeclareQword
}

// Valid16 reports whether c decodes in 16-bit mode.
func (c Code) Valid16() bool { return c.info().modes&mode16 != 0 }

// Valid32 reports whether c decodes in 32-bit mode.
func (c Code) Valid32() bool { return c.info().modes&mode32 != 0 }

// Valid64 reports whether c decodes in 64-bit mode.
func (c Code) Valid64() bool { return c.info().modes&mode64 != 0 }

func mnemonicOf(name string) string {
	for _, enc := range []string{"VEX_", "EVEX_", "XOP_", "MVEX_"} {
		name = strings.TrimPrefix(name, enc)
	}

	if i := strings.IndexByte(name, '_'); i >= 0 {
		name = name[:i]
	}

	return strings.ToLower(name)
}
