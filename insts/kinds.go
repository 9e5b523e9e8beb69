package insts

import "fmt"

// OpKind is the kind of an instruction operand.
type OpKind uint8

// Operand kinds.
const (
	OpKindNone OpKind = iota
	OpKindRegister
	OpKindNearBranch16
	OpKindNearBranch32
	OpKindNearBranch64
	OpKindFarBranch16
	OpKindFarBranch32
	OpKindImmediate8
	OpKindImmediate8_2nd // second imm8 of ENTER
	OpKindImmediate16
	OpKindImmediate32
	OpKindImmediate64
	OpKindImmediate8to16
	OpKindImmediate8to32
	OpKindImmediate8to64
	OpKindImmediate32to64
	OpKindMemorySegSI
	OpKindMemorySegESI
	OpKindMemorySegRSI
	OpKindMemorySegDI
	OpKindMemorySegEDI
	OpKindMemorySegRDI
	OpKindMemoryESDI
	OpKindMemoryESEDI
	OpKindMemoryESRDI
	OpKindMemory
)

var opKindNames = [...]string{
	"None", "Register", "NearBranch16", "NearBranch32", "NearBranch64",
	"FarBranch16", "FarBranch32", "Immediate8", "Immediate8_2nd",
	"Immediate16", "Immediate32", "Immediate64", "Immediate8to16",
	"Immediate8to32", "Immediate8to64", "Immediate32to64",
	"MemorySegSI", "MemorySegESI", "MemorySegRSI", "MemorySegDI",
	"MemorySegEDI", "MemorySegRDI", "MemoryESDI", "MemoryESEDI",
	"MemoryESRDI", "Memory",
}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}

	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// IsImmediate reports whether k is one of the immediate kinds.
func (k OpKind) IsImmediate() bool {
	return k >= OpKindImmediate8 && k <= OpKindImmediate32to64
}

// IsMemory reports whether k addresses memory, including string operands.
func (k OpKind) IsMemory() bool {
	return k >= OpKindMemorySegSI && k <= OpKindMemory
}

// IsNearBranch reports whether k is a near branch target.
func (k OpKind) IsNearBranch() bool {
	return k >= OpKindNearBranch16 && k <= OpKindNearBranch64
}

// CodeSize is the bitness an instruction was decoded in.
type CodeSize uint8

// Code sizes.
const (
	CodeSizeUnknown CodeSize = iota
	CodeSize16
	CodeSize32
	CodeSize64
)

func (s CodeSize) String() string {
	switch s {
	case CodeSize16:
		return "Code16"
	case CodeSize32:
		return "Code32"
	case CodeSize64:
		return "Code64"
	}

	return "Unknown"
}

// Bits returns 16, 32, 64 or 0.
func (s CodeSize) Bits() int {
	switch s {
	case CodeSize16:
		return 16
	case CodeSize32:
		return 32
	case CodeSize64:
		return 64
	}

	return 0
}

func codeSizeFromBits(bits int) CodeSize {
	switch bits {
	case 16:
		return CodeSize16
	case 32:
		return CodeSize32
	case 64:
		return CodeSize64
	}

	return CodeSizeUnknown
}

// RoundingControl is the static rounding mode of an EVEX/MVEX instruction.
type RoundingControl uint8

// Rounding modes.
const (
	RoundingControlNone RoundingControl = iota
	RoundToNearest
	RoundDown
	RoundUp
	RoundTowardZero
)

func (rc RoundingControl) String() string {
	if rc > RoundTowardZero {
		return fmt.Sprintf("RoundingControl(%d)", uint8(rc))
	}

	return [...]string{"None", "RoundToNearest", "RoundDown", "RoundUp", "RoundTowardZero"}[rc]
}

// EncodingKind is the encoding family of an instruction.
type EncodingKind uint8

// Encoding families.
const (
	EncodingLegacy EncodingKind = iota
	EncodingVEX
	EncodingEVEX
	EncodingXOP
	Encoding3DNow
	EncodingMVEX

	encodingCount
)

func (e EncodingKind) String() string {
	if e < encodingCount {
		return [...]string{"Legacy", "VEX", "EVEX", "XOP", "3DNow", "MVEX"}[e]
	}

	return fmt.Sprintf("EncodingKind(%d)", uint8(e))
}

// OpCodeTable is the opcode map an instruction lives in.
type OpCodeTable uint8

// Opcode maps.
const (
	TableNormal OpCodeTable = iota
	Table0F
	Table0F38
	Table0F3A
	TableMap5
	TableMap6
	TableXOP8
	TableXOP9
	TableXOPA

	tableCount
)

func (t OpCodeTable) String() string {
	if t < tableCount {
		return [...]string{"Normal", "0F", "0F38", "0F3A", "Map5", "Map6", "XOP8", "XOP9", "XOPA"}[t]
	}

	return fmt.Sprintf("OpCodeTable(%d)", uint8(t))
}

// TupleType selects the EVEX disp8 scale factor. NxbY means N without
// broadcast and Y with broadcast.
type TupleType uint8

// Tuple types.
const (
	TupleTypeNone TupleType = iota
	TupleTypeN1
	TupleTypeN2
	TupleTypeN4
	TupleTypeN8
	TupleTypeN16
	TupleTypeN32
	TupleTypeN64
	TupleTypeN4b2
	TupleTypeN8b2
	TupleTypeN16b2
	TupleTypeN32b2
	TupleTypeN64b2
	TupleTypeN8b4
	TupleTypeN16b4
	TupleTypeN32b4
	TupleTypeN64b4
	TupleTypeN16b8
	TupleTypeN32b8
	TupleTypeN64b8

	tupleTypeCount
)

// tupleTypeN is indexed by tuple type and EVEX.b.
var tupleTypeN = [tupleTypeCount][2]uint32{
	TupleTypeNone:  {1, 1},
	TupleTypeN1:    {1, 1},
	TupleTypeN2:    {2, 2},
	TupleTypeN4:    {4, 4},
	TupleTypeN8:    {8, 8},
	TupleTypeN16:   {16, 16},
	TupleTypeN32:   {32, 32},
	TupleTypeN64:   {64, 64},
	TupleTypeN4b2:  {4, 2},
	TupleTypeN8b2:  {8, 2},
	TupleTypeN16b2: {16, 2},
	TupleTypeN32b2: {32, 2},
	TupleTypeN64b2: {64, 2},
	TupleTypeN8b4:  {8, 4},
	TupleTypeN16b4: {16, 4},
	TupleTypeN32b4: {32, 4},
	TupleTypeN64b4: {64, 4},
	TupleTypeN16b8: {16, 8},
	TupleTypeN32b8: {32, 8},
	TupleTypeN64b8: {64, 8},
}

// Disp8N returns the disp8 scale for the tuple type.
func (t TupleType) Disp8N(broadcast bool) uint32 {
	if t >= tupleTypeCount {
		return 1
	}

	if broadcast {
		return tupleTypeN[t][1]
	}

	return tupleTypeN[t][0]
}

func tupleTypeFor(n, nb uint32) TupleType {
	for t := TupleTypeN1; t < tupleTypeCount; t++ {
		if tupleTypeN[t][0] == n && tupleTypeN[t][1] == nb {
			return t
		}
	}

	return TupleTypeNone
}

func (t TupleType) String() string {
	if t == TupleTypeNone || t >= tupleTypeCount {
		return "None"
	}

	n, nb := tupleTypeN[t][0], tupleTypeN[t][1]
	if n == nb {
		return fmt.Sprintf("N%d", n)
	}

	return fmt.Sprintf("N%db%d", n, nb)
}

// MvexRegMemConv is the register swizzle or memory up/down conversion
// selected by MVEX.SSS.
type MvexRegMemConv uint8

// MVEX conversions.
const (
	MvexRegMemConvNone MvexRegMemConv = iota
	MvexRegSwizzleNone
	MvexRegSwizzleCdab
	MvexRegSwizzleBadc
	MvexRegSwizzleDacb
	MvexRegSwizzleAaaa
	MvexRegSwizzleBbbb
	MvexRegSwizzleCccc
	MvexRegSwizzleDddd
	MvexMemConvNone
	MvexMemConvBroadcast1
	MvexMemConvBroadcast4
	MvexMemConvFloat16
	MvexMemConvUint8
	MvexMemConvSint8
	MvexMemConvUint16
	MvexMemConvSint16
)

var mvexConvNames = [...]string{
	"None", "RegSwizzleNone", "RegSwizzleCdab", "RegSwizzleBadc",
	"RegSwizzleDacb", "RegSwizzleAaaa", "RegSwizzleBbbb", "RegSwizzleCccc",
	"RegSwizzleDddd", "MemConvNone", "MemConvBroadcast1", "MemConvBroadcast4",
	"MemConvFloat16", "MemConvUint8", "MemConvSint8", "MemConvUint16",
	"MemConvSint16",
}

func (c MvexRegMemConv) String() string {
	if int(c) < len(mvexConvNames) {
		return mvexConvNames[c]
	}

	return fmt.Sprintf("MvexRegMemConv(%d)", uint8(c))
}

// IsRegSwizzle reports whether c is a register swizzle other than none.
func (c MvexRegMemConv) IsRegSwizzle() bool {
	return c > MvexRegSwizzleNone && c <= MvexRegSwizzleDddd
}
