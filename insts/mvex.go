package insts

// mvexTupleKind selects the row of the MVEX conversion table that an
// opcode uses for MVEX.SSS on memory operands.
type mvexTupleKind uint8

const (
	mvexNone mvexTupleKind = iota
	mvexFloat32
	mvexInt32
	mvexFloat64
	mvexInt64
	mvexInt32Half
	mvexFloat32Half

	mvexKindCount
)

var mvexKindNames = map[string]mvexTupleKind{
	"Float32":     mvexFloat32,
	"Int32":       mvexInt32,
	"Float64":     mvexFloat64,
	"Int64":       mvexInt64,
	"Int32Half":   mvexInt32Half,
	"Float32Half": mvexFloat32Half,
}

type mvexConv struct {
	conv MvexRegMemConv
	n    uint32
	mem  MemorySize
}

// mvexConvTable is indexed by tuple kind and SSS. A zero n marks a reserved
// encoding.
var mvexConvTable = [mvexKindCount][8]mvexConv{
	mvexFloat32: {
		{MvexMemConvNone, 64, MemorySizePacked512Float32},
		{MvexMemConvBroadcast1, 4, MemorySizeBroadcast512Float32},
		{MvexMemConvBroadcast4, 16, MemorySizePacked128Float32},
		{MvexMemConvFloat16, 32, MemorySizePacked256Float16},
		{MvexMemConvUint8, 16, MemorySizePacked128UInt8},
		{},
		{MvexMemConvUint16, 32, MemorySizePacked256UInt16},
		{MvexMemConvSint16, 32, MemorySizePacked256Int16},
	},
	mvexInt32: {
		{MvexMemConvNone, 64, MemorySizePacked512Int32},
		{MvexMemConvBroadcast1, 4, MemorySizeBroadcast512Int32},
		{MvexMemConvBroadcast4, 16, MemorySizePacked128Int32},
		{},
		{MvexMemConvUint8, 16, MemorySizePacked128UInt8},
		{MvexMemConvSint8, 16, MemorySizePacked128Int8},
		{MvexMemConvUint16, 32, MemorySizePacked256UInt16},
		{MvexMemConvSint16, 32, MemorySizePacked256Int16},
	},
	mvexFloat64: {
		{MvexMemConvNone, 64, MemorySizePacked512Float64},
		{MvexMemConvBroadcast1, 8, MemorySizeBroadcast512Float64},
		{MvexMemConvBroadcast4, 32, MemorySizePacked256Float64},
	},
	mvexInt64: {
		{MvexMemConvNone, 64, MemorySizePacked512Int64},
		{MvexMemConvBroadcast1, 8, MemorySizeBroadcast512Int64},
		{MvexMemConvBroadcast4, 32, MemorySizePacked256Int64},
	},
	mvexInt32Half: {
		{MvexMemConvNone, 32, MemorySizePacked256Int32},
		{},
		{},
		{},
		{MvexMemConvUint8, 8, MemorySizePacked64UInt8},
		{MvexMemConvSint8, 8, MemorySizePacked64Int8},
		{MvexMemConvUint16, 16, MemorySizePacked128UInt16},
		{MvexMemConvSint16, 16, MemorySizePacked128Int16},
	},
	mvexFloat32Half: {
		{MvexMemConvNone, 32, MemorySizePacked256Float32},
		{},
		{},
		{MvexMemConvFloat16, 16, MemorySizePacked128Float16},
		{MvexMemConvUint8, 8, MemorySizePacked64UInt8},
		{},
		{MvexMemConvUint16, 16, MemorySizePacked128UInt16},
		{MvexMemConvSint16, 16, MemorySizePacked128Int16},
	},
}

// mvexMemConv returns the conversion for a memory operand, or ok=false if
// the SSS value is reserved for the kind.
func mvexMemConv(kind mvexTupleKind, sss uint32) (mvexConv, bool) {
	if kind == mvexNone || kind >= mvexKindCount {
		return mvexConv{conv: MvexMemConvNone, n: 64, mem: MemorySizeUInt512}, sss == 0
	}

	c := mvexConvTable[kind][sss&7]

	return c, c.n != 0
}

// mvexSwizzle returns the register swizzle selected by SSS in reg form.
func mvexSwizzle(sss uint32) MvexRegMemConv {
	return MvexRegSwizzleNone + MvexRegMemConv(sss&7)
}
