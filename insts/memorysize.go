package insts

import "fmt"

// MemorySize describes the size and element layout of a memory operand.
type MemorySize uint8

// Memory sizes. PackedN_T is an N-bit vector of T elements; BroadcastN_T is
// a single T element broadcast to an N-bit vector.
const (
	MemorySizeUnknown MemorySize = iota
	MemorySizeUInt8
	MemorySizeUInt16
	MemorySizeUInt32
	MemorySizeUInt52
	MemorySizeUInt64
	MemorySizeUInt128
	MemorySizeUInt256
	MemorySizeUInt512
	MemorySizeInt8
	MemorySizeInt16
	MemorySizeInt32
	MemorySizeInt64
	MemorySizeWordOffset
	MemorySizeDwordOffset
	MemorySizeQwordOffset
	MemorySizeBound16WordWord
	MemorySizeBound32DwordDword
	MemorySizeBnd32
	MemorySizeBnd64
	MemorySizeFword6
	MemorySizeFword10
	MemorySizeFloat16
	MemorySizeFloat32
	MemorySizeFloat64
	MemorySizeFloat80
	MemorySizeBFloat16
	MemorySizeFpuEnv14
	MemorySizeFpuEnv28
	MemorySizeFpuState94
	MemorySizeFpuState108
	MemorySizeFxsave512Byte
	MemorySizeFxsave64512Byte
	MemorySizeXsave
	MemorySizeXsave64
	MemorySizeBcd
	MemorySizeTilecfg
	MemorySizeTile
	MemorySizeSegmentDescSelector
	MemorySizeSegPtr16
	MemorySizeSegPtr32
	MemorySizeSegPtr64
	MemorySizePacked32UInt8
	MemorySizePacked32Int8
	MemorySizePacked32UInt16
	MemorySizePacked32Int16
	MemorySizePacked32Float16
	MemorySizePacked32BFloat16
	MemorySizePacked64UInt8
	MemorySizePacked64Int8
	MemorySizePacked64UInt16
	MemorySizePacked64Int16
	MemorySizePacked64UInt32
	MemorySizePacked64Int32
	MemorySizePacked64Float16
	MemorySizePacked64Float32
	MemorySizePacked64BFloat16
	MemorySizePacked128UInt8
	MemorySizePacked128Int8
	MemorySizePacked128UInt16
	MemorySizePacked128Int16
	MemorySizePacked128UInt32
	MemorySizePacked128Int32
	MemorySizePacked128UInt52
	MemorySizePacked128UInt64
	MemorySizePacked128Int64
	MemorySizePacked128Float16
	MemorySizePacked128Float32
	MemorySizePacked128Float64
	MemorySizePacked128BFloat16
	MemorySizePacked256UInt8
	MemorySizePacked256Int8
	MemorySizePacked256UInt16
	MemorySizePacked256Int16
	MemorySizePacked256UInt32
	MemorySizePacked256Int32
	MemorySizePacked256UInt52
	MemorySizePacked256UInt64
	MemorySizePacked256Int64
	MemorySizePacked256Float16
	MemorySizePacked256Float32
	MemorySizePacked256Float64
	MemorySizePacked256BFloat16
	MemorySizePacked512UInt8
	MemorySizePacked512Int8
	MemorySizePacked512UInt16
	MemorySizePacked512Int16
	MemorySizePacked512UInt32
	MemorySizePacked512Int32
	MemorySizePacked512UInt52
	MemorySizePacked512UInt64
	MemorySizePacked512Int64
	MemorySizePacked512Float16
	MemorySizePacked512Float32
	MemorySizePacked512Float64
	MemorySizePacked512BFloat16
	MemorySizeBroadcast32Float16
	MemorySizeBroadcast64UInt32
	MemorySizeBroadcast64Int32
	MemorySizeBroadcast64Float16
	MemorySizeBroadcast64Float32
	MemorySizeBroadcast128UInt32
	MemorySizeBroadcast128Int32
	MemorySizeBroadcast128UInt52
	MemorySizeBroadcast128UInt64
	MemorySizeBroadcast128Int64
	MemorySizeBroadcast128Float16
	MemorySizeBroadcast128Float32
	MemorySizeBroadcast128Float64
	MemorySizeBroadcast256UInt32
	MemorySizeBroadcast256Int32
	MemorySizeBroadcast256UInt52
	MemorySizeBroadcast256UInt64
	MemorySizeBroadcast256Int64
	MemorySizeBroadcast256Float16
	MemorySizeBroadcast256Float32
	MemorySizeBroadcast256Float64
	MemorySizeBroadcast512UInt32
	MemorySizeBroadcast512Int32
	MemorySizeBroadcast512UInt52
	MemorySizeBroadcast512UInt64
	MemorySizeBroadcast512Int64
	MemorySizeBroadcast512Float16
	MemorySizeBroadcast512Float32
	MemorySizeBroadcast512Float64

	memorySizeCount
)

type memorySizeInfo struct {
	name        string
	size        int
	elementSize int
	element     MemorySize
	broadcast   bool
}

var memorySizeInfos = [memorySizeCount]memorySizeInfo{
	MemorySizeUnknown:             {"Unknown", 0, 0, MemorySizeUnknown, false},
	MemorySizeUInt8:               {"UInt8", 1, 1, MemorySizeUInt8, false},
	MemorySizeUInt16:              {"UInt16", 2, 2, MemorySizeUInt16, false},
	MemorySizeUInt32:              {"UInt32", 4, 4, MemorySizeUInt32, false},
	MemorySizeUInt52:              {"UInt52", 8, 8, MemorySizeUInt52, false},
	MemorySizeUInt64:              {"UInt64", 8, 8, MemorySizeUInt64, false},
	MemorySizeUInt128:             {"UInt128", 16, 16, MemorySizeUInt128, false},
	MemorySizeUInt256:             {"UInt256", 32, 32, MemorySizeUInt256, false},
	MemorySizeUInt512:             {"UInt512", 64, 64, MemorySizeUInt512, false},
	MemorySizeInt8:                {"Int8", 1, 1, MemorySizeInt8, false},
	MemorySizeInt16:               {"Int16", 2, 2, MemorySizeInt16, false},
	MemorySizeInt32:               {"Int32", 4, 4, MemorySizeInt32, false},
	MemorySizeInt64:               {"Int64", 8, 8, MemorySizeInt64, false},
	MemorySizeWordOffset:          {"WordOffset", 2, 2, MemorySizeWordOffset, false},
	MemorySizeDwordOffset:         {"DwordOffset", 4, 4, MemorySizeDwordOffset, false},
	MemorySizeQwordOffset:         {"QwordOffset", 8, 8, MemorySizeQwordOffset, false},
	MemorySizeBound16WordWord:     {"Bound16_WordWord", 4, 4, MemorySizeBound16WordWord, false},
	MemorySizeBound32DwordDword:   {"Bound32_DwordDword", 8, 8, MemorySizeBound32DwordDword, false},
	MemorySizeBnd32:               {"Bnd32", 8, 8, MemorySizeBnd32, false},
	MemorySizeBnd64:               {"Bnd64", 16, 16, MemorySizeBnd64, false},
	MemorySizeFword6:              {"Fword6", 6, 6, MemorySizeFword6, false},
	MemorySizeFword10:             {"Fword10", 10, 10, MemorySizeFword10, false},
	MemorySizeFloat16:             {"Float16", 2, 2, MemorySizeFloat16, false},
	MemorySizeFloat32:             {"Float32", 4, 4, MemorySizeFloat32, false},
	MemorySizeFloat64:             {"Float64", 8, 8, MemorySizeFloat64, false},
	MemorySizeFloat80:             {"Float80", 10, 10, MemorySizeFloat80, false},
	MemorySizeBFloat16:            {"BFloat16", 2, 2, MemorySizeBFloat16, false},
	MemorySizeFpuEnv14:            {"FpuEnv14", 14, 14, MemorySizeFpuEnv14, false},
	MemorySizeFpuEnv28:            {"FpuEnv28", 28, 28, MemorySizeFpuEnv28, false},
	MemorySizeFpuState94:          {"FpuState94", 94, 94, MemorySizeFpuState94, false},
	MemorySizeFpuState108:         {"FpuState108", 108, 108, MemorySizeFpuState108, false},
	MemorySizeFxsave512Byte:       {"Fxsave_512Byte", 512, 512, MemorySizeFxsave512Byte, false},
	MemorySizeFxsave64512Byte:     {"Fxsave64_512Byte", 512, 512, MemorySizeFxsave64512Byte, false},
	MemorySizeXsave:               {"Xsave", 0, 0, MemorySizeXsave, false},
	MemorySizeXsave64:             {"Xsave64", 0, 0, MemorySizeXsave64, false},
	MemorySizeBcd:                 {"Bcd", 10, 10, MemorySizeBcd, false},
	MemorySizeTilecfg:             {"Tilecfg", 64, 64, MemorySizeTilecfg, false},
	MemorySizeTile:                {"Tile", 0, 0, MemorySizeTile, false},
	MemorySizeSegmentDescSelector: {"SegmentDescSelector", 10, 10, MemorySizeSegmentDescSelector, false},
	MemorySizeSegPtr16:            {"SegPtr16", 4, 4, MemorySizeSegPtr16, false},
	MemorySizeSegPtr32:            {"SegPtr32", 6, 6, MemorySizeSegPtr32, false},
	MemorySizeSegPtr64:            {"SegPtr64", 10, 10, MemorySizeSegPtr64, false},
	MemorySizePacked32UInt8:       {"Packed32_UInt8", 4, 1, MemorySizeUInt8, false},
	MemorySizePacked32Int8:        {"Packed32_Int8", 4, 1, MemorySizeInt8, false},
	MemorySizePacked32UInt16:      {"Packed32_UInt16", 4, 2, MemorySizeUInt16, false},
	MemorySizePacked32Int16:       {"Packed32_Int16", 4, 2, MemorySizeInt16, false},
	MemorySizePacked32Float16:     {"Packed32_Float16", 4, 2, MemorySizeFloat16, false},
	MemorySizePacked32BFloat16:    {"Packed32_BFloat16", 4, 2, MemorySizeBFloat16, false},
	MemorySizePacked64UInt8:       {"Packed64_UInt8", 8, 1, MemorySizeUInt8, false},
	MemorySizePacked64Int8:        {"Packed64_Int8", 8, 1, MemorySizeInt8, false},
	MemorySizePacked64UInt16:      {"Packed64_UInt16", 8, 2, MemorySizeUInt16, false},
	MemorySizePacked64Int16:       {"Packed64_Int16", 8, 2, MemorySizeInt16, false},
	MemorySizePacked64UInt32:      {"Packed64_UInt32", 8, 4, MemorySizeUInt32, false},
	MemorySizePacked64Int32:       {"Packed64_Int32", 8, 4, MemorySizeInt32, false},
	MemorySizePacked64Float16:     {"Packed64_Float16", 8, 2, MemorySizeFloat16, false},
	MemorySizePacked64Float32:     {"Packed64_Float32", 8, 4, MemorySizeFloat32, false},
	MemorySizePacked64BFloat16:    {"Packed64_BFloat16", 8, 2, MemorySizeBFloat16, false},
	MemorySizePacked128UInt8:      {"Packed128_UInt8", 16, 1, MemorySizeUInt8, false},
	MemorySizePacked128Int8:       {"Packed128_Int8", 16, 1, MemorySizeInt8, false},
	MemorySizePacked128UInt16:     {"Packed128_UInt16", 16, 2, MemorySizeUInt16, false},
	MemorySizePacked128Int16:      {"Packed128_Int16", 16, 2, MemorySizeInt16, false},
	MemorySizePacked128UInt32:     {"Packed128_UInt32", 16, 4, MemorySizeUInt32, false},
	MemorySizePacked128Int32:      {"Packed128_Int32", 16, 4, MemorySizeInt32, false},
	MemorySizePacked128UInt52:     {"Packed128_UInt52", 16, 8, MemorySizeUInt52, false},
	MemorySizePacked128UInt64:     {"Packed128_UInt64", 16, 8, MemorySizeUInt64, false},
	MemorySizePacked128Int64:      {"Packed128_Int64", 16, 8, MemorySizeInt64, false},
	MemorySizePacked128Float16:    {"Packed128_Float16", 16, 2, MemorySizeFloat16, false},
	MemorySizePacked128Float32:    {"Packed128_Float32", 16, 4, MemorySizeFloat32, false},
	MemorySizePacked128Float64:    {"Packed128_Float64", 16, 8, MemorySizeFloat64, false},
	MemorySizePacked128BFloat16:   {"Packed128_BFloat16", 16, 2, MemorySizeBFloat16, false},
	MemorySizePacked256UInt8:      {"Packed256_UInt8", 32, 1, MemorySizeUInt8, false},
	MemorySizePacked256Int8:       {"Packed256_Int8", 32, 1, MemorySizeInt8, false},
	MemorySizePacked256UInt16:     {"Packed256_UInt16", 32, 2, MemorySizeUInt16, false},
	MemorySizePacked256Int16:      {"Packed256_Int16", 32, 2, MemorySizeInt16, false},
	MemorySizePacked256UInt32:     {"Packed256_UInt32", 32, 4, MemorySizeUInt32, false},
	MemorySizePacked256Int32:      {"Packed256_Int32", 32, 4, MemorySizeInt32, false},
	MemorySizePacked256UInt52:     {"Packed256_UInt52", 32, 8, MemorySizeUInt52, false},
	MemorySizePacked256UInt64:     {"Packed256_UInt64", 32, 8, MemorySizeUInt64, false},
	MemorySizePacked256Int64:      {"Packed256_Int64", 32, 8, MemorySizeInt64, false},
	MemorySizePacked256Float16:    {"Packed256_Float16", 32, 2, MemorySizeFloat16, false},
	MemorySizePacked256Float32:    {"Packed256_Float32", 32, 4, MemorySizeFloat32, false},
	MemorySizePacked256Float64:    {"Packed256_Float64", 32, 8, MemorySizeFloat64, false},
	MemorySizePacked256BFloat16:   {"Packed256_BFloat16", 32, 2, MemorySizeBFloat16, false},
	MemorySizePacked512UInt8:      {"Packed512_UInt8", 64, 1, MemorySizeUInt8, false},
	MemorySizePacked512Int8:       {"Packed512_Int8", 64, 1, MemorySizeInt8, false},
	MemorySizePacked512UInt16:     {"Packed512_UInt16", 64, 2, MemorySizeUInt16, false},
	MemorySizePacked512Int16:      {"Packed512_Int16", 64, 2, MemorySizeInt16, false},
	MemorySizePacked512UInt32:     {"Packed512_UInt32", 64, 4, MemorySizeUInt32, false},
	MemorySizePacked512Int32:      {"Packed512_Int32", 64, 4, MemorySizeInt32, false},
	MemorySizePacked512UInt52:     {"Packed512_UInt52", 64, 8, MemorySizeUInt52, false},
	MemorySizePacked512UInt64:     {"Packed512_UInt64", 64, 8, MemorySizeUInt64, false},
	MemorySizePacked512Int64:      {"Packed512_Int64", 64, 8, MemorySizeInt64, false},
	MemorySizePacked512Float16:    {"Packed512_Float16", 64, 2, MemorySizeFloat16, false},
	MemorySizePacked512Float32:    {"Packed512_Float32", 64, 4, MemorySizeFloat32, false},
	MemorySizePacked512Float64:    {"Packed512_Float64", 64, 8, MemorySizeFloat64, false},
	MemorySizePacked512BFloat16:   {"Packed512_BFloat16", 64, 2, MemorySizeBFloat16, false},
	MemorySizeBroadcast32Float16:  {"Broadcast32_Float16", 2, 2, MemorySizeFloat16, true},
	MemorySizeBroadcast64UInt32:   {"Broadcast64_UInt32", 4, 4, MemorySizeUInt32, true},
	MemorySizeBroadcast64Int32:    {"Broadcast64_Int32", 4, 4, MemorySizeInt32, true},
	MemorySizeBroadcast64Float16:  {"Broadcast64_Float16", 2, 2, MemorySizeFloat16, true},
	MemorySizeBroadcast64Float32:  {"Broadcast64_Float32", 4, 4, MemorySizeFloat32, true},
	MemorySizeBroadcast128UInt32:  {"Broadcast128_UInt32", 4, 4, MemorySizeUInt32, true},
	MemorySizeBroadcast128Int32:   {"Broadcast128_Int32", 4, 4, MemorySizeInt32, true},
	MemorySizeBroadcast128UInt52:  {"Broadcast128_UInt52", 8, 8, MemorySizeUInt52, true},
	MemorySizeBroadcast128UInt64:  {"Broadcast128_UInt64", 8, 8, MemorySizeUInt64, true},
	MemorySizeBroadcast128Int64:   {"Broadcast128_Int64", 8, 8, MemorySizeInt64, true},
	MemorySizeBroadcast128Float16: {"Broadcast128_Float16", 2, 2, MemorySizeFloat16, true},
	MemorySizeBroadcast128Float32: {"Broadcast128_Float32", 4, 4, MemorySizeFloat32, true},
	MemorySizeBroadcast128Float64: {"Broadcast128_Float64", 8, 8, MemorySizeFloat64, true},
	MemorySizeBroadcast256UInt32:  {"Broadcast256_UInt32", 4, 4, MemorySizeUInt32, true},
	MemorySizeBroadcast256Int32:   {"Broadcast256_Int32", 4, 4, MemorySizeInt32, true},
	MemorySizeBroadcast256UInt52:  {"Broadcast256_UInt52", 8, 8, MemorySizeUInt52, true},
	MemorySizeBroadcast256UInt64:  {"Broadcast256_UInt64", 8, 8, MemorySizeUInt64, true},
	MemorySizeBroadcast256Int64:   {"Broadcast256_Int64", 8, 8, MemorySizeInt64, true},
	MemorySizeBroadcast256Float16: {"Broadcast256_Float16", 2, 2, MemorySizeFloat16, true},
	MemorySizeBroadcast256Float32: {"Broadcast256_Float32", 4, 4, MemorySizeFloat32, true},
	MemorySizeBroadcast256Float64: {"Broadcast256_Float64", 8, 8, MemorySizeFloat64, true},
	MemorySizeBroadcast512UInt32:  {"Broadcast512_UInt32", 4, 4, MemorySizeUInt32, true},
	MemorySizeBroadcast512Int32:   {"Broadcast512_Int32", 4, 4, MemorySizeInt32, true},
	MemorySizeBroadcast512UInt52:  {"Broadcast512_UInt52", 8, 8, MemorySizeUInt52, true},
	MemorySizeBroadcast512UInt64:  {"Broadcast512_UInt64", 8, 8, MemorySizeUInt64, true},
	MemorySizeBroadcast512Int64:   {"Broadcast512_Int64", 8, 8, MemorySizeInt64, true},
	MemorySizeBroadcast512Float16: {"Broadcast512_Float16", 2, 2, MemorySizeFloat16, true},
	MemorySizeBroadcast512Float32: {"Broadcast512_Float32", 4, 4, MemorySizeFloat32, true},
	MemorySizeBroadcast512Float64: {"Broadcast512_Float64", 8, 8, MemorySizeFloat64, true},
}

var memorySizeByName = func() map[string]MemorySize {
	m := make(map[string]MemorySize, memorySizeCount)
	for i := range memorySizeInfos {
		m[memorySizeInfos[i].name] = MemorySize(i)
	}

	return m
}()

// MemorySizeByName looks up a memory size by name, e.g. "Packed128_Float32".
func MemorySizeByName(name string) (MemorySize, bool) {
	m, ok := memorySizeByName[name]
	return m, ok
}

func (m MemorySize) String() string {
	if m >= memorySizeCount {
		return fmt.Sprintf("MemorySize(%d)", uint8(m))
	}

	return memorySizeInfos[m].name
}

// Size returns the number of bytes accessed, or 0 when it is not fixed.
func (m MemorySize) Size() int {
	if m >= memorySizeCount {
		return 0
	}

	return memorySizeInfos[m].size
}

// ElementSize returns the size of one element. Scalars are their own element.
func (m MemorySize) ElementSize() int {
	if m >= memorySizeCount {
		return 0
	}

	return memorySizeInfos[m].elementSize
}

// ElementType returns the scalar type of one element.
func (m MemorySize) ElementType() MemorySize {
	if m >= memorySizeCount {
		return MemorySizeUnknown
	}

	return memorySizeInfos[m].element
}

// IsBroadcast reports whether m is a broadcast memory size.
func (m MemorySize) IsBroadcast() bool {
	return m < memorySizeCount && memorySizeInfos[m].broadcast
}

// IsPacked reports whether m holds more than one element.
func (m MemorySize) IsPacked() bool {
	if m >= memorySizeCount {
		return false
	}

	info := memorySizeInfos[m]

	return !info.broadcast && info.elementSize != 0 && info.elementSize < info.size
}
