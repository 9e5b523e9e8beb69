package insts

import (
	"fmt"
)

// MaxInstructionLength is the architectural limit on instruction length.
const MaxInstructionLength = 15

type instFlags uint32

const (
	instLock instFlags = 1 << iota
	instRep
	instRepne
	instXacquire
	instXrelease
	instNotrack
	instBnd
	instZeroing
	instSAE
	instBroadcast
	instMvexEH
)

// Instruction is one decoded instruction. It is a value type; copies are
// independent and two instructions compare equal with ==.
type Instruction struct {
	ip         uint64
	memDispl   uint64
	immediate  uint64
	nearBranch uint64

	code   Code
	regs   [5]Register
	kinds  [5]OpKind
	opCnt  uint8
	length uint8

	codeSize CodeSize
	addrSize uint8
	opSize   uint8

	memBase   Register
	memIndex  Register
	segPrefix Register
	memScale  uint8
	displSize uint8
	memSize   MemorySize

	imm8_2nd    uint8
	farSelector uint16

	opMask   Register
	rc       RoundingControl
	mvexConv MvexRegMemConv

	flags instFlags

	declData [16]byte
	declLen  uint8
}

func (i *Instruction) has(f instFlags) bool { return i.flags&f != 0 }

func (i *Instruction) set(f instFlags, on bool) {
	if on {
		i.flags |= f
	} else {
		i.flags &^= f
	}
}

// Code returns the instruction form.
func (i *Instruction) Code() Code { return i.code }

// SetCode changes the instruction form.
func (i *Instruction) SetCode(c Code) { i.code = c }

// Mnemonic returns the mnemonic of the code.
func (i *Instruction) Mnemonic() string { return i.code.Mnemonic() }

// IsInvalid reports whether the instruction failed to decode.
func (i *Instruction) IsInvalid() bool { return i.code == CodeInvalid }

// Encoding returns the encoding family of the code.
func (i *Instruction) Encoding() EncodingKind { return i.code.Encoding() }

// OpCount returns the number of operands.
func (i *Instruction) OpCount() int { return int(i.opCnt) }

// SetOpCount sets the number of operands.
func (i *Instruction) SetOpCount(n int) error {
	if n < 0 || n > len(i.kinds) {
		return fmt.Errorf("%w: %d", ErrInvalidOperandIndex, n)
	}

	i.opCnt = uint8(n)

	return nil
}

// Len returns the encoded length in bytes.
func (i *Instruction) Len() int { return int(i.length) }

// SetLen changes the recorded length.
func (i *Instruction) SetLen(n int) { i.length = uint8(n) }

// IP returns the address of the first byte.
func (i *Instruction) IP() uint64 { return i.ip }

// SetIP changes the address of the instruction.
func (i *Instruction) SetIP(ip uint64) { i.ip = ip }

// NextIP returns the address of the following instruction, wrapped to the
// code size.
func (i *Instruction) NextIP() uint64 {
	next := i.ip + uint64(i.length)

	switch i.codeSize {
	case CodeSize16:
		return next & 0xFFFF
	case CodeSize32:
		return next & 0xFFFF_FFFF
	}

	return next
}

// CodeSize returns the bitness the instruction was decoded in.
func (i *Instruction) CodeSize() CodeSize { return i.codeSize }

// SetCodeSize changes the recorded bitness.
func (i *Instruction) SetCodeSize(cs CodeSize) { i.codeSize = cs }

// AddressSize returns the effective address size in bytes. It is zero for
// instructions that were not decoded.
func (i *Instruction) AddressSize() int { return int(i.addrSize) }

// SetAddressSize changes the effective address size in bytes.
func (i *Instruction) SetAddressSize(n int) { i.addrSize = uint8(n) }

// OperandSize returns the effective operand size in bytes after 66, REX.W
// and the default 64-bit rules. It is zero for instructions that were not
// decoded.
func (i *Instruction) OperandSize() int { return int(i.opSize) }

// OpKind returns the kind of operand n. It panics if n is out of range.
func (i *Instruction) OpKind(n int) OpKind {
	k, err := i.TryOpKind(n)
	if err != nil {
		panic(err)
	}

	return k
}

// TryOpKind returns the kind of operand n.
func (i *Instruction) TryOpKind(n int) (OpKind, error) {
	if n < 0 || n >= len(i.kinds) {
		return OpKindRegister, fmt.Errorf("%w: %d", ErrInvalidOperandIndex, n)
	}

	return i.kinds[n], nil
}

// SetOpKind sets the kind of operand n. It panics if n is out of range.
func (i *Instruction) SetOpKind(n int, k OpKind) {
	if err := i.TrySetOpKind(n, k); err != nil {
		panic(err)
	}
}

// TrySetOpKind sets the kind of operand n.
func (i *Instruction) TrySetOpKind(n int, k OpKind) error {
	if n < 0 || n >= len(i.kinds) {
		return fmt.Errorf("%w: %d", ErrInvalidOperandIndex, n)
	}

	i.kinds[n] = k

	return nil
}

// OpKinds returns the kinds of all used operands.
func (i *Instruction) OpKinds() []OpKind {
	return append([]OpKind(nil), i.kinds[:i.opCnt]...)
}

// OpRegister returns the register of operand n, or RegisterNone when the
// operand is not a register. It panics if n is out of range.
func (i *Instruction) OpRegister(n int) Register {
	r, err := i.TryOpRegister(n)
	if err != nil {
		panic(err)
	}

	return r
}

// TryOpRegister returns the register of operand n.
func (i *Instruction) TryOpRegister(n int) (Register, error) {
	if n < 0 || n >= len(i.regs) {
		return RegisterNone, fmt.Errorf("%w: %d", ErrInvalidOperandIndex, n)
	}

	if i.kinds[n] != OpKindRegister {
		return RegisterNone, nil
	}

	return i.regs[n], nil
}

// SetOpRegister sets the register of operand n. It panics if n is out of
// range.
func (i *Instruction) SetOpRegister(n int, r Register) {
	if err := i.TrySetOpRegister(n, r); err != nil {
		panic(err)
	}
}

// TrySetOpRegister sets the register of operand n.
func (i *Instruction) TrySetOpRegister(n int, r Register) error {
	if n < 0 || n >= len(i.regs) {
		return fmt.Errorf("%w: %d", ErrInvalidOperandIndex, n)
	}

	i.regs[n] = r

	return nil
}

// Immediate returns the value of immediate operand n, sign extended to 64
// bits for the sign-extending kinds.
func (i *Instruction) Immediate(n int) uint64 {
	v, err := i.TryImmediate(n)
	if err != nil {
		panic(err)
	}

	return v
}

// TryImmediate is like Immediate but returns an error if operand n is not
// an immediate.
func (i *Instruction) TryImmediate(n int) (uint64, error) {
	k, err := i.TryOpKind(n)
	if err != nil {
		return 0, err
	}

	switch k {
	case OpKindImmediate8:
		return uint64(uint8(i.immediate)), nil
	case OpKindImmediate8_2nd:
		return uint64(i.imm8_2nd), nil
	case OpKindImmediate16:
		return uint64(uint16(i.immediate)), nil
	case OpKindImmediate32:
		return uint64(uint32(i.immediate)), nil
	case OpKindImmediate64:
		return i.immediate, nil
	case OpKindImmediate8to16, OpKindImmediate8to32, OpKindImmediate8to64:
		return uint64(int64(int8(i.immediate))), nil
	case OpKindImmediate32to64:
		return uint64(int64(int32(i.immediate))), nil
	}

	return 0, fmt.Errorf("%w: operand %d is %s, not an immediate", ErrInvalidOperandIndex, n, k)
}

// Immediate8 returns the low byte of the immediate.
func (i *Instruction) Immediate8() uint8 { return uint8(i.immediate) }

// SetImmediate8 stores an 8-bit immediate.
func (i *Instruction) SetImmediate8(v uint8) { i.immediate = uint64(v) }

// Immediate8_2nd returns the second 8-bit immediate (ENTER, EXTRQ, INSERTQ).
func (i *Instruction) Immediate8_2nd() uint8 { return i.imm8_2nd }

// SetImmediate8_2nd stores the second 8-bit immediate.
func (i *Instruction) SetImmediate8_2nd(v uint8) { i.imm8_2nd = v }

// Immediate16 returns the low 16 bits of the immediate.
func (i *Instruction) Immediate16() uint16 { return uint16(i.immediate) }

// SetImmediate16 stores a 16-bit immediate.
func (i *Instruction) SetImmediate16(v uint16) { i.immediate = uint64(v) }

// Immediate32 returns the low 32 bits of the immediate.
func (i *Instruction) Immediate32() uint32 { return uint32(i.immediate) }

// SetImmediate32 stores a 32-bit immediate.
func (i *Instruction) SetImmediate32(v uint32) { i.immediate = uint64(v) }

// Immediate64 returns the full immediate.
func (i *Instruction) Immediate64() uint64 { return i.immediate }

// SetImmediate64 stores a 64-bit immediate.
func (i *Instruction) SetImmediate64(v uint64) { i.immediate = v }

// NearBranchTarget returns the target of a near branch operand, truncated
// to the branch size.
func (i *Instruction) NearBranchTarget() uint64 {
	for n := 0; n < int(i.opCnt); n++ {
		switch i.kinds[n] {
		case OpKindNearBranch16:
			return uint64(uint16(i.nearBranch))
		case OpKindNearBranch32:
			return uint64(uint32(i.nearBranch))
		case OpKindNearBranch64:
			return i.nearBranch
		}
	}

	return 0
}

// SetNearBranch64 stores a near branch target.
func (i *Instruction) SetNearBranch64(target uint64) { i.nearBranch = target }

// FarBranchSelector returns the selector of a far branch operand.
func (i *Instruction) FarBranchSelector() uint16 { return i.farSelector }

// FarBranch32 returns the offset of a far branch operand.
func (i *Instruction) FarBranch32() uint32 { return uint32(i.nearBranch) }

// SetFarBranch stores a far branch selector and offset.
func (i *Instruction) SetFarBranch(selector uint16, offset uint32) {
	i.farSelector = selector
	i.nearBranch = uint64(offset)
}

// SegmentPrefix returns the segment override prefix, or RegisterNone. In
// 64-bit mode ES, CS, SS and DS overrides are recorded here even though
// they do not change the effective segment.
func (i *Instruction) SegmentPrefix() Register { return i.segPrefix }

// SetSegmentPrefix changes the segment override prefix.
func (i *Instruction) SetSegmentPrefix(r Register) { i.segPrefix = r }

// HasSegmentPrefix reports whether a segment override was present.
func (i *Instruction) HasSegmentPrefix() bool { return i.segPrefix != RegisterNone }

// MemorySegment returns the effective segment of the memory operand.
func (i *Instruction) MemorySegment() Register {
	if i.segPrefix != RegisterNone {
		if i.codeSize != CodeSize64 || i.segPrefix == FS || i.segPrefix == GS {
			return i.segPrefix
		}
	}

	switch i.memBase {
	case BP, EBP, RBP, SP, ESP, RSP:
		return SS
	}

	return DS
}

// MemoryBase returns the base register, RIP or EIP for IP-relative forms.
func (i *Instruction) MemoryBase() Register { return i.memBase }

// SetMemoryBase changes the base register.
func (i *Instruction) SetMemoryBase(r Register) { i.memBase = r }

// MemoryIndex returns the index register.
func (i *Instruction) MemoryIndex() Register { return i.memIndex }

// SetMemoryIndex changes the index register.
func (i *Instruction) SetMemoryIndex(r Register) { i.memIndex = r }

// MemoryIndexScale returns the index scale: 1, 2, 4 or 8.
func (i *Instruction) MemoryIndexScale() int { return 1 << i.memScale }

// SetMemoryIndexScale changes the index scale. It accepts 1, 2, 4 and 8.
func (i *Instruction) SetMemoryIndexScale(scale int) {
	switch scale {
	case 2:
		i.memScale = 1
	case 4:
		i.memScale = 2
	case 8:
		i.memScale = 3
	default:
		i.memScale = 0
	}
}

// MemoryDisplacement64 returns the displacement. For IP-relative operands
// it is the absolute target address.
func (i *Instruction) MemoryDisplacement64() uint64 { return i.memDispl }

// MemoryDisplacement32 returns the low 32 bits of the displacement.
func (i *Instruction) MemoryDisplacement32() uint32 { return uint32(i.memDispl) }

// SetMemoryDisplacement64 changes the displacement.
func (i *Instruction) SetMemoryDisplacement64(v uint64) { i.memDispl = v }

// MemoryDisplSize returns the size in bytes of the encoded displacement:
// 0, 1, 2, 4 or 8.
func (i *Instruction) MemoryDisplSize() int { return int(i.displSize) }

// SetMemoryDisplSize changes the displacement size.
func (i *Instruction) SetMemoryDisplSize(n int) { i.displSize = uint8(n) }

// MemorySize returns the size of the memory location accessed.
func (i *Instruction) MemorySize() MemorySize { return i.memSize }

// SetMemorySize changes the memory size.
func (i *Instruction) SetMemorySize(m MemorySize) { i.memSize = m }

// IsIPRelativeMemoryOperand reports whether the memory operand is RIP- or
// EIP-relative.
func (i *Instruction) IsIPRelativeMemoryOperand() bool {
	return i.memBase == RIP || i.memBase == EIP
}

// IPRelativeMemoryAddress returns the absolute address of an IP-relative
// memory operand.
func (i *Instruction) IPRelativeMemoryAddress() uint64 {
	if i.memBase == EIP {
		return uint64(uint32(i.memDispl))
	}

	return i.memDispl
}

// IsVSIB reports whether the memory operand uses a vector index.
func (i *Instruction) IsVSIB() bool { return i.memIndex.IsVectorRegister() }

// IsBroadcast reports whether EVEX embedded broadcast is active.
func (i *Instruction) IsBroadcast() bool { return i.has(instBroadcast) }

// SetIsBroadcast changes the broadcast flag.
func (i *Instruction) SetIsBroadcast(on bool) { i.set(instBroadcast, on) }

// HasLockPrefix reports whether LOCK applies.
func (i *Instruction) HasLockPrefix() bool { return i.has(instLock) }

// SetHasLockPrefix changes the LOCK flag.
func (i *Instruction) SetHasLockPrefix(on bool) { i.set(instLock, on) }

// HasRepPrefix reports whether an F3 prefix applies.
func (i *Instruction) HasRepPrefix() bool { return i.has(instRep) }

// SetHasRepPrefix changes the F3 flag.
func (i *Instruction) SetHasRepPrefix(on bool) { i.set(instRep, on) }

// HasRepePrefix is the same as HasRepPrefix.
func (i *Instruction) HasRepePrefix() bool { return i.has(instRep) }

// HasRepnePrefix reports whether an F2 prefix applies.
func (i *Instruction) HasRepnePrefix() bool { return i.has(instRepne) }

// SetHasRepnePrefix changes the F2 flag.
func (i *Instruction) SetHasRepnePrefix(on bool) { i.set(instRepne, on) }

// HasXacquirePrefix reports whether F2 acts as XACQUIRE.
func (i *Instruction) HasXacquirePrefix() bool { return i.has(instXacquire) }

// HasXreleasePrefix reports whether F3 acts as XRELEASE.
func (i *Instruction) HasXreleasePrefix() bool { return i.has(instXrelease) }

// HasNotrackPrefix reports whether 3E acts as NOTRACK.
func (i *Instruction) HasNotrackPrefix() bool { return i.has(instNotrack) }

// HasBndPrefix reports whether F2 acts as BND.
func (i *Instruction) HasBndPrefix() bool { return i.has(instBnd) }

// OpMask returns the EVEX/MVEX opmask register, or RegisterNone.
func (i *Instruction) OpMask() Register { return i.opMask }

// SetOpMask changes the opmask register.
func (i *Instruction) SetOpMask(r Register) { i.opMask = r }

// HasOpMask reports whether an opmask register other than k0 is used.
func (i *Instruction) HasOpMask() bool { return i.opMask != RegisterNone }

// ZeroingMasking reports whether EVEX.z selects zeroing.
func (i *Instruction) ZeroingMasking() bool { return i.has(instZeroing) }

// SetZeroingMasking changes the zeroing flag.
func (i *Instruction) SetZeroingMasking(on bool) { i.set(instZeroing, on) }

// MergingMasking reports whether masked-off elements keep their value.
func (i *Instruction) MergingMasking() bool { return !i.has(instZeroing) }

// SuppressAllExceptions reports whether {sae} is active.
func (i *Instruction) SuppressAllExceptions() bool { return i.has(instSAE) }

// SetSuppressAllExceptions changes the {sae} flag.
func (i *Instruction) SetSuppressAllExceptions(on bool) { i.set(instSAE, on) }

// RoundingControl returns the static rounding mode.
func (i *Instruction) RoundingControl() RoundingControl { return i.rc }

// SetRoundingControl changes the static rounding mode.
func (i *Instruction) SetRoundingControl(rc RoundingControl) { i.rc = rc }

// MvexRegMemConv returns the MVEX swizzle or memory conversion.
func (i *Instruction) MvexRegMemConv() MvexRegMemConv { return i.mvexConv }

// MvexEvictionHint reports whether MVEX.E marks a no-temporal hint on a
// memory operand.
func (i *Instruction) MvexEvictionHint() bool { return i.has(instMvexEH) }

// Validate checks the internal consistency of a hand-built or decoded
// instruction.
func (i *Instruction) Validate() error {
	if int(i.code) >= CodeCount() {
		return fmt.Errorf("%w: %d", ErrUnknownCode, i.code)
	}

	if i.opCnt > uint8(len(i.kinds)) {
		return fmt.Errorf("%w: op count %d", ErrInvalidOperandIndex, i.opCnt)
	}

	if i.code.IsDeclareData() {
		return i.validateDeclare()
	}

	for n := 0; n < int(i.opCnt); n++ {
		switch k := i.kinds[n]; {
		case k == OpKindRegister && i.regs[n] == RegisterNone:
			return fmt.Errorf("operand %d: register kind without a register", n)
		case k != OpKindRegister && i.regs[n] != RegisterNone:
			return fmt.Errorf("operand %d: %s with register %s", n, k, i.regs[n])
		}
	}

	for n := int(i.opCnt); n < len(i.kinds); n++ {
		if i.kinds[n] != OpKindNone || i.regs[n] != RegisterNone {
			return fmt.Errorf("operand %d: set beyond op count %d", n, i.opCnt)
		}
	}

	if err := i.validateMasking(); err != nil {
		return err
	}

	if i.length > MaxInstructionLength {
		return fmt.Errorf("length %d exceeds %d", i.length, MaxInstructionLength)
	}

	if mask := i.codeSize.ipMask(); i.ip&^mask != 0 || (i.NextIP()-i.ip)&mask != uint64(i.length) {
		return fmt.Errorf("next IP %#x does not follow IP %#x and length %d", i.NextIP(), i.ip, i.length)
	}

	return nil
}

func (i *Instruction) validateMasking() error {
	enc := i.code.Encoding()

	if i.ZeroingMasking() && (enc != EncodingEVEX || i.opMask == RegisterNone || i.opMask == K0) {
		return fmt.Errorf("zeroing masking needs EVEX and an opmask, have %s and %s", enc, i.opMask)
	}

	if i.rc != RoundingControlNone {
		if enc != EncodingEVEX && enc != EncodingMVEX {
			return fmt.Errorf("rounding control %s on a %s instruction", i.rc, enc)
		}

		if hasMemoryKind(i) {
			return fmt.Errorf("rounding control %s with a memory operand", i.rc)
		}
	}

	if i.IsBroadcast() && !i.memSize.IsBroadcast() {
		return fmt.Errorf("broadcast with memory size %s", i.memSize)
	}

	return nil
}

// ipMask returns the mask an IP of this code size wraps at.
func (s CodeSize) ipMask() uint64 {
	switch s {
	case CodeSize16:
		return 0xFFFF
	case CodeSize32:
		return 0xFFFF_FFFF
	}

	return ^uint64(0)
}
