package insts

import "fmt"

// Register identifies an architectural x86 register.
type Register uint16

// Registers. The order inside each class matches the hardware encoding so
// that the class base plus a register number gives the register.
const (
	RegisterNone Register = iota

	// 8-bit general purpose registers. AH..BH are only reachable without REX.
	AL
	CL
	DL
	BL
	AH
	CH
	DH
	BH
	SPL
	BPL
	SIL
	DIL
	R8L
	R9L
	R10L
	R11L
	R12L
	R13L
	R14L
	R15L

	AX
	CX
	DX
	BX
	SP
	BP
	SI
	DI
	R8W
	R9W
	R10W
	R11W
	R12W
	R13W
	R14W
	R15W

	EAX
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
	R8D
	R9D
	R10D
	R11D
	R12D
	R13D
	R14D
	R15D

	RAX
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	EIP
	RIP

	ES
	CS
	SS
	DS
	FS
	GS

	ST0
	ST1
	ST2
	ST3
	ST4
	ST5
	ST6
	ST7

	MM0
	MM1
	MM2
	MM3
	MM4
	MM5
	MM6
	MM7

	XMM0
	YMM0 Register = XMM0 + 32
	ZMM0 Register = YMM0 + 32
	K0   Register = ZMM0 + 32
	BND0 Register = K0 + 8
	CR0  Register = BND0 + 4
	DR0  Register = CR0 + 16
	TR0  Register = DR0 + 16
	TMM0 Register = TR0 + 8

	registerCount = TMM0 + 8
)

// Frequently named vector and mask registers.
const (
	XMM1 = XMM0 + 1
	XMM2 = XMM0 + 2
	XMM3 = XMM0 + 3
	YMM1 = YMM0 + 1
	ZMM1 = ZMM0 + 1
	ZMM2 = ZMM0 + 2
	K1   = K0 + 1
	K2   = K0 + 2
	K7   = K0 + 7
)

type registerClass struct {
	base  Register
	count int
	size  int
	name  func(i int) string
}

var registerClasses = []registerClass{
	{AL, 20, 1, func(i int) string {
		if i >= 12 {
			return fmt.Sprintf("R%dL", i-4)
		}

		return [...]string{
			"AL", "CL", "DL", "BL", "AH", "CH", "DH", "BH",
			"SPL", "BPL", "SIL", "DIL",
		}[i]
	}},
	{AX, 16, 2, func(i int) string {
		return legacyName(i, []string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI"}, "W")
	}},
	{EAX, 16, 4, func(i int) string {
		return legacyName(i, []string{"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI"}, "D")
	}},
	{RAX, 16, 8, func(i int) string {
		return legacyName(i, []string{"RAX", "RCX", "RDX", "RBX", "RSP", "RBP", "RSI", "RDI"}, "")
	}},
	{EIP, 1, 4, func(int) string { return "EIP" }},
	{RIP, 1, 8, func(int) string { return "RIP" }},
	{ES, 6, 2, func(i int) string { return [...]string{"ES", "CS", "SS", "DS", "FS", "GS"}[i] }},
	{ST0, 8, 10, numbered("ST")},
	{MM0, 8, 8, numbered("MM")},
	{XMM0, 32, 16, numbered("XMM")},
	{YMM0, 32, 32, numbered("YMM")},
	{ZMM0, 32, 64, numbered("ZMM")},
	{K0, 8, 8, numbered("K")},
	{BND0, 4, 16, numbered("BND")},
	{CR0, 16, 8, numbered("CR")},
	{DR0, 16, 8, numbered("DR")},
	{TR0, 8, 4, numbered("TR")},
	{TMM0, 8, 1024, numbered("TMM")},
}

func numbered(prefix string) func(int) string {
	return func(i int) string { return fmt.Sprintf("%s%d", prefix, i) }
}

func legacyName(i int, low []string, suffix string) string {
	if i < len(low) {
		return low[i]
	}

	return fmt.Sprintf("R%d%s", i, suffix)
}

var (
	registerNames  [registerCount]string
	registerSizes  [registerCount]int
	registerBases  [registerCount]Register
	registerByName = map[string]Register{}
)

func init() {
	registerNames[RegisterNone] = "None"
	registerByName["NONE"] = RegisterNone

	for _, class := range registerClasses {
		for i := 0; i < class.count; i++ {
			reg := class.base + Register(i)
			name := class.name(i)

			registerNames[reg] = name
			registerSizes[reg] = class.size
			registerBases[reg] = class.base
			registerByName[name] = reg
		}
	}
}

// String returns the register name in upper case, e.g. "R12D".
func (r Register) String() string {
	if r >= registerCount {
		return fmt.Sprintf("Register(%d)", uint16(r))
	}

	return registerNames[r]
}

// RegisterByName looks up a register by its upper-case name.
func RegisterByName(name string) (Register, bool) {
	r, ok := registerByName[name]
	return r, ok
}

// Base returns the first register of r's class, e.g. XMM0 for XMM7.
func (r Register) Base() Register {
	if r >= registerCount {
		return RegisterNone
	}

	return registerBases[r]
}

// Number returns the index of r within its class.
func (r Register) Number() int {
	return int(r - r.Base())
}

// Size returns the size of the register in bytes.
func (r Register) Size() int {
	if r >= registerCount {
		return 0
	}

	return registerSizes[r]
}

// IsGPR8 reports whether r is an 8-bit general purpose register.
func (r Register) IsGPR8() bool { return r >= AL && r <= R15L }

// IsGPR16 reports whether r is a 16-bit general purpose register.
func (r Register) IsGPR16() bool { return r >= AX && r <= R15W }

// IsGPR32 reports whether r is a 32-bit general purpose register.
func (r Register) IsGPR32() bool { return r >= EAX && r <= R15D }

// IsGPR64 reports whether r is a 64-bit general purpose register.
func (r Register) IsGPR64() bool { return r >= RAX && r <= R15 }

// IsGPR reports whether r is a general purpose register of any width.
func (r Register) IsGPR() bool { return r >= AL && r <= R15 }

// IsIP reports whether r is EIP or RIP.
func (r Register) IsIP() bool { return r == EIP || r == RIP }

// IsSegment reports whether r is a segment register.
func (r Register) IsSegment() bool { return r >= ES && r <= GS }

// IsST reports whether r is an x87 stack register.
func (r Register) IsST() bool { return r >= ST0 && r <= ST0+7 }

// IsMM reports whether r is an MMX register.
func (r Register) IsMM() bool { return r >= MM0 && r <= MM0+7 }

// IsXMM reports whether r is an XMM register.
func (r Register) IsXMM() bool { return r >= XMM0 && r < YMM0 }

// IsYMM reports whether r is a YMM register.
func (r Register) IsYMM() bool { return r >= YMM0 && r < ZMM0 }

// IsZMM reports whether r is a ZMM register.
func (r Register) IsZMM() bool { return r >= ZMM0 && r < K0 }

// IsVectorRegister reports whether r is an XMM, YMM or ZMM register.
func (r Register) IsVectorRegister() bool { return r >= XMM0 && r < K0 }

// IsK reports whether r is an opmask register.
func (r Register) IsK() bool { return r >= K0 && r < BND0 }

// IsBND reports whether r is an MPX bound register.
func (r Register) IsBND() bool { return r >= BND0 && r < CR0 }

// IsCR reports whether r is a control register.
func (r Register) IsCR() bool { return r >= CR0 && r < DR0 }

// IsDR reports whether r is a debug register.
func (r Register) IsDR() bool { return r >= DR0 && r < TR0 }

// IsTR reports whether r is a test register.
func (r Register) IsTR() bool { return r >= TR0 && r < TMM0 }

// IsTMM reports whether r is an AMX tile register.
func (r Register) IsTMM() bool { return r >= TMM0 && r < registerCount }

// FullRegister returns the widest register that contains r: RAX for AL,
// AH, AX and EAX; ZMM7 for XMM7 and YMM7. Other registers map to themselves.
func (r Register) FullRegister() Register {
	switch {
	case r.IsGPR():
		return RAX + Register(gprIndex(r))
	case r == EIP:
		return RIP
	case r.IsXMM() || r.IsYMM():
		return ZMM0 + Register(r.Number())
	}

	return r
}

// FullRegister32 is like FullRegister but stops at 32-bit GPRs.
func (r Register) FullRegister32() Register {
	if r.IsGPR() {
		return EAX + Register(gprIndex(r))
	}

	if r == RIP {
		return EIP
	}

	return r.FullRegister()
}

// gprIndex returns the 0..15 encoding number of a GPR. AH..BH map to the
// registers they alias (RAX..RBX).
func gprIndex(r Register) int {
	if r.IsGPR8() {
		n := r.Number()
		if n >= 4 {
			return n - 4
		}

		return n
	}

	return r.Number()
}

// GPR returns the general purpose register with the given encoding number
// and size in bytes. For 8-bit registers rex selects SPL..DIL over AH..BH.
func GPR(number, size int, rex bool) Register {
	switch size {
	case 1:
		if number >= 4 && (rex || number >= 8) {
			return AL + Register(number+4)
		}

		return AL + Register(number)
	case 2:
		return AX + Register(number)
	case 4:
		return EAX + Register(number)
	case 8:
		return RAX + Register(number)
	}

	return RegisterNone
}
