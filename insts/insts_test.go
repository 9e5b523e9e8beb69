package insts_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/x86dec/insts"
)

func TestInsts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Insts Suite")
}

var _ = Describe("Insts Package", func() {
	It("should have a zero Instruction that is invalid", func() {
		var i insts.Instruction
		Expect(i.IsInvalid()).To(BeTrue())
		Expect(i.Code()).To(Equal(insts.CodeInvalid))
		Expect(i.Mnemonic()).To(Equal("(bad)"))
	})

	It("should reject unsupported bitness", func() {
		_, err := insts.NewDecoder(8, []byte{0x90})
		Expect(err).To(MatchError(insts.ErrInvalidBitness))

		Expect(func() { insts.MustNewDecoder(128, nil) }).To(Panic())
	})

	Describe("Codes", func() {
		It("should look up codes by name", func() {
			c, ok := insts.CodeByName("Add_rm32_r32")
			Expect(ok).To(BeTrue())
			Expect(c.String()).To(Equal("Add_rm32_r32"))
			Expect(c.Mnemonic()).To(Equal("add"))
			Expect(c.Encoding()).To(Equal(insts.EncodingLegacy))
			Expect(c.OpCount()).To(Equal(2))
			Expect(c.CanUseLock()).To(BeTrue())
		})

		It("should report unknown names", func() {
			_, ok := insts.CodeByName("Frobnicate_r32")
			Expect(ok).To(BeFalse())
			Expect(func() { insts.MustCode("Frobnicate_r32") }).To(Panic())
		})

		It("should strip the encoding prefix from mnemonics", func() {
			Expect(insts.MustCode("VEX_Vunpcklps_xmm_xmm_xmmm128").Mnemonic()).To(Equal("vunpcklps"))
			Expect(insts.MustCode("EVEX_Vpsrlq_xmm_k1z_xmmm128b64_imm8").Mnemonic()).To(Equal("vpsrlq"))
		})

		It("should honor mnemonic overrides", func() {
			Expect(insts.MustCode("Retnq").Mnemonic()).To(Equal("ret"))
			Expect(insts.MustCode("Nopd").Mnemonic()).To(Equal("nop"))
		})

		It("should count the pseudo codes", func() {
			Expect(insts.CodeCount()).To(BeNumerically(">", 3000))
			Expect(insts.CodeDeclareQword.IsDeclareData()).To(BeTrue())
			Expect(insts.CodeInvalid.IsDeclareData()).To(BeFalse())
		})

		It("should expose per-mode validity", func() {
			push := insts.MustCode("Push_r64")
			Expect(push.Valid64()).To(BeTrue())
			Expect(push.Valid32()).To(BeFalse())

			les := insts.MustCode("Les_r32_m1632")
			Expect(les.Valid32()).To(BeTrue())
			Expect(les.Valid64()).To(BeFalse())
		})

		It("should link FWAIT forms to their plain twins", func() {
			Expect(insts.MustCode("Finit").HasFwait()).To(BeTrue())
			Expect(insts.MustCode("Fninit").HasFwait()).To(BeFalse())
		})

		It("should spell RFLAGS masks", func() {
			rf := insts.MustCode("Xor_rm32_r32").Rflags()
			Expect(insts.RflagsString(rf.Written)).To(Equal("szp"))
			Expect(insts.RflagsString(rf.Cleared)).To(Equal("oc"))
			Expect(insts.RflagsString(rf.Undefined)).To(Equal("a"))
			Expect(insts.RflagsString(0)).To(Equal("-"))
		})

		It("should record EVEX broadcast sizes", func() {
			c := insts.MustCode("EVEX_Vaddps_xmm_k1z_xmm_xmmm128b32")
			Expect(c.CanBroadcast()).To(BeTrue())
			Expect(c.BroadcastMemorySize()).To(Equal(insts.MemorySizeBroadcast128Float32))
			Expect(c.TupleType()).To(Equal(insts.TupleTypeN16b4))
		})
	})

	Describe("Registers", func() {
		It("should name registers", func() {
			Expect(insts.RAX.String()).To(Equal("RAX"))
			Expect(insts.R12.String()).To(Equal("R12"))
			Expect(insts.R8L.String()).To(Equal("R8L"))
			Expect(insts.XMM1.String()).To(Equal("XMM1"))
		})

		It("should round-trip names", func() {
			r, ok := insts.RegisterByName("R11D")
			Expect(ok).To(BeTrue())
			Expect(r).To(Equal(insts.R11D))
		})

		It("should map sub-registers to the full register", func() {
			Expect(insts.AH.FullRegister()).To(Equal(insts.RAX))
			Expect(insts.R9W.FullRegister()).To(Equal(insts.R9))
			Expect(insts.XMM1.FullRegister()).To(Equal(insts.ZMM1))
			Expect(insts.ESI.FullRegister32()).To(Equal(insts.ESI))
		})

		It("should classify registers", func() {
			Expect(insts.SPL.IsGPR8()).To(BeTrue())
			Expect(insts.YMM1.IsYMM()).To(BeTrue())
			Expect(insts.K7.IsK()).To(BeTrue())
			Expect(insts.RIP.IsIP()).To(BeTrue())
			Expect(insts.FS.IsSegment()).To(BeTrue())
		})
	})

	Describe("Decoder options", func() {
		It("should parse option names", func() {
			opts, err := insts.ParseDecoderOptions([]string{"AMD", " KNC "})
			Expect(err).NotTo(HaveOccurred())
			Expect(opts).To(Equal(insts.OptionAMD | insts.OptionKNC))
			Expect(opts.String()).To(Equal("AMD|KNC"))
		})

		It("should reject unknown option names", func() {
			_, err := insts.ParseDecoderOptions([]string{"Z80"})
			Expect(err).To(HaveOccurred())
		})

		It("should print the empty set", func() {
			Expect(insts.OptionNone.String()).To(Equal("None"))
		})
	})

	Describe("Memory sizes", func() {
		It("should describe packed and broadcast sizes", func() {
			Expect(insts.MemorySizePacked128UInt64.Size()).To(Equal(16))
			Expect(insts.MemorySizePacked128UInt64.ElementSize()).To(Equal(8))
			Expect(insts.MemorySizePacked128UInt64.IsPacked()).To(BeTrue())
			Expect(insts.MemorySizeBroadcast128UInt64.IsBroadcast()).To(BeTrue())
			Expect(insts.MemorySizeBroadcast128UInt64.ElementType()).To(Equal(insts.MemorySizeUInt64))
		})

		It("should look up sizes by name", func() {
			m, ok := insts.MemorySizeByName("FpuEnv28")
			Expect(ok).To(BeTrue())
			Expect(m.Size()).To(Equal(28))
		})
	})

	Describe("Declare data", func() {
		It("should hold bytes", func() {
			inst, err := insts.NewDeclareByte([]byte{1, 2, 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Code()).To(Equal(insts.CodeDeclareByte))
			Expect(inst.Mnemonic()).To(Equal("db"))
			Expect(inst.DeclareDataLen()).To(Equal(3))
			Expect(inst.Len()).To(Equal(3))
			Expect(inst.DeclareBytes()).To(Equal([]byte{1, 2, 3}))

			v, err := inst.TryDeclareByteValue(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint8(2)))
			Expect(inst.Validate()).To(Succeed())
		})

		It("should store words little endian", func() {
			inst := insts.MustDeclareWord([]uint16{0x1234, 0xABCD})
			Expect(inst.DeclareBytes()).To(Equal([]byte{0x34, 0x12, 0xCD, 0xAB}))

			Expect(inst.TrySetDeclareWordValue(1, 0x5566)).To(Succeed())
			v, err := inst.TryDeclareWordValue(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(0x5566)))
		})

		It("should hold qwords", func() {
			inst := insts.MustDeclareQword([]uint64{1, 0xFFFF_FFFF_FFFF_FFFF})
			Expect(inst.DeclareDataLen()).To(Equal(2))

			v, err := inst.TryDeclareQwordValue(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xFFFF_FFFF_FFFF_FFFF)))
		})

		It("should reject empty and oversized data", func() {
			_, err := insts.NewDeclareByte(nil)
			Expect(err).To(MatchError(insts.ErrInvalidDeclareLength))

			_, err = insts.NewDeclareDword(make([]uint32, 5))
			Expect(err).To(MatchError(insts.ErrInvalidDeclareLength))

			Expect(func() { insts.MustDeclareByte(make([]byte, 17)) }).To(Panic())
		})

		It("should reject element access of the wrong width", func() {
			inst := insts.MustDeclareDword([]uint32{7})

			_, err := inst.TryDeclareByteValue(0)
			Expect(err).To(MatchError(insts.ErrNotDeclareData))

			_, err = inst.TryDeclareDwordValue(4)
			Expect(err).To(MatchError(insts.ErrInvalidOperandIndex))
		})

		It("should change the element count", func() {
			inst := insts.MustDeclareByte([]byte{9})
			Expect(inst.SetDeclareDataLen(4)).To(Succeed())
			Expect(inst.DeclareDataLen()).To(Equal(4))
			Expect(inst.SetDeclareDataLen(17)).To(MatchError(insts.ErrInvalidDeclareLength))
		})
	})

	Describe("Validate", func() {
		It("should accept decoded instructions", func() {
			d := insts.MustNewDecoder(64, []byte{0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00})
			inst := d.Decode()
			Expect(inst.Validate()).To(Succeed())
		})

		It("should reject a register operand without a register", func() {
			var inst insts.Instruction
			inst.SetCode(insts.MustCode("Nopd"))
			Expect(inst.SetOpCount(1)).To(Succeed())
			inst.SetOpKind(0, insts.OpKindRegister)

			Expect(inst.Validate()).To(HaveOccurred())

			inst.SetOpRegister(0, insts.EAX)
			Expect(inst.Validate()).To(Succeed())
		})

		It("should reject unknown codes", func() {
			var inst insts.Instruction
			inst.SetCode(insts.Code(insts.CodeCount()))
			Expect(inst.Validate()).To(MatchError(insts.ErrUnknownCode))
		})

		It("should require EVEX and an opmask for zeroing", func() {
			var inst insts.Instruction
			inst.SetCode(insts.MustCode("Nopd"))
			inst.SetZeroingMasking(true)
			Expect(inst.Validate()).To(MatchError(ContainSubstring("zeroing")))

			inst.SetCode(insts.MustCode("EVEX_Vaddps_zmm_k1z_zmm_zmmm512b32_er"))
			Expect(inst.Validate()).To(MatchError(ContainSubstring("zeroing")))

			inst.SetOpMask(insts.K1)
			Expect(inst.Validate()).To(Succeed())
		})

		It("should require an EVEX register form for rounding control", func() {
			var inst insts.Instruction
			inst.SetCode(insts.MustCode("Nopd"))
			inst.SetRoundingControl(insts.RoundDown)
			Expect(inst.Validate()).To(MatchError(ContainSubstring("rounding control")))

			inst.SetCode(insts.MustCode("EVEX_Vaddps_zmm_k1z_zmm_zmmm512b32_er"))
			Expect(inst.SetOpCount(1)).To(Succeed())
			inst.SetOpKind(0, insts.OpKindMemory)
			Expect(inst.Validate()).To(MatchError(ContainSubstring("memory operand")))

			inst.SetOpKind(0, insts.OpKindRegister)
			inst.SetOpRegister(0, insts.ZMM0)
			Expect(inst.Validate()).To(Succeed())
		})

		It("should require a broadcast memory size for broadcasts", func() {
			var inst insts.Instruction
			inst.SetCode(insts.MustCode("EVEX_Vaddps_zmm_k1z_zmm_zmmm512b32_er"))
			inst.SetIsBroadcast(true)
			inst.SetMemorySize(insts.MemorySizePacked512Float32)
			Expect(inst.Validate()).To(MatchError(ContainSubstring("broadcast")))

			inst.SetMemorySize(insts.MemorySizeBroadcast512Float32)
			Expect(inst.Validate()).To(Succeed())
		})

		It("should reject operands past the op count", func() {
			var inst insts.Instruction
			inst.SetCode(insts.MustCode("Nopd"))
			Expect(inst.SetOpCount(1)).To(Succeed())
			inst.SetOpKind(0, insts.OpKindRegister)
			inst.SetOpRegister(0, insts.EAX)
			inst.SetOpKind(2, insts.OpKindImmediate8)
			Expect(inst.Validate()).To(MatchError(ContainSubstring("beyond op count")))

			inst.SetOpKind(2, insts.OpKindNone)
			Expect(inst.Validate()).To(Succeed())
		})

		It("should require the next IP to follow IP and length", func() {
			var inst insts.Instruction
			inst.SetCode(insts.MustCode("Nopd"))
			inst.SetCodeSize(insts.CodeSize16)
			inst.SetLen(2)
			inst.SetIP(0x12345)
			Expect(inst.Validate()).To(MatchError(ContainSubstring("next IP")))

			inst.SetIP(0xFFFF)
			Expect(inst.NextIP()).To(Equal(uint64(1)))
			Expect(inst.Validate()).To(Succeed())
		})

		It("should reject out of range operand indexes", func() {
			var inst insts.Instruction
			Expect(inst.SetOpCount(6)).To(MatchError(insts.ErrInvalidOperandIndex))

			_, err := inst.TryOpKind(5)
			Expect(err).To(MatchError(insts.ErrInvalidOperandIndex))
			Expect(func() { inst.OpRegister(-1) }).To(Panic())
		})

		It("should compare equal by value", func() {
			code := []byte{0x42, 0x01, 0xB4, 0xE7, 0x34, 0x12, 0x5A, 0xA5}
			a := insts.MustNewDecoder(64, code).Decode()
			b := insts.MustNewDecoder(64, code).Decode()
			Expect(a == b).To(BeTrue())
		})
	})
})
