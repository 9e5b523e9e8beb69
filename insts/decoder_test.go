package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/x86dec/insts"
)

func decodeOne(bitness int, code []byte, opts ...insts.DecoderOption) (insts.Instruction, *insts.Decoder) {
	d := insts.MustNewDecoder(bitness, code, opts...)
	return d.Decode(), d
}

var _ = Describe("Decoder", func() {
	Describe("Legacy encodings", func() {
		// ADD [RDI+R12*8-0x5AA5EDCC], ESI
		It("should decode ADD with REX.X and a SIB displacement", func() {
			inst, d := decodeOne(64, []byte{0x42, 0x01, 0xB4, 0xE7, 0x34, 0x12, 0x5A, 0xA5})

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("Add_rm32_r32")))
			Expect(inst.Len()).To(Equal(8))
			Expect(inst.OpCount()).To(Equal(2))
			Expect(inst.OpKind(0)).To(Equal(insts.OpKindMemory))
			Expect(inst.OpRegister(1)).To(Equal(insts.ESI))
			Expect(inst.MemorySegment()).To(Equal(insts.DS))
			Expect(inst.MemoryBase()).To(Equal(insts.RDI))
			Expect(inst.MemoryIndex()).To(Equal(insts.R12))
			Expect(inst.MemoryIndexScale()).To(Equal(8))
			Expect(inst.MemoryDisplacement64()).To(Equal(uint64(0xFFFFFFFFA55A1234)))
			Expect(inst.MemoryDisplSize()).To(Equal(4))
			Expect(inst.MemorySize()).To(Equal(insts.MemorySizeUInt32))
		})

		// MOV RCX, 0xFFFFFFFFFFFFFFFF
		It("should decode MOV r64, imm64", func() {
			inst, _ := decodeOne(64, []byte{0x48, 0xB9, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

			Expect(inst.Code()).To(Equal(insts.MustCode("Mov_r64_imm64")))
			Expect(inst.Len()).To(Equal(10))
			Expect(inst.OpRegister(0)).To(Equal(insts.RCX))
			Expect(inst.OpKind(1)).To(Equal(insts.OpKindImmediate64))
			Expect(inst.Immediate(1)).To(Equal(uint64(0xFFFFFFFFFFFFFFFF)))
		})

		// REP STOSB [RDI], AL
		It("should decode REP STOSB", func() {
			inst, _ := decodeOne(64, []byte{0xF3, 0xAA})

			Expect(inst.Code()).To(Equal(insts.MustCode("Stosb_m8_AL")))
			Expect(inst.Len()).To(Equal(2))
			Expect(inst.HasRepPrefix()).To(BeTrue())
			Expect(inst.OpKind(0)).To(Equal(insts.OpKindMemoryESRDI))
			Expect(inst.OpRegister(1)).To(Equal(insts.AL))
			Expect(inst.MemorySize()).To(Equal(insts.MemorySizeUInt8))
		})

		It("should size string operands by the address size", func() {
			inst, _ := decodeOne(64, []byte{0x67, 0xAA})
			Expect(inst.OpKind(0)).To(Equal(insts.OpKindMemoryESEDI))

			inst, _ = decodeOne(16, []byte{0xAA})
			Expect(inst.OpKind(0)).To(Equal(insts.OpKindMemoryESDI))
		})

		// MOV AL, FS:[0xF0DEBC9A78563412]
		It("should decode MOV AL, moffs with a segment override", func() {
			inst, _ := decodeOne(64, []byte{0x64, 0xA0, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0})

			Expect(inst.Code()).To(Equal(insts.MustCode("Mov_AL_moffs8")))
			Expect(inst.Len()).To(Equal(10))
			Expect(inst.OpRegister(0)).To(Equal(insts.AL))
			Expect(inst.OpKind(1)).To(Equal(insts.OpKindMemory))
			Expect(inst.SegmentPrefix()).To(Equal(insts.FS))
			Expect(inst.MemorySegment()).To(Equal(insts.FS))
			Expect(inst.MemoryDisplacement64()).To(Equal(uint64(0xF0DEBC9A78563412)))
			Expect(inst.MemoryDisplSize()).To(Equal(8))
			Expect(inst.MemorySize()).To(Equal(insts.MemorySizeUInt8))
		})

		It("should use 16-bit addressing forms", func() {
			inst, _ := decodeOne(16, []byte{0x8B, 0x00})

			Expect(inst.Code()).To(Equal(insts.MustCode("Mov_r16_rm16")))
			Expect(inst.OpRegister(0)).To(Equal(insts.AX))
			Expect(inst.MemoryBase()).To(Equal(insts.BX))
			Expect(inst.MemoryIndex()).To(Equal(insts.SI))
		})

		It("should select SPL over AH when REX is present", func() {
			inst, _ := decodeOne(64, []byte{0x88, 0xE0})
			Expect(inst.OpRegister(1)).To(Equal(insts.AH))

			inst, _ = decodeOne(64, []byte{0x40, 0x88, 0xE0})
			Expect(inst.OpRegister(1)).To(Equal(insts.SPL))
		})

		It("should ignore a REX prefix that is not last", func() {
			inst, _ := decodeOne(64, []byte{0x48, 0x66, 0x89, 0xC0})
			Expect(inst.Code()).To(Equal(insts.MustCode("Mov_rm16_r16")))
			Expect(inst.OpRegister(0)).To(Equal(insts.AX))
		})

		It("should sign extend imm8 operands", func() {
			inst, _ := decodeOne(64, []byte{0x48, 0x83, 0xC0, 0xFF})

			Expect(inst.Code()).To(Equal(insts.MustCode("Add_rm64_imm8")))
			Expect(inst.OpKind(1)).To(Equal(insts.OpKindImmediate8to64))
			Expect(inst.Immediate(1)).To(Equal(uint64(0xFFFFFFFFFFFFFFFF)))
			Expect(inst.Immediate8()).To(Equal(uint8(0xFF)))
		})

		It("should decode both ENTER immediates", func() {
			inst, _ := decodeOne(64, []byte{0xC8, 0x10, 0x00, 0x01})

			Expect(inst.Mnemonic()).To(Equal("enter"))
			Expect(inst.Immediate(0)).To(Equal(uint64(0x10)))
			Expect(inst.OpKind(1)).To(Equal(insts.OpKindImmediate8_2nd))
			Expect(inst.Immediate8_2nd()).To(Equal(uint8(1)))
		})

		It("should report a non-immediate operand", func() {
			inst, _ := decodeOne(64, []byte{0x48, 0x83, 0xC0, 0xFF})
			_, err := inst.TryImmediate(0)
			Expect(err).To(MatchError(insts.ErrInvalidOperandIndex))
		})
	})

	Describe("Segments", func() {
		It("should ignore ES overrides in 64-bit mode", func() {
			inst, _ := decodeOne(64, []byte{0x26, 0x8B, 0x00})
			Expect(inst.SegmentPrefix()).To(Equal(insts.ES))
			Expect(inst.HasSegmentPrefix()).To(BeTrue())
			Expect(inst.MemorySegment()).To(Equal(insts.DS))
		})

		It("should honor ES overrides in 32-bit mode", func() {
			inst, _ := decodeOne(32, []byte{0x26, 0x8B, 0x00})
			Expect(inst.MemorySegment()).To(Equal(insts.ES))
		})

		It("should default to SS for EBP based addressing", func() {
			inst, _ := decodeOne(32, []byte{0x8B, 0x45, 0x00})
			Expect(inst.MemoryBase()).To(Equal(insts.EBP))
			Expect(inst.MemorySegment()).To(Equal(insts.SS))
		})
	})

	Describe("Branches", func() {
		It("should compute rel8 targets from the next instruction", func() {
			inst, _ := decodeOne(64, []byte{0xEB, 0xFE}, insts.WithIP(0x1000))

			Expect(inst.Code()).To(Equal(insts.MustCode("Jmp_rel8_64")))
			Expect(inst.OpKind(0)).To(Equal(insts.OpKindNearBranch64))
			Expect(inst.NearBranchTarget()).To(Equal(uint64(0x1000)))
		})

		It("should compute rel32 call targets", func() {
			inst, _ := decodeOne(64, []byte{0xE8, 0x00, 0x00, 0x00, 0x00}, insts.WithIP(0x1000))

			Expect(inst.Code()).To(Equal(insts.MustCode("Call_rel32_64")))
			Expect(inst.NearBranchTarget()).To(Equal(uint64(0x1005)))
		})

		It("should use 32-bit targets in 32-bit mode", func() {
			inst, _ := decodeOne(32, []byte{0xEB, 0x00}, insts.WithIP(0x1000))

			Expect(inst.OpKind(0)).To(Equal(insts.OpKindNearBranch32))
			Expect(inst.NearBranchTarget()).To(Equal(uint64(0x1002)))
		})

		It("should decode far pointers", func() {
			inst, _ := decodeOne(32, []byte{0xEA, 0x78, 0x56, 0x34, 0x12, 0x00, 0x10})

			Expect(inst.Code()).To(Equal(insts.MustCode("Jmp_ptr1632")))
			Expect(inst.OpKind(0)).To(Equal(insts.OpKindFarBranch32))
			Expect(inst.FarBranch32()).To(Equal(uint32(0x12345678)))
			Expect(inst.FarBranchSelector()).To(Equal(uint16(0x1000)))
		})
	})

	Describe("IP-relative addressing", func() {
		It("should resolve RIP-relative displacements", func() {
			inst, _ := decodeOne(64, []byte{0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00}, insts.WithIP(0x1000))

			Expect(inst.Code()).To(Equal(insts.MustCode("Mov_r64_rm64")))
			Expect(inst.MemoryBase()).To(Equal(insts.RIP))
			Expect(inst.IsIPRelativeMemoryOperand()).To(BeTrue())
			Expect(inst.IPRelativeMemoryAddress()).To(Equal(uint64(0x1017)))
		})

		It("should wrap EIP-relative displacements to 32 bits", func() {
			inst, _ := decodeOne(64, []byte{0x67, 0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00},
				insts.WithIP(0xFFFFFFF0))

			Expect(inst.MemoryBase()).To(Equal(insts.EIP))
			Expect(inst.IPRelativeMemoryAddress()).To(Equal(uint64(0x8)))
		})

		It("should treat mod=0 rm=5 as absolute outside 64-bit mode", func() {
			inst, _ := decodeOne(32, []byte{0x8B, 0x05, 0x10, 0x00, 0x00, 0x00})

			Expect(inst.MemoryBase()).To(Equal(insts.RegisterNone))
			Expect(inst.IsIPRelativeMemoryOperand()).To(BeFalse())
			Expect(inst.MemoryDisplacement64()).To(Equal(uint64(0x10)))
		})
	})

	Describe("Prefixes", func() {
		It("should accept LOCK with a memory destination", func() {
			inst, d := decodeOne(64, []byte{0xF0, 0x01, 0x18})
			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.HasLockPrefix()).To(BeTrue())
		})

		It("should reject LOCK with a register destination", func() {
			inst, d := decodeOne(64, []byte{0xF0, 0x01, 0xD8})
			Expect(inst.IsInvalid()).To(BeTrue())
			Expect(d.LastError()).To(Equal(insts.DecoderErrorInvalidInstruction))
			Expect(inst.Len()).To(Equal(3))
		})

		It("should relax LOCK checks with NoInvalidCheck", func() {
			inst, _ := decodeOne(64, []byte{0xF0, 0x01, 0xD8}, insts.WithOptions(insts.OptionNoInvalidCheck))
			Expect(inst.Code()).To(Equal(insts.MustCode("Add_rm32_r32")))
			Expect(inst.HasLockPrefix()).To(BeTrue())
		})

		It("should mark XACQUIRE on locked memory operations", func() {
			inst, _ := decodeOne(64, []byte{0xF2, 0xF0, 0x01, 0x18})
			Expect(inst.HasXacquirePrefix()).To(BeTrue())
			Expect(inst.HasXreleasePrefix()).To(BeFalse())
		})

		It("should mark XRELEASE on MOV without LOCK", func() {
			inst, _ := decodeOne(64, []byte{0xF3, 0x89, 0x18})
			Expect(inst.Code()).To(Equal(insts.MustCode("Mov_rm32_r32")))
			Expect(inst.HasXreleasePrefix()).To(BeTrue())
		})

		It("should mark NOTRACK on indirect jumps", func() {
			inst, _ := decodeOne(64, []byte{0x3E, 0xFF, 0xE0})
			Expect(inst.Code()).To(Equal(insts.MustCode("Jmp_rm64")))
			Expect(inst.HasNotrackPrefix()).To(BeTrue())
		})

		It("should mark BND on returns", func() {
			inst, _ := decodeOne(64, []byte{0xF2, 0xC3})
			Expect(inst.Code()).To(Equal(insts.MustCode("Retnq")))
			Expect(inst.HasBndPrefix()).To(BeTrue())
		})

		It("should prefer the mandatory prefix form", func() {
			inst, _ := decodeOne(64, []byte{0xF3, 0x0F, 0xBC, 0xC1})
			Expect(inst.Code()).To(Equal(insts.MustCode("Tzcnt_r32_rm32")))
			Expect(inst.OpRegister(0)).To(Equal(insts.EAX))
			Expect(inst.OpRegister(1)).To(Equal(insts.ECX))
		})
	})

	Describe("Errors and lengths", func() {
		It("should report truncated input", func() {
			inst, d := decodeOne(64, []byte{0x48, 0xB9, 0xFF, 0xFF})

			Expect(inst.IsInvalid()).To(BeTrue())
			Expect(d.LastError()).To(Equal(insts.DecoderErrorNoMoreBytes))
			Expect(inst.Len()).To(Equal(4))
			Expect(d.CanDecode()).To(BeFalse())
		})

		It("should skip at least one byte on an invalid opcode", func() {
			d := insts.MustNewDecoder(64, []byte{0x06, 0x90}, insts.WithIP(0x10))

			inst := d.Decode()
			Expect(inst.IsInvalid()).To(BeTrue())
			Expect(inst.Len()).To(Equal(1))
			Expect(d.Position()).To(Equal(1))
			Expect(d.IP()).To(Equal(uint64(0x11)))

			inst = d.Decode()
			Expect(inst.Mnemonic()).To(Equal("nop"))
			Expect(inst.IP()).To(Equal(uint64(0x11)))
		})

		It("should accept 15-byte instructions", func() {
			code := append(make([]byte, 0, 15), repeat(0x66, 14)...)
			code = append(code, 0x90)

			inst, d := decodeOne(64, code)
			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("Nopw")))
			Expect(inst.Len()).To(Equal(15))
		})

		It("should reject instructions longer than 15 bytes", func() {
			code := append(repeat(0x66, 15), 0x90)

			inst, d := decodeOne(64, code)
			Expect(inst.IsInvalid()).To(BeTrue())
			Expect(d.LastError()).To(Equal(insts.DecoderErrorInvalidInstruction))
			Expect(inst.Len()).To(Equal(15))
		})

		It("should decode opcodes that are only valid outside 64-bit mode", func() {
			inst, _ := decodeOne(32, []byte{0x06})
			Expect(inst.Code()).To(Equal(insts.MustCode("Pushd_ES")))
		})
	})

	Describe("FWAIT fusion", func() {
		It("should fuse 9B with a following x87 control instruction", func() {
			inst, _ := decodeOne(32, []byte{0x9B, 0xDB, 0xE3})

			Expect(inst.Code()).To(Equal(insts.MustCode("Finit")))
			Expect(inst.Len()).To(Equal(3))
		})

		It("should decode WAIT alone when fusion is disabled", func() {
			d := insts.MustNewDecoder(32, []byte{0x9B, 0xDB, 0xE3},
				insts.WithOptions(insts.OptionNoFwaitFusion))

			first := d.Decode()
			Expect(first.Code()).To(Equal(insts.MustCode("Wait")))
			Expect(first.Len()).To(Equal(1))

			second := d.Decode()
			Expect(second.Code()).To(Equal(insts.MustCode("Fninit")))
			Expect(second.Len()).To(Equal(2))
		})

		It("should decode WAIT when nothing fuses", func() {
			inst, _ := decodeOne(32, []byte{0x9B, 0x90})
			Expect(inst.Code()).To(Equal(insts.MustCode("Wait")))
			Expect(inst.Len()).To(Equal(1))
		})
	})

	Describe("Options", func() {
		It("should decode PAUSE unless NoPause is set", func() {
			inst, _ := decodeOne(64, []byte{0xF3, 0x90})
			Expect(inst.Code()).To(Equal(insts.MustCode("Pause")))

			inst, _ = decodeOne(64, []byte{0xF3, 0x90}, insts.WithOptions(insts.OptionNoPause))
			Expect(inst.Code()).To(Equal(insts.MustCode("Nopd")))
		})

		It("should decode WBINVD with NoWbnoinvd", func() {
			inst, _ := decodeOne(64, []byte{0xF3, 0x0F, 0x09})
			Expect(inst.Code()).To(Equal(insts.MustCode("Wbnoinvd")))

			inst, _ = decodeOne(64, []byte{0xF3, 0x0F, 0x09}, insts.WithOptions(insts.OptionNoWbnoinvd))
			Expect(inst.Code()).To(Equal(insts.MustCode("Wbinvd")))
		})

		It("should decode BSF with NoMPFX0FBC", func() {
			inst, _ := decodeOne(64, []byte{0xF3, 0x0F, 0xBC, 0xC1}, insts.WithOptions(insts.OptionNoMPFX0FBC))
			Expect(inst.Code()).To(Equal(insts.MustCode("Bsf_r32_rm32")))
		})

		It("should reject LAHF in 64-bit mode with NoLahfSahf64", func() {
			inst, _ := decodeOne(64, []byte{0x9F})
			Expect(inst.Code()).To(Equal(insts.MustCode("Lahf")))

			inst, _ = decodeOne(64, []byte{0x9F}, insts.WithOptions(insts.OptionNoLahfSahf64))
			Expect(inst.IsInvalid()).To(BeTrue())

			inst, _ = decodeOne(32, []byte{0x9F}, insts.WithOptions(insts.OptionNoLahfSahf64))
			Expect(inst.Code()).To(Equal(insts.MustCode("Lahf")))
		})

		It("should decode Cyrix EMMI only with the Cyrix option", func() {
			inst, _ := decodeOne(32, []byte{0x0F, 0x50, 0xC1}, insts.WithOptions(insts.OptionCyrix))
			Expect(inst.Code()).To(Equal(insts.MustCode("Paveb_mm_m64")))
			Expect(inst.OpRegister(0)).To(Equal(insts.MM0))

			inst, _ = decodeOne(32, []byte{0x0F, 0x50, 0xC1})
			Expect(inst.Code()).To(Equal(insts.MustCode("Movmskps_r32_xmm")))
		})
	})

	Describe("3DNow!", func() {
		It("should select the instruction by the suffix byte", func() {
			inst, _ := decodeOne(64, []byte{0x0F, 0x0F, 0xC1, 0x9E})

			Expect(inst.Code()).To(Equal(insts.MustCode("Pfadd_mm_mmm64")))
			Expect(inst.Encoding()).To(Equal(insts.Encoding3DNow))
			Expect(inst.OpRegister(0)).To(Equal(insts.MM0))
			Expect(inst.OpRegister(1)).To(Equal(insts.MM0 + 1))
			Expect(inst.Len()).To(Equal(4))
		})

		It("should decode the memory operand before the suffix", func() {
			inst, _ := decodeOne(64, []byte{0x0F, 0x0F, 0x40, 0x08, 0x9E})

			Expect(inst.Code()).To(Equal(insts.MustCode("Pfadd_mm_mmm64")))
			Expect(inst.MemoryBase()).To(Equal(insts.RAX))
			Expect(inst.MemoryDisplacement64()).To(Equal(uint64(8)))
			Expect(inst.MemorySize()).To(Equal(insts.MemorySizePacked64Float32))
			Expect(inst.Len()).To(Equal(5))
		})

		It("should reject unknown suffixes", func() {
			inst, _ := decodeOne(64, []byte{0x0F, 0x0F, 0xC1, 0x00})
			Expect(inst.IsInvalid()).To(BeTrue())
		})
	})

	Describe("VEX", func() {
		// VUNPCKLPS XMM1, XMM2, XMM3
		It("should decode the two-byte form", func() {
			inst, _ := decodeOne(64, []byte{0xC5, 0xE8, 0x14, 0xCB})

			Expect(inst.Code()).To(Equal(insts.MustCode("VEX_Vunpcklps_xmm_xmm_xmmm128")))
			Expect(inst.Encoding()).To(Equal(insts.EncodingVEX))
			Expect(inst.OpRegister(0)).To(Equal(insts.XMM1))
			Expect(inst.OpRegister(1)).To(Equal(insts.XMM2))
			Expect(inst.OpRegister(2)).To(Equal(insts.XMM3))
			Expect(inst.Len()).To(Equal(4))
		})

		It("should decode LES instead of VEX outside 64-bit mode when mod != 3", func() {
			inst, _ := decodeOne(32, []byte{0xC4, 0x00})
			Expect(inst.Code()).To(Equal(insts.MustCode("Les_r32_m1632")))

			inst, _ = decodeOne(32, []byte{0xC5, 0xF8, 0x77})
			Expect(inst.Code()).To(Equal(insts.MustCode("VEX_Vzeroupper")))
		})

		It("should reject legacy prefixes before VEX", func() {
			inst, _ := decodeOne(64, []byte{0x66, 0xC5, 0xF8, 0x77})
			Expect(inst.IsInvalid()).To(BeTrue())

			inst, _ = decodeOne(64, []byte{0x66, 0xC5, 0xF8, 0x77}, insts.WithOptions(insts.OptionNoInvalidCheck))
			Expect(inst.Code()).To(Equal(insts.MustCode("VEX_Vzeroupper")))
		})

		It("should reject an unused non-zero vvvv", func() {
			inst, _ := decodeOne(64, []byte{0xC5, 0xF0, 0x77})
			Expect(inst.IsInvalid()).To(BeTrue())
		})

		// VPGATHERDD XMM1, [RAX+XMM2*4], XMM3
		It("should decode VSIB gathers", func() {
			inst, d := decodeOne(64, []byte{0xC4, 0xE2, 0x61, 0x90, 0x0C, 0x90})

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("VEX_Vpgatherdd_xmm_vsib32x_xmm")))
			Expect(inst.IsVSIB()).To(BeTrue())
			Expect(inst.MemoryBase()).To(Equal(insts.RAX))
			Expect(inst.MemoryIndex()).To(Equal(insts.XMM2))
			Expect(inst.MemoryIndexScale()).To(Equal(4))
			Expect(inst.OpRegister(2)).To(Equal(insts.XMM3))
		})

		It("should reject a gather whose index is the destination", func() {
			inst, _ := decodeOne(64, []byte{0xC4, 0xE2, 0x61, 0x90, 0x0C, 0x88})
			Expect(inst.IsInvalid()).To(BeTrue())
		})
	})

	Describe("EVEX", func() {
		// VPSRLQ XMM1, XMM2, 0xA5
		It("should decode a W1 shift by immediate", func() {
			inst, d := decodeOne(64, []byte{0x62, 0xF1, 0xF5, 0x08, 0x73, 0xD2, 0xA5})

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("EVEX_Vpsrlq_xmm_k1z_xmmm128b64_imm8")))
			Expect(inst.Encoding()).To(Equal(insts.EncodingEVEX))
			Expect(inst.OpRegister(0)).To(Equal(insts.XMM1))
			Expect(inst.OpRegister(1)).To(Equal(insts.XMM2))
			Expect(inst.Immediate(2)).To(Equal(uint64(0xA5)))
			Expect(inst.HasOpMask()).To(BeFalse())
			Expect(inst.MergingMasking()).To(BeTrue())
			Expect(inst.Len()).To(Equal(7))
		})

		// VADDPS XMM1{k1}{z}, XMM2, [RAX]{1to4}
		It("should decode masking and broadcast", func() {
			inst, d := decodeOne(64, []byte{0x62, 0xF1, 0x6C, 0x99, 0x58, 0x08})

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("EVEX_Vaddps_xmm_k1z_xmm_xmmm128b32")))
			Expect(inst.OpMask()).To(Equal(insts.K1))
			Expect(inst.ZeroingMasking()).To(BeTrue())
			Expect(inst.IsBroadcast()).To(BeTrue())
			Expect(inst.MemorySize()).To(Equal(insts.MemorySizeBroadcast128Float32))
		})

		It("should scale disp8 by the tuple size", func() {
			inst, _ := decodeOne(64, []byte{0x62, 0xF1, 0x6C, 0x99, 0x58, 0x48, 0x01})
			Expect(inst.MemoryDisplacement64()).To(Equal(uint64(4)))
			Expect(inst.MemoryDisplSize()).To(Equal(1))

			inst, _ = decodeOne(64, []byte{0x62, 0xF1, 0x6C, 0x89, 0x58, 0x48, 0x01})
			Expect(inst.IsBroadcast()).To(BeFalse())
			Expect(inst.MemoryDisplacement64()).To(Equal(uint64(16)))
			Expect(inst.MemorySize()).To(Equal(insts.MemorySizePacked128Float32))
		})

		It("should reject zeroing without a mask", func() {
			inst, _ := decodeOne(64, []byte{0x62, 0xF1, 0x6C, 0x98, 0x58, 0x08})
			Expect(inst.IsInvalid()).To(BeTrue())
		})

		// VADDPS ZMM0, ZMM1, ZMM2, {rd-sae}
		It("should decode static rounding in register form", func() {
			inst, d := decodeOne(64, []byte{0x62, 0xF1, 0x74, 0x38, 0x58, 0xC2})

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("EVEX_Vaddps_zmm_k1z_zmm_zmmm512b32_er")))
			Expect(inst.RoundingControl()).To(Equal(insts.RoundDown))
			Expect(inst.OpRegister(0)).To(Equal(insts.ZMM0))
			Expect(inst.OpRegister(1)).To(Equal(insts.ZMM1))
			Expect(inst.OpRegister(2)).To(Equal(insts.ZMM2))
		})

		It("should decode BOUND instead of EVEX outside 64-bit mode when mod != 3", func() {
			inst, _ := decodeOne(32, []byte{0x62, 0x00})
			Expect(inst.Code()).To(Equal(insts.MustCode("Bound_r32_m3232")))
		})
	})

	Describe("MVEX", func() {
		code := []byte{0x62, 0xF1, 0x70, 0x08, 0x58, 0xC2}

		It("should decode with the KNC option in 64-bit mode", func() {
			inst, d := decodeOne(64, code, insts.WithOptions(insts.OptionKNC))

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("MVEX_Vaddps_zmm_k1_zmm_zmmmt")))
			Expect(inst.Encoding()).To(Equal(insts.EncodingMVEX))
			Expect(inst.OpRegister(0)).To(Equal(insts.ZMM0))
			Expect(inst.OpRegister(1)).To(Equal(insts.ZMM1))
			Expect(inst.OpRegister(2)).To(Equal(insts.ZMM2))
			Expect(inst.MvexRegMemConv()).To(Equal(insts.MvexRegSwizzleNone))
		})

		It("should be invalid without the KNC option", func() {
			inst, _ := decodeOne(64, code)
			Expect(inst.IsInvalid()).To(BeTrue())
		})
	})

	Describe("Cursor", func() {
		var d *insts.Decoder

		BeforeEach(func() {
			d = insts.MustNewDecoder(64, []byte{0x90, 0x90, 0xC3}, insts.WithIP(0x1000))
		})

		It("should iterate over all instructions", func() {
			var mnemonics []string
			var ips []uint64

			for inst := range d.Instructions() {
				mnemonics = append(mnemonics, inst.Mnemonic())
				ips = append(ips, inst.IP())
			}

			Expect(mnemonics).To(Equal([]string{"nop", "nop", "ret"}))
			Expect(ips).To(Equal([]uint64{0x1000, 0x1001, 0x1002}))
			Expect(d.IP()).To(Equal(uint64(0x1003)))
		})

		It("should stop iterating early", func() {
			n := 0
			for range d.Instructions() {
				n++
				break
			}

			Expect(n).To(Equal(1))
			Expect(d.Position()).To(Equal(1))
		})

		It("should move the cursor", func() {
			Expect(d.SetPosition(2)).To(Succeed())
			d.SetIP(0x2000)

			var inst insts.Instruction
			d.DecodeOut(&inst)
			Expect(inst.Code()).To(Equal(insts.MustCode("Retnq")))
			Expect(inst.IP()).To(Equal(uint64(0x2000)))
			Expect(inst.NextIP()).To(Equal(uint64(0x2001)))
		})

		It("should reject out of range positions", func() {
			Expect(d.SetPosition(-1)).To(MatchError(insts.ErrInvalidPosition))
			Expect(d.SetPosition(4)).To(MatchError(insts.ErrInvalidPosition))
			Expect(d.SetPosition(3)).To(Succeed())
			Expect(d.CanDecode()).To(BeFalse())
		})

		It("should wrap the IP in 16-bit mode", func() {
			d16 := insts.MustNewDecoder(16, []byte{0x90}, insts.WithIP(0xFFFF))
			inst := d16.Decode()
			Expect(inst.NextIP()).To(Equal(uint64(0)))
			Expect(inst.CodeSize()).To(Equal(insts.CodeSize16))
		})
	})
})

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}

	return out
}
