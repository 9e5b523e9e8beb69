package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/arch/x86/x86asm"

	"github.com/sarchlab/x86dec/insts"
)

var _ = Describe("Length oracle", func() {
	DescribeTable("should agree with x86asm on legacy 64-bit instructions",
		func(name string, code []byte) {
			inst, d := decodeOne(64, code)
			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code().String()).To(Equal(name))

			ref, err := x86asm.Decode(code, 64)
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Len()).To(Equal(ref.Len))
			Expect(inst.Len()).To(Equal(len(code)))
		},
		Entry("nop", "Nopd", []byte{0x90}),
		Entry("nop word", "Nop_rm16", []byte{0x66, 0x0F, 0x1F, 0x44, 0x00, 0x00}),
		Entry("nop dword", "Nop_rm32", []byte{0x0F, 0x1F, 0x40, 0x00}),
		Entry("mov rm64, imm32", "Mov_rm64_imm32", []byte{0x48, 0xC7, 0xC0, 0x01, 0x00, 0x00, 0x00}),
		Entry("lea rip-relative", "Lea_r64_m", []byte{0x48, 0x8D, 0x05, 0x10, 0x00, 0x00, 0x00}),
		Entry("imul", "Imul_r32_rm32", []byte{0x0F, 0xAF, 0xC0}),
		Entry("call rel32", "Call_rel32_64", []byte{0xE8, 0x00, 0x00, 0x00, 0x00}),
		Entry("call r8", "Call_rm64", []byte{0x41, 0xFF, 0xD0}),
		Entry("je rel8", "Je_rel8_64", []byte{0x74, 0x05}),
		Entry("je rel32", "Je_rel32_64", []byte{0x0F, 0x84, 0x10, 0x00, 0x00, 0x00}),
		Entry("rep movsb", "Movsb_m8_m8", []byte{0xF3, 0xA4}),
		Entry("movaps", "Movaps_xmm_xmmm128", []byte{0x0F, 0x28, 0xC1}),
		Entry("pxor", "Pxor_xmm_xmmm128", []byte{0x66, 0x0F, 0xEF, 0xC0}),
		Entry("lock cmpxchg", "Cmpxchg_rm64_r64", []byte{0xF0, 0x48, 0x0F, 0xB1, 0x0A}),
		Entry("syscall", "Syscall", []byte{0x0F, 0x05}),
		Entry("fldz", "Fldz", []byte{0xD9, 0xEE}),
		Entry("cpuid", "Cpuid", []byte{0x0F, 0xA2}),
		Entry("bswap", "Bswap_r32", []byte{0x0F, 0xC8}),
		Entry("movzx", "Movzx_r32_rm8", []byte{0x0F, 0xB6, 0xC1}),
		Entry("cmovne", "Cmovne_r64_rm64", []byte{0x48, 0x0F, 0x45, 0xC1}),
		Entry("test", "Test_rm8_r8", []byte{0x84, 0xC0}),
		Entry("shl", "Shl_rm32_imm8", []byte{0xC1, 0xE0, 0x04}),
		Entry("xchg", "Xchg_r32_EAX", []byte{0x91}),
		Entry("xchg r9, rax", "Xchg_r64_RAX", []byte{0x49, 0x91}),
		Entry("imul imm8", "Imul_r32_rm32_imm8", []byte{0x6B, 0xC1, 0x05}),
		Entry("bsf", "Bsf_r32_rm32", []byte{0x0F, 0xBC, 0xC1}),
		Entry("test imm8", "Test_rm8_imm8", []byte{0xF6, 0xC0, 0x01}),
		Entry("bt imm8", "Bt_rm32_imm8", []byte{0x0F, 0xBA, 0xE0, 0x03}),
		Entry("setne", "Setne_rm8", []byte{0x0F, 0x95, 0xC0}),
		Entry("rdtsc", "Rdtsc", []byte{0x0F, 0x31}),
		Entry("popcnt", "Popcnt_r32_rm32", []byte{0xF3, 0x0F, 0xB8, 0xC1}),
		Entry("lzcnt", "Lzcnt_r64_rm64", []byte{0xF3, 0x48, 0x0F, 0xBD, 0xC1}),
		Entry("movsxd", "Movsxd_r64_rm32", []byte{0x48, 0x63, 0xC1}),
		Entry("sar by one", "Sar_rm64_1", []byte{0x48, 0xD1, 0xF8}),
		Entry("neg", "Neg_rm32", []byte{0xF7, 0xD8}),
		Entry("div", "Div_rm64", []byte{0x48, 0xF7, 0xF1}),
		Entry("inc", "Inc_rm32", []byte{0xFF, 0xC0}),
		Entry("mov sib disp32", "Mov_r32_rm32", []byte{0x8B, 0x84, 0x9C, 0x78, 0x56, 0x34, 0x12}),
		Entry("jne rel32", "Jne_rel32_64", []byte{0x0F, 0x85, 0x00, 0x01, 0x00, 0x00}),
	)
})
