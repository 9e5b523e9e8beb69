package insts_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/x86dec/insts"
)

var _ = Describe("Instruction forms", func() {
	DescribeTable("should decode extension forms",
		func(bitness int, name string, code []byte) {
			inst, d := decodeOne(bitness, code)

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code().String()).To(Equal(name))
			Expect(inst.Len()).To(Equal(len(code)))
			Expect(inst.Validate()).To(Succeed())
		},
		Entry("vpopcntb", 64, "EVEX_Vpopcntb_zmm_k1z_zmmm512",
			[]byte{0x62, 0xF2, 0x7D, 0x48, 0x54, 0xC1}),
		Entry("vpopcntw", 64, "EVEX_Vpopcntw_zmm_k1z_zmmm512",
			[]byte{0x62, 0xF2, 0xFD, 0x48, 0x54, 0xC1}),
		Entry("vpcompressb", 64, "EVEX_Vpcompressb_zmmm512_k1z_zmm",
			[]byte{0x62, 0xF2, 0x7D, 0x48, 0x63, 0xC1}),
		Entry("vpexpandb", 64, "EVEX_Vpexpandb_xmm_k1z_xmmm128",
			[]byte{0x62, 0xF2, 0x7D, 0x08, 0x62, 0xC1}),
		Entry("vpshldd", 64, "EVEX_Vpshldd_zmm_k1z_zmm_zmmm512b32_imm8",
			[]byte{0x62, 0xF3, 0x75, 0x48, 0x71, 0xC2, 0x05}),
		Entry("vpshrdvq", 64, "EVEX_Vpshrdvq_zmm_k1z_zmm_zmmm512b64",
			[]byte{0x62, 0xF2, 0xF5, 0x48, 0x73, 0xC2}),
		Entry("vpshufbitqmb", 64, "EVEX_Vpshufbitqmb_kr_k1_zmm_zmmm512",
			[]byte{0x62, 0xF2, 0x75, 0x48, 0x8F, 0xCA}),
		Entry("vfpclassps", 64, "EVEX_Vfpclassps_kr_k1_zmmm512b32_imm8",
			[]byte{0x62, 0xF3, 0x7D, 0x48, 0x66, 0xCA, 0x03}),
		Entry("vfpclasssd", 64, "EVEX_Vfpclasssd_kr_k1_xmmm64_imm8",
			[]byte{0x62, 0xF3, 0xFD, 0x08, 0x67, 0xCA, 0x03}),
		Entry("vgf2p8affineqb", 64, "EVEX_Vgf2p8affineqb_zmm_k1z_zmm_zmmm512b64_imm8",
			[]byte{0x62, 0xF3, 0xF5, 0x48, 0xCE, 0xC2, 0x00}),
		Entry("vpbroadcastmb2q", 64, "EVEX_Vpbroadcastmb2q_zmm_kr",
			[]byte{0x62, 0xF2, 0xFE, 0x48, 0x2A, 0xC1}),
		Entry("vpbroadcastmw2d", 64, "EVEX_Vpbroadcastmw2d_xmm_kr",
			[]byte{0x62, 0xF2, 0x7E, 0x08, 0x3A, 0xC1}),
		Entry("vexp2ps", 64, "EVEX_Vexp2ps_zmm_k1z_zmmm512b32_sae",
			[]byte{0x62, 0xF2, 0x7D, 0x48, 0xC8, 0xC1}),
		Entry("vrcp28sd", 64, "EVEX_Vrcp28sd_xmm_k1z_xmm_xmmm64_sae",
			[]byte{0x62, 0xF2, 0xF5, 0x08, 0xCB, 0xC2}),
		Entry("v4fmaddps", 64, "EVEX_V4fmaddps_zmm_k1z_zmmp3_m128",
			[]byte{0x62, 0xF2, 0x5F, 0x48, 0x9A, 0x00}),
		Entry("vp4dpwssd", 64, "EVEX_Vp4dpwssd_zmm_k1z_zmmp3_m128",
			[]byte{0x62, 0xF2, 0x5F, 0x48, 0x52, 0x00}),
		Entry("vgatherpf0dps", 64, "EVEX_Vgatherpf0dps_vsib32z_k1",
			[]byte{0x62, 0xF2, 0x7D, 0x49, 0xC6, 0x0C, 0x08}),
		Entry("vmovaps zmm", 64, "EVEX_Vmovaps_zmm_k1z_zmmm512",
			[]byte{0x62, 0xF1, 0x7C, 0x48, 0x28, 0xC1}),
		Entry("vpternlogd", 64, "EVEX_Vpternlogd_zmm_k1z_zmm_zmmm512b32_imm8",
			[]byte{0x62, 0xF3, 0x75, 0x48, 0x25, 0xC2, 0xFF}),
		Entry("hreset", 64, "Hreset_imm8", []byte{0xF3, 0x0F, 0x3A, 0xF0, 0xC0, 0x00}),
		Entry("hreset 32-bit", 32, "Hreset_imm8", []byte{0xF3, 0x0F, 0x3A, 0xF0, 0xC0, 0x00}),
		Entry("xbegin 64-bit", 64, "Xbegin_rel32_64", []byte{0xC7, 0xF8, 0x10, 0x00, 0x00, 0x00}),
		Entry("xbegin 32-bit", 32, "Xbegin_rel32", []byte{0xC7, 0xF8, 0x10, 0x00, 0x00, 0x00}),
		Entry("xbegin rel16", 64, "Xbegin_rel16", []byte{0x66, 0xC7, 0xF8, 0x10, 0x00}),
	)

	Describe("XBEGIN", func() {
		It("should take a 64-bit target without REX.W", func() {
			inst, d := decodeOne(64, []byte{0xC7, 0xF8, 0x10, 0x00, 0x00, 0x00})

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.OpKind(0)).To(Equal(insts.OpKindNearBranch64))
			Expect(inst.NearBranchTarget()).To(Equal(uint64(0x16)))
		})
	})

	Describe("VMOVD", func() {
		w1 := []byte{0xC4, 0xE1, 0xB9, 0x6E, 0xC1}
		w0 := []byte{0xC4, 0xE1, 0x39, 0x6E, 0xC1}

		It("should ignore VEX.W outside 64-bit mode", func() {
			a, _ := decodeOne(32, w1)
			b, _ := decodeOne(32, w0)

			Expect(a.Code()).To(Equal(insts.MustCode("VEX_Vmovd_xmm_rm32")))
			Expect(b.Code()).To(Equal(a.Code()))
			Expect(a.OpRegister(1)).To(Equal(insts.ECX))
		})

		It("should read a 64-bit source with VEX.W1 in 64-bit mode", func() {
			inst, _ := decodeOne(64, []byte{0xC4, 0xE1, 0xF9, 0x6E, 0xC1})

			Expect(inst.Code()).To(Equal(insts.MustCode("VEX_Vmovq_xmm_rm64")))
			Expect(inst.OpRegister(1)).To(Equal(insts.RCX))
		})
	})

	Describe("MVEX register forms with EH set", func() {
		knc := insts.WithOptions(insts.OptionKNC)

		It("should read the rounding mode from SSS", func() {
			inst, d := decodeOne(64, []byte{0x62, 0xF1, 0x68, 0x98, 0x58, 0xCB}, knc)

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("MVEX_Vaddps_zmm_k1_zmm_zmmmt")))
			Expect(inst.OpRegister(0)).To(Equal(insts.ZMM1))
			Expect(inst.OpRegister(1)).To(Equal(insts.ZMM2))
			Expect(inst.OpRegister(2)).To(Equal(insts.ZMM0 + 3))
			Expect(inst.RoundingControl()).To(Equal(insts.RoundDown))
			Expect(inst.SuppressAllExceptions()).To(BeFalse())
			Expect(inst.MvexRegMemConv()).To(Equal(insts.MvexRegMemConvNone))
		})

		It("should suppress exceptions when SSS bit 2 is set", func() {
			inst, _ := decodeOne(64, []byte{0x62, 0xF1, 0x68, 0xD8, 0x58, 0xCB}, knc)

			Expect(inst.RoundingControl()).To(Equal(insts.RoundDown))
			Expect(inst.SuppressAllExceptions()).To(BeTrue())
		})

		It("should only suppress exceptions on SAE rows", func() {
			inst, d := decodeOne(64, []byte{0x62, 0xF2, 0x79, 0xC8, 0x42, 0xC1}, knc)

			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.Code()).To(Equal(insts.MustCode("MVEX_Vgetexpps_zmm_k1_zmmmt")))
			Expect(inst.SuppressAllExceptions()).To(BeTrue())
			Expect(inst.RoundingControl()).To(Equal(insts.RoundingControlNone))

			inst, d = decodeOne(64, []byte{0x62, 0xF2, 0x79, 0x88, 0x42, 0xC1}, knc)
			Expect(d.LastError()).To(Equal(insts.DecoderErrorNone))
			Expect(inst.SuppressAllExceptions()).To(BeFalse())
		})

		It("should reject EH on rows without rounding or SAE", func() {
			inst, _ := decodeOne(64, []byte{0x62, 0xF1, 0x69, 0x88, 0xFE, 0xCB}, knc)
			Expect(inst.IsInvalid()).To(BeTrue())
		})

		It("should decode integer and prefetch rows", func() {
			inst, _ := decodeOne(64, []byte{0x62, 0xF1, 0xE9, 0x08, 0xDB, 0xCB}, knc)
			Expect(inst.Code()).To(Equal(insts.MustCode("MVEX_Vpandq_zmm_k1_zmm_zmmmt")))

			inst, _ = decodeOne(64, []byte{0x62, 0xF1, 0x78, 0x08, 0x18, 0x08}, knc)
			Expect(inst.Code()).To(Equal(insts.MustCode("MVEX_Vprefetch0_m")))
			Expect(inst.MemoryBase()).To(Equal(insts.RAX))
		})
	})

	Describe("Random input", func() {
		leads := []byte{0x62, 0xC4, 0xC5, 0x8F, 0x0F, 0x66, 0xF3, 0xF2, 0x48}

		DescribeTable("should always make progress with a bounded length",
			func(bitness int, opts insts.DecoderOptions) {
				r := rand.New(rand.NewSource(int64(bitness) + int64(opts)))

				for i := 0; i < 3000; i++ {
					buf := make([]byte, 32)
					r.Read(buf)
					if i%2 == 0 {
						buf[0] = leads[r.Intn(len(leads))]
					}

					d := insts.MustNewDecoder(bitness, buf, insts.WithOptions(opts))
					for d.CanDecode() {
						pos, ip := d.Position(), d.IP()
						inst := d.Decode()

						Expect(inst.Len()).To(And(BeNumerically(">=", 1), BeNumerically("<=", insts.MaxInstructionLength)),
							"% X", buf[pos:])
						Expect(d.Position()).To(Equal(pos + inst.Len()))
						Expect(inst.IP()).To(Equal(ip))

						if !inst.IsInvalid() {
							Expect(inst.Validate()).To(Succeed(), "% X", buf[pos:pos+inst.Len()])
						}
					}
				}
			},
			Entry("16-bit", 16, insts.OptionNone),
			Entry("32-bit", 32, insts.OptionNone),
			Entry("64-bit", 64, insts.OptionNone),
			Entry("64-bit KNC", 64, insts.OptionKNC),
		)
	})
})
