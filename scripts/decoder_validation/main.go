// Validate decoder allocations and cross-check legacy instruction lengths
// against golang.org/x/arch/x86/x86asm.
package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"golang.org/x/arch/x86/x86asm"

	"github.com/sarchlab/x86dec/info"
	"github.com/sarchlab/x86dec/insts"
)

// sample is a short 64-bit function body mixing common encodings.
var sample = []byte{
	0x55,                                     // push rbp
	0x48, 0x89, 0xE5,                         // mov rbp, rsp
	0x48, 0x83, 0xEC, 0x20,                   // sub rsp, 0x20
	0x89, 0x7D, 0xEC,                         // mov [rbp-0x14], edi
	0x8B, 0x45, 0xEC,                         // mov eax, [rbp-0x14]
	0x0F, 0xAF, 0xC0,                         // imul eax, eax
	0x48, 0x8D, 0x05, 0x10, 0x00, 0x00, 0x00, // lea rax, [rip+0x10]
	0xF3, 0xA4,                               // rep movsb
	0xC5, 0xF8, 0x77,                         // vzeroupper
	0x62, 0xF1, 0x7D, 0x48, 0x6F, 0x01,       // vmovdqa32 zmm0, [rcx]
	0x31, 0xC0,                               // xor eax, eax
	0xC9,                                     // leave
	0xC3,                                     // ret
}

func main() {
	d := insts.MustNewDecoder(64, sample, insts.WithIP(0x1000))
	f := info.NewFactory()

	var inst insts.Instruction

	// Warm up
	for i := 0; i < 1000; i++ {
		decodeAll(d, f, &inst)
	}

	runtime.GC()
	var m1, m2 runtime.MemStats
	runtime.ReadMemStats(&m1)

	start := time.Now()
	iterations := 100000
	decodes := 0

	for i := 0; i < iterations; i++ {
		decodes += decodeAll(d, f, &inst)
	}

	elapsed := time.Since(start)
	runtime.ReadMemStats(&m2)

	allocations := m2.Mallocs - m1.Mallocs
	allocatedBytes := m2.TotalAlloc - m1.TotalAlloc

	fmt.Printf("Decoder Validation Results:\n")
	fmt.Printf("===========================\n")
	fmt.Printf("Total decode operations: %d\n", decodes)
	fmt.Printf("Time elapsed: %v\n", elapsed)
	fmt.Printf("Decodes per second: %.0f\n", float64(decodes)/elapsed.Seconds())
	fmt.Printf("Allocations: %d\n", allocations)
	fmt.Printf("Allocated bytes: %d\n", allocatedBytes)
	fmt.Printf("Allocations per decode: %.3f\n", float64(allocations)/float64(decodes))
	fmt.Printf("Bytes per decode: %.1f\n", float64(allocatedBytes)/float64(decodes))

	mismatches := crossCheck()
	fmt.Printf("x86asm length mismatches: %d\n", mismatches)

	switch {
	case mismatches > 0:
		fmt.Printf("\nFAIL: decoder disagrees with x86asm\n")
		os.Exit(1)
	case allocations == 0:
		fmt.Printf("\nOK: zero allocations\n")
	case float64(allocations)/float64(decodes) < 0.1:
		fmt.Printf("\nOK: low allocation rate (< 0.1 per decode)\n")
	default:
		fmt.Printf("\nWARNING: high allocation rate\n")
	}
}

// decodeAll decodes sample from the start and runs the info factory on
// every instruction.
func decodeAll(d *insts.Decoder, f *info.Factory, inst *insts.Instruction) int {
	d.SetIP(0x1000)
	_ = d.SetPosition(0)

	n := 0
	for d.CanDecode() {
		d.DecodeOut(inst)
		_ = f.Info(inst)
		n++
	}

	return n
}

func crossCheck() int {
	d := insts.MustNewDecoder(64, sample, insts.WithIP(0x1000))
	mismatches := 0

	for d.CanDecode() {
		pos := d.Position()
		inst := d.Decode()

		if inst.Encoding() != insts.EncodingLegacy {
			continue
		}

		ref, err := x86asm.Decode(sample[pos:], 64)
		if err != nil || ref.Len != inst.Len() {
			fmt.Printf("  0x%X: %s len %d, x86asm len %d (%v)\n",
				inst.IP(), inst.Code(), inst.Len(), ref.Len, err)
			mismatches++
		}
	}

	return mismatches
}
