// Package insts decodes x86 and x86-64 machine code.
//
// It covers the legacy, VEX, EVEX, XOP, 3DNow! and MVEX encodings in 16-,
// 32- and 64-bit modes. Each instruction form has a Code; the forms are
// described by the embedded opcode table (opcodes.tbl), which also carries
// the implied register and memory accesses used by package info.
//
// Usage:
//
//	d := insts.MustNewDecoder(64, code, insts.WithIP(0x401000))
//	for inst := range d.Instructions() {
//		if inst.IsInvalid() {
//			continue
//		}
//		fmt.Printf("%x %s %d\n", inst.IP(), inst.Mnemonic(), inst.Len())
//	}
//
// Decoding never fails hard: invalid or truncated input produces an
// instruction with CodeInvalid, and Decoder.LastError says why.
package insts
