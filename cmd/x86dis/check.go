package main

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/sarchlab/x86dec/insts"
	"github.com/sarchlab/x86dec/walk"
)

// crossCheck decodes a legacy instruction's bytes with x86asm and reports
// whether both decoders agree on its length. VEX, EVEX, XOP, MVEX, 3DNow!
// and invalid entries are not checked.
func crossCheck(e *walk.Entry, bitness int) (string, bool) {
	if e.Inst.IsInvalid() || e.Inst.Encoding() != insts.EncodingLegacy {
		return "", true
	}

	ref, err := x86asm.Decode(e.Bytes, bitness)
	if err != nil {
		return fmt.Sprintf("x86asm: %v", err), false
	}

	if ref.Len != e.Inst.Len() {
		return fmt.Sprintf("x86asm: length %d (%s)", ref.Len,
			x86asm.IntelSyntax(ref, e.Inst.IP(), nil)), false
	}

	return "", true
}
