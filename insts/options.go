package insts

import (
	"fmt"
	"sort"
	"strings"
)

// DecoderOptions is a bitset that enables alternate decodings.
type DecoderOptions uint32

// Decoder options.
const (
	// OptionNoInvalidCheck skips the relaxable validity rules and returns the
	// most likely intended instruction.
	OptionNoInvalidCheck DecoderOptions = 1 << iota
	// OptionAMD decodes the AMD variant of encodings where vendors differ.
	OptionAMD
	// OptionNoPause decodes F3 90 as NOP.
	OptionNoPause
	// OptionNoWbnoinvd decodes F3 0F 09 as WBINVD.
	OptionNoWbnoinvd
	// OptionNoMPFX0FBC decodes F3 0F BC as BSF.
	OptionNoMPFX0FBC
	// OptionNoMPFX0FBD decodes F3 0F BD as BSR.
	OptionNoMPFX0FBD
	// OptionNoLahfSahf64 makes LAHF and SAHF invalid in 64-bit mode.
	OptionNoLahfSahf64
	// OptionForceReservedNop decodes 0F 18..0F 1F as reserved NOPs.
	OptionForceReservedNop
	// OptionJmpe decodes JMPE.
	OptionJmpe
	// OptionKNC decodes MVEX (Knights Corner) instructions.
	OptionKNC
	// OptionMovTr decodes MOV to/from test registers.
	OptionMovTr
	// OptionLoadall386 decodes LOADALL (0F 07) outside 64-bit mode.
	OptionLoadall386
	// OptionCmpxchg486A decodes the early 486 CMPXCHG opcodes 0F A6/A7.
	OptionCmpxchg486A
	// OptionCyrix decodes Cyrix EMMI instructions.
	OptionCyrix
	// OptionNoFwaitFusion decodes 9B as WAIT even before x87 control ops.
	OptionNoFwaitFusion

	// OptionNone is the empty option set.
	OptionNone DecoderOptions = 0
)

var optionNames = map[string]DecoderOptions{
	"NoInvalidCheck":   OptionNoInvalidCheck,
	"AMD":              OptionAMD,
	"NoPause":          OptionNoPause,
	"NoWbnoinvd":       OptionNoWbnoinvd,
	"NoMPFX0FBC":       OptionNoMPFX0FBC,
	"NoMPFX0FBD":       OptionNoMPFX0FBD,
	"NoLahfSahf64":     OptionNoLahfSahf64,
	"ForceReservedNop": OptionForceReservedNop,
	"Jmpe":             OptionJmpe,
	"KNC":              OptionKNC,
	"MovTr":            OptionMovTr,
	"Loadall386":       OptionLoadall386,
	"Cmpxchg486A":      OptionCmpxchg486A,
	"Cyrix":            OptionCyrix,
	"NoFwaitFusion":    OptionNoFwaitFusion,
}

// ParseDecoderOptions converts option names (as used in config files and
// on the command line) to a bitset.
func ParseDecoderOptions(names []string) (DecoderOptions, error) {
	var opts DecoderOptions

	for _, name := range names {
		opt, ok := optionNames[strings.TrimSpace(name)]
		if !ok {
			return 0, fmt.Errorf("unknown decoder option %q", name)
		}

		opts |= opt
	}

	return opts, nil
}

// Names returns the names of the options set in o, sorted.
func (o DecoderOptions) Names() []string {
	var names []string

	for name, opt := range optionNames {
		if o&opt != 0 {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}

func (o DecoderOptions) String() string {
	if o == OptionNone {
		return "None"
	}

	return strings.Join(o.Names(), "|")
}
