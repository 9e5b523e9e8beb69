package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/sarchlab/x86dec/info"
	"github.com/sarchlab/x86dec/insts"
	"github.com/sarchlab/x86dec/walk"
)

// parseHex accepts bytes written as "31 C0", "31c0", "0x31,0xc0" or
// "\x31\xc0".
func parseHex(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.NewReplacer("0x", "", "0X", "", `\x`, "", ",", "", " ", "", "\t", "").Replace(s)

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex input: %w", err)
	}

	return data, nil
}

func formatBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}

	return strings.Join(parts, " ")
}

func formatAddr(addr uint64, bitness int) string {
	if bitness == 64 {
		return fmt.Sprintf("%016X", addr)
	}

	return fmt.Sprintf("%08X", addr)
}

// operandString renders operand n in a neutral dump form.
func operandString(inst *insts.Instruction, n int) string {
	k := inst.OpKind(n)

	switch {
	case k == insts.OpKindRegister:
		return inst.OpRegister(n).String()
	case k.IsNearBranch():
		return fmt.Sprintf("0x%X", inst.NearBranchTarget())
	case k == insts.OpKindFarBranch16 || k == insts.OpKindFarBranch32:
		return fmt.Sprintf("0x%04X:0x%X", inst.FarBranchSelector(), inst.FarBranch32())
	case k.IsImmediate():
		return fmt.Sprintf("0x%X", inst.Immediate(n))
	case k == insts.OpKindMemory:
		return memoryString(inst)
	}

	return k.String()
}

func memoryString(inst *insts.Instruction) string {
	var parts []string

	if inst.IsIPRelativeMemoryOperand() {
		return fmt.Sprintf("%s [0x%X]", inst.MemorySize(), inst.IPRelativeMemoryAddress())
	}

	if b := inst.MemoryBase(); b != insts.RegisterNone {
		parts = append(parts, b.String())
	}

	if x := inst.MemoryIndex(); x != insts.RegisterNone {
		parts = append(parts, fmt.Sprintf("%s*%d", x, inst.MemoryIndexScale()))
	}

	if d := inst.MemoryDisplacement64(); d != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("0x%X", d))
	}

	seg := ""
	if inst.HasSegmentPrefix() {
		seg = inst.SegmentPrefix().String() + ":"
	}

	return fmt.Sprintf("%s %s[%s]", inst.MemorySize(), seg, strings.Join(parts, "+"))
}

func operandsString(inst *insts.Instruction) string {
	ops := make([]string, inst.OpCount())
	for n := range ops {
		ops[n] = operandString(inst, n)
	}

	s := strings.Join(ops, ", ")

	if inst.HasOpMask() {
		s += fmt.Sprintf(" {%s}", inst.OpMask())
	}

	if inst.ZeroingMasking() {
		s += " {z}"
	}

	return s
}

func entryLine(e *walk.Entry, bitness int) string {
	addr := formatAddr(e.Inst.IP(), bitness)

	if e.Inst.IsInvalid() {
		return fmt.Sprintf("%s  %-30s (bad)", addr, formatBytes(e.Bytes))
	}

	return fmt.Sprintf("%s  %-30s %-10s %s", addr, formatBytes(e.Bytes),
		e.Inst.Mnemonic(), operandsString(&e.Inst))
}

// usageTree renders the operands and data flow of one instruction.
func usageTree(inst *insts.Instruction, res *info.InstructionInfo) treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("%s (%s, %s)", inst.Mnemonic(), inst.Code(), inst.Encoding()))

	ops := tree.AddBranch("operands")
	for n := 0; n < inst.OpCount(); n++ {
		ops.AddNode(fmt.Sprintf("op%d %s %s: %s",
			n, inst.OpKind(n), operandString(inst, n), res.OpAccess(n)))
	}

	regs := tree.AddBranch("registers")
	for _, r := range res.UsedRegisters() {
		regs.AddNode(r.String())
	}

	mem := tree.AddBranch("memory")
	for _, m := range res.UsedMemory() {
		mem.AddNode(m.String())
	}

	flags := tree.AddBranch("rflags")
	flags.AddNode("read: " + insts.RflagsString(res.RflagsRead()))
	flags.AddNode("written: " + insts.RflagsString(res.RflagsWritten()))
	flags.AddNode("cleared: " + insts.RflagsString(res.RflagsCleared()))
	flags.AddNode("set: " + insts.RflagsString(res.RflagsSet()))
	flags.AddNode("undefined: " + insts.RflagsString(res.RflagsUndefined()))

	return tree
}

func printListing(w io.Writer, l *walk.Listing, bitness int, check bool) {
	for i := range l.Entries {
		e := &l.Entries[i]
		line := entryLine(e, bitness)

		if check {
			if note, ok := crossCheck(e, bitness); !ok {
				line += "  ; " + note
			}
		}

		fmt.Fprintln(w, line)

		if e.Info != nil {
			fmt.Fprint(w, indent(usageTree(&e.Inst, e.Info).String(), "    "))
		}
	}

	if l.Truncated {
		fmt.Fprintln(w, "... (truncated)")
	}
}

func printStats(w io.Writer, s walk.Stats) {
	fmt.Fprintf(w, "Instructions: %d\n", s.Instructions)
	fmt.Fprintf(w, "Invalid:      %d\n", s.Invalid)
	fmt.Fprintf(w, "Bytes:        %d\n", s.Bytes)
	fmt.Fprintf(w, "Cache hits:   %d\n", s.CacheHits)

	encs := make([]insts.EncodingKind, 0, len(s.ByEncoding))
	for k := range s.ByEncoding {
		encs = append(encs, k)
	}
	sort.Slice(encs, func(i, j int) bool { return encs[i] < encs[j] })

	for _, k := range encs {
		fmt.Fprintf(w, "  %-8s %d\n", k, s.ByEncoding[k])
	}
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")

	var b strings.Builder
	for _, l := range lines {
		if l != "" {
			b.WriteString(prefix + l)
		}
	}

	return b.String()
}
