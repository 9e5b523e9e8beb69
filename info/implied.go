package info

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sarchlab/x86dec/insts"
)

type cmdKind uint8

const (
	cmdReg cmdKind = iota
	cmdPush
	cmdPop
	cmdPusha
	cmdPopa
	cmdEnter
	cmdLeave
	cmdIns
	cmdOuts
	cmdMovs
	cmdCmps
	cmdLods
	cmdScas
	cmdStos
	cmdXstore
	cmdMem
	cmdEmmi
	cmdArpl
	cmdVzeroupper
	cmdVzeroall
	cmdLea
)

var simpleCommands = map[string]cmdKind{
	"ins":        cmdIns,
	"outs":       cmdOuts,
	"movs":       cmdMovs,
	"cmps":       cmdCmps,
	"lods":       cmdLods,
	"scas":       cmdScas,
	"stos":       cmdStos,
	"arpl":       cmdArpl,
	"vzeroupper": cmdVzeroupper,
	"vzeroall":   cmdVzeroall,
	"lea":        cmdLea,
}

var countCommands = map[string]cmdKind{
	"push":   cmdPush,
	"pop":    cmdPop,
	"pusha":  cmdPusha,
	"popa":   cmdPopa,
	"enter":  cmdEnter,
	"leave":  cmdLeave,
	"xstore": cmdXstore,
}

var accessTokens = map[string]OpAccess{
	"r":   Read,
	"w":   Write,
	"rw":  ReadWrite,
	"cr":  CondRead,
	"cw":  CondWrite,
	"rcw": ReadCondWrite,
}

// regSize says how a regRef picks its width.
type regSize uint8

const (
	sizeFixed regSize = iota
	sizeAddress
	sizeStack
	sizeOperand
)

// regRef is a literal register, a GPR number whose width follows the
// address size (aAX) or the stack size (xSP), or the register of an
// explicit operand (op0).
type regRef struct {
	size   regSize
	fixed  insts.Register
	number int
}

var pseudoRegisters = map[string]regRef{
	"aAX": {size: sizeAddress, number: 0},
	"aCX": {size: sizeAddress, number: 1},
	"aBX": {size: sizeAddress, number: 3},
	"aSI": {size: sizeAddress, number: 6},
	"aDI": {size: sizeAddress, number: 7},
	"xSP": {size: sizeStack, number: 4},
	"xBP": {size: sizeStack, number: 5},
	"op0": {size: sizeOperand, number: 0},
}

func (r regRef) resolve(inst *insts.Instruction) insts.Register {
	switch r.size {
	case sizeAddress:
		return insts.GPR(r.number, addressSize(inst), false)
	case sizeStack:
		return insts.GPR(r.number, stackSize(inst), false)
	case sizeOperand:
		if r.number < inst.OpCount() && inst.OpKind(r.number) == insts.OpKindRegister {
			return inst.OpRegister(r.number)
		}

		return insts.RegisterNone
	}

	return r.fixed
}

// command is one compiled step of an implied-access program.
type command struct {
	kind   cmdKind
	access OpAccess
	reg    regRef
	count  int

	// mem: commands
	segment insts.Register
	base    regRef
	index   regRef
	size    insts.MemorySize
}

// program is the compiled implied-access program of one code.
type program struct {
	cmds     []command
	stringOp bool
	arpl     bool
	lea      bool
}

var programs = sync.OnceValue(func() []program {
	progs := make([]program, insts.CodeCount())

	for c := range progs {
		code := insts.Code(c)

		p, err := compile(code.Implied())
		if err != nil {
			panic(fmt.Errorf("%s: %w", code, err))
		}

		progs[c] = p
	}

	return progs
})

// compile parses a comma separated implied-access program such as
// "rw:aCX" or "rw:AL,mem:seg:aBX:AL:r:UInt8".
func compile(text string) (program, error) {
	var p program

	if text == "" {
		return p, nil
	}

	for _, tok := range strings.Split(text, ",") {
		cmd, err := compileCommand(tok)
		if err != nil {
			return p, err
		}

		switch cmd.kind {
		case cmdIns, cmdOuts, cmdMovs, cmdCmps, cmdLods, cmdScas, cmdStos:
			p.stringOp = true
		case cmdArpl:
			p.arpl = true
		case cmdLea:
			p.lea = true
		}

		p.cmds = append(p.cmds, cmd)
	}

	return p, nil
}

func compileCommand(tok string) (command, error) {
	if k, ok := simpleCommands[tok]; ok {
		return command{kind: k}, nil
	}

	name, arg, ok := strings.Cut(tok, ":")
	if !ok {
		return command{}, fmt.Errorf("unknown implied command %q", tok)
	}

	if acc, ok := accessTokens[name]; ok {
		reg, err := parseRegRef(arg)
		if err != nil {
			return command{}, err
		}

		return command{kind: cmdReg, access: acc, reg: reg}, nil
	}

	if k, ok := countCommands[name]; ok {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return command{}, fmt.Errorf("bad count in %q", tok)
		}

		return command{kind: k, count: n}, nil
	}

	switch name {
	case "emmi":
		acc, ok := accessTokens[arg]
		if !ok {
			return command{}, fmt.Errorf("bad access in %q", tok)
		}

		return command{kind: cmdEmmi, access: acc}, nil
	case "mem":
		return compileMem(tok, arg)
	}

	return command{}, fmt.Errorf("unknown implied command %q", tok)
}

// compileMem parses mem:SEG:BASE:INDEX:ACCESS:SIZE.
func compileMem(tok, arg string) (command, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 5 {
		return command{}, fmt.Errorf("expected 5 fields in %q", tok)
	}

	cmd := command{kind: cmdMem}

	switch parts[0] {
	case "seg":
		cmd.segment = insts.RegisterNone
	case "es":
		cmd.segment = insts.ES
	case "ss":
		cmd.segment = insts.SS
	default:
		return command{}, fmt.Errorf("bad segment in %q", tok)
	}

	var err error

	if cmd.base, err = parseRegRef(parts[1]); err != nil {
		return command{}, err
	}

	if parts[2] != "-" {
		if cmd.index, err = parseRegRef(parts[2]); err != nil {
			return command{}, err
		}
	}

	acc, ok := accessTokens[parts[3]]
	if !ok {
		return command{}, fmt.Errorf("bad access in %q", tok)
	}

	cmd.access = acc

	if cmd.size, ok = insts.MemorySizeByName(parts[4]); !ok {
		return command{}, fmt.Errorf("bad memory size in %q", tok)
	}

	return cmd, nil
}

func parseRegRef(name string) (regRef, error) {
	if r, ok := pseudoRegisters[name]; ok {
		return r, nil
	}

	r, ok := insts.RegisterByName(name)
	if !ok {
		return regRef{}, fmt.Errorf("unknown register %q", name)
	}

	return regRef{fixed: r}, nil
}
