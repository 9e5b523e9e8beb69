package insts

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// The opcode table is written in the notation of the Intel SDM opcode
// column, one instruction form per line:
//
//	Name | encoding | operand:access ... | flags ...
//
// It is parsed once at init. Malformed rows panic since the table is part
// of the source tree.
//
//go:embed opcodes.tbl
var opcodeTableText string

// dispatchNode holds the handlers sharing one (encoding, map, opcode) key.
// Rows are ordered most specific first.
type dispatchNode struct {
	rows     []*codeInfo
	hasModRM bool
	allModRM bool
	hasERSAE bool
}

var dispatch [encodingCount][tableCount][256]*dispatchNode

func init() {
	if err := loadOpcodeTable(opcodeTableText); err != nil {
		panic(err)
	}
}

func loadOpcodeTable(text string) error {
	codeInfos = nil
	codeByName = map[string]Code{}
	dispatch = [encodingCount][tableCount][256]*dispatchNode{}

	for _, name := range []string{"INVALID", "DeclareByte", "DeclareWord", "DeclareDword", "DeclareQword"} {
		ci := &codeInfo{code: Code(len(codeInfos)), name: name, mnemonic: mnemonicOf(name), group: -1, fixedRM: -1}
		if name == "INVALID" {
			ci.mnemonic = "(bad)"
		} else {
			ci.mnemonic = [...]string{"db", "dw", "dd", "dq"}[len(codeInfos)-1]
			ci.modes = modeAll
		}

		codeInfos = append(codeInfos, ci)
		codeByName[name] = ci.code
	}

	twins := map[Code]string{}

	for lineNo, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ci, twin, err := parseRow(line)
		if err != nil {
			return fmt.Errorf("opcodes.tbl:%d: %w", lineNo+1, err)
		}

		if _, dup := codeByName[ci.name]; dup {
			return fmt.Errorf("opcodes.tbl:%d: duplicate code %s", lineNo+1, ci.name)
		}

		ci.code = Code(len(codeInfos))
		codeInfos = append(codeInfos, ci)
		codeByName[ci.name] = ci.code

		if twin != "" {
			twins[ci.code] = twin
		}
	}

	for code, twin := range twins {
		plain, ok := codeByName[twin]
		if !ok {
			return fmt.Errorf("opcodes.tbl: %s: unknown fwait twin %s", code, twin)
		}

		codeInfos[plain].fwaitTwin = code
	}

	for _, ci := range codeInfos[firstTableCode:] {
		if !ci.has(flagFwait) {
			addToDispatch(ci)
		}
	}

	for e := range dispatch {
		for t := range dispatch[e] {
			for _, node := range dispatch[e][t] {
				if node != nil {
					sort.SliceStable(node.rows, func(i, j int) bool {
						return node.rows[i].priority > node.rows[j].priority
					})
				}
			}
		}
	}

	return nil
}

func addToDispatch(ci *codeInfo) {
	table := ci.table
	op := ci.opcode

	if ci.encoding == Encoding3DNow {
		op = ci.suffix
	}

	count := 1
	if ci.regInOpcode {
		count = 8
	}

	for i := 0; i < count; i++ {
		slot := &dispatch[ci.encoding][table][op+uint8(i)]
		if *slot == nil {
			*slot = &dispatchNode{allModRM: true}
		}

		node := *slot
		node.rows = append(node.rows, ci)
		node.hasModRM = node.hasModRM || ci.hasModRM
		node.allModRM = node.allModRM && ci.hasModRM
		node.hasERSAE = node.hasERSAE || ci.has(flagER|flagSAE)
	}
}

func parseRow(line string) (*codeInfo, string, error) {
	fields := strings.Split(line, "|")
	if len(fields) < 3 || len(fields) > 4 {
		return nil, "", fmt.Errorf("expected 3 or 4 columns: %q", line)
	}

	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	ci := &codeInfo{
		name:     fields[0],
		mnemonic: mnemonicOf(fields[0]),
		group:    -1,
		fixedRM:  -1,
		modes:    modeAll,
	}

	if err := parseEncoding(ci, fields[1]); err != nil {
		return nil, "", fmt.Errorf("%s: %w", ci.name, err)
	}

	if err := parseOperands(ci, fields[2]); err != nil {
		return nil, "", fmt.Errorf("%s: %w", ci.name, err)
	}

	var twin string

	if len(fields) == 4 {
		var err error
		if twin, err = parseFlags(ci, fields[3]); err != nil {
			return nil, "", fmt.Errorf("%s: %w", ci.name, err)
		}
	}

	if err := finishRow(ci); err != nil {
		return nil, "", fmt.Errorf("%s: %w", ci.name, err)
	}

	return ci, twin, nil
}

func parseHexByte(tok string) (uint8, bool) {
	if len(tok) != 2 {
		return 0, false
	}

	v, err := strconv.ParseUint(tok, 16, 8)

	return uint8(v), err == nil
}

func parseEncoding(ci *codeInfo, enc string) error {
	toks := strings.Fields(enc)
	if len(toks) == 0 {
		return fmt.Errorf("empty encoding")
	}

	if dot := strings.IndexByte(toks[0], '.'); dot > 0 && toks[0] != "REX.W" {
		if err := parseVexPrefix(ci, toks[0]); err != nil {
			return err
		}

		return parseOpcodeBytes(ci, toks[1:])
	}

	ci.encoding = EncodingLegacy
	i := 0

prefixes:
	for ; i < len(toks); i++ {
		switch t := toks[i]; t {
		case "NP":
			ci.mandatory = mpNP
		case "66":
			ci.mandatory = mp66
		case "F3":
			ci.mandatory = mpF3
		case "F2":
			ci.mandatory = mpF2
		case "o16":
			ci.opSize = 16
		case "o32":
			ci.opSize = 32
		case "o64", "REX.W":
			ci.opSize = 64
		case "a16":
			ci.addrSize = 16
		case "a32":
			ci.addrSize = 32
		case "a64":
			ci.addrSize = 64
		case "9B":
			if i+1 >= len(toks) {
				break prefixes
			}

			ci.flags |= flagFwait
		default:
			break prefixes
		}
	}

	if i < len(toks) && toks[i] == "0F" && i+1 < len(toks) {
		switch toks[i+1] {
		case "38":
			ci.table = Table0F38
			i += 2
		case "3A":
			ci.table = Table0F3A
			i += 2
		case "0F":
			ci.table = Table0F
			ci.encoding = Encoding3DNow
			i++
		default:
			ci.table = Table0F
			i++
		}
	}

	return parseOpcodeBytes(ci, toks[i:])
}

func parseVexPrefix(ci *codeInfo, tok string) error {
	parts := strings.Split(tok, ".")

	switch parts[0] {
	case "VEX":
		ci.encoding = EncodingVEX
	case "EVEX":
		ci.encoding = EncodingEVEX
	case "XOP":
		ci.encoding = EncodingXOP
	case "MVEX":
		ci.encoding = EncodingMVEX
		ci.l = l512
	default:
		return fmt.Errorf("unknown encoding %q", parts[0])
	}

	ci.mandatory = mpNP
	ci.table = Table0F

	for _, p := range parts[1:] {
		switch p {
		case "128", "L0", "LZ":
			ci.l = l128
		case "256", "L1":
			ci.l = l256
		case "512":
			ci.l = l512
		case "LIG":
			ci.l = lIG
		case "NP":
			ci.mandatory = mpNP
		case "66":
			ci.mandatory = mp66
		case "F3":
			ci.mandatory = mpF3
		case "F2":
			ci.mandatory = mpF2
		case "0F":
			ci.table = Table0F
		case "0F38":
			ci.table = Table0F38
		case "0F3A":
			ci.table = Table0F3A
		case "MAP5":
			ci.table = TableMap5
		case "MAP6":
			ci.table = TableMap6
		case "08":
			ci.table = TableXOP8
		case "09":
			ci.table = TableXOP9
		case "0A":
			ci.table = TableXOPA
		case "W0":
			ci.w = w0
		case "W1":
			ci.w = w1
		case "WIG":
			ci.w = wIG
		case "WIG32":
			ci.w = wIG32
		default:
			return fmt.Errorf("unknown %s field %q", parts[0], p)
		}
	}

	return nil
}

func parseOpcodeBytes(ci *codeInfo, toks []string) error {
	if len(toks) == 0 {
		return fmt.Errorf("missing opcode")
	}

	opTok := toks[0]
	if plus := strings.IndexByte(opTok, '+'); plus > 0 {
		switch opTok[plus:] {
		case "+rb", "+rw", "+rd", "+ro":
			ci.regInOpcode = true
		default:
			return fmt.Errorf("bad opcode %q", opTok)
		}

		opTok = opTok[:plus]
	}

	op, ok := parseHexByte(opTok)
	if !ok {
		return fmt.Errorf("bad opcode %q", toks[0])
	}

	if ci.regInOpcode && op&7 != 0 {
		return fmt.Errorf("register opcode %02X is not 8-aligned", op)
	}

	ci.opcode = op

	for _, t := range toks[1:] {
		switch {
		case t == "/r":
			ci.hasModRM = true
		case len(t) == 2 && t[0] == '/' && t[1] >= '0' && t[1] <= '7':
			ci.hasModRM = true
			ci.group = int8(t[1] - '0')
		case strings.HasSuffix(t, "+i"):
			b, ok := parseHexByte(strings.TrimSuffix(t, "+i"))
			if !ok || b < 0xC0 || b&7 != 0 {
				return fmt.Errorf("bad x87 register form %q", t)
			}

			ci.hasModRM = true
			ci.requireMod3 = true
			ci.group = int8(b >> 3 & 7)
		case isImmediateToken(t):
		default:
			b, ok := parseHexByte(t)
			if !ok {
				return fmt.Errorf("bad encoding token %q", t)
			}

			if ci.encoding == Encoding3DNow {
				ci.suffix = b
				continue
			}

			if b < 0xC0 {
				return fmt.Errorf("fixed ModRM %02X must have mod=3", b)
			}

			ci.hasModRM = true
			ci.requireMod3 = true
			ci.group = int8(b >> 3 & 7)
			ci.fixedRM = int8(b & 7)
		}
	}

	return nil
}

func isImmediateToken(t string) bool {
	switch t {
	case "ib", "iw", "id", "io", "cb", "cw", "cd", "cp", "is4", "is5":
		return true
	}

	return false
}

func parseOperands(ci *codeInfo, text string) error {
	if text == "-" || text == "" {
		return nil
	}

	toks := strings.Fields(text)
	if len(toks) > len(ci.ops) {
		return fmt.Errorf("too many operands")
	}

	for i, t := range toks {
		kindName, accessName, found := strings.Cut(t, ":")
		if !found {
			return fmt.Errorf("operand %q has no access", t)
		}

		kind, ok := operandKindByName[kindName]
		if !ok || kind == OperandNone {
			return fmt.Errorf("unknown operand kind %q", kindName)
		}

		access, ok := operandAccessByToken[accessName]
		if !ok {
			return fmt.Errorf("unknown access %q", accessName)
		}

		ci.ops[i] = kind
		ci.access[i] = access
	}

	ci.opCount = len(toks)

	return nil
}

var operandAccessByToken = func() map[string]OperandAccess {
	m := make(map[string]OperandAccess, operandAccessCount)
	for i, tok := range operandAccessTokens {
		m[tok] = OperandAccess(i)
	}

	return m
}()

var flagTokens = map[string]codeFlags{
	"lock":     flagLock,
	"xacquire": flagXacquire,
	"xrelease": flagXrelease,
	"hlenl":    flagHleNoLock,
	"rep":      flagRep,
	"repe":     flagRepe,
	"bnd":      flagBnd,
	"notrack":  flagNotrack,
	"d64":      flagD64,
	"f64":      flagF64,
	"k1":       flagK1,
	"z":        flagZ,
	"b":        flagBcst,
	"er":       flagER,
	"sae":      flagSAE,
	"kreq":     flagKReq,
	"kw":       flagKW,
	"kpair":    flagKPair,
	"noseg":    flagNoSeg,
	"norexb":   flagNoRexB,
	"anymod":   flagAnyMod,
	"norep":    flagNoRepPrefix,
}

var idiomNames = map[string]Idiom{
	"rr":   IdiomClearRegRegmem,
	"rrr":  IdiomClearRegRegRegmem,
	"flag": IdiomClearRflags,
}

type tupleSpec struct {
	name string
	es   uint32
}

func parseFlags(ci *codeInfo, text string) (string, error) {
	var (
		twin  string
		tuple tupleSpec
	)

	for _, t := range strings.Fields(text) {
		if f, ok := flagTokens[t]; ok {
			ci.flags |= f
			continue
		}

		switch t {
		case "no64":
			ci.modes &^= mode64
			continue
		case "only64":
			ci.modes = mode64
			continue
		case "no16":
			ci.modes &^= mode16
			continue
		case "fwait":
			ci.flags |= flagFwait
			continue
		}

		key, value, found := strings.Cut(t, "=")
		if !found {
			return "", fmt.Errorf("unknown flag %q", t)
		}

		if err := applyFlagValue(ci, key, value, &tuple, &twin); err != nil {
			return "", err
		}
	}

	if tuple.name != "" {
		tt, err := resolveTuple(ci, tuple)
		if err != nil {
			return "", err
		}

		ci.tuple = tt
	}

	return twin, nil
}

func applyFlagValue(ci *codeInfo, key, value string, tuple *tupleSpec, twin *string) error {
	switch key {
	case "tt":
		tuple.name = value
	case "es":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad element size %q", value)
		}

		tuple.es = uint32(n)
	case "mem", "bcst":
		m, ok := MemorySizeByName(value)
		if !ok {
			return fmt.Errorf("unknown memory size %q", value)
		}

		if key == "mem" {
			ci.mem = m
		} else {
			ci.bcst = m
		}
	case "mvex":
		k, ok := mvexKindNames[value]
		if !ok {
			return fmt.Errorf("unknown MVEX tuple kind %q", value)
		}

		ci.mvexKind = k
	case "mvexnoconv", "mvexnoswz":
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return fmt.Errorf("bad MVEX mask %q", value)
		}

		if key == "mvexnoconv" {
			ci.mvexNoConv = uint8(v)
		} else {
			ci.mvexNoSwizzle = uint8(v)
		}
	case "idiom":
		id, ok := idiomNames[value]
		if !ok {
			return fmt.Errorf("unknown idiom %q", value)
		}

		ci.idiom = id
	case "mn":
		ci.mnemonic = value
	case "impl":
		ci.implied = value
	case "cpuid":
		ci.cpuid = value
	case "twin":
		*twin = value
	case "if", "unless", "unless64":
		opt, ok := optionNames[value]
		if !ok {
			return fmt.Errorf("unknown option %q", value)
		}

		switch key {
		case "if":
			ci.ifOpt |= opt
		case "unless":
			ci.unlessOpt |= opt
		default:
			ci.unless64Opt |= opt
		}
	case "fr", "fw", "fc", "fs", "fu":
		var bits uint32

		for i := 0; i < len(value); i++ {
			b, ok := rflagsLetters[value[i]]
			if !ok {
				return fmt.Errorf("unknown flag letter %q", value[i])
			}

			bits |= b
		}

		switch key {
		case "fr":
			ci.rflags.Read |= bits
		case "fw":
			ci.rflags.Written |= bits
		case "fc":
			ci.rflags.Cleared |= bits
		case "fs":
			ci.rflags.Set |= bits
		default:
			ci.rflags.Undefined |= bits
		}
	default:
		return fmt.Errorf("unknown flag %q", key)
	}

	return nil
}

// resolveTuple converts an SDM tuple name to the disp8 scale of this row.
func resolveTuple(ci *codeInfo, spec tupleSpec) (TupleType, error) {
	vl := map[lBit]uint32{l128: 16, l256: 32, l512: 64, lIG: 16}[ci.l]

	es := spec.es
	if es == 0 {
		es = 4
		if ci.w == w1 {
			es = 8
		}
	}

	var n, nb uint32

	switch spec.name {
	case "FV":
		n, nb = vl, es
	case "HV":
		n, nb = vl/2, es
	case "FVM":
		n, nb = vl, vl
	case "HVM":
		n, nb = vl/2, vl/2
	case "QVM":
		n, nb = vl/4, vl/4
	case "OVM":
		n, nb = vl/8, vl/8
	case "T1S", "T1F":
		n, nb = es, es
	case "T2":
		n, nb = 2*es, 2*es
	case "T4":
		n, nb = 4*es, 4*es
	case "T8":
		n, nb = 8*es, 8*es
	case "M128":
		n, nb = 16, 16
	case "DUP":
		n = vl
		if vl == 16 {
			n = 8
		}

		nb = n
	default:
		return TupleTypeNone, fmt.Errorf("unknown tuple type %q", spec.name)
	}

	tt := tupleTypeFor(n, nb)
	if tt == TupleTypeNone {
		return tt, fmt.Errorf("tuple %s has no N%d/b%d form", spec.name, n, nb)
	}

	return tt, nil
}

func finishRow(ci *codeInfo) error {
	for i := 0; i < ci.opCount; i++ {
		info := operandKindInfos[ci.ops[i]]

		switch info.loc {
		case locMem:
			ci.requireMem = true
			if ci.mem == MemorySizeUnknown {
				ci.mem = info.mem
			}
		case locRMReg:
			if !ci.has(flagAnyMod) {
				ci.requireMod3 = true
			}
		case locRM:
			if ci.mem == MemorySizeUnknown {
				ci.mem = info.mem
			}
		}

		if (info.loc == locRM || info.loc == locRMReg || info.loc == locMem || info.loc == locReg) && !ci.hasModRM {
			return fmt.Errorf("operand %s needs ModRM", info.name)
		}
	}

	if ci.requireMem && ci.requireMod3 {
		return fmt.Errorf("row requires both mod=3 and memory")
	}

	if ci.has(flagBcst) && ci.bcst == MemorySizeUnknown {
		return fmt.Errorf("broadcast row without bcst=")
	}

	if ci.encoding == EncodingEVEX && ci.tuple == TupleTypeNone && !ci.requireMod3 && hasMemoryOperand(ci) {
		return fmt.Errorf("EVEX memory form without tt=")
	}

	ci.priority = rowPriority(ci)

	return nil
}

func hasMemoryOperand(ci *codeInfo) bool {
	for i := 0; i < ci.opCount; i++ {
		switch operandKindInfos[ci.ops[i]].loc {
		case locRM, locMem:
			return true
		}
	}

	return false
}

func rowPriority(ci *codeInfo) int {
	p := 0

	switch ci.mandatory {
	case mp66, mpF3, mpF2:
		p += 16
	case mpNP:
		p += 8
	}

	if ci.fixedRM >= 0 {
		p += 8
	}

	if ci.group >= 0 {
		p += 4
	}

	if ci.ifOpt != 0 {
		p += 32
	}

	if ci.opSize != 0 {
		p += 2
	}

	if ci.addrSize != 0 {
		p += 2
	}

	if ci.requireMod3 || ci.requireMem {
		p++
	}

	if ci.has(flagNoRexB) {
		p++
	}

	if ci.w == w0 || ci.w == w1 {
		p++
	}

	return p
}
