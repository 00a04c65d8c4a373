package asm

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// ParseText parses the -d listing form. Branch targets in `jt N jf N`
// operands are absolute instruction indices and must not point backward.
func ParseText(text string) ([]inst.Instruction, error) {
	var insns []inst.Instruction
	for n, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "Warning:") {
			continue
		}
		in, err := parseTextLine(trimmed, len(insns))
		if err != nil {
			return nil, &ParseError{Line: n + 1, Text: trimmed, Err: err}
		}
		insns = append(insns, in)
	}
	if len(insns) == 0 {
		return nil, &ParseError{Line: 0, Text: "", Err: errors.New("no instructions")}
	}
	return insns, nil
}

func parseTextLine(line string, index int) (inst.Instruction, error) {
	rest, err := stripIndex(line, index)
	if err != nil {
		return inst.Instruction{}, err
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return inst.Instruction{}, errors.New("missing mnemonic")
	}
	mnemonic := fields[0]
	operand := strings.Join(fields[1:], " ")

	switch mnemonic {
	case "ld", "ldh", "ldb", "ldx", "ldxb":
		return parseLoad(mnemonic, operand)
	case "st":
		k, err := parseScratch(operand)
		return inst.Instruction{Op: inst.ST, K: k}, err
	case "stx":
		k, err := parseScratch(operand)
		return inst.Instruction{Op: inst.STX, K: k}, err
	case "add", "sub", "mul", "div", "mod", "and", "or", "xor", "lsh", "rsh":
		return parseALU(mnemonic, operand)
	case "neg":
		return inst.Instruction{Op: inst.NEG}, expectEmpty(operand)
	case "ja":
		off, ok := strings.CutPrefix(operand, "+")
		if !ok {
			return inst.Instruction{}, errors.Errorf("ja wants +offset, got %q", operand)
		}
		v, err := strconv.ParseInt(off, 0, 32)
		if err != nil {
			return inst.Instruction{}, errors.Wrap(err, "ja offset")
		}
		return inst.Instruction{Op: inst.JMP_JA, K: uint32(int32(v))}, nil
	case "jeq", "jgt", "jge", "jset":
		return parseCondJump(mnemonic, operand, index)
	case "ret":
		if operand == "a" {
			return inst.Instruction{Op: inst.RET_A}, nil
		}
		k, err := parseImm(operand)
		return inst.Instruction{Op: inst.RET_K, K: k}, err
	case "tax":
		return inst.Instruction{Op: inst.TAX}, expectEmpty(operand)
	case "txa":
		return inst.Instruction{Op: inst.TXA}, expectEmpty(operand)
	case "chk_crc", "chk_l3_csum", "chk_l4_csum", "chk_trunc", "chk_frame_len", "chk_proto_loc":
		return parseCheck(mnemonic, operand)
	}
	return inst.Instruction{}, errors.Errorf("unknown mnemonic %q", mnemonic)
}

// stripIndex consumes the leading `(NNN)` and checks it matches the
// instruction's position; branch target conversion depends on it.
func stripIndex(line string, index int) (string, error) {
	if !strings.HasPrefix(line, "(") {
		return "", errors.New("missing (NNN) index prefix")
	}
	end := strings.IndexByte(line, ')')
	if end < 0 {
		return "", errors.New("unterminated (NNN) index prefix")
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:end]))
	if err != nil {
		return "", errors.Wrap(err, "index prefix")
	}
	if n != index {
		return "", errors.Errorf("line numbered %d but is instruction %d", n, index)
	}
	return strings.TrimSpace(line[end+1:]), nil
}

func parseLoad(mnemonic, operand string) (inst.Instruction, error) {
	switch {
	case strings.HasPrefix(operand, "#"):
		k, err := parseImm(operand)
		if err != nil {
			return inst.Instruction{}, err
		}
		switch mnemonic {
		case "ld":
			return inst.Instruction{Op: inst.LD_IMM, K: k}, nil
		case "ldx":
			return inst.Instruction{Op: inst.LDX_IMM, K: k}, nil
		}
		return inst.Instruction{}, errors.Errorf("%s has no immediate form", mnemonic)

	case operand == "len":
		switch mnemonic {
		case "ld":
			return inst.Instruction{Op: inst.LD_LEN}, nil
		case "ldx":
			return inst.Instruction{Op: inst.LDX_LEN}, nil
		}
		return inst.Instruction{}, errors.Errorf("%s has no len form", mnemonic)

	case strings.HasPrefix(operand, "M["):
		k, err := parseScratch(operand)
		if err != nil {
			return inst.Instruction{}, err
		}
		switch mnemonic {
		case "ld":
			return inst.Instruction{Op: inst.LD_MEM, K: k}, nil
		case "ldx":
			return inst.Instruction{Op: inst.LDX_MEM, K: k}, nil
		}
		return inst.Instruction{}, errors.Errorf("%s has no scratch form", mnemonic)

	case strings.HasPrefix(operand, "4*("):
		k, err := parseMsh(operand)
		if err != nil {
			return inst.Instruction{}, err
		}
		switch mnemonic {
		case "ldb":
			return inst.Instruction{Op: inst.LD_MSH, K: k}, nil
		case "ldxb":
			return inst.Instruction{Op: inst.LDX_MSH, K: k}, nil
		}
		return inst.Instruction{}, errors.Errorf("%s has no msh form", mnemonic)

	case strings.HasPrefix(operand, "[x"):
		k, err := parseIndirect(operand)
		if err != nil {
			return inst.Instruction{}, err
		}
		switch mnemonic {
		case "ld":
			return inst.Instruction{Op: inst.LD_IND_W, K: k}, nil
		case "ldh":
			return inst.Instruction{Op: inst.LD_IND_H, K: k}, nil
		case "ldb":
			return inst.Instruction{Op: inst.LD_IND_B, K: k}, nil
		}
		return inst.Instruction{}, errors.Errorf("%s has no indirect form", mnemonic)

	case strings.HasPrefix(operand, "["):
		k, err := parseAbsolute(operand)
		if err != nil {
			return inst.Instruction{}, err
		}
		switch mnemonic {
		case "ld":
			return inst.Instruction{Op: inst.LD_ABS_W, K: k}, nil
		case "ldh":
			return inst.Instruction{Op: inst.LD_ABS_H, K: k}, nil
		case "ldb":
			return inst.Instruction{Op: inst.LD_ABS_B, K: k}, nil
		}
		return inst.Instruction{}, errors.Errorf("%s has no absolute form", mnemonic)
	}
	return inst.Instruction{}, errors.Errorf("bad load operand %q", operand)
}

var aluOps = map[string][2]inst.Opcode{
	"add": {inst.ADD_K, inst.ADD_X},
	"sub": {inst.SUB_K, inst.SUB_X},
	"mul": {inst.MUL_K, inst.MUL_X},
	"div": {inst.DIV_K, inst.DIV_X},
	"mod": {inst.MOD_K, inst.MOD_X},
	"and": {inst.AND_K, inst.AND_X},
	"or":  {inst.OR_K, inst.OR_X},
	"xor": {inst.XOR_K, inst.XOR_X},
	"lsh": {inst.LSH_K, inst.LSH_X},
	"rsh": {inst.RSH_K, inst.RSH_X},
}

func parseALU(mnemonic, operand string) (inst.Instruction, error) {
	ops := aluOps[mnemonic]
	if operand == "x" {
		return inst.Instruction{Op: ops[1]}, nil
	}
	k, err := parseImm(operand)
	if err != nil {
		return inst.Instruction{}, err
	}
	return inst.Instruction{Op: ops[0], K: k}, nil
}

var condOps = map[string][2]inst.Opcode{
	"jeq":  {inst.JEQ_K, inst.JEQ_X},
	"jgt":  {inst.JGT_K, inst.JGT_X},
	"jge":  {inst.JGE_K, inst.JGE_X},
	"jset": {inst.JSET_K, inst.JSET_X},
}

func parseCondJump(mnemonic, operand string, index int) (inst.Instruction, error) {
	fields := strings.Fields(operand)
	if len(fields) != 5 || fields[1] != "jt" || fields[3] != "jf" {
		return inst.Instruction{}, errors.Errorf("%s wants `value jt N jf N`, got %q", mnemonic, operand)
	}
	ops := condOps[mnemonic]

	in := inst.Instruction{Op: ops[1]}
	if fields[0] != "x" {
		k, err := parseImm(fields[0])
		if err != nil {
			return inst.Instruction{}, err
		}
		in = inst.Instruction{Op: ops[0], K: k}
	}

	jt, err := parseTarget(fields[2], index)
	if err != nil {
		return inst.Instruction{}, errors.Wrap(err, "jt")
	}
	jf, err := parseTarget(fields[4], index)
	if err != nil {
		return inst.Instruction{}, errors.Wrap(err, "jf")
	}
	in.Jt = jt
	in.Jf = jf
	return in, nil
}

// parseTarget converts an absolute branch target back to the encoded
// offset from the next instruction.
func parseTarget(s string, index int) (uint8, error) {
	abs, err := parseUint(s, 32)
	if err != nil {
		return 0, err
	}
	off := int64(abs) - int64(index) - 1
	if off < 0 {
		return 0, errors.Errorf("target %d is backward from instruction %d", abs, index)
	}
	if off > 0xFF {
		return 0, errors.Errorf("target %d is %d instructions away, limit 255", abs, off)
	}
	return uint8(off), nil
}

func parseCheck(mnemonic, operand string) (inst.Instruction, error) {
	switch mnemonic {
	case "chk_trunc":
		return inst.Instruction{Op: inst.CHK_TRUNC}, expectEmpty(operand)

	case "chk_frame_len":
		rest, ok := strings.CutPrefix(operand, ">=")
		if !ok {
			return inst.Instruction{}, errors.Errorf("chk_frame_len wants >=N, got %q", operand)
		}
		k, err := parseUint(strings.TrimSpace(rest), 32)
		if err != nil {
			return inst.Instruction{}, err
		}
		return inst.Instruction{Op: inst.CHK_FRAME_LEN, K: uint32(k)}, nil

	case "chk_crc":
		kv, err := parseKeyValues(operand, "offset", "len")
		if err != nil {
			return inst.Instruction{}, err
		}
		if kv["len"] > 0xFFFF {
			return inst.Instruction{}, errors.Errorf("len %d exceeds 16 bits", kv["len"])
		}
		return inst.Instruction{
			Op: inst.CHK_CRC,
			Jt: uint8(kv["len"] >> 8),
			Jf: uint8(kv["len"]),
			K:  uint32(kv["offset"]),
		}, nil

	case "chk_l3_csum", "chk_l4_csum":
		kv, err := parseKeyValues(operand, "offset")
		if err != nil {
			return inst.Instruction{}, err
		}
		op := inst.CHK_L3_CSUM
		if mnemonic == "chk_l4_csum" {
			op = inst.CHK_L4_CSUM
		}
		return inst.Instruction{Op: op, K: uint32(kv["offset"])}, nil

	case "chk_proto_loc":
		kv, err := parseKeyValues(operand, "layer", "offset")
		if err != nil {
			return inst.Instruction{}, err
		}
		if kv["layer"] > 0xFF {
			return inst.Instruction{}, errors.Errorf("layer %d exceeds one byte", kv["layer"])
		}
		return inst.Instruction{
			Op: inst.CHK_PROTO_LOC,
			Jt: uint8(kv["layer"]),
			K:  uint32(kv["offset"]),
		}, nil
	}
	return inst.Instruction{}, errors.Errorf("unknown check %q", mnemonic)
}

// parseKeyValues parses `key=value` pairs and requires exactly the given keys.
func parseKeyValues(operand string, keys ...string) (map[string]uint64, error) {
	kv := make(map[string]uint64, len(keys))
	for _, f := range strings.Fields(operand) {
		key, val, ok := strings.Cut(f, "=")
		if !ok {
			return nil, errors.Errorf("expected key=value, got %q", f)
		}
		v, err := parseUint(val, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "value of %s", key)
		}
		kv[key] = v
	}
	for _, k := range keys {
		if _, ok := kv[k]; !ok {
			return nil, errors.Errorf("missing %s=", k)
		}
	}
	if len(kv) != len(keys) {
		return nil, errors.Errorf("unexpected operands in %q", operand)
	}
	return kv, nil
}

func parseImm(s string) (uint32, error) {
	rest, ok := strings.CutPrefix(s, "#")
	if !ok {
		return 0, errors.Errorf("immediate wants # prefix, got %q", s)
	}
	v, err := parseUint(rest, 32)
	return uint32(v), err
}

func parseAbsolute(s string) (uint32, error) {
	inner, err := unbracket(s)
	if err != nil {
		return 0, err
	}
	v, err := parseUint(inner, 32)
	return uint32(v), err
}

func parseIndirect(s string) (uint32, error) {
	inner, err := unbracket(s)
	if err != nil {
		return 0, err
	}
	rest, ok := strings.CutPrefix(inner, "x")
	if !ok {
		return 0, errors.Errorf("indirect operand wants [x + k], got %q", s)
	}
	rest = strings.TrimSpace(rest)
	neg := false
	switch {
	case strings.HasPrefix(rest, "+"):
		rest = strings.TrimSpace(rest[1:])
	case strings.HasPrefix(rest, "-"):
		neg = true
		rest = strings.TrimSpace(rest[1:])
	default:
		return 0, errors.Errorf("indirect operand wants [x + k], got %q", s)
	}
	v, err := parseUint(rest, 32)
	if err != nil {
		return 0, err
	}
	if neg {
		return uint32(-int32(v)), nil
	}
	return uint32(v), nil
}

func parseScratch(s string) (uint32, error) {
	rest, ok := strings.CutPrefix(s, "M")
	if !ok {
		return 0, errors.Errorf("scratch operand wants M[k], got %q", s)
	}
	inner, err := unbracket(rest)
	if err != nil {
		return 0, err
	}
	v, err := parseUint(inner, 32)
	return uint32(v), err
}

// parseMsh parses the `4*([k]&0xf)` shape.
func parseMsh(s string) (uint32, error) {
	rest, ok := strings.CutPrefix(s, "4*(")
	if !ok || !strings.HasSuffix(rest, "&0xf)") {
		return 0, errors.Errorf("msh operand wants 4*([k]&0xf), got %q", s)
	}
	inner, err := unbracket(strings.TrimSuffix(rest, "&0xf)"))
	if err != nil {
		return 0, err
	}
	v, err := parseUint(inner, 32)
	return uint32(v), err
}

func unbracket(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return "", errors.Errorf("expected [...], got %q", s)
	}
	return strings.TrimSpace(s[1 : len(s)-1]), nil
}

func expectEmpty(operand string) error {
	if operand != "" {
		return errors.Errorf("unexpected operand %q", operand)
	}
	return nil
}
