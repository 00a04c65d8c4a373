package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// ParseHex parses the -dd form: one `{ 0xOP, JT, JF, 0xKKKKKKKK },` line
// per instruction, trailing comma optional. Blank lines and lines starting
// with "Warning:" are ignored.
func ParseHex(text string) ([]inst.Instruction, error) {
	var insns []inst.Instruction
	for n, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "Warning:") {
			continue
		}
		in, err := parseHexLine(trimmed)
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

func parseHexLine(line string) (inst.Instruction, error) {
	line = strings.TrimSuffix(line, ",")
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return inst.Instruction{}, errors.New("expected { OP, JT, JF, K }")
	}
	fields := strings.Split(line[1:len(line)-1], ",")
	if len(fields) != 4 {
		return inst.Instruction{}, errors.Errorf("expected 4 fields, got %d", len(fields))
	}
	var vals [4]uint64
	for i, f := range fields {
		v, err := parseUint(strings.TrimSpace(f), 32)
		if err != nil {
			return inst.Instruction{}, errors.Wrapf(err, "field %d", i+1)
		}
		vals[i] = v
	}
	if vals[0] > 0xFF {
		return inst.Instruction{}, errors.Errorf("opcode 0x%X exceeds one byte", vals[0])
	}
	if vals[1] > 0xFF || vals[2] > 0xFF {
		return inst.Instruction{}, errors.New("jt/jf exceed one byte")
	}
	return inst.Instruction{
		Op: inst.Opcode(vals[0]),
		Jt: uint8(vals[1]),
		Jf: uint8(vals[2]),
		K:  uint32(vals[3]),
	}, nil
}

// DumpHex renders instructions in the -dd form.
func DumpHex(insns []inst.Instruction) string {
	var b strings.Builder
	for _, in := range insns {
		fmt.Fprintf(&b, "{ 0x%02x, %d, %d, 0x%08x },\n", uint8(in.Op), in.Jt, in.Jf, in.K)
	}
	return b.String()
}

// parseUint accepts decimal or 0x-prefixed hex.
func parseUint(s string, bits int) (uint64, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return strconv.ParseUint(rest, 16, bits)
	}
	if rest, ok := strings.CutPrefix(s, "0X"); ok {
		return strconv.ParseUint(rest, 16, bits)
	}
	return strconv.ParseUint(s, 10, bits)
}
