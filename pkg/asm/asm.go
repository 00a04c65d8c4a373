// Package asm implements the two textual program forms: the `tcpdump -d`
// listing and the `tcpdump -dd` C-array hex form. Both round-trip
// bit-exactly against the instruction stream.
package asm

import (
	"fmt"
	"strings"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// ParseError reports malformed assembler input with the offending line.
type ParseError struct {
	Line int    // 1-based line number
	Text string // the offending line
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("asm: line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse auto-detects the input form and parses it. The first non-blank
// line that is not a "Warning:" prefix decides: `{` means hex (-dd),
// `(` means text (-d); anything else is a parse error.
func Parse(text string) ([]inst.Instruction, error) {
	for n, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "Warning:") {
			continue
		}
		switch trimmed[0] {
		case '{':
			return ParseHex(text)
		case '(':
			return ParseText(text)
		default:
			return nil, &ParseError{Line: n + 1, Text: trimmed, Err: fmt.Errorf("cannot detect format: line starts with %q", trimmed[0])}
		}
	}
	return nil, &ParseError{Line: 0, Text: "", Err: fmt.Errorf("empty input")}
}
