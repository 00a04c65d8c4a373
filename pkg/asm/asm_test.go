package asm

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// exerciser covers every operand shape at least once.
var exerciser = []inst.Instruction{
	{Op: inst.LD_ABS_H, K: 12},
	{Op: inst.JEQ_K, Jt: 0, Jf: 8, K: 0x0800},
	{Op: inst.LD_ABS_B, K: 23},
	{Op: inst.JEQ_K, Jt: 0, Jf: 6, K: 6},
	{Op: inst.LD_ABS_H, K: 20},
	{Op: inst.JSET_K, Jt: 4, Jf: 0, K: 0x1FFF},
	{Op: inst.LDX_MSH, K: 14},
	{Op: inst.LD_IND_H, K: 16},
	{Op: inst.JEQ_K, Jt: 0, Jf: 1, K: 80},
	{Op: inst.RET_K, K: 0x00040000},
	{Op: inst.RET_K, K: 0},
	{Op: inst.LD_IMM, K: 0xDEAD},
	{Op: inst.LDX_IMM, K: 4},
	{Op: inst.ST, K: 3},
	{Op: inst.STX, K: 15},
	{Op: inst.LD_MEM, K: 3},
	{Op: inst.LDX_MEM, K: 15},
	{Op: inst.LD_LEN},
	{Op: inst.LDX_LEN},
	{Op: inst.LD_MSH, K: 14},
	{Op: inst.LD_IND_W, K: 2},
	{Op: inst.LD_IND_B, K: 0xFFFFFFFC}, // [x - 4]
	{Op: inst.LD_ABS_W, K: 0},
	{Op: inst.ADD_K, K: 1},
	{Op: inst.SUB_X},
	{Op: inst.MUL_K, K: 3},
	{Op: inst.DIV_K, K: 2},
	{Op: inst.MOD_X},
	{Op: inst.AND_K, K: 0xFF},
	{Op: inst.OR_X},
	{Op: inst.XOR_K, K: 0xA5},
	{Op: inst.LSH_K, K: 2},
	{Op: inst.RSH_X},
	{Op: inst.NEG},
	{Op: inst.TAX},
	{Op: inst.TXA},
	{Op: inst.JMP_JA, K: 1},
	{Op: inst.JGT_X, Jt: 1, Jf: 0},
	{Op: inst.JGE_K, Jt: 0, Jf: 0, K: 10},
	{Op: inst.JSET_X, Jt: 0, Jf: 0},
	{Op: inst.CHK_CRC, Jt: 0x01, Jf: 0x00, K: 14},
	{Op: inst.CHK_L3_CSUM, K: 14},
	{Op: inst.CHK_L4_CSUM, K: 14},
	{Op: inst.CHK_TRUNC},
	{Op: inst.CHK_FRAME_LEN, K: 64},
	{Op: inst.CHK_PROTO_LOC, Jt: 2, K: 14},
	{Op: inst.RET_A},
}

// TestTextRoundTrip verifies parse(dump_d(P)) == P.
func TestTextRoundTrip(t *testing.T) {
	text := DumpText(exerciser)
	back, err := ParseText(text)
	require.NoError(t, err, "listing:\n%s", text)
	if diff := cmp.Diff(exerciser, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s\nlisting:\n%s", diff, text)
	}
}

// TestHexRoundTrip verifies parse_hex(dump_dd(P)) == P.
func TestHexRoundTrip(t *testing.T) {
	text := DumpHex(exerciser)
	back, err := ParseHex(text)
	require.NoError(t, err)
	if diff := cmp.Diff(exerciser, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestAutoDetect verifies the first significant character routes the parse.
func TestAutoDetect(t *testing.T) {
	hex := "\nWarning: something\n{ 0x06, 0, 0, 0x00000001 },\n"
	insns, err := Parse(hex)
	require.NoError(t, err)
	assert.Equal(t, inst.RET_K, insns[0].Op)

	text := "\n(000) ret      #1\n"
	insns, err = Parse(text)
	require.NoError(t, err)
	assert.Equal(t, inst.RET_K, insns[0].Op)
	assert.Equal(t, uint32(1), insns[0].K)

	_, err = Parse("ldh [12]\n")
	assert.Error(t, err, "bare mnemonic without (NNN) or { is undetectable")

	_, err = Parse("   \nWarning: only warnings\n")
	assert.Error(t, err)
}

// TestLoadDisambiguation verifies the context-dependent ld/ldx forms.
func TestLoadDisambiguation(t *testing.T) {
	tests := []struct {
		line string
		want inst.Instruction
	}{
		{"ld #42", inst.Instruction{Op: inst.LD_IMM, K: 42}},
		{"ld #0x2a", inst.Instruction{Op: inst.LD_IMM, K: 42}},
		{"ld [42]", inst.Instruction{Op: inst.LD_ABS_W, K: 42}},
		{"ld [x + 42]", inst.Instruction{Op: inst.LD_IND_W, K: 42}},
		{"ld M[4]", inst.Instruction{Op: inst.LD_MEM, K: 4}},
		{"ld len", inst.Instruction{Op: inst.LD_LEN}},
		{"ldh [12]", inst.Instruction{Op: inst.LD_ABS_H, K: 12}},
		{"ldh [x + 16]", inst.Instruction{Op: inst.LD_IND_H, K: 16}},
		{"ldb [23]", inst.Instruction{Op: inst.LD_ABS_B, K: 23}},
		{"ldb 4*([14]&0xf)", inst.Instruction{Op: inst.LD_MSH, K: 14}},
		{"ldx #1", inst.Instruction{Op: inst.LDX_IMM, K: 1}},
		{"ldx M[9]", inst.Instruction{Op: inst.LDX_MEM, K: 9}},
		{"ldx len", inst.Instruction{Op: inst.LDX_LEN}},
		{"ldxb 4*([14]&0xf)", inst.Instruction{Op: inst.LDX_MSH, K: 14}},
		{"ret a", inst.Instruction{Op: inst.RET_A}},
		{"ret #262144", inst.Instruction{Op: inst.RET_K, K: 262144}},
		{"add x", inst.Instruction{Op: inst.ADD_X}},
		{"add #7", inst.Instruction{Op: inst.ADD_K, K: 7}},
	}
	for _, tc := range tests {
		got, err := parseTextLine("(000) "+tc.line, 0)
		require.NoError(t, err, "line %q", tc.line)
		assert.Equal(t, tc.want, got, "line %q", tc.line)
	}
}

// TestCondJumpTargets verifies absolute target conversion against the
// parser's line index.
func TestCondJumpTargets(t *testing.T) {
	text := `(000) ldh      [12]
(001) jeq      #0x800           jt 2	jf 3
(002) ret      #262144
(003) ret      #0
`
	insns, err := ParseText(text)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), insns[1].Jt, "target 2 from instruction 1 is offset 0")
	assert.Equal(t, uint8(1), insns[1].Jf, "target 3 from instruction 1 is offset 1")

	// Backward target is refused.
	bad := `(000) ret      #0
(001) jeq      #1 jt 0 jf 2
(002) ret      #0
`
	_, err = ParseText(bad)
	assert.Error(t, err)
}

// TestParseErrorsCarryLine verifies malformed lines are reported by number.
func TestParseErrorsCarryLine(t *testing.T) {
	text := "(000) ldh      [12]\n(001) frobnicate #1\n"
	_, err := ParseText(text)
	require.Error(t, err)
	var pErr *ParseError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, 2, pErr.Line)
	assert.Contains(t, pErr.Text, "frobnicate")

	_, err = ParseHex("{ 0x06, 0, 0 },\n")
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, 1, pErr.Line)
}

// TestHexParseTolerance verifies optional commas, blank lines, warnings.
func TestHexParseTolerance(t *testing.T) {
	text := `
Warning: this filter was truncated
{ 0x28, 0, 0, 0x0000000c }

{ 0x06, 0, 0, 0x00000000 },
`
	insns, err := ParseHex(text)
	require.NoError(t, err)
	require.Len(t, insns, 2)
	assert.Equal(t, inst.LD_ABS_H, insns[0].Op)
}

// TestMisnumberedListing verifies the (NNN) prefix must match position.
func TestMisnumberedListing(t *testing.T) {
	_, err := ParseText("(005) ret      #0\n")
	assert.Error(t, err)
}

// TestDumpTextShape spot-checks listing formatting.
func TestDumpTextShape(t *testing.T) {
	insns := []inst.Instruction{
		{Op: inst.LD_ABS_H, K: 12},
		{Op: inst.JEQ_K, Jt: 0, Jf: 1, K: 0x0800},
		{Op: inst.RET_K, K: 262144},
		{Op: inst.RET_A},
	}
	lines := strings.Split(strings.TrimRight(DumpText(insns), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "(000) ldh"), "got %q", lines[0])
	assert.Contains(t, lines[1], "#0x800")
	assert.Contains(t, lines[1], "jt 2")
	assert.Contains(t, lines[1], "jf 3")
	assert.Contains(t, lines[2], "ret      #262144")
	assert.Contains(t, lines[3], "ret      a")
}
