package inst

import (
	"bytes"
	"testing"

	"golang.org/x/net/bpf"
)

// TestPackUnpackBijection verifies the 64-bit encoding round-trips a
// sample of field combinations, including all-ones fields.
func TestPackUnpackBijection(t *testing.T) {
	cases := []Instruction{
		{Op: LD_IMM, K: 0},
		{Op: LD_ABS_H, K: 12},
		{Op: JEQ_K, Jt: 0, Jf: 1, K: 0x0800},
		{Op: JSET_X, Jt: 255, Jf: 254, K: 0xFFFFFFFF},
		{Op: RET_K, K: 0x00040000},
		{Op: CHK_CRC, Jt: 0x01, Jf: 0x20, K: 14},
		{Op: Opcode(0xFF), Jt: 0xAA, Jf: 0x55, K: 0xDEADBEEF},
	}
	for _, in := range cases {
		got, err := Unpack(in.Pack())
		if err != nil {
			t.Errorf("Unpack(Pack(%+v)): %v", in, err)
			continue
		}
		if got != in {
			t.Errorf("round trip: got %+v, want %+v", got, in)
		}
	}
}

// TestUnpackReservedByte verifies nonzero padding is rejected.
func TestUnpackReservedByte(t *testing.T) {
	w := Instruction{Op: LD_IMM, K: 1}.Pack() | 0x01<<32
	if _, err := Unpack(w); err == nil {
		t.Error("nonzero reserved byte should be rejected")
	}
}

// TestBinaryRoundTrip verifies the word-stream format.
func TestBinaryRoundTrip(t *testing.T) {
	insns := []Instruction{
		{Op: LD_ABS_H, K: 12},
		{Op: JEQ_K, Jt: 0, Jf: 1, K: 0x0800},
		{Op: RET_K, K: 0x00040000},
		{Op: RET_K, K: 0},
	}
	buf := EncodeBinary(insns)
	if len(buf) != len(insns)*WordSize {
		t.Fatalf("encoded %d bytes, want %d", len(buf), len(insns)*WordSize)
	}
	// Spot-check the first word: opcode 0x28, jt 0, jf 0, pad 0, k 12.
	want := []byte{0x28, 0, 0, 0, 0, 0, 0, 12}
	if !bytes.Equal(buf[:8], want) {
		t.Errorf("first word: % x, want % x", buf[:8], want)
	}

	got, err := DecodeBinary(buf)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if len(got) != len(insns) {
		t.Fatalf("decoded %d instructions, want %d", len(got), len(insns))
	}
	for i := range insns {
		if got[i] != insns[i] {
			t.Errorf("instruction %d: got %+v, want %+v", i, got[i], insns[i])
		}
	}
}

// TestDecodeBinaryErrors verifies malformed buffers are rejected.
func TestDecodeBinaryErrors(t *testing.T) {
	if _, err := DecodeBinary(make([]byte, 12)); err == nil {
		t.Error("buffer length not a multiple of WordSize should be rejected")
	}
	bad := make([]byte, 8)
	bad[3] = 0x01 // reserved byte
	if _, err := DecodeBinary(bad); err == nil {
		t.Error("nonzero reserved byte should be rejected")
	}
}

// TestRawWidening verifies the classic 32-bit record conversion both ways.
func TestRawWidening(t *testing.T) {
	raw := []bpf.RawInstruction{
		{Op: 0x28, Jt: 0, Jf: 0, K: 12},
		{Op: 0x15, Jt: 0, Jf: 1, K: 0x0800},
		{Op: 0x06, Jt: 0, Jf: 0, K: 0x00040000},
	}
	insns, err := FromRawInstructions(raw)
	if err != nil {
		t.Fatalf("FromRawInstructions: %v", err)
	}
	if insns[1].Op != JEQ_K || insns[1].Jf != 1 || insns[1].K != 0x0800 {
		t.Errorf("widened jeq wrong: %+v", insns[1])
	}

	back := ToRawInstructions(insns)
	for i := range raw {
		if back[i] != raw[i] {
			t.Errorf("instruction %d: got %+v, want %+v", i, back[i], raw[i])
		}
	}
}

// TestRawWideOpcode verifies classic opcodes past one byte are refused.
func TestRawWideOpcode(t *testing.T) {
	_, err := FromRaw(bpf.RawInstruction{Op: 0x0128})
	if err == nil {
		t.Error("16-bit classic opcode should be refused")
	}
}
