package inst

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/bpf"
)

// WordSize is the encoded size of one instruction in bytes.
const WordSize = 8

// Instruction is one decoded 64-bit instruction word.
//
// Field layout, MSB first: opcode (8 bits), Jt (8), Jf (8), reserved (8,
// must be zero), K (32). For conditional jumps Jt/Jf are branch offsets
// from the next instruction; extended opcodes reuse the two bytes as
// opcode-specific operands (e.g. chk_crc packs the region length as
// Jt<<8|Jf).
type Instruction struct {
	Op Opcode
	Jt uint8
	Jf uint8
	K  uint32
}

// Pack encodes the instruction into its 64-bit wire word.
func (i Instruction) Pack() uint64 {
	return uint64(i.Op)<<56 | uint64(i.Jt)<<48 | uint64(i.Jf)<<40 | uint64(i.K)
}

// Unpack decodes a 64-bit wire word. The reserved byte must be zero.
func Unpack(w uint64) (Instruction, error) {
	if pad := uint8(w >> 32); pad != 0 {
		return Instruction{}, fmt.Errorf("inst: reserved byte 0x%02X is not zero", pad)
	}
	return Instruction{
		Op: Opcode(w >> 56),
		Jt: uint8(w >> 48),
		Jf: uint8(w >> 40),
		K:  uint32(w),
	}, nil
}

// EncodeBinary serializes instructions as consecutive big-endian 64-bit
// words, the program binary format. No header, no padding.
func EncodeBinary(insns []Instruction) []byte {
	buf := make([]byte, 0, len(insns)*WordSize)
	for _, in := range insns {
		buf = binary.BigEndian.AppendUint64(buf, in.Pack())
	}
	return buf
}

// DecodeBinary parses a program binary produced by EncodeBinary. The buffer
// length must be a multiple of WordSize and every reserved byte zero.
func DecodeBinary(buf []byte) ([]Instruction, error) {
	if len(buf)%WordSize != 0 {
		return nil, fmt.Errorf("inst: binary length %d is not a multiple of %d", len(buf), WordSize)
	}
	insns := make([]Instruction, 0, len(buf)/WordSize)
	for off := 0; off < len(buf); off += WordSize {
		in, err := Unpack(binary.BigEndian.Uint64(buf[off:]))
		if err != nil {
			return nil, fmt.Errorf("inst: instruction %d: %w", off/WordSize, err)
		}
		insns = append(insns, in)
	}
	return insns, nil
}

// FromRaw widens a classic 32-bit-per-instruction record as produced by
// golang.org/x/net/bpf or tcpdump -dd. The classic 16-bit opcode must fit
// the 8-bit opcode space of this encoding.
func FromRaw(ri bpf.RawInstruction) (Instruction, error) {
	if ri.Op > 0xFF {
		return Instruction{}, fmt.Errorf("inst: classic opcode 0x%04X exceeds 8-bit opcode space", ri.Op)
	}
	return Instruction{Op: Opcode(ri.Op), Jt: ri.Jt, Jf: ri.Jf, K: ri.K}, nil
}

// ToRaw narrows an instruction to the classic record form.
func (i Instruction) ToRaw() bpf.RawInstruction {
	return bpf.RawInstruction{Op: uint16(i.Op), Jt: i.Jt, Jf: i.Jf, K: i.K}
}

// FromRawInstructions widens a whole classic program.
func FromRawInstructions(raw []bpf.RawInstruction) ([]Instruction, error) {
	insns := make([]Instruction, len(raw))
	for idx, ri := range raw {
		in, err := FromRaw(ri)
		if err != nil {
			return nil, fmt.Errorf("inst: instruction %d: %w", idx, err)
		}
		insns[idx] = in
	}
	return insns, nil
}

// ToRawInstructions narrows a whole program to classic records.
func ToRawInstructions(insns []Instruction) []bpf.RawInstruction {
	raw := make([]bpf.RawInstruction, len(insns))
	for idx, in := range insns {
		raw[idx] = in.ToRaw()
	}
	return raw
}
