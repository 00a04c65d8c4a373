package vm

import (
	"golang.org/x/net/bpf"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// MaxProgramLen is the maximum number of instructions in a program.
const MaxProgramLen = 4096

// Program is an immutable instruction sequence plus its validation status.
// A program is validated at most once; after that it may be executed by any
// number of contexts concurrently.
type Program struct {
	insns     []inst.Instruction
	validated bool
	vErr      *ValidationError
}

// NewProgram builds a program from an instruction slice. The slice is
// copied; the program never observes later mutation.
func NewProgram(insns []inst.Instruction) *Program {
	own := make([]inst.Instruction, len(insns))
	copy(own, insns)
	return &Program{insns: own}
}

// ProgramFromBinary parses the 64-bit big-endian word stream format.
func ProgramFromBinary(buf []byte) (*Program, error) {
	insns, err := inst.DecodeBinary(buf)
	if err != nil {
		return nil, err
	}
	return &Program{insns: insns}, nil
}

// ProgramFromRaw widens a classic 32-bit-per-instruction program.
func ProgramFromRaw(raw []bpf.RawInstruction) (*Program, error) {
	insns, err := inst.FromRawInstructions(raw)
	if err != nil {
		return nil, err
	}
	return &Program{insns: insns}, nil
}

// Len returns the instruction count.
func (p *Program) Len() int { return len(p.insns) }

// At returns instruction i.
func (p *Program) At(i int) inst.Instruction { return p.insns[i] }

// Instructions returns a copy of the instruction sequence.
func (p *Program) Instructions() []inst.Instruction {
	out := make([]inst.Instruction, len(p.insns))
	copy(out, p.insns)
	return out
}

// Binary serializes the program in the 64-bit word stream format.
func (p *Program) Binary() []byte {
	return inst.EncodeBinary(p.insns)
}

// RawInstructions narrows the program to classic records.
func (p *Program) RawInstructions() []bpf.RawInstruction {
	return inst.ToRawInstructions(p.insns)
}

// Validated reports whether the verifier has accepted the program.
func (p *Program) Validated() bool { return p.validated && p.vErr == nil }

// ValidationErr returns the cached verifier rejection, if any.
func (p *Program) ValidationErr() error {
	if p.vErr == nil {
		return nil
	}
	return p.vErr
}

// Validate runs the verifier with only built-in opcodes accepted. The
// result is computed once and cached.
func (p *Program) Validate() error {
	return p.ValidateWith(nil)
}

// ValidateWith runs the verifier, additionally accepting extension opcodes
// for which accept returns true. The first call decides; later calls return
// the cached result.
func (p *Program) ValidateWith(accept func(inst.Opcode) bool) error {
	if !p.validated {
		p.vErr = verify(p.insns, accept)
		p.validated = true
	}
	if p.vErr != nil {
		return p.vErr
	}
	return nil
}
