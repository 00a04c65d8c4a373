package vm

import (
	"fmt"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// verify statically checks a program. It returns nil when every check
// passes. The jump dialect is relative-from-next-instruction throughout:
// a conditional branch at index i lands on i+1+jt (or i+1+jf), an
// unconditional ja on i+1+k with k signed.
//
// All jumps must land in range and strictly forward. Forward-only control
// flow plus a mandatory ret tail guarantees termination without needing
// the interpreter's step budget.
//
// accept, when non-nil, admits additional extension opcodes beyond the
// catalog (registered handlers at 0x80 and above).
func verify(insns []inst.Instruction, accept func(inst.Opcode) bool) *ValidationError {
	if len(insns) == 0 {
		return &ValidationError{Index: -1, Reason: "empty program"}
	}
	if len(insns) > MaxProgramLen {
		return &ValidationError{Index: -1, Reason: fmt.Sprintf("program has %d instructions, limit %d", len(insns), MaxProgramLen)}
	}

	last := insns[len(insns)-1]
	if !inst.IsRet(last.Op) {
		return &ValidationError{Index: len(insns) - 1, Reason: "last instruction is not ret"}
	}

	for i, in := range insns {
		if !inst.Valid(in.Op) {
			if accept == nil || in.Op < 0x80 || !accept(in.Op) {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("unknown opcode 0x%02X", uint8(in.Op))}
			}
			continue
		}

		switch inst.FormatOf(in.Op) {
		case inst.FmtJumpUncond:
			off := int32(in.K)
			if off < 0 {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("backward jump offset %d", off)}
			}
			target := i + 1 + int(off)
			if target >= len(insns) {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("jump target %d out of range [0, %d)", target, len(insns))}
			}

		case inst.FmtJumpCond:
			if t := i + 1 + int(in.Jt); t >= len(insns) {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("jt target %d out of range [0, %d)", t, len(insns))}
			}
			if t := i + 1 + int(in.Jf); t >= len(insns) {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("jf target %d out of range [0, %d)", t, len(insns))}
			}

		case inst.FmtMemoryAbs:
			if in.K >= MaxPacketSize {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("absolute offset %d exceeds max packet size", in.K)}
			}

		case inst.FmtMemoryReg:
			if in.K >= NumSlots {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("scratch slot %d out of range [0, %d)", in.K, NumSlots)}
			}
		}

		switch in.Op {
		case inst.DIV_K, inst.MOD_K:
			if in.K == 0 {
				return &ValidationError{Index: i, Reason: "division by zero immediate"}
			}
		case inst.LD_MSH, inst.LDX_MSH:
			if in.K >= MaxPacketSize {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("msh offset %d exceeds max packet size", in.K)}
			}
		}
	}
	return nil
}
