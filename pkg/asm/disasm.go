package asm

import (
	"fmt"
	"strings"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// DumpText renders instructions in the -d listing form, one
// `(NNN) mnemonic operands` line per instruction. Conditional branch
// targets print as absolute instruction indices, the way tcpdump shows
// them; the parser converts back using the line index.
func DumpText(insns []inst.Instruction) string {
	var b strings.Builder
	for i, in := range insns {
		b.WriteString(FormatInstruction(i, in))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatInstruction renders one instruction at index i.
func FormatInstruction(i int, in inst.Instruction) string {
	return fmt.Sprintf("(%03d) %-8s %s", i, inst.Mnemonic(in.Op), FormatOperands(i, in))
}

// FormatOperands renders just the operand column of the instruction at
// index i.
func FormatOperands(i int, in inst.Instruction) string {
	switch in.Op {
	case inst.LD_MSH, inst.LDX_MSH:
		return fmt.Sprintf("4*([%d]&0xf)", in.K)
	case inst.RET_K:
		return fmt.Sprintf("#%d", in.K)
	case inst.RET_A:
		return "a"
	case inst.LD_LEN, inst.LDX_LEN:
		return "len"
	case inst.CHK_CRC:
		return fmt.Sprintf("offset=%d len=%d", in.K, int(in.Jt)<<8|int(in.Jf))
	case inst.CHK_L3_CSUM, inst.CHK_L4_CSUM:
		return fmt.Sprintf("offset=%d", in.K)
	case inst.CHK_TRUNC:
		return ""
	case inst.CHK_FRAME_LEN:
		return fmt.Sprintf(">=%d", in.K)
	case inst.CHK_PROTO_LOC:
		return fmt.Sprintf("layer=%d offset=%d", in.Jt, in.K)
	}

	switch inst.FormatOf(in.Op) {
	case inst.FmtImmediate:
		return fmt.Sprintf("#0x%x", in.K)
	case inst.FmtMemoryAbs:
		return fmt.Sprintf("[%d]", in.K)
	case inst.FmtMemoryInd:
		if k := int32(in.K); k < 0 {
			return fmt.Sprintf("[x - %d]", -k)
		}
		return fmt.Sprintf("[x + %d]", in.K)
	case inst.FmtMemoryReg:
		return fmt.Sprintf("M[%d]", in.K)
	case inst.FmtRegOnly:
		if inst.CategoryOf(in.Op) == inst.CatALU && in.Op != inst.NEG {
			return "x"
		}
		return ""
	case inst.FmtJumpUncond:
		return fmt.Sprintf("+%d", int32(in.K))
	case inst.FmtJumpCond:
		val := "x"
		if in.Op == inst.JEQ_K || in.Op == inst.JGT_K || in.Op == inst.JGE_K || in.Op == inst.JSET_K {
			val = fmt.Sprintf("#0x%x", in.K)
		}
		return fmt.Sprintf("%-16s jt %d\tjf %d", val, i+1+int(in.Jt), i+1+int(in.Jf))
	}
	return ""
}
