package vm

import (
	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// Execute runs a program against the currently loaded packet and returns
// the 32-bit verdict. The program is validated on first use; an already
// rejected program fails immediately with its ValidationError.
//
// Memory faults during loads never abort execution: the destination
// register is zeroed and the TRUNCATED status bit set, per BPF tradition.
func (c *Context) Execute(p *Program) (uint32, error) {
	if p == nil {
		return 0, ErrNoProgramLoaded
	}
	if err := p.ValidateWith(c.registry.Known); err != nil {
		return 0, err
	}

	c.pc = 0
	c.terminated = false
	c.result = 0

	n := p.Len()
	for steps := 0; ; steps++ {
		if c.pc < 0 || c.pc >= n {
			return 0, &ExecError{PC: c.pc, Err: ErrNoTerminatingReturn}
		}
		if steps >= c.stepLimit {
			return 0, &ExecError{PC: c.pc, Err: ErrTimeout}
		}

		at := c.pc
		in := p.At(at)
		c.pc++ // pre-increment; jumps adjust from here

		if err := c.step(in); err != nil {
			return 0, &ExecError{PC: at, Err: err}
		}
		if c.tracer != nil {
			c.tracer.Trace(Step{
				PC:         at,
				Insn:       in,
				A:          c.regs.A(),
				X:          c.regs.X(),
				Terminated: c.terminated,
			})
		}
		if c.terminated {
			return c.result, nil
		}
	}
}

// step executes one instruction. The PC has already been advanced past it.
func (c *Context) step(in inst.Instruction) error {
	switch in.Op {
	// === Loads into A ===
	case inst.LD_IMM:
		c.regs.SetA(uint64(in.K))
	case inst.LD_ABS_W:
		v, err := c.mem.ReadU32(int(in.K))
		c.loadA(uint64(v), err)
	case inst.LD_ABS_H:
		v, err := c.mem.ReadU16(int(in.K))
		c.loadA(uint64(v), err)
	case inst.LD_ABS_B:
		v, err := c.mem.ReadU8(int(in.K))
		c.loadA(uint64(v), err)
	case inst.LD_IND_W:
		v, err := c.mem.ReadU32(c.indOffset(in.K))
		c.loadA(uint64(v), err)
	case inst.LD_IND_H:
		v, err := c.mem.ReadU16(c.indOffset(in.K))
		c.loadA(uint64(v), err)
	case inst.LD_IND_B:
		v, err := c.mem.ReadU8(c.indOffset(in.K))
		c.loadA(uint64(v), err)
	case inst.LD_LEN:
		c.regs.SetA(uint64(c.mem.Len()))
	case inst.LD_MEM:
		c.regs.SetA(c.regs.Slot(int(in.K)))
	case inst.LD_MSH:
		b, err := c.mem.ReadU8(int(in.K))
		c.loadA(uint64(b&0x0F)<<2, err)

	// === Loads into X ===
	case inst.LDX_IMM:
		c.regs.SetX(uint64(in.K))
	case inst.LDX_LEN:
		c.regs.SetX(uint64(c.mem.Len()))
	case inst.LDX_MEM:
		c.regs.SetX(c.regs.Slot(int(in.K)))
	case inst.LDX_MSH:
		b, err := c.mem.ReadU8(int(in.K))
		c.loadX(uint64(b&0x0F)<<2, err)

	// === Stores ===
	case inst.ST:
		c.regs.SetSlot(int(in.K), c.regs.A())
	case inst.STX:
		c.regs.SetSlot(int(in.K), c.regs.X())

	// === ALU, immediate operand ===
	case inst.ADD_K, inst.SUB_K, inst.MUL_K, inst.DIV_K, inst.MOD_K,
		inst.AND_K, inst.OR_K, inst.XOR_K, inst.LSH_K, inst.RSH_K:
		c.alu(in.Op, in.K)

	// === ALU, X operand ===
	case inst.ADD_X, inst.SUB_X, inst.MUL_X, inst.DIV_X, inst.MOD_X,
		inst.AND_X, inst.OR_X, inst.XOR_X, inst.LSH_X, inst.RSH_X:
		c.alu(in.Op, uint32(c.regs.X()))

	case inst.NEG:
		c.regs.SetA(uint64(-uint32(c.regs.A())))

	// === Jumps ===
	case inst.JMP_JA:
		c.pc += int(int32(in.K))
	case inst.JEQ_K:
		c.branch(uint32(c.regs.A()) == in.K, in)
	case inst.JGT_K:
		c.branch(uint32(c.regs.A()) > in.K, in)
	case inst.JGE_K:
		c.branch(uint32(c.regs.A()) >= in.K, in)
	case inst.JSET_K:
		c.branch(uint32(c.regs.A())&in.K != 0, in)
	case inst.JEQ_X:
		c.branch(uint32(c.regs.A()) == uint32(c.regs.X()), in)
	case inst.JGT_X:
		c.branch(uint32(c.regs.A()) > uint32(c.regs.X()), in)
	case inst.JGE_X:
		c.branch(uint32(c.regs.A()) >= uint32(c.regs.X()), in)
	case inst.JSET_X:
		c.branch(uint32(c.regs.A())&uint32(c.regs.X()) != 0, in)

	// === Returns ===
	case inst.RET_K:
		c.result = in.K
		c.terminated = true
	case inst.RET_A:
		c.result = uint32(c.regs.A())
		c.terminated = true

	// === Misc ===
	case inst.TAX:
		c.regs.SetX(c.regs.A())
	case inst.TXA:
		c.regs.SetA(c.regs.X())

	default:
		handled, err := c.registry.dispatch(c, in)
		if err != nil {
			return err
		}
		if !handled {
			return ErrUnknownOpcode
		}
	}
	return nil
}

// alu applies an ALU operation to A with the given second operand. Results
// are masked to 32 bits; division and modulo by zero yield A = 0; shift
// counts use only their low 5 bits.
func (c *Context) alu(op inst.Opcode, operand uint32) {
	a := uint32(c.regs.A())
	var r uint32
	switch op {
	case inst.ADD_K, inst.ADD_X:
		r = a + operand
	case inst.SUB_K, inst.SUB_X:
		r = a - operand
	case inst.MUL_K, inst.MUL_X:
		r = a * operand
	case inst.DIV_K, inst.DIV_X:
		if operand != 0 {
			r = a / operand
		}
	case inst.MOD_K, inst.MOD_X:
		if operand != 0 {
			r = a % operand
		}
	case inst.AND_K, inst.AND_X:
		r = a & operand
	case inst.OR_K, inst.OR_X:
		r = a | operand
	case inst.XOR_K, inst.XOR_X:
		r = a ^ operand
	case inst.LSH_K, inst.LSH_X:
		r = a << (operand & 0x1F)
	case inst.RSH_K, inst.RSH_X:
		r = a >> (operand & 0x1F)
	}
	c.regs.SetA(uint64(r))
}

// branch adjusts the PC by the taken offset. The PC already points at the
// next instruction, so adding jt/jf lands on i+1+offset.
func (c *Context) branch(taken bool, in inst.Instruction) {
	if taken {
		c.pc += int(in.Jt)
	} else {
		c.pc += int(in.Jf)
	}
}

// indOffset computes the indirect load offset X + k with k signed.
func (c *Context) indOffset(k uint32) int {
	return int(int64(c.regs.X()) + int64(int32(k)))
}

func (c *Context) loadA(v uint64, err error) {
	if err != nil {
		c.regs.SetError(ErrBitTruncated)
		c.regs.SetA(0)
		return
	}
	c.regs.SetA(v)
}

func (c *Context) loadX(v uint64, err error) {
	if err != nil {
		c.regs.SetError(ErrBitTruncated)
		c.regs.SetX(0)
		return
	}
	c.regs.SetX(v)
}
