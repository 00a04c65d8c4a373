package vm

import (
	"fmt"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// Handler executes one extension opcode. It returns false when the opcode
// is not its own; the interpreter then fails the execution with
// ErrUnknownOpcode. Handlers signal check failures through the context's
// error bits, not through the error return, which is reserved for faults
// that must abort execution.
type Handler func(c *Context, in inst.Instruction) (handled bool, err error)

// Extension is the pluggable unit of the extension ABI. Initialize runs
// once when the extension is attached and is where it registers its opcode
// handlers; Cleanup runs when the context is done with it.
type Extension interface {
	Name() string
	Version() string
	Initialize(c *Context) error
	Execute(op inst.Opcode, k uint32, c *Context) (bool, error)
	Cleanup()
}

// Registry is the closed-at-runtime opcode → handler table. The built-in
// check opcodes (0xE0..0xE5) are installed at construction; external
// extensions may claim any free opcode at 0x80 or above.
type Registry struct {
	handlers [256]Handler
	exts     []Extension
}

// NewRegistry returns a registry with the built-in check handlers installed.
func NewRegistry() *Registry {
	r := &Registry{}
	r.handlers[inst.CHK_CRC] = chkCRC
	r.handlers[inst.CHK_L3_CSUM] = chkL3Csum
	r.handlers[inst.CHK_L4_CSUM] = chkL4Csum
	r.handlers[inst.CHK_TRUNC] = chkTrunc
	r.handlers[inst.CHK_FRAME_LEN] = chkFrameLen
	r.handlers[inst.CHK_PROTO_LOC] = chkProtoLoc
	return r
}

// Register claims op for h. Opcodes below 0x80, core catalog opcodes, and
// opcodes already claimed are refused.
func (r *Registry) Register(op inst.Opcode, h Handler) error {
	if op < 0x80 {
		return fmt.Errorf("vm: extension opcode 0x%02X below 0x80", uint8(op))
	}
	if inst.Valid(op) && inst.CategoryOf(op) != inst.CatExt {
		return fmt.Errorf("vm: opcode 0x%02X is a core instruction", uint8(op))
	}
	if r.handlers[op] != nil {
		return fmt.Errorf("vm: opcode 0x%02X already registered", uint8(op))
	}
	r.handlers[op] = h
	return nil
}

// Known reports whether op has a handler.
func (r *Registry) Known(op inst.Opcode) bool {
	return r.handlers[op] != nil
}

// Attach initializes ext against the context and tracks it for Cleanup.
// The extension registers its opcodes from Initialize.
func (c *Context) Attach(ext Extension) error {
	if err := ext.Initialize(c); err != nil {
		return fmt.Errorf("vm: extension %s: %w", ext.Name(), err)
	}
	c.registry.exts = append(c.registry.exts, ext)
	return nil
}

// Close runs Cleanup on every attached extension.
func (c *Context) Close() {
	for _, ext := range c.registry.exts {
		ext.Cleanup()
	}
	c.registry.exts = nil
}

func (r *Registry) dispatch(c *Context, in inst.Instruction) (bool, error) {
	h := r.handlers[in.Op]
	if h == nil {
		return false, nil
	}
	return h(c, in)
}
