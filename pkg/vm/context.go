package vm

import (
	"encoding/binary"
)

// NumLayers is the number of protocol layers the context tracks.
const NumLayers = 16

// StepLimit is the default per-execution instruction budget. The verifier's
// forward-only jump rule makes it unreachable for validated programs; it
// remains as defence-in-depth.
const StepLimit = 1 << 20

// ProtocolInfo describes one decoded protocol layer. Populated by the
// caller (typically a dissector in front of the VM) and consulted by the
// chk_proto_loc extension.
type ProtocolInfo struct {
	Type      uint32
	Offset    int
	HeaderLen int
	Fields    map[uint32]uint64
	Flags     uint64
}

// SetField records an arbitrary per-layer field value.
func (p *ProtocolInfo) SetField(id uint32, v uint64) {
	if p.Fields == nil {
		p.Fields = make(map[uint32]uint64)
	}
	p.Fields[id] = v
}

// Field returns a per-layer field value.
func (p *ProtocolInfo) Field(id uint32) (uint64, bool) {
	v, ok := p.Fields[id]
	return v, ok
}

// Context drives the execution of programs against packets. It exclusively
// owns its packet memory and register file; exactly one caller at a time
// may use it. Programs are only referenced, never owned, so any number of
// contexts may run the same validated program concurrently.
type Context struct {
	mem  *PacketMemory
	regs RegisterFile

	pc         int
	terminated bool
	result     uint32

	layers [NumLayers]ProtocolInfo

	registry  *Registry
	tracer    Tracer
	stepLimit int
}

// NewContext returns a context with default configuration and the built-in
// check extensions registered.
func NewContext() *Context {
	return NewContextWith(DefaultConfig())
}

// NewContextWith returns a context configured by cfg. The extension
// registry is fixed at construction; registering more handlers while an
// execution is in flight requires external synchronisation.
func NewContextWith(cfg Config) *Context {
	c := &Context{
		mem:       NewPacketMemory(),
		registry:  NewRegistry(),
		stepLimit: cfg.StepLimit,
	}
	if c.stepLimit <= 0 {
		c.stepLimit = StepLimit
	}
	if cfg.ByteOrder == "little" {
		c.mem.SetByteOrder(binary.LittleEndian)
	}
	return c
}

// Memory returns the context's packet memory.
func (c *Context) Memory() *PacketMemory { return c.mem }

// Registers returns the context's register file.
func (c *Context) Registers() *RegisterFile { return &c.regs }

// Registry returns the context's extension registry.
func (c *Context) Registry() *Registry { return c.registry }

// LoadPacket loads the next packet to inspect. Registers, error bits, and
// per-layer metadata carry over; call Reset first for a clean slate.
func (c *Context) LoadPacket(data []byte) error {
	return c.mem.LoadPacket(data)
}

// Layer returns protocol metadata for layer i (0..15).
func (c *Context) Layer(i int) *ProtocolInfo { return &c.layers[i] }

// SetLayer records protocol metadata for layer i.
func (c *Context) SetLayer(i int, info ProtocolInfo) { c.layers[i] = info }

// Result returns the verdict of the last completed execution.
func (c *Context) Result() uint32 { return c.result }

// Terminated reports whether the last execution ran to completion.
func (c *Context) Terminated() bool { return c.terminated }

// SetTracer installs a step tracer. Pass nil to disable (the default);
// execution does not allocate for tracing when disabled.
func (c *Context) SetTracer(t Tracer) { c.tracer = t }

// Reset returns the context to the zero state: registers, error bits,
// result, and layer metadata cleared. The packet buffer keeps its capacity
// for reuse.
func (c *Context) Reset() {
	c.regs.Reset()
	c.pc = 0
	c.terminated = false
	c.result = 0
	c.layers = [NumLayers]ProtocolInfo{}
}
