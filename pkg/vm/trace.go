package vm

import "github.com/slytechs-repos/bpfvm/pkg/inst"

// Step is one traced interpreter step: the instruction executed and the
// register state after it.
type Step struct {
	PC         int
	Insn       inst.Instruction
	A, X       uint64
	Terminated bool
}

// Tracer observes interpreter steps. Tracing is off by default; with no
// tracer installed the interpreter's hot path does not allocate.
type Tracer interface {
	Trace(Step)
}

// RecordingTracer collects every step in order.
type RecordingTracer struct {
	Steps []Step
}

// Trace implements Tracer.
func (t *RecordingTracer) Trace(s Step) {
	t.Steps = append(t.Steps, s)
}

// Reset drops recorded steps but keeps capacity.
func (t *RecordingTracer) Reset() {
	t.Steps = t.Steps[:0]
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(Step)

// Trace implements Tracer.
func (f TracerFunc) Trace(s Step) { f(s) }
