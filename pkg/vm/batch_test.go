package vm

import (
	"testing"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// TestRunBatchMatchesSequential verifies batch verdicts agree with
// one-context sequential execution and come back in input order.
func TestRunBatchMatchesSequential(t *testing.T) {
	// Accept frames whose first half-word is 0xCAFE.
	insns := []inst.Instruction{
		{Op: inst.LD_ABS_H, K: 0},
		{Op: inst.JEQ_K, Jt: 0, Jf: 1, K: 0xCAFE},
		{Op: inst.RET_K, K: 0x00040000},
		{Op: inst.RET_K, K: 0},
	}
	p := NewProgram(insns)

	packets := make([][]byte, 100)
	for i := range packets {
		if i%3 == 0 {
			packets[i] = []byte{0xCA, 0xFE, byte(i)}
		} else if i%7 == 0 {
			packets[i] = []byte{0xCA} // too short: TRUNCATED, dropped
		} else {
			packets[i] = []byte{0xDE, 0xAD, byte(i)}
		}
	}

	// Sequential reference.
	want := make([]Verdict, len(packets))
	ctx := NewContext()
	for i, pkt := range packets {
		ctx.Reset()
		if err := ctx.LoadPacket(pkt); err != nil {
			t.Fatalf("LoadPacket: %v", err)
		}
		result, err := ctx.Execute(p)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		want[i] = Verdict{Index: i, Result: result, Status: ctx.Registers().Status()}
	}

	got, err := RunBatch(p, packets, BatchConfig{NumWorkers: 8})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d verdicts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Err != nil {
			t.Errorf("packet %d: %v", i, got[i].Err)
			continue
		}
		if got[i] != want[i] {
			t.Errorf("packet %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

// TestRunBatchValidates verifies the batch runner rejects bad programs up
// front.
func TestRunBatchValidates(t *testing.T) {
	p := NewProgram([]inst.Instruction{{Op: inst.LD_IMM, K: 1}}) // no ret
	if _, err := RunBatch(p, [][]byte{{1}}, BatchConfig{}); err == nil {
		t.Error("expected validation error")
	}
	if _, err := RunBatch(nil, nil, BatchConfig{}); err != ErrNoProgramLoaded {
		t.Errorf("nil program: %v, want ErrNoProgramLoaded", err)
	}
}

// TestRunBatchEmpty verifies zero packets is fine.
func TestRunBatchEmpty(t *testing.T) {
	p := NewProgram([]inst.Instruction{{Op: inst.RET_K, K: 1}})
	verdicts, err := RunBatch(p, nil, BatchConfig{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(verdicts) != 0 {
		t.Errorf("got %d verdicts, want 0", len(verdicts))
	}
}
