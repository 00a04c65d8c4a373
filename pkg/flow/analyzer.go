// Package flow provides static control-flow analysis for BPF programs:
// a successor graph, reachability from the entry point, and a report of
// dead code and trivially redundant jumps.
package flow

import (
	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// Report is the outcome of analyzing one program.
type Report struct {
	// Successors holds the control-flow successor indices of each
	// instruction; empty for returns.
	Successors [][]int `json:"successors"`
	// Unreachable lists instruction indices no path from 0 reaches.
	Unreachable []int `json:"unreachable,omitempty"`
	// RedundantJumps lists jumps that cannot change control flow:
	// `ja +0` and conditional branches with jt == jf.
	RedundantJumps []int `json:"redundant_jumps,omitempty"`
}

// Analyze builds the control-flow graph of insns and reports unreachable
// instructions and redundant jumps. It assumes in-range jump targets; run
// the verifier first.
func Analyze(insns []inst.Instruction) *Report {
	r := &Report{Successors: make([][]int, len(insns))}

	for i, in := range insns {
		switch {
		case inst.IsRet(in.Op):
			// no successors
		case in.Op == inst.JMP_JA:
			r.Successors[i] = []int{i + 1 + int(int32(in.K))}
			if in.K == 0 {
				r.RedundantJumps = append(r.RedundantJumps, i)
			}
		case inst.IsJump(in.Op):
			jt := i + 1 + int(in.Jt)
			jf := i + 1 + int(in.Jf)
			if jt == jf {
				r.Successors[i] = []int{jt}
				r.RedundantJumps = append(r.RedundantJumps, i)
			} else {
				r.Successors[i] = []int{jt, jf}
			}
		default:
			if i+1 < len(insns) {
				r.Successors[i] = []int{i + 1}
			}
		}
	}

	// BFS from instruction 0.
	seen := make([]bool, len(insns))
	var queue []int
	if len(insns) > 0 {
		seen[0] = true
		queue = append(queue, 0)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, s := range r.Successors[i] {
			if s >= 0 && s < len(insns) && !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}
	for i, ok := range seen {
		if !ok {
			r.Unreachable = append(r.Unreachable, i)
		}
	}
	return r
}
