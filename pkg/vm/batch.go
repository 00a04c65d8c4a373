package vm

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Verdict is the outcome of running the program over one packet.
type Verdict struct {
	Index  int
	Result uint32
	Status uint64 // ERROR_STATUS bits at termination
	Err    error
}

// BatchConfig configures a batch run.
type BatchConfig struct {
	NumWorkers int    // defaults to NumCPU
	Config     Config // per-context VM options
}

// RunBatch executes one validated program over many packets using a pool
// of worker contexts, one context per worker. The program is shared
// read-only; each context owns its packet memory and registers, so workers
// never race. Verdicts come back in input order.
func RunBatch(p *Program, packets [][]byte, cfg BatchConfig) ([]Verdict, error) {
	if p == nil {
		return nil, ErrNoProgramLoaded
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(packets) {
		workers = len(packets)
	}

	verdicts := make([]Verdict, len(packets))
	var next atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := NewContextWith(cfg.Config)
			for {
				i := int(next.Add(1)) - 1
				if i >= len(packets) {
					return
				}
				ctx.Reset()
				v := Verdict{Index: i}
				if err := ctx.LoadPacket(packets[i]); err != nil {
					v.Err = err
				} else {
					v.Result, v.Err = ctx.Execute(p)
					v.Status = ctx.Registers().Status()
				}
				verdicts[i] = v
			}
		}()
	}
	wg.Wait()
	return verdicts, nil
}
