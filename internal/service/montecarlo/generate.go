package montecarlo

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Generator draws one password from a model and returns its ml2p
type Generator interface {
	Sample(rng *rand.Rand) (float64, string, error)
}

// GenerateOptions controls parallel sampling
type GenerateOptions struct {
	Workers       int       // Sampling goroutines, defaults to GOMAXPROCS
	Seed          uint64    // Base seed; worker i draws from PCG(Seed, i)
	KeepPasswords bool      // Retain generated passwords for the exact-sample attack
	Progress      func(int) // Called, possibly concurrently, with the number of newly finished samples
}

// SampleSet holds generated costs, and optionally the generated passwords
type SampleSet struct {
	ML2P      []float64
	Passwords []string // Parallel to ML2P when KeepPasswords was set
}

const progressBatch = 256

// Generate draws count independent samples. Each worker owns a disjoint range
// of the output and its own random source, so results depend only on the
// seed and the worker count.
func Generate(ctx context.Context, gen Generator, count int, opts GenerateOptions) (*SampleSet, error) {
	if count < 0 {
		return nil, errors.Errorf("sample count must not be negative, got %d", count)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > count {
		workers = count
	}

	set := &SampleSet{ML2P: make([]float64, count)}
	if opts.KeepPasswords {
		set.Passwords = make([]string, count)
	}
	if count == 0 {
		return set, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		done     atomic.Int64
	)
	chunk := (count + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > count {
			hi = count
		}
		if lo >= hi {
			break
		}

		wg.Add(1)
		go func(worker, lo, hi int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(worker)))
			pending := 0
			for i := lo; i < hi; i++ {
				if (i-lo)%progressBatch == 0 {
					if err := ctx.Err(); err != nil {
						errOnce.Do(func() { firstErr = err })
						return
					}
				}
				cost, pwd, err := gen.Sample(rng)
				if err != nil {
					errOnce.Do(func() {
						firstErr = errors.Wrapf(err, "sample %d", i)
						cancel()
					})
					return
				}
				set.ML2P[i] = cost
				if set.Passwords != nil {
					set.Passwords[i] = pwd
				}
				pending++
				if pending == progressBatch {
					done.Add(int64(pending))
					if opts.Progress != nil {
						opts.Progress(pending)
					}
					pending = 0
				}
			}
			if pending > 0 {
				done.Add(int64(pending))
				if opts.Progress != nil {
					opts.Progress(pending)
				}
			}
		}(w, lo, hi)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if n := done.Load(); n != int64(count) {
		return nil, errors.Errorf("generated %d of %d samples", n, count)
	}
	return set, nil
}
