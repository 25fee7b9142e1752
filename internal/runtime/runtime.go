// Package runtime drives the simulation's contexts (tiles, producers,
// consumers, checkers) forward to completion: one goroutine per context,
// joined by golang.org/x/sync/errgroup, with an optional CPU-affinity pin
// per context in the parallel flavor.
package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/xpusim/xpusim/internal/interfaces"
)

// Context is one scheduled participant of the simulation: a tile, a
// producer, a consumer, or a checker. It must already have attached its
// channel endpoints before being registered with a Runtime.
type Context interface {
	// ID identifies the context for logging and error reporting.
	ID() string
	// Run drives the context to completion or until ctx is canceled. It
	// returns the first unhandled error, or nil on ordinary completion.
	Run(ctx context.Context) error
	// FinalClock returns the context's local clock after Run has
	// returned. Its value before Run returns is unspecified.
	FinalClock() uint64
}

// Flavor selects how the runtime schedules its contexts.
type Flavor int

const (
	// FlavorParallel runs each context on its own goroutine, optionally
	// pinned to a CPU.
	FlavorParallel Flavor = iota
	// FlavorCooperative also runs each context on its own goroutine, but
	// under GOMAXPROCS(1) for the run's duration. Go has no general
	// green-thread scheduler outside goroutines, so this is the
	// pragmatic rendering of "cooperative, single-OS-thread" scheduling
	// — see DESIGN.md for the fuller resolution.
	FlavorCooperative
)

// FlavorInference decides which Flavor a run should use. A nil
// FlavorInference defaults to always picking FlavorParallel.
type FlavorInference func() Flavor

// AutoInference picks FlavorCooperative when the machine exposes a single
// usable CPU, FlavorParallel otherwise.
func AutoInference() Flavor {
	if goruntime.GOMAXPROCS(0) <= 1 {
		return FlavorCooperative
	}
	return FlavorParallel
}

// Options configures Initialize and Run.
type Options struct {
	Logger             interfaces.Logger
	Observer           interfaces.Observer
	RunFlavorInference FlavorInference
	// CPUAffinity lists CPU indices contexts are pinned to round-robin,
	// in the parallel flavor only. Nil means no pinning.
	CPUAffinity []int
}

// Executed is the result of a completed Run.
type Executed struct {
	ElapsedCycles uint64
}

// Runtime owns a set of contexts and drives them to completion.
type Runtime struct {
	children []Context
	flavor   Flavor
}

// New creates an empty Runtime.
func New() *Runtime {
	return &Runtime{}
}

// AddChild registers ctx with the runtime. ctx must already have attached
// its channel endpoints; the runtime does not wire contexts together.
func (r *Runtime) AddChild(ctx Context) {
	r.children = append(r.children, ctx)
}

// Initialize resolves the run flavor for this runtime. It must be called
// before Run.
func (r *Runtime) Initialize(opts Options) error {
	if len(r.children) == 0 {
		return fmt.Errorf("runtime: no contexts registered")
	}
	infer := opts.RunFlavorInference
	if infer == nil {
		infer = func() Flavor { return FlavorParallel }
	}
	r.flavor = infer()
	if opts.Logger != nil {
		opts.Logger.Debugf("runtime initialized: %d contexts, flavor=%d", len(r.children), r.flavor)
	}
	return nil
}

// Run drives every registered context to completion and returns the
// elapsed cycle count (the max final clock across all contexts). If any
// context returns a non-nil, non-closed error, Run cancels the remaining
// contexts at their next suspension point and returns that error.
func (r *Runtime) Run(ctx context.Context, opts Options) (Executed, error) {
	if r.flavor == FlavorCooperative {
		prev := goruntime.GOMAXPROCS(1)
		defer goruntime.GOMAXPROCS(prev)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, child := range r.children {
		child := child
		idx := i
		g.Go(func() (err error) {
			// A panicking context must surface as an error instead of
			// crashing the process, so the errgroup context cancels the
			// remaining contexts at their next suspension point, per
			// spec.md §4.2.
			defer func() {
				if rec := recover(); rec != nil {
					if opts.Logger != nil {
						opts.Logger.Errorf("context %s panicked: %v", child.ID(), rec)
					}
					err = fmt.Errorf("runtime: context %s panicked: %v", child.ID(), rec)
				}
			}()
			if r.flavor == FlavorParallel {
				pin(opts.CPUAffinity, idx)
			}
			if opts.Logger != nil {
				opts.Logger.Debugf("context %s starting", child.ID())
			}
			err = child.Run(gctx)
			if opts.Logger != nil {
				if err != nil {
					opts.Logger.Warnf("context %s returned error: %v", child.ID(), err)
				} else {
					opts.Logger.Debugf("context %s finished at clock %d", child.ID(), child.FinalClock())
				}
			}
			return err
		})
	}

	err := g.Wait()

	var elapsed uint64
	for _, child := range r.children {
		if c := child.FinalClock(); c > elapsed {
			elapsed = c
		}
	}
	return Executed{ElapsedCycles: elapsed}, err
}
