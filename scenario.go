// Package xpusim is a discrete-event, cycle-accurate simulator for a 2-D
// mesh of weight-stationary systolic GEMM tiles. RunScenario is the harness
// entry point: it wires internal/mesh + internal/tile + internal/actor +
// internal/runtime + internal/trace together for one run and reports the
// elapsed cycle count and every collector's output: build topology, install
// observers, run, collect results.
package xpusim

import (
	"context"
	"errors"
	"fmt"

	"github.com/xpusim/xpusim/internal/actor"
	"github.com/xpusim/xpusim/internal/interfaces"
	"github.com/xpusim/xpusim/internal/matrix"
	"github.com/xpusim/xpusim/internal/mesh"
	"github.com/xpusim/xpusim/internal/runtime"
	"github.com/xpusim/xpusim/internal/tile"
	"github.com/xpusim/xpusim/internal/trace"
)

// ScenarioConfig is the scenario harness's scalar configuration surface:
// LINK_CAPACITY, IN_FEATURES, OUT_FEATURES, BUFFER_CAPACITY, NUM_MATMULS,
// DIMS, plus the derived/optional knobs a full run needs.
type ScenarioConfig struct {
	LinkCapacity int
	InFeatures   int
	OutFeatures  int
	BufferSize   int
	NumMatmuls   int
	Dims         [2]int

	// ChannelCapacity bounds every internal and edge channel the mesh
	// builder wires up.
	ChannelCapacity int
	// InitInterval is the per-step slack cycles every tile adds
	// unconditionally (the initiation interval).
	InitInterval uint64
	// ApplyBiasInTile resolves whether biases are added in-tile: true adds
	// the tile's resident bias to every compute's output row; false
	// assumes biases arrive pre-merged via the up-rank channel, or are
	// unused.
	ApplyBiasInTile bool
	// ProducerInitDelay is the start-delay cycles every edge producer
	// advances its clock by before its first enqueue.
	ProducerInitDelay uint64
	// ConsumerCapacity is the sink-latency period every edge consumer
	// advances its clock by, once per this many drains. A Checker ignores
	// this field.
	ConsumerCapacity uint64

	// TraceDir, when non-empty, enables the per-run Perfetto-shaped trace:
	// the directory is cleaned and the track-descriptor header plus every
	// tile's event file are written there.
	TraceDir string

	// RunFlavorInference resolves the runtime's scheduling flavor; nil
	// defaults to runtime.AutoInference.
	RunFlavorInference runtime.FlavorInference
	// CPUAffinity lists CPU indices contexts are pinned to round-robin in
	// the parallel flavor; nil means no pinning.
	CPUAffinity []int
}

// DefaultScenarioConfig returns the module's default scalar constants
// (constants.go's re-exported defaults), with bias application enabled and
// tracing disabled.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		LinkCapacity:    LinkCapacity,
		InFeatures:      InFeatures,
		OutFeatures:     OutFeatures,
		BufferSize:      BufferCapacity,
		NumMatmuls:      NumMatmuls,
		Dims:            DefaultDims,
		ChannelCapacity: ChannelCapacity,
		ApplyBiasInTile: true,
	}
}

// WeightsFunc supplies the resident weights and biases for the tile at
// (row, col). A scenario with identical weights across the mesh returns
// the same matrix/vector for every call.
type WeightsFunc[E matrix.Scalar] func(row, col int) (weights *matrix.Matrix[E], biases []E)

// Inputs supplies the finite payload sequence every edge injector emits.
// Left[row] feeds the left-edge tile of that row; Up[col] feeds the
// top-edge tile of that column. A nil or short entry means that edge
// injects nothing. A tile fires only once its up buffer is full, so a mesh
// with zero up-rank partial sums is given zero-valued Up rows, not a
// missing entry. RunScenario copies every row, so the caller's slices are
// never handed to the mesh.
type Inputs[E matrix.Scalar] struct {
	Left [][][]E
	Up   [][][]E
}

// Options carries the cross-cutting collaborators a run accepts: a logger
// and an event observer. Every edge collector is a plain drain-and-collect
// consumer; no reference sequence is checked in-line during the run.
type Options struct {
	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// Result is one scenario run's outcome.
type Result[E matrix.Scalar] struct {
	ElapsedCycles uint64
	// Right[row] is the right-edge collector's payloads for that row, in
	// arrival order.
	Right [][][]E
	// Down[col] is the bottom-edge collector's payloads for that column,
	// in arrival order.
	Down [][][]E
}

// RunScenario builds the mesh wiring, the tiles, the edge producers and
// consumers, and the runtime, then drives the run to completion. It returns
// a Configuration error for a bad cfg, and otherwise the first unhandled
// error any context surfaced.
func RunScenario[E matrix.Scalar](ctx context.Context, cfg ScenarioConfig, weightsFn WeightsFunc[E], inputs Inputs[E], opts Options) (Result[E], error) {
	rows, cols := cfg.Dims[0], cfg.Dims[1]
	if rows <= 0 || cols <= 0 {
		return Result[E]{}, &Error{Op: "scenario.run", Code: CodeConfiguration, Msg: fmt.Sprintf("dims must both be positive, got %v", cfg.Dims)}
	}

	w, err := mesh.Build[[]E](cfg.Dims, cfg.ChannelCapacity)
	if err != nil {
		return Result[E]{}, WrapError("scenario.run", CodeConfiguration, err)
	}

	var tracks []trace.TileTracks
	if cfg.TraceDir != "" {
		if err := trace.CleanTraceDir(cfg.TraceDir); err != nil {
			return Result[E]{}, WrapError("scenario.run", CodeConfiguration, err)
		}
		tracks, err = trace.BuildTrackTree(cfg.TraceDir, "xpu", rows*cols)
		if err != nil {
			return Result[E]{}, WrapError("scenario.run", CodeConfiguration, err)
		}
	}

	rt := runtime.New()
	n := rows * cols
	tiles := make([]*tile.Tile[E], n)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := w.Index(r, c)

			if err := w.InChans[i][0].AttachReceiver(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}
			if err := w.InChans[i][1].AttachReceiver(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}
			if err := w.OutChans[i][0].AttachSender(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}
			if err := w.OutChans[i][1].AttachSender(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}

			weights, biases := weightsFn(r, c)

			var tileCfg tile.Config[E]
			tileCfg.Weights = weights
			tileCfg.Biases = biases
			tileCfg.LinkCap = cfg.LinkCapacity
			tileCfg.InFeatures = cfg.InFeatures
			tileCfg.OutFeatures = cfg.OutFeatures
			tileCfg.BufSize = cfg.BufferSize
			tileCfg.InitInterval = cfg.InitInterval
			tileCfg.NumMatmuls = cfg.NumMatmuls
			tileCfg.ThreadID = uint32(i)
			tileCfg.ApplyBiasInTile = cfg.ApplyBiasInTile

			var tracer *trace.Writer
			if cfg.TraceDir != "" {
				tileCfg.TrackIDs = tracks[i].Child
				tracer, err = trace.NewWriter(cfg.TraceDir, i, uint32(i))
				if err != nil {
					return Result[E]{}, WrapError("scenario.run", CodeConfiguration, err)
				}
			}

			tl, err := tile.New[E](tileCfg, w.InChans[i][0], w.InChans[i][1], w.OutChans[i][0], w.OutChans[i][1], tracer, opts.Observer, opts.Logger)
			if err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeConfiguration, err)
			}
			tiles[i] = tl
			rt.AddChild(tl)
		}
	}

	for r := 0; r < rows; r++ {
		i := w.Index(r, 0)
		if s := w.InProds[i][0]; s != nil {
			values := leftValues(inputs, r)
			if err := s.AttachSender(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}
			rt.AddChild(actor.NewProducer(fmt.Sprintf("left-producer-%d", r), values, s, cfg.ProducerInitDelay))
		}
	}
	for c := 0; c < cols; c++ {
		i := w.Index(0, c)
		if s := w.InProds[i][1]; s != nil {
			values := upValues(inputs, c)
			if err := s.AttachSender(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}
			rt.AddChild(actor.NewProducer(fmt.Sprintf("up-producer-%d", c), values, s, cfg.ProducerInitDelay))
		}
	}

	rightConsumers := make([]*actor.Consumer[[]E], rows)
	downConsumers := make([]*actor.Consumer[[]E], cols)
	for r := 0; r < rows; r++ {
		i := w.Index(r, cols-1)
		if recv := w.OutCons[i][0]; recv != nil {
			if err := recv.AttachReceiver(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}
			cons := actor.NewConsumer(fmt.Sprintf("right-consumer-%d", r), cfg.ConsumerCapacity, recv)
			rightConsumers[r] = cons
			rt.AddChild(cons)
		}
	}
	for c := 0; c < cols; c++ {
		i := w.Index(rows-1, c)
		if recv := w.OutCons[i][1]; recv != nil {
			if err := recv.AttachReceiver(); err != nil {
				return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
			}
			cons := actor.NewConsumer(fmt.Sprintf("down-consumer-%d", c), cfg.ConsumerCapacity, recv)
			downConsumers[c] = cons
			rt.AddChild(cons)
		}
	}

	runtimeOpts := runtime.Options{
		Logger:             opts.Logger,
		Observer:           opts.Observer,
		RunFlavorInference: cfg.RunFlavorInference,
		CPUAffinity:        cfg.CPUAffinity,
	}
	if runtimeOpts.RunFlavorInference == nil {
		runtimeOpts.RunFlavorInference = runtime.AutoInference
	}

	if err := rt.Initialize(runtimeOpts); err != nil {
		return Result[E]{}, WrapError("scenario.run", CodeConfiguration, err)
	}
	executed, err := rt.Run(ctx, runtimeOpts)
	if err != nil {
		// A normal Closed termination never reaches here: every context
		// recovers it locally and returns nil (spec.md §7). Anything
		// rt.Run surfaces is a genuine failure: a shape mismatch on a
		// channel payload classifies as Arithmetic, everything else (a
		// double Run, an unattached endpoint, a panicking context) as
		// Usage.
		if errors.Is(err, matrix.ErrShapeMismatch) {
			return Result[E]{}, WrapError("scenario.run", CodeArithmetic, err)
		}
		return Result[E]{}, WrapError("scenario.run", CodeUsage, err)
	}

	result := Result[E]{ElapsedCycles: executed.ElapsedCycles}
	result.Right = make([][][]E, rows)
	for r, cons := range rightConsumers {
		if cons != nil {
			result.Right[r] = cons.Collected
		}
	}
	result.Down = make([][][]E, cols)
	for c, cons := range downConsumers {
		if cons != nil {
			result.Down[c] = cons.Collected
		}
	}
	return result, nil
}

func leftValues[E matrix.Scalar](inputs Inputs[E], row int) [][]E {
	if row < len(inputs.Left) {
		return cloneRows(inputs.Left[row])
	}
	return nil
}

func upValues[E matrix.Scalar](inputs Inputs[E], col int) [][]E {
	if col < len(inputs.Up) {
		return cloneRows(inputs.Up[col])
	}
	return nil
}

// cloneRows copies every row: a tile returns each payload it receives to
// the vector pool for reuse, which must never reach the caller's slices.
func cloneRows[E matrix.Scalar](rows [][]E) [][]E {
	out := make([][]E, len(rows))
	for i, r := range rows {
		out[i] = make([]E, len(r))
		copy(out[i], r)
	}
	return out
}
