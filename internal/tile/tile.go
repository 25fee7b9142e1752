// Package tile implements the weight-stationary GEMM tile state machine:
// the core of the simulator. Each Tile owns two input buffers fed from its
// left and up neighbors, a double-buffered forwarding copy, and an output
// buffer it drains rightward and downward, firing a matmul once both inputs
// are full and both prior outputs have drained.
package tile

import (
	"context"
	"errors"
	"fmt"

	"github.com/xpusim/xpusim/internal/interfaces"
	"github.com/xpusim/xpusim/internal/matrix"
	"github.com/xpusim/xpusim/internal/timedchan"
	"github.com/xpusim/xpusim/internal/trace"
)

// Config is the full set of parameters a Tile is constructed from.
type Config[E matrix.Scalar] struct {
	// Weights is the tile's resident in_features x out_features weight
	// matrix, immutable for the tile's life.
	Weights *matrix.Matrix[E]
	// Biases is the tile's resident out_features-length bias vector.
	Biases []E

	LinkCap      int
	InFeatures   int
	OutFeatures  int
	BufSize      int
	InitInterval uint64
	NumMatmuls   int
	ThreadID     uint32
	// TrackIDs maps each trace.Track kind to the track UUID this tile's
	// events should be tagged with.
	TrackIDs [trace.NumTracks]uint64
	// ApplyBiasInTile resolves whether biases are added in-tile: when true,
	// Biases is added to every compute's output row; when false, biases
	// are assumed to arrive pre-merged via the up-rank channel (or are
	// unused for this run).
	ApplyBiasInTile bool
}

func (c Config[E]) validate() (ifactor, ofactor, osize int, err error) {
	if c.LinkCap <= 0 || c.InFeatures <= 0 || c.OutFeatures <= 0 || c.BufSize <= 0 {
		return 0, 0, 0, fmt.Errorf("tile: link_cap, in_features, out_features and buf_size must all be positive")
	}
	if c.LinkCap%c.InFeatures != 0 {
		return 0, 0, 0, fmt.Errorf("tile: link_cap %d not divisible by in_features %d", c.LinkCap, c.InFeatures)
	}
	if c.LinkCap%c.OutFeatures != 0 {
		return 0, 0, 0, fmt.Errorf("tile: link_cap %d not divisible by out_features %d", c.LinkCap, c.OutFeatures)
	}
	ifactor = c.LinkCap / c.InFeatures
	ofactor = c.LinkCap / c.OutFeatures
	if (c.BufSize*ifactor)%ofactor != 0 {
		return 0, 0, 0, fmt.Errorf("tile: (buf_size*ifactor) %d not divisible by ofactor %d", c.BufSize*ifactor, ofactor)
	}
	osize = c.BufSize * ifactor / ofactor
	if c.Weights == nil || c.Weights.Rows != c.InFeatures || c.Weights.Cols != c.OutFeatures {
		return 0, 0, 0, fmt.Errorf("tile: weights must be %dx%d", c.InFeatures, c.OutFeatures)
	}
	if c.Biases != nil && len(c.Biases) != c.OutFeatures {
		return 0, 0, 0, fmt.Errorf("tile: biases length %d, want %d", len(c.Biases), c.OutFeatures)
	}
	return ifactor, ofactor, osize, nil
}

// Tile is one weight-stationary mesh node.
type Tile[E matrix.Scalar] struct {
	cfg                     Config[E]
	ifactor, ofactor, osize int

	ibuf1, ibuf2, cbuf, obuf *matrix.Matrix[E]

	rdLeft, rdUp, wrRight, wrDown int
	numDone                       int
	leftClosed, upClosed          bool

	clock timedchan.Clock

	left  *timedchan.Receiver[[]E]
	up    *timedchan.Receiver[[]E]
	right *timedchan.Sender[[]E]
	down  *timedchan.Sender[[]E]

	tracer   *trace.Writer
	observer interfaces.Observer
	logger   interfaces.Logger
}

// New constructs a Tile, validating the derived-size precondition:
// (buf_size*ifactor) mod ofactor == 0. left/up must already have
// AttachReceiver called; right/down must already have AttachSender called.
// tracer, observer and logger may all be nil.
func New[E matrix.Scalar](
	cfg Config[E],
	left, up *timedchan.Receiver[[]E],
	right, down *timedchan.Sender[[]E],
	tracer *trace.Writer,
	observer interfaces.Observer,
	logger interfaces.Logger,
) (*Tile[E], error) {
	ifactor, ofactor, osize, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	return &Tile[E]{
		cfg:      cfg,
		ifactor:  ifactor,
		ofactor:  ofactor,
		osize:    osize,
		ibuf1:    matrix.New[E](cfg.BufSize, cfg.LinkCap),
		ibuf2:    matrix.New[E](cfg.BufSize, cfg.LinkCap),
		cbuf:     matrix.New[E](osize, cfg.LinkCap),
		obuf:     matrix.New[E](osize, cfg.LinkCap),
		left:     left,
		up:       up,
		right:    right,
		down:     down,
		tracer:   tracer,
		observer: observer,
		logger:   logger,
	}, nil
}

// ID identifies this tile for logging and runtime registration.
func (t *Tile[E]) ID() string { return fmt.Sprintf("tile%d", t.cfg.ThreadID) }

// FinalClock returns the tile's local clock once Run has returned.
func (t *Tile[E]) FinalClock() uint64 { return t.clock.Now() }

// Run drives the tile's step loop to completion: read-left, read-up,
// write-right, write-down, compute, in that order, each step, until
// num_done reaches num_matmuls with both output counters drained.
func (t *Tile[E]) Run(ctx context.Context) error {
	defer t.left.Release()
	defer t.up.Release()
	defer t.right.Close()
	defer t.down.Close()
	if t.tracer != nil {
		defer t.tracer.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if t.rdLeft < t.cfg.BufSize {
			if err := t.readLeft(); err != nil {
				return err
			}
		}
		if t.rdUp < t.osize {
			if err := t.readUp(); err != nil {
				return err
			}
		}
		if t.wrRight > 0 {
			done, err := t.writeRight()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
		if t.wrDown > 0 {
			done, err := t.writeDown()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
		if t.rdLeft == t.cfg.BufSize && t.rdUp == t.osize && t.wrRight == 0 && t.wrDown == 0 {
			if err := t.compute(); err != nil {
				return err
			}
		}

		t.clock.Advance(t.cfg.InitInterval)

		if t.numDone == t.cfg.NumMatmuls && t.wrRight == 0 && t.wrDown == 0 {
			t.debugf("ending sim at clock %d", t.clock.Now())
			return nil
		}
	}
}

func (t *Tile[E]) debugf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Debugf("tile %s: "+format, append([]interface{}{t.ID()}, args...)...)
	}
}

func (t *Tile[E]) emit(kind trace.Track, begin, end uint64) {
	if t.tracer != nil {
		if err := t.tracer.EmitSlice(t.cfg.TrackIDs[kind], kind.String(), begin, end); err != nil {
			t.debugf("trace emit failed for %s: %v", kind, err)
		}
	}
	if t.observer != nil {
		t.observer.ObserveSlice(kind.String(), t.cfg.ThreadID, end-begin)
	}
}

func (t *Tile[E]) readLeft() error {
	e, err := t.left.Dequeue(&t.clock)
	if err != nil {
		if errors.Is(err, timedchan.ErrClosed) {
			t.debugf("nothing to read on left")
			if !t.leftClosed {
				t.leftClosed = true
				if t.observer != nil {
					t.observer.ObserveChannelClosed("left")
				}
			}
			return nil
		}
		return fmt.Errorf("tile %s: read-left: %w", t.ID(), err)
	}
	if len(e.Value) != t.cfg.LinkCap {
		return fmt.Errorf("tile %s: read-left: payload length %d, want %d: %w", t.ID(), len(e.Value), t.cfg.LinkCap, matrix.ErrShapeMismatch)
	}
	t.ibuf1.SetRow(t.rdLeft, e.Value)
	putVector[E](e.Value)
	t.rdLeft++
	begin := t.clock.Now()
	t.emit(trace.RdLeft, begin, begin+1)
	return nil
}

func (t *Tile[E]) readUp() error {
	e, err := t.up.Dequeue(&t.clock)
	if err != nil {
		if errors.Is(err, timedchan.ErrClosed) {
			t.debugf("nothing to read on up")
			if !t.upClosed {
				t.upClosed = true
				if t.observer != nil {
					t.observer.ObserveChannelClosed("up")
				}
			}
			return nil
		}
		return fmt.Errorf("tile %s: read-up: %w", t.ID(), err)
	}
	if len(e.Value) != t.cfg.LinkCap {
		return fmt.Errorf("tile %s: read-up: payload length %d, want %d: %w", t.ID(), len(e.Value), t.cfg.LinkCap, matrix.ErrShapeMismatch)
	}
	t.cbuf.SetRow(t.rdUp, e.Value)
	putVector[E](e.Value)
	t.rdUp++
	begin := t.clock.Now()
	t.emit(trace.RdUp, begin, begin+1)
	return nil
}

// writeRight forwards the delayed activation copy. done reports that the
// right collector has gone away and the tile should terminate.
func (t *Tile[E]) writeRight() (done bool, err error) {
	idx := t.cfg.BufSize - t.wrRight
	buf := getVector[E](t.cfg.LinkCap)
	copy(buf, t.ibuf2.Row(idx))

	dispatch := t.clock.Now() + 1
	if err := t.right.Enqueue(&t.clock, dispatch, buf); err != nil {
		if errors.Is(err, timedchan.ErrClosed) {
			t.debugf("right collector gone, ending sim")
			if t.observer != nil {
				t.observer.ObserveChannelClosed("right")
			}
			return true, nil
		}
		return false, fmt.Errorf("tile %s: write-right: %w", t.ID(), err)
	}
	t.wrRight--
	begin := t.clock.Now()
	t.emit(trace.WrRight, begin, begin+1)
	return false, nil
}

// writeDown forwards a new partial-sum row. done reports that the down
// collector has gone away and the tile should terminate.
func (t *Tile[E]) writeDown() (done bool, err error) {
	idx := t.osize - t.wrDown
	buf := getVector[E](t.cfg.LinkCap)
	copy(buf, t.obuf.Row(idx))

	dispatch := t.clock.Now() + 1
	if err := t.down.Enqueue(&t.clock, dispatch, buf); err != nil {
		if errors.Is(err, timedchan.ErrClosed) {
			t.debugf("down collector gone, ending sim")
			if t.observer != nil {
				t.observer.ObserveChannelClosed("down")
			}
			return true, nil
		}
		return false, fmt.Errorf("tile %s: write-down: %w", t.ID(), err)
	}
	t.wrDown--
	begin := t.clock.Now()
	t.emit(trace.WrDown, begin, begin+1)
	return false, nil
}

// compute fires one matmul: out = ibuf1 . weights + cbuf, reshaped back into
// obuf, with ibuf2 snapshotted from ibuf1 for forwarding. The reshape/dot/add
// calls below operate on dimensions New already validated, so an error here
// means the tile's own bookkeeping has drifted, not a bad input.
func (t *Tile[E]) compute() error {
	reshapedIn, err := t.ibuf1.Reshape(t.cfg.BufSize*t.ifactor, t.cfg.InFeatures)
	if err != nil {
		return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
	}
	reshapedC, err := t.cbuf.Reshape(t.cfg.BufSize*t.ifactor, t.cfg.OutFeatures)
	if err != nil {
		return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
	}

	prod, err := reshapedIn.Dot(t.cfg.Weights)
	if err != nil {
		return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
	}
	out, err := prod.Add(reshapedC)
	if err != nil {
		return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
	}
	if t.cfg.ApplyBiasInTile && t.cfg.Biases != nil {
		if err := out.AddBiasRows(t.cfg.Biases); err != nil {
			return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
		}
	}

	reshapedOut, err := out.Reshape(t.osize, t.cfg.LinkCap)
	if err != nil {
		return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
	}
	if err := t.obuf.CopyFrom(reshapedOut); err != nil {
		return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
	}
	if err := t.ibuf2.CopyFrom(t.ibuf1); err != nil {
		return fmt.Errorf("tile %s: compute: %w", t.ID(), err)
	}

	t.wrRight = t.cfg.BufSize
	t.wrDown = t.osize
	t.rdLeft = 0
	t.rdUp = 0

	dur := uint64(t.cfg.BufSize + t.osize - 1)
	begin := t.clock.Now()
	t.clock.Advance(dur)
	t.emit(trace.Gemm, begin, begin+dur+1)
	t.numDone++
	if t.observer != nil {
		t.observer.ObserveMatmul(dur)
	}
	return nil
}
