// Package timedchan implements the bounded timed channel every context in
// the simulator communicates over: a FIFO of (dispatch_time, value) pairs
// with blocking enqueue/dequeue, exactly-once endpoint attachment, and
// cancellation when either endpoint goes away.
//
// It is built directly on a native Go channel rather than a hand-rolled
// condition-variable queue: a buffered chan already gives FIFO ordering,
// blocking send/receive, and — crucially — the exact "closed but not yet
// drained" contract this simulator needs (a close lets buffered elements
// keep draining, and only the first receive past the last element reports
// closure). The receiver-side Release/recvDone pairing is the one piece
// native channels don't give for free: a sender blocked on a full channel
// must also unblock, with ErrClosed, if the receiving context has already
// returned.
package timedchan

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Enqueue once the receiver has gone away, and by
// Dequeue once the sender has gone away and the backlog is drained.
var ErrClosed = errors.New("timedchan: closed")

// Elem pairs a value with the logical cycle its sender dispatched it at.
type Elem[T any] struct {
	Time  uint64
	Value T
}

type core[T any] struct {
	data     chan Elem[T]
	recvDone chan struct{}
	recvOnce sync.Once

	senderAttached   atomic.Bool
	receiverAttached atomic.Bool

	mu           sync.Mutex // guards dispatch-time monotonicity bookkeeping below
	hasDispatch  bool
	lastDispatch uint64
}

// Sender is the write half of a bounded timed channel.
type Sender[T any] struct {
	c *core[T]
}

// Receiver is the read half of a bounded timed channel.
type Receiver[T any] struct {
	c *core[T]
}

// NewBounded creates a timed channel of capacity k (k >= 1) and returns its
// unattached sender and receiver halves.
func NewBounded[T any](k int) (*Sender[T], *Receiver[T]) {
	if k < 1 {
		panic("timedchan: capacity must be >= 1")
	}
	c := &core[T]{
		data:     make(chan Elem[T], k),
		recvDone: make(chan struct{}),
	}
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// AttachSender marks the sender half attached. Must be called exactly once,
// before the owning context's Run starts; a second call is a usage error.
func (s *Sender[T]) AttachSender() error {
	if !s.c.senderAttached.CompareAndSwap(false, true) {
		return fmt.Errorf("timedchan: sender already attached")
	}
	return nil
}

// AttachReceiver marks the receiver half attached. Must be called exactly
// once, before the owning context's Run starts; a second call is a usage
// error.
func (r *Receiver[T]) AttachReceiver() error {
	if !r.c.receiverAttached.CompareAndSwap(false, true) {
		return fmt.Errorf("timedchan: receiver already attached")
	}
	return nil
}

// SenderAttached reports whether AttachSender has run.
func (s *Sender[T]) SenderAttached() bool { return s.c.senderAttached.Load() }

// ReceiverAttached reports whether AttachReceiver has run.
func (r *Receiver[T]) ReceiverAttached() bool { return r.c.receiverAttached.Load() }

// Enqueue blocks until there is room (or the receiver has gone away),
// appends (dispatch, v) in FIFO order, and advances clock to
// max(clock.Now(), dispatch). dispatch must not precede the sender's clock
// or any prior dispatch time enqueued on this channel.
func (s *Sender[T]) Enqueue(clock *Clock, dispatch uint64, v T) error {
	if dispatch < clock.Now() {
		return fmt.Errorf("timedchan: dispatch time %d precedes sender clock %d", dispatch, clock.Now())
	}
	if err := s.checkMonotonic(dispatch); err != nil {
		return err
	}

	select {
	case s.c.data <- Elem[T]{Time: dispatch, Value: v}:
		clock.AdvanceTo(dispatch)
		return nil
	case <-s.c.recvDone:
		return ErrClosed
	}
}

func (s *Sender[T]) checkMonotonic(dispatch uint64) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.hasDispatch && dispatch < s.c.lastDispatch {
		return fmt.Errorf("timedchan: dispatch time %d is out of order (last was %d)", dispatch, s.c.lastDispatch)
	}
	s.c.lastDispatch = dispatch
	s.c.hasDispatch = true
	return nil
}

// Close marks the channel closed from the sender's side. Elements already
// buffered remain dequeuable; once drained, Dequeue returns ErrClosed. The
// owning context must call this exactly once, when it returns.
func (s *Sender[T]) Close() {
	close(s.c.data)
}

// Dequeue blocks until an element is available (or the sender has closed and
// drained), returns it, and advances clock to max(clock.Now(), elem.Time).
func (r *Receiver[T]) Dequeue(clock *Clock) (Elem[T], error) {
	e, ok := <-r.c.data
	if !ok {
		return Elem[T]{}, ErrClosed
	}
	clock.AdvanceTo(e.Time)
	return e, nil
}

// Release marks the channel closed from the receiver's side: a sender
// currently or later blocked in Enqueue unblocks with ErrClosed. The owning
// context must call this exactly once when it returns, including on an
// early-return path that never drained the channel.
func (r *Receiver[T]) Release() {
	r.c.recvOnce.Do(func() { close(r.c.recvDone) })
}
