// Package actor implements the finite-source and drain-only contexts that
// sit at the edges of a mesh: Producer injects a payload sequence at a
// start delay, Consumer drains and counts, Checker drains against a
// reference sequence.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/xpusim/xpusim/internal/timedchan"
)

// Producer enqueues a finite slice of payloads onto its output sender, each
// at a fresh dispatch time, after an initial start delay.
type Producer[T any] struct {
	id        string
	values    []T
	out       *timedchan.Sender[T]
	clock     timedchan.Clock
	initDelay uint64
	started   atomic.Bool
}

// NewProducer creates a Producer over out, emitting each of values in order
// after initDelay cycles of initial slack. out must already have
// AttachSender called on it.
func NewProducer[T any](id string, values []T, out *timedchan.Sender[T], initDelay uint64) *Producer[T] {
	return &Producer[T]{id: id, values: values, out: out, initDelay: initDelay}
}

func (p *Producer[T]) ID() string { return p.id }

// FinalClock returns the producer's local clock once Run has returned.
func (p *Producer[T]) FinalClock() uint64 { return p.clock.Now() }

// Run enqueues every value in order, then closes its sender. Calling Run a
// second time on the same Producer is a usage error.
func (p *Producer[T]) Run(_ context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("actor: producer %s: run called twice", p.id)
	}

	p.clock.Advance(p.initDelay)
	defer p.out.Close()

	for _, v := range p.values {
		dispatch := p.clock.Now() + 1
		if err := p.out.Enqueue(&p.clock, dispatch, v); err != nil {
			if errors.Is(err, timedchan.ErrClosed) {
				return nil
			}
			return fmt.Errorf("actor: producer %s: %w", p.id, err)
		}
		p.clock.Advance(1)
	}
	return nil
}

// Consumer drains its input receiver until closed, counting drains and
// advancing its clock by one cycle every capacity elements (a sink-latency
// model).
type Consumer[T any] struct {
	id       string
	capacity uint64
	in       *timedchan.Receiver[T]
	clock    timedchan.Clock
	count    uint64

	// Collected accumulates every drained value in arrival order, for
	// scenarios that need to inspect a collector's output against a
	// reference computation.
	Collected []T
}

// NewConsumer creates a Consumer over in with the given sink capacity. in
// must already have AttachReceiver called on it.
func NewConsumer[T any](id string, capacity uint64, in *timedchan.Receiver[T]) *Consumer[T] {
	return &Consumer[T]{id: id, capacity: capacity, in: in}
}

func (c *Consumer[T]) ID() string { return c.id }

// FinalClock returns the consumer's local clock once Run has returned.
func (c *Consumer[T]) FinalClock() uint64 { return c.clock.Now() }

// Run drains c.in until it reports Closed.
func (c *Consumer[T]) Run(_ context.Context) error {
	defer c.in.Release()
	for {
		e, err := c.in.Dequeue(&c.clock)
		if err != nil {
			if errors.Is(err, timedchan.ErrClosed) {
				return nil
			}
			return fmt.Errorf("actor: consumer %s: %w", c.id, err)
		}
		c.Collected = append(c.Collected, e.Value)
		c.count++
		if c.capacity > 0 && c.count == c.capacity {
			c.clock.Advance(1)
			c.count = 0
		}
	}
}

// Equal is a caller-supplied equality predicate over payload type T.
type Equal[T any] func(a, b T) bool

// Checker drains its input receiver in lockstep with a reference sequence,
// failing the scenario on the first mismatch.
type Checker[T any] struct {
	id        string
	in        *timedchan.Receiver[T]
	clock     timedchan.Clock
	reference []T
	equal     Equal[T]
	idx       int
}

// NewChecker creates a Checker over in that compares each drained value
// against reference, in order, using equal.
func NewChecker[T any](id string, in *timedchan.Receiver[T], reference []T, equal Equal[T]) *Checker[T] {
	return &Checker[T]{id: id, in: in, reference: reference, equal: equal}
}

func (c *Checker[T]) ID() string { return c.id }

// FinalClock returns the checker's local clock once Run has returned.
func (c *Checker[T]) FinalClock() uint64 { return c.clock.Now() }

// Run drains c.in, comparing each value against the next reference element.
// It returns an error on the first mismatch or on receiving more payloads
// than the reference holds.
func (c *Checker[T]) Run(_ context.Context) error {
	defer c.in.Release()
	for {
		e, err := c.in.Dequeue(&c.clock)
		if err != nil {
			if errors.Is(err, timedchan.ErrClosed) {
				return nil
			}
			return fmt.Errorf("actor: checker %s: %w", c.id, err)
		}
		if c.idx >= len(c.reference) {
			return fmt.Errorf("actor: checker %s: unexpected payload at index %d beyond reference length %d", c.id, c.idx, len(c.reference))
		}
		if !c.equal(e.Value, c.reference[c.idx]) {
			return fmt.Errorf("actor: checker %s: mismatch at index %d: got %v want %v", c.id, c.idx, e.Value, c.reference[c.idx])
		}
		c.idx++
	}
}
