// Package mesh builds the 2-D channel wiring a tile mesh runs over: interior
// right/down edges between row-major neighbors, and standalone
// injector/collector channels at the grid's edges. An identity-shift-and-
// mask adjacency construction over an explicit n×n matrix and a direct
// row/column walk are functionally identical for a rectangular grid; this
// package takes the direct walk since it needs no intermediate matrix
// allocation.
package mesh

import (
	"fmt"

	"github.com/xpusim/xpusim/internal/timedchan"
)

// Wiring holds every tile's channel endpoints, indexed in row-major tile
// order (tile i = row i/C, col i%C).
type Wiring[T any] struct {
	Dims [2]int

	// InChans[i] = [left_recv, up_recv]: every tile has exactly two.
	InChans [][2]*timedchan.Receiver[T]
	// OutChans[i] = [right_send, down_send]: every tile has exactly two.
	OutChans [][2]*timedchan.Sender[T]
	// InProds[i] = [left_injector_send, up_injector_send]; non-nil only on
	// the left edge (index 0) and top edge (index 1) respectively.
	InProds [][2]*timedchan.Sender[T]
	// OutCons[i] = [right_collector_recv, down_collector_recv]; non-nil
	// only on the right edge (index 0) and bottom edge (index 1)
	// respectively.
	OutCons [][2]*timedchan.Receiver[T]
}

// Index returns the row-major tile index for (r, c).
func (w *Wiring[T]) Index(r, c int) int { return r*w.Dims[1] + c }

// Build constructs R·C tiles' worth of wiring for dims = [R, C], with every
// internal and edge channel bounded at channelCap. It returns a
// Configuration error for non-positive dimensions or capacity.
func Build[T any](dims [2]int, channelCap int) (*Wiring[T], error) {
	r, c := dims[0], dims[1]
	if r <= 0 || c <= 0 {
		return nil, fmt.Errorf("mesh: dims must both be positive, got [%d, %d]", r, c)
	}
	if channelCap <= 0 {
		return nil, fmt.Errorf("mesh: channelCap must be positive, got %d", channelCap)
	}

	n := r * c
	w := &Wiring[T]{
		Dims:     dims,
		InChans:  make([][2]*timedchan.Receiver[T], n),
		OutChans: make([][2]*timedchan.Sender[T], n),
		InProds:  make([][2]*timedchan.Sender[T], n),
		OutCons:  make([][2]*timedchan.Receiver[T], n),
	}

	// downPending[col] holds the receiver a tile one row down will use as
	// its "up" input, set when the tile directly above it is built.
	downPending := make([]*timedchan.Receiver[T], c)

	for row := 0; row < r; row++ {
		var leftPending *timedchan.Receiver[T]
		for col := 0; col < c; col++ {
			i := w.Index(row, col)

			if col == 0 {
				s, recv := timedchan.NewBounded[T](channelCap)
				w.InProds[i][0] = s
				w.InChans[i][0] = recv
			} else {
				w.InChans[i][0] = leftPending
			}

			if row == 0 {
				s, recv := timedchan.NewBounded[T](channelCap)
				w.InProds[i][1] = s
				w.InChans[i][1] = recv
			} else {
				w.InChans[i][1] = downPending[col]
			}

			if col == c-1 {
				s, recv := timedchan.NewBounded[T](channelCap)
				w.OutChans[i][0] = s
				w.OutCons[i][0] = recv
			} else {
				s, recv := timedchan.NewBounded[T](channelCap)
				w.OutChans[i][0] = s
				leftPending = recv
			}

			if row == r-1 {
				s, recv := timedchan.NewBounded[T](channelCap)
				w.OutChans[i][1] = s
				w.OutCons[i][1] = recv
			} else {
				s, recv := timedchan.NewBounded[T](channelCap)
				w.OutChans[i][1] = s
				downPending[col] = recv
			}
		}
	}

	if err := w.validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// validate checks the post-build invariants: every tile holds exactly two
// receivers and two senders, and the edge-endpoint producer/collector
// counts sum to 2R + 2C across the two axes.
func (w *Wiring[T]) validate() error {
	r, c := w.Dims[0], w.Dims[1]
	n := r * c

	if len(w.InChans) != n || len(w.OutChans) != n {
		return fmt.Errorf("mesh: expected %d tiles, got %d in-chans / %d out-chans", n, len(w.InChans), len(w.OutChans))
	}

	var prodCount, consCount int
	for i := 0; i < n; i++ {
		if w.InChans[i][0] == nil || w.InChans[i][1] == nil {
			return fmt.Errorf("mesh: tile %d missing a receiver endpoint", i)
		}
		if w.OutChans[i][0] == nil || w.OutChans[i][1] == nil {
			return fmt.Errorf("mesh: tile %d missing a sender endpoint", i)
		}
		for _, s := range w.InProds[i] {
			if s != nil {
				prodCount++
			}
		}
		for _, rv := range w.OutCons[i] {
			if rv != nil {
				consCount++
			}
		}
	}

	// Each row has one left injector and one right collector, each column
	// one top injector and one bottom collector: R + C of each kind.
	if want := r + c; prodCount != want || consCount != want {
		return fmt.Errorf("mesh: expected %d producer and %d collector endpoints, got %d and %d", want, want, prodCount, consCount)
	}
	return nil
}
