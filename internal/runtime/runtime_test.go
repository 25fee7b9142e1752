package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	id       string
	clock    uint64
	err      error
	ran      atomic.Bool
}

func (f *fakeContext) ID() string { return f.id }

func (f *fakeContext) Run(ctx context.Context) error {
	f.ran.Store(true)
	return f.err
}

func (f *fakeContext) FinalClock() uint64 { return f.clock }

func TestInitializeRequiresChildren(t *testing.T) {
	rt := New()
	err := rt.Initialize(Options{})
	assert.Error(t, err)
}

func TestRunDrivesAllContextsAndReportsElapsed(t *testing.T) {
	rt := New()
	a := &fakeContext{id: "a", clock: 10}
	b := &fakeContext{id: "b", clock: 25}
	rt.AddChild(a)
	rt.AddChild(b)

	require.NoError(t, rt.Initialize(Options{RunFlavorInference: func() Flavor { return FlavorParallel }}))

	executed, err := rt.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(25), executed.ElapsedCycles)
	assert.True(t, a.ran.Load())
	assert.True(t, b.ran.Load())
}

func TestRunSurfacesFirstError(t *testing.T) {
	rt := New()
	boom := errors.New("boom")
	rt.AddChild(&fakeContext{id: "a", err: boom})
	rt.AddChild(&fakeContext{id: "b"})

	require.NoError(t, rt.Initialize(Options{}))
	_, err := rt.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, boom)
}

func TestCooperativeFlavorRunsUnderGOMAXPROCS1(t *testing.T) {
	rt := New()
	rt.AddChild(&fakeContext{id: "a"})

	require.NoError(t, rt.Initialize(Options{RunFlavorInference: func() Flavor { return FlavorCooperative }}))
	_, err := rt.Run(context.Background(), Options{})
	require.NoError(t, err)
}

func TestAutoInference(t *testing.T) {
	f := AutoInference()
	assert.Contains(t, []Flavor{FlavorParallel, FlavorCooperative}, f)
}

type panicContext struct {
	id    string
	clock uint64
}

func (p *panicContext) ID() string { return p.id }

func (p *panicContext) Run(ctx context.Context) error {
	panic("boom")
}

func (p *panicContext) FinalClock() uint64 { return p.clock }

// blockingContext waits for the run's context to be canceled, the way a
// context blocked in a timed channel's Enqueue/Dequeue would unblock once
// the errgroup's context is canceled by a sibling's failure.
type blockingContext struct {
	id    string
	clock atomic.Uint64
}

func (b *blockingContext) ID() string { return b.id }

func (b *blockingContext) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingContext) FinalClock() uint64 { return b.clock.Load() }

// TestRunRecoversPanicAndCancelsSiblings checks spec.md §4.2's failure
// rule: a panicking context must surface as an error instead of crashing
// the process, and the remaining contexts must be canceled at their next
// suspension point rather than left to block forever.
func TestRunRecoversPanicAndCancelsSiblings(t *testing.T) {
	rt := New()
	blocker := &blockingContext{id: "blocker"}
	rt.AddChild(&panicContext{id: "panicker"})
	rt.AddChild(blocker)

	require.NoError(t, rt.Initialize(Options{RunFlavorInference: func() Flavor { return FlavorParallel }}))

	_, err := rt.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicker")
	assert.Contains(t, err.Error(), "boom")
}
