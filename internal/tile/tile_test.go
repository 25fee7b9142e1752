package tile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpusim/xpusim/internal/matrix"
	"github.com/xpusim/xpusim/internal/timedchan"
)

func identityWeights(n int) *matrix.Matrix[float64] {
	w := matrix.New[float64](n, n)
	for i := 0; i < n; i++ {
		w.Set(i, i, 1)
	}
	return w
}

func newTestTile(t *testing.T, cfg Config[float64]) (*Tile[float64], *timedchan.Sender[[]float64], *timedchan.Sender[[]float64], *timedchan.Receiver[[]float64], *timedchan.Receiver[[]float64]) {
	t.Helper()
	leftTx, leftRx := timedchan.NewBounded[[]float64](8)
	upTx, upRx := timedchan.NewBounded[[]float64](8)
	rightTx, rightRx := timedchan.NewBounded[[]float64](8)
	downTx, downRx := timedchan.NewBounded[[]float64](8)

	require.NoError(t, leftTx.AttachSender())
	require.NoError(t, leftRx.AttachReceiver())
	require.NoError(t, upTx.AttachSender())
	require.NoError(t, upRx.AttachReceiver())
	require.NoError(t, rightTx.AttachSender())
	require.NoError(t, rightRx.AttachReceiver())
	require.NoError(t, downTx.AttachSender())
	require.NoError(t, downRx.AttachReceiver())

	tl, err := New[float64](cfg, leftRx, upRx, rightTx, downTx, nil, nil, nil)
	require.NoError(t, err)

	return tl, leftTx, upTx, rightRx, downRx
}

func TestNewRejectsBadDivisibility(t *testing.T) {
	cfg := Config[float64]{
		Weights:     identityWeights(4),
		LinkCap:     4,
		InFeatures:  4,
		OutFeatures: 3,
		BufSize:     1,
	}
	_, err := New[float64](cfg, nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSingleTileIdentityMesh(t *testing.T) {
	const link, feat, buf, matmuls = 4, 4, 2, 3
	cfg := Config[float64]{
		Weights:     identityWeights(feat),
		LinkCap:     link,
		InFeatures:  feat,
		OutFeatures: feat,
		BufSize:     buf,
		NumMatmuls:  matmuls,
	}
	tl, leftTx, upTx, rightRx, downRx := newTestTile(t, cfg)

	done := make(chan error, 1)
	go func() { done <- tl.Run(context.Background()) }()

	var clk timedchan.Clock
	totalRows := buf * matmuls
	go func() {
		for r := 0; r < totalRows; r++ {
			row := make([]float64, link)
			for c := range row {
				row[c] = float64(r*link + c)
			}
			_ = leftTx.Enqueue(&clk, clk.Now()+1, row)
		}
		leftTx.Close()
	}()
	go func() {
		// osize == buf for this config (ifactor == ofactor == 1), so the
		// up-rank injection count matches the left-rank one.
		for r := 0; r < totalRows; r++ {
			_ = upTx.Enqueue(&clk, clk.Now()+1, make([]float64, link))
		}
		upTx.Close()
	}()

	var rightClk, downClk timedchan.Clock
	var rightCount, downCount int
	for {
		_, err := rightRx.Dequeue(&rightClk)
		if errors.Is(err, timedchan.ErrClosed) {
			break
		}
		rightCount++
	}
	for {
		e, err := downRx.Dequeue(&downClk)
		if errors.Is(err, timedchan.ErrClosed) {
			break
		}
		downCount++
		// Identity weights, zero cbuf: output row equals input row.
		assert.Len(t, e.Value, link)
	}

	require.NoError(t, <-done)
	assert.Equal(t, buf*matmuls, rightCount)
	assert.Equal(t, buf*matmuls, downCount)
}

func TestZeroMatmulsTerminatesOnFirstClose(t *testing.T) {
	cfg := Config[float64]{
		Weights:     identityWeights(4),
		LinkCap:     4,
		InFeatures:  4,
		OutFeatures: 4,
		BufSize:     1,
		NumMatmuls:  0,
	}
	tl, leftTx, upTx, rightRx, downRx := newTestTile(t, cfg)

	leftTx.Close()
	upTx.Close()

	done := make(chan error, 1)
	go func() { done <- tl.Run(context.Background()) }()

	var rc timedchan.Clock
	_, err := rightRx.Dequeue(&rc)
	assert.ErrorIs(t, err, timedchan.ErrClosed)
	var dc timedchan.Clock
	_, err = downRx.Dequeue(&dc)
	assert.ErrorIs(t, err, timedchan.ErrClosed)

	require.NoError(t, <-done)
}

func TestArithmeticErrorOnBadPayloadLength(t *testing.T) {
	cfg := Config[float64]{
		Weights:     identityWeights(4),
		LinkCap:     4,
		InFeatures:  4,
		OutFeatures: 4,
		BufSize:     1,
		NumMatmuls:  1,
	}
	tl, leftTx, _, _, _ := newTestTile(t, cfg)

	done := make(chan error, 1)
	go func() { done <- tl.Run(context.Background()) }()

	var clk timedchan.Clock
	require.NoError(t, leftTx.Enqueue(&clk, 1, make([]float64, 3)))

	err := <-done
	assert.Error(t, err)
}
