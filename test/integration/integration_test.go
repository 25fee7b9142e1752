//go:build integration

// Package integration holds the larger, slower scenario tests: a 10x10
// mesh checked against the block-tiled reference computation, a
// backpressure comparison under a tight channel capacity, and a
// deadlock-free-drain stress test across a mesh whose edges close at
// different times.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpusim/xpusim"
	"github.com/xpusim/xpusim/internal/matrix"
	"github.com/xpusim/xpusim/internal/refcompute"
)

func sequentialWeights(n int) *matrix.Matrix[float64] {
	w := matrix.New[float64](n, n)
	k := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w.Set(i, j, float64(k))
			k++
		}
	}
	return w
}

func sequentialRows(n, width int) [][]float64 {
	rows := make([][]float64, n)
	for r := range rows {
		row := make([]float64, width)
		for c := range row {
			row[c] = float64(r*width + c)
		}
		rows[r] = row
	}
	return rows
}

func zeroRows(n, width int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, width)
	}
	return rows
}

// TestTenByTenMeshIdenticalWeightsMatchesReference is spec scenario 2: a
// 10x10 mesh where every tile shares the same weights, zero up-rank
// injections, and every mesh row injecting the same activations at its
// left edge. Each bottom-edge collector at column c should observe row r
// of X_tiled . W_mesh for each input row r.
func TestTenByTenMeshIdenticalWeightsMatchesReference(t *testing.T) {
	const rows, cols = 10, 10
	const link, feat, buf, matmuls = 4, 4, 2, 3
	totalRows := buf * matmuls

	cfg := xpusim.DefaultScenarioConfig()
	cfg.LinkCapacity, cfg.InFeatures, cfg.OutFeatures = link, feat, feat
	cfg.BufferSize, cfg.NumMatmuls = buf, matmuls
	cfg.Dims = [2]int{rows, cols}
	cfg.ApplyBiasInTile = false

	w := sequentialWeights(feat)
	x := sequentialRows(totalRows, feat)

	left := make([][][]float64, rows)
	for r := range left {
		left[r] = x
	}
	up := make([][][]float64, cols)
	for c := range up {
		up[c] = zeroRows(totalRows, feat)
	}
	inputs := xpusim.Inputs[float64]{Left: left, Up: up}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := xpusim.RunScenario[float64](ctx, cfg, func(int, int) (*matrix.Matrix[float64], []float64) {
		return w, nil
	}, inputs, xpusim.Options{})
	require.NoError(t, err)

	xMat, err := matrix.FromRowMajor[float64](totalRows, feat, flatten(x))
	require.NoError(t, err)
	xTiled := refcompute.RowTileInputs[float64](xMat, rows)
	wMesh := refcompute.BlockTileWeights[float64](w, rows, cols)
	want, err := refcompute.Reference[float64](xTiled, wMesh, nil)
	require.NoError(t, err)

	for c := 0; c < cols; c++ {
		require.Len(t, result.Down[c], totalRows, "column %d", c)
		for r := 0; r < totalRows; r++ {
			assert.Equal(t, want.Row(r)[c*feat:(c+1)*feat], result.Down[c][r], "col %d row %d", c, r)
		}
	}
}

// TestBackpressureDelaysDownstreamTile is spec scenario 4: bounding every
// channel at capacity 1 must serialize a tile's output with its neighbor's
// intake, so a tight mesh takes at least as long overall as the same mesh
// with room to buffer ahead.
func TestBackpressureDelaysDownstreamTile(t *testing.T) {
	const link, feat, buf, matmuls = 4, 4, 2, 4
	totalRows := buf * matmuls

	run := func(channelCap int) uint64 {
		cfg := xpusim.DefaultScenarioConfig()
		cfg.LinkCapacity, cfg.InFeatures, cfg.OutFeatures = link, feat, feat
		cfg.BufferSize, cfg.NumMatmuls = buf, matmuls
		cfg.Dims = [2]int{1, 2}
		cfg.ApplyBiasInTile = false
		cfg.ChannelCapacity = channelCap

		weights := identityWeights(feat)
		inputs := xpusim.Inputs[float64]{
			Left: [][][]float64{sequentialRows(totalRows, link)},
			Up:   [][][]float64{zeroRows(totalRows, link), zeroRows(totalRows, link)},
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := xpusim.RunScenario[float64](ctx, cfg, func(int, int) (*matrix.Matrix[float64], []float64) {
			return weights, nil
		}, inputs, xpusim.Options{})
		require.NoError(t, err)
		require.Len(t, result.Down[1], totalRows)
		return result.ElapsedCycles
	}

	tightened := run(1)
	slack := run(totalRows)
	assert.GreaterOrEqual(t, tightened, slack, "a capacity-1 mesh must not finish faster than a slack one")
}

// TestDeadlockFreeDrainAcrossAsymmetricEdges is spec scenario 5: a 2x2 mesh
// whose four edges carry different-length input sequences, and whose
// num_matmuls bound is reached well before the longest edge is exhausted,
// must still drain every context and every collector without hanging.
func TestDeadlockFreeDrainAcrossAsymmetricEdges(t *testing.T) {
	const link, feat, buf, matmuls = 4, 4, 2, 2

	cfg := xpusim.DefaultScenarioConfig()
	cfg.LinkCapacity, cfg.InFeatures, cfg.OutFeatures = link, feat, feat
	cfg.BufferSize, cfg.NumMatmuls = buf, matmuls
	cfg.Dims = [2]int{2, 2}
	cfg.ApplyBiasInTile = false

	weights := identityWeights(feat)
	inputs := xpusim.Inputs[float64]{
		Left: [][][]float64{
			sequentialRows(buf*matmuls+6, link),
			sequentialRows(buf*matmuls, link),
		},
		Up: [][][]float64{
			zeroRows(buf*matmuls, link),
			zeroRows(buf*matmuls+4, link),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := xpusim.RunScenario[float64](ctx, cfg, func(int, int) (*matrix.Matrix[float64], []float64) {
		return weights, nil
	}, inputs, xpusim.Options{})
	require.NoError(t, err, "the mesh must drain instead of deadlocking")

	for r, collected := range result.Right {
		assert.Len(t, collected, buf*matmuls, "right collector %d", r)
	}
	for c, collected := range result.Down {
		assert.Len(t, collected, buf*matmuls, "down collector %d", c)
	}
}

func identityWeights(n int) *matrix.Matrix[float64] {
	w := matrix.New[float64](n, n)
	for i := 0; i < n; i++ {
		w.Set(i, i, 1)
	}
	return w
}

func flatten(rows [][]float64) []float64 {
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
