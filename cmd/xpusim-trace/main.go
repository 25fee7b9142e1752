// Command xpusim-trace runs one GEMM mesh scenario and reports its elapsed
// cycle count and trace directory: flag-parsed scalar configuration, a
// configured logger, a single create-and-run call, and a plain-English
// summary on stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/xpusim/xpusim"
	"github.com/xpusim/xpusim/internal/logging"
	"github.com/xpusim/xpusim/internal/matrix"
)

func main() {
	var (
		rows        = flag.Int("rows", 1, "mesh rows")
		cols        = flag.Int("cols", 1, "mesh cols")
		linkCap     = flag.Int("link", xpusim.LinkCapacity, "link capacity (elements per channel transaction)")
		inFeatures  = flag.Int("in", xpusim.InFeatures, "tile input feature count")
		outFeatures = flag.Int("out", xpusim.OutFeatures, "tile output feature count")
		bufSize     = flag.Int("buf", xpusim.BufferCapacity, "buffer size (rows queued before a matmul fires)")
		numMatmuls  = flag.Int("matmuls", xpusim.NumMatmuls, "matmuls per tile before termination")
		traceDir    = flag.String("trace-dir", "artifacts/trace", "trace output directory, empty disables tracing")
		verbose     = flag.Bool("v", false, "verbose output")
		seed        = flag.Int64("seed", 1, "random seed for generated weights and inputs")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)

	cfg := xpusim.DefaultScenarioConfig()
	cfg.Dims = [2]int{*rows, *cols}
	cfg.LinkCapacity = *linkCap
	cfg.InFeatures = *inFeatures
	cfg.OutFeatures = *outFeatures
	cfg.BufferSize = *bufSize
	cfg.NumMatmuls = *numMatmuls
	cfg.TraceDir = *traceDir
	cfg.ApplyBiasInTile = true

	rng := rand.New(rand.NewSource(*seed))
	weights := randomWeights(rng, *inFeatures, *outFeatures)
	biases := randomVector(rng, *outFeatures)
	inputs := randomInputs(rng, cfg)

	logger.Info("starting scenario", "dims", cfg.Dims, "link", cfg.LinkCapacity, "buf", cfg.BufferSize, "matmuls", cfg.NumMatmuls)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("received interrupt, canceling run")
		cancel()
	}()

	result, err := xpusim.RunScenario[float64](ctx, cfg, func(int, int) (*matrix.Matrix[float64], []float64) {
		return weights, biases
	}, inputs, xpusim.Options{Logger: logger})
	if err != nil {
		logger.Error("scenario failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Elapsed cycles: %d\n", result.ElapsedCycles)
	for r, collected := range result.Right {
		fmt.Printf("right[%d]: %d payloads\n", r, len(collected))
	}
	for c, collected := range result.Down {
		fmt.Printf("down[%d]: %d payloads\n", c, len(collected))
	}
	if cfg.TraceDir != "" {
		fmt.Printf("Trace written to %s\n", cfg.TraceDir)
	}
}

func randomWeights(rng *rand.Rand, inFeatures, outFeatures int) *matrix.Matrix[float64] {
	w := matrix.New[float64](inFeatures, outFeatures)
	for i := 0; i < inFeatures; i++ {
		for j := 0; j < outFeatures; j++ {
			w.Set(i, j, rng.Float64())
		}
	}
	return w
}

func randomVector(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()
	}
	return v
}

func randomInputs(rng *rand.Rand, cfg xpusim.ScenarioConfig) xpusim.Inputs[float64] {
	rows, cols := cfg.Dims[0], cfg.Dims[1]
	ifactor := cfg.LinkCapacity / cfg.InFeatures
	ofactor := cfg.LinkCapacity / cfg.OutFeatures
	osize := cfg.BufferSize * ifactor / ofactor

	left := make([][][]float64, rows)
	for r := range left {
		left[r] = randomRows(rng, cfg.BufferSize*cfg.NumMatmuls, cfg.LinkCapacity)
	}
	up := make([][][]float64, cols)
	for c := range up {
		up[c] = randomRows(rng, osize*cfg.NumMatmuls, cfg.LinkCapacity)
	}
	return xpusim.Inputs[float64]{Left: left, Up: up}
}

func randomRows(rng *rand.Rand, n, width int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, width)
		for j := range row {
			row[j] = rng.Float64()
		}
		rows[i] = row
	}
	return rows
}
