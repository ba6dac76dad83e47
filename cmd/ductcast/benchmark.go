package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"slices"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ductcast/internal/hostio"
	"github.com/samcharles93/ductcast/internal/logger"
	"github.com/samcharles93/ductcast/internal/rnn"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

type benchResult struct {
	Iterations  int
	Mean        time.Duration
	P50         time.Duration
	P99         time.Duration
	Max         time.Duration
	AllocsPerOp float64
}

func benchmarkCmd() *cli.Command {
	var (
		warmup     int64
		iterations int64
		synthetic  bool
		seed       int64
	)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Measure forward latency of a checkpoint or a synthetic model",
		Flags: append(modelFlags(),
			&cli.Int64Flag{
				Name:        "warmup",
				Usage:       "untimed forward calls before measuring",
				Value:       100,
				Destination: &warmup,
			},
			&cli.Int64Flag{
				Name:        "iterations",
				Aliases:     []string{"n"},
				Usage:       "timed forward calls",
				Value:       10000,
				Destination: &iterations,
			},
			&cli.BoolFlag{
				Name:        "synthetic",
				Usage:       "use seeded random weights instead of a checkpoint",
				Destination: &synthetic,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       42,
				Usage:       "seed for synthetic weights and inputs",
				Destination: &seed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)
			if iterations <= 0 {
				return cli.Exit("error: --iterations must be positive", 1)
			}

			var (
				model  hostio.Forwarder
				dims   ckpt.Dims
				source string
			)
			loadStart := time.Now()
			if synthetic {
				d, err := resolveDims()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				m, err := rnn.New(d, nil)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				defer m.Close()
				if err := m.Randomize(seed, 0.2); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				model, dims, source = m, d, "synthetic"
			} else {
				h, err := loadHandle(ctx)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
				}
				defer func() { _ = h.Close() }()
				model, dims, source = h, h.Dims(), checkpointPath
			}
			loadDuration := time.Since(loadStart)

			fmt.Println("=== ductcast benchmark ===")
			fmt.Printf("Model:      %s\n", source)
			fmt.Printf("Shape:      %s\n", dims)
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Load:       %s\n", loadDuration.Round(time.Microsecond))
			fmt.Printf("Warmup:     %d\n", warmup)
			fmt.Printf("Iterations: %d\n", iterations)
			fmt.Println()

			res, err := runBenchmark(ctx, model, dims, int(warmup), int(iterations), seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Debug("benchmark finished", "iterations", res.Iterations)

			fmt.Printf("mean:       %s\n", res.Mean)
			fmt.Printf("p50:        %s\n", res.P50)
			fmt.Printf("p99:        %s\n", res.P99)
			fmt.Printf("max:        %s\n", res.Max)
			fmt.Printf("allocs/op:  %.2f\n", res.AllocsPerOp)
			fmt.Printf("forwards/s: %.0f\n", float64(time.Second)/float64(res.Mean))
			return nil
		},
	}
}

func runBenchmark(ctx context.Context, m hostio.Forwarder, d ckpt.Dims, warmup, iterations int, seed int64) (benchResult, error) {
	rng := rand.New(rand.NewSource(seed))
	in := make([]float32, d.InputWidth)
	for i := range in {
		in[i] = rng.Float32()*2 - 1
	}
	out := make([]float32, d.OutputWidth)

	for i := 0; i < warmup; i++ {
		if err := m.Forward(out, in); err != nil {
			return benchResult{}, fmt.Errorf("warmup %d: %w", i, err)
		}
	}

	samples := make([]time.Duration, iterations)
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	var total time.Duration
	for i := range samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return benchResult{}, err
			}
		}
		start := time.Now()
		if err := m.Forward(out, in); err != nil {
			return benchResult{}, fmt.Errorf("iteration %d: %w", i, err)
		}
		samples[i] = time.Since(start)
		total += samples[i]
	}
	runtime.ReadMemStats(&after)

	slices.Sort(samples)
	return benchResult{
		Iterations:  iterations,
		Mean:        total / time.Duration(iterations),
		P50:         samples[iterations/2],
		P99:         samples[min(iterations-1, iterations*99/100)],
		Max:         samples[iterations-1],
		AllocsPerOp: float64(after.Mallocs-before.Mallocs) / float64(iterations),
	}, nil
}
