package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ductcast/internal/hostio"
	"github.com/samcharles93/ductcast/internal/logger"
)

func runCmd() *cli.Command {
	var (
		inputPath   string
		vector      string
		outputPath  string
		stateless   bool
		stopOnError bool
		limit       int64
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Replay recorded samples (CSV) or a single vector through a checkpoint",
		Flags: append(modelFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "CSV of samples, - for stdin",
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "vector",
				Usage:       "one comma-separated input vector",
				Destination: &vector,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "JSON-lines output file (default stdout)",
				Destination: &outputPath,
			},
			&cli.BoolFlag{
				Name:        "stateless",
				Usage:       "reset recurrent state before every sample",
				Destination: &stateless,
			},
			&cli.BoolFlag{
				Name:        "stop-on-error",
				Usage:       "abort on the first failed forward instead of recording it",
				Destination: &stopOnError,
			},
			&cli.Int64Flag{
				Name:        "limit",
				Usage:       "process at most this many samples (0 = all)",
				Destination: &limit,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)

			if (inputPath == "") == (vector == "") {
				return cli.Exit("error: pass exactly one of --input or --vector", 1)
			}

			h, err := loadHandle(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() {
				if err := h.Close(); err != nil {
					log.Error("close model", "error", err)
				}
			}()

			features, outputs, err := signalOrders(fileConfig, h.Dims())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var src hostio.Source
			if vector != "" {
				v, err := parseVector(vector, len(features))
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: --vector: %v", err), 1)
				}
				src = &oneShot{v: v}
			} else {
				r, closeInput, err := openInput(inputPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: open input: %v", err), 1)
				}
				defer closeInput()
				csvSrc, err := hostio.NewCSVSource(r, features)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				src = csvSrc
			}

			var (
				w       = io.Writer(os.Stdout)
				outFile io.Closer
			)
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: create output: %v", err), 1)
				}
				w, outFile = f, f
			}
			sink := hostio.NewJSONLSink(w)

			loop := &hostio.Loop{
				Model:       h,
				Outputs:     outputs,
				Sink:        sink,
				Stateless:   stateless,
				StopOnError: stopOnError,
				Limit:       limit,
			}
			stats, runErr := loop.Run(ctx, src, len(features))
			if err := finishOutput(sink, outFile); err != nil && runErr == nil {
				runErr = err
			}
			log.Info("run finished",
				"samples", stats.Samples,
				"failed", stats.Failed,
				"duration", stats.Duration,
			)
			if runErr != nil {
				return cli.Exit(fmt.Sprintf("error: %v", runErr), 1)
			}
			return nil
		},
	}
}

// finishOutput flushes buffered predictions and closes the output file, if
// any, reporting the first failure.
func finishOutput(sink *hostio.JSONLSink, out io.Closer) error {
	err := sink.Flush()
	if out != nil {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}
	return err
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func parseVector(s string, width int) ([]float32, error) {
	fields := strings.Split(s, ",")
	if len(fields) != width {
		return nil, fmt.Errorf("got %d values, model takes %d", len(fields), width)
	}
	out := make([]float32, width)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// oneShot is a Source with a single sample.
type oneShot struct {
	v    []float32
	done bool
}

func (o *oneShot) Next(dst []float32) error {
	if o.done {
		return io.EOF
	}
	o.done = true
	copy(dst, o.v)
	return nil
}
