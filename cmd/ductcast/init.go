package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ductcast/internal/config"
	"github.com/samcharles93/ductcast/internal/logger"
	"github.com/samcharles93/ductcast/internal/rnn"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

func initCmd() *cli.Command {
	var (
		seed        int64
		scale       float64
		name        string
		writeConfig string
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Write a zeroed or seeded-random checkpoint and its metadata sidecar",
		Flags: append(modelFlags(),
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "fill weights from this seed (0 writes zeros)",
				Destination: &seed,
			},
			&cli.Float64Flag{
				Name:        "scale",
				Usage:       "spread of random weights",
				Value:       0.2,
				Destination: &scale,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "model_name recorded in the sidecar",
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "write-config",
				Usage:       "also write a config.yaml describing the checkpoint",
				Destination: &writeConfig,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if checkpointPath == "" {
				return cli.Exit("error: --checkpoint is required", 1)
			}
			d, err := resolveDims()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if name == "" {
				name = fmt.Sprintf("%s-%dx%d", d.Arch, d.NumLayers, d.HiddenWidth)
			}
			if err := writeCheckpoint(checkpointPath, name, d, seed, float32(scale)); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("checkpoint written", "path", checkpointPath, "dims", d.String(), "seed", seed)

			if writeConfig != "" {
				features, outputs, err := signalOrders(fileConfig, d)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				abs, err := filepath.Abs(checkpointPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				cfg := config.Config{
					Model:      config.FromDims(name, d),
					Checkpoint: abs,
					Scaler:     config.Scaler{Kind: "none"},
					Features:   features,
					Outputs:    outputs,
				}
				if err := config.Save(writeConfig, cfg); err != nil {
					return cli.Exit(fmt.Sprintf("error: write config: %v", err), 1)
				}
				log.Info("config written", "path", writeConfig)
			}
			return nil
		},
	}
}

func writeCheckpoint(path, name string, d ckpt.Dims, seed int64, scale float32) error {
	m, err := rnn.New(d, nil)
	if err != nil {
		return err
	}
	defer m.Close()
	if seed != 0 {
		if err := m.Randomize(seed, scale); err != nil {
			return err
		}
	}
	if err := ckpt.WriteFile(path, d, m.Export()); err != nil {
		return err
	}
	md, err := ckpt.NewMetadata(name, d)
	if err != nil {
		return err
	}
	md.Architecture = d.Arch.String()
	return ckpt.WriteMetadata(ckpt.MetadataPath(path), md)
}
