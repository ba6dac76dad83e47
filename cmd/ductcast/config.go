package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ductcast/internal/config"
	"github.com/samcharles93/ductcast/internal/engine"
	"github.com/samcharles93/ductcast/internal/hostio"
	"github.com/samcharles93/ductcast/internal/logger"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

// fileConfig is the parsed config file; zero when there is none.
var fileConfig config.Config

// setup loads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	if configFile != "" {
		fileConfig, err = config.LoadFile(configFile)
	} else {
		fileConfig, err = config.Load(config.Path())
	}
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: config: %v", err), 1)
	}

	if fileConfig.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = fileConfig.LogLevel
	}
	if fileConfig.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = fileConfig.LogFormat
	}
	if debug {
		logLevel = "debug"
	}
	log, err := logger.Build(os.Stderr, logFormat, logLevel)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}

// applyModelConfig fills model flags the user did not set from the config
// file.
func applyModelConfig(c *cli.Command, cfg config.Config) {
	if cfg.Checkpoint != "" && !c.IsSet("checkpoint") {
		checkpointPath = cfg.Checkpoint
	}
	if cfg.Model.Arch != "" && !c.IsSet("arch") {
		archName = cfg.Model.Arch
	}
	if cfg.Model.NumLayers != nil && !c.IsSet("layers") {
		numLayers = int64(*cfg.Model.NumLayers)
	}
	if cfg.Model.InputWidth != nil && !c.IsSet("input-width") {
		inputWidth = int64(*cfg.Model.InputWidth)
	}
	if cfg.Model.HiddenWidth != nil && !c.IsSet("hidden-width") {
		hiddenWidth = int64(*cfg.Model.HiddenWidth)
	}
	if cfg.Model.OutputWidth != nil && !c.IsSet("output-width") {
		outputWidth = int64(*cfg.Model.OutputWidth)
	}
	if cfg.NoMmap != nil && !c.IsSet("no-mmap") {
		noMmap = *cfg.NoMmap
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

func resolveDims() (ckpt.Dims, error) {
	arch, err := ckpt.ParseArch(archName)
	if err != nil {
		return ckpt.Dims{}, err
	}
	d := ckpt.Dims{
		Arch:        arch,
		NumLayers:   int(numLayers),
		InputWidth:  int(inputWidth),
		HiddenWidth: int(hiddenWidth),
		OutputWidth: int(outputWidth),
	}
	return d, d.Validate()
}

// signalOrders names the input and output vectors: configured names first,
// then the vehicle defaults when the widths match, else generic names.
func signalOrders(cfg config.Config, d ckpt.Dims) (hostio.Order, hostio.Order, error) {
	features := hostio.Order(cfg.Features)
	switch {
	case len(features) > 0:
	case d.InputWidth == len(hostio.DefaultFeatures):
		features = hostio.DefaultFeatures
	default:
		features = hostio.Generic("x", d.InputWidth)
	}
	outputs := hostio.Order(cfg.Outputs)
	switch {
	case len(outputs) > 0:
	case d.OutputWidth == len(hostio.DefaultOutputs):
		outputs = hostio.DefaultOutputs
	default:
		outputs = hostio.Generic("y", d.OutputWidth)
	}
	if len(features) != d.InputWidth {
		return nil, nil, fmt.Errorf("%d feature names for input width %d", len(features), d.InputWidth)
	}
	if len(outputs) != d.OutputWidth {
		return nil, nil, fmt.Errorf("%d output names for output width %d", len(outputs), d.OutputWidth)
	}
	if err := features.Validate(); err != nil {
		return nil, nil, err
	}
	return features, outputs, outputs.Validate()
}

// loadHandle resolves dims and loads the checkpoint with the configured
// scaler.
func loadHandle(ctx context.Context) (*engine.Handle, error) {
	if checkpointPath == "" {
		return nil, fmt.Errorf("no checkpoint: pass --checkpoint or set checkpoint in the config file")
	}
	d, err := resolveDims()
	if err != nil {
		return nil, err
	}
	loader := engine.Loader{
		Name:   fileConfig.Model.Name,
		Scaler: fileConfig.ScalerSpec(),
		NoMmap: noMmap,
	}
	return loader.Load(ctx, d, checkpointPath)
}
