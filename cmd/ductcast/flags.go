package main

import "github.com/urfave/cli/v3"

var (
	configFile     string
	checkpointPath string
	archName       string
	numLayers      int64
	inputWidth     int64
	hiddenWidth    int64
	outputWidth    int64
	noMmap         bool
	logLevel       string
	logFormat      string
	debug          bool
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"c"},
			Usage:       "path to the flat float32 checkpoint",
			Destination: &checkpointPath,
		},
		&cli.StringFlag{
			Name:        "arch",
			Usage:       "recurrent cell (gru, lstm)",
			Value:       "gru",
			Destination: &archName,
		},
		&cli.Int64Flag{
			Name:        "layers",
			Aliases:     []string{"num-layers"},
			Usage:       "number of recurrent layers",
			Value:       1,
			Destination: &numLayers,
		},
		&cli.Int64Flag{
			Name:        "input-width",
			Usage:       "features per sample",
			Value:       15,
			Destination: &inputWidth,
		},
		&cli.Int64Flag{
			Name:        "hidden-width",
			Usage:       "hidden units per layer",
			Value:       32,
			Destination: &hiddenWidth,
		},
		&cli.Int64Flag{
			Name:        "output-width",
			Usage:       "outputs per sample",
			Value:       4,
			Destination: &outputWidth,
		},
		&cli.BoolFlag{
			Name:        "no-mmap",
			Usage:       "read the checkpoint into memory instead of mapping it",
			Destination: &noMmap,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
