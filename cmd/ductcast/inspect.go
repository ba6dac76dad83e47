package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ductcast/pkg/ckpt"
)

type paramReport struct {
	Name   string    `json:"name"`
	Layer  int       `json:"layer"`
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Offset int       `json:"offset"`
	Len    int       `json:"len"`
	Values []float32 `json:"values,omitempty"`
}

type fileReport struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
	Match bool   `json:"size_matches"`
}

type inspectReport struct {
	Arch          string         `json:"arch"`
	NumLayers     int            `json:"num_layers"`
	InputWidth    int            `json:"input_width"`
	HiddenWidth   int            `json:"hidden_width"`
	OutputWidth   int            `json:"output_width"`
	NumParams     int            `json:"num_params"`
	ExpectedBytes int64          `json:"expected_bytes"`
	File          *fileReport    `json:"file,omitempty"`
	Metadata      *ckpt.Metadata `json:"metadata,omitempty"`
	Params        []paramReport  `json:"params"`
}

func inspectCmd() *cli.Command {
	var (
		asJSON bool
		values int64
		filter string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the parameter layout for a model shape and check a checkpoint against it",
		Flags: append(modelFlags(),
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
			&cli.Int64Flag{
				Name:        "values",
				Usage:       "show the first N values of each parameter (needs --checkpoint)",
				Destination: &values,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only list parameters whose name contains this substring",
				Destination: &filter,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			d, err := resolveDims()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			report, err := buildInspectReport(d, checkpointPath, int(values), filter)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printInspectReport(os.Stdout, report)
			if report.File != nil && !report.File.Match {
				return cli.Exit("error: checkpoint size does not match the model shape", 1)
			}
			return nil
		},
	}
}

func buildInspectReport(d ckpt.Dims, path string, values int, filter string) (*inspectReport, error) {
	layout, err := ckpt.Layout(d)
	if err != nil {
		return nil, err
	}
	n, _ := ckpt.ParamCount(d)
	want, _ := ckpt.ExpectedBytes(d)
	report := &inspectReport{
		Arch:          d.Arch.String(),
		NumLayers:     d.NumLayers,
		InputWidth:    d.InputWidth,
		HiddenWidth:   d.HiddenWidth,
		OutputWidth:   d.OutputWidth,
		NumParams:     n,
		ExpectedBytes: want,
	}

	var region *ckpt.Region
	if path != "" {
		st, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		report.File = &fileReport{Path: path, Bytes: st.Size(), Match: st.Size() == want}
		md, err := ckpt.ReadMetadata(ckpt.MetadataPath(path))
		if err != nil {
			return nil, err
		}
		report.Metadata = md
		if values > 0 && report.File.Match {
			region, err = ckpt.OpenWith(path, ckpt.OpenOptions{NoMmap: noMmap})
			if err != nil {
				return nil, err
			}
			defer func() { _ = region.Close() }()
		}
	}

	for _, p := range layout {
		label := paramLabel(p)
		if filter != "" && !strings.Contains(label, filter) {
			continue
		}
		pr := paramReport{Name: label, Layer: p.Layer, Rows: p.Rows, Cols: p.Cols, Offset: p.Offset, Len: p.Len()}
		if region != nil {
			data, err := region.Slice(p.Offset, min(values, p.Len()))
			if err != nil {
				return nil, err
			}
			pr.Values = append([]float32(nil), data...)
		}
		report.Params = append(report.Params, pr)
	}
	return report, nil
}

func paramLabel(p ckpt.Param) string {
	if p.Layer == ckpt.HeadLayer {
		return p.Name
	}
	return fmt.Sprintf("l%d.%s", p.Layer, p.Name)
}

func printInspectReport(w io.Writer, r *inspectReport) {
	fmt.Fprintf(w, "arch:       %s\n", r.Arch)
	fmt.Fprintf(w, "layers:     %d\n", r.NumLayers)
	fmt.Fprintf(w, "widths:     in=%d hidden=%d out=%d\n", r.InputWidth, r.HiddenWidth, r.OutputWidth)
	fmt.Fprintf(w, "params:     %d floats (%d bytes)\n", r.NumParams, r.ExpectedBytes)
	if r.File != nil {
		status := "ok"
		if !r.File.Match {
			status = fmt.Sprintf("MISMATCH (file is %d bytes)", r.File.Bytes)
		}
		fmt.Fprintf(w, "checkpoint: %s %s\n", r.File.Path, status)
	}
	if r.Metadata != nil {
		fmt.Fprintf(w, "metadata:   model_name=%s num_params=%d\n", r.Metadata.ModelName, r.Metadata.NumParams)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSHAPE\tOFFSET\tLEN\tVALUES")
	for _, p := range r.Params {
		vals := ""
		if len(p.Values) > 0 {
			vals = fmt.Sprint(p.Values)
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%d\t%d\t%s\n", p.Name, p.Rows, p.Cols, p.Offset, p.Len, vals)
	}
	_ = tw.Flush()
}
