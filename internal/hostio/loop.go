package hostio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Forwarder is the model contract the loop drives; *engine.Handle
// satisfies it.
type Forwarder interface {
	Forward(out, in []float32) error
	Reset()
}

// Source yields input vectors until io.EOF.
type Source interface {
	Next(dst []float32) error
}

// Loop replays a sample source through a model, one control tick per
// sample, and emits every prediction to Sink.
type Loop struct {
	Model   Forwarder
	Outputs Order
	Sink    Sink
	// Stateless resets recurrent state before every sample.
	Stateless bool
	// StopOnError aborts on the first failed forward. Otherwise the failure
	// is emitted as a prediction with Error set and the loop continues,
	// with the model state untouched by the failed tick.
	StopOnError bool
	// Limit caps the number of samples; zero means no cap.
	Limit int64

	Now   func() time.Time
	NewID func() string
}

// Stats summarises a Run.
type Stats struct {
	Samples  int64
	Failed   int64
	Duration time.Duration
}

// Run processes src until it is exhausted, ctx is cancelled or Limit is
// reached. in and out widths come from the source and Outputs.
func (l *Loop) Run(ctx context.Context, src Source, inWidth int) (stats Stats, err error) {
	if l.Model == nil || l.Sink == nil {
		return stats, errors.New("hostio: loop needs a model and a sink")
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}
	newID := l.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	in := make([]float32, inWidth)
	out := make([]float32, len(l.Outputs))
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	for l.Limit == 0 || stats.Samples < l.Limit {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := src.Next(in); err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, err
		}
		if l.Stateless {
			l.Model.Reset()
		}
		p := Prediction{ID: newID(), Seq: stats.Samples, Time: now()}
		stats.Samples++
		if err := l.Model.Forward(out, in); err != nil {
			stats.Failed++
			if l.StopOnError {
				return stats, fmt.Errorf("sample %d: %w", p.Seq, err)
			}
			p.Error = err.Error()
		} else {
			p.Outputs = l.Outputs.Named(out)
		}
		if err := l.Sink.Emit(p); err != nil {
			return stats, fmt.Errorf("emit sample %d: %w", p.Seq, err)
		}
	}
	return stats, nil
}
