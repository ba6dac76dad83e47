package hostio

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Prediction is one forward result ready for the host.
type Prediction struct {
	ID      string             `json:"id"`
	Seq     int64              `json:"seq"`
	Time    time.Time          `json:"time"`
	Outputs map[string]float32 `json:"outputs,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Sink receives predictions after forward has returned. Implementations
// write to whatever the host uses: a bus, a file, a socket.
type Sink interface {
	Emit(p Prediction) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Prediction) error

func (f SinkFunc) Emit(p Prediction) error { return f(p) }

// JSONLSink writes one JSON object per line.
type JSONLSink struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

func NewJSONLSink(w io.Writer) *JSONLSink {
	bw := bufio.NewWriter(w)
	return &JSONLSink{w: bw, enc: json.NewEncoder(bw)}
}

func (s *JSONLSink) Emit(p Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(p)
}

// Flush pushes buffered lines to the underlying writer.
func (s *JSONLSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}
