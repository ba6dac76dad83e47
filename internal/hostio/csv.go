package hostio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVSource reads recorded samples. The header names the columns; they are
// reordered into the feature order, and unknown columns (timestamps, ids,
// logged targets) are skipped. A file whose first row is numeric and exactly
// as wide as the order is read positionally instead.
type CSVSource struct {
	r    *csv.Reader
	cols []int
	line int
	peek []string
}

func NewCSVSource(r io.Reader, order Order) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("hostio: empty sample file")
		}
		return nil, fmt.Errorf("hostio: read header: %w", err)
	}
	s := &CSVSource{r: cr, line: 1}

	if len(header) == len(order) && allNumeric(header) {
		s.cols = make([]int, len(order))
		for i := range s.cols {
			s.cols[i] = i
		}
		s.peek = header
		s.line = 0
		return s, nil
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	s.cols = make([]int, len(order))
	for i, name := range order {
		c, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: column %s not in header", ErrMissingSignal, name)
		}
		s.cols[i] = c
	}
	return s, nil
}

// Width is the number of features each sample yields.
func (s *CSVSource) Width() int { return len(s.cols) }

// Next fills dst with the next sample. It returns io.EOF after the last one.
func (s *CSVSource) Next(dst []float32) error {
	rec := s.peek
	s.peek = nil
	if rec == nil {
		var err error
		rec, err = s.r.Read()
		if err != nil {
			return err
		}
	}
	s.line++
	if len(dst) < len(s.cols) {
		return fmt.Errorf("hostio: sample buffer has %d slots, need %d", len(dst), len(s.cols))
	}
	for i, c := range s.cols {
		if c >= len(rec) {
			return fmt.Errorf("hostio: line %d: missing column %d", s.line, c+1)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 32)
		if err != nil {
			return fmt.Errorf("hostio: line %d column %d: %w", s.line, c+1, err)
		}
		dst[i] = float32(v)
	}
	return nil
}

func allNumeric(rec []string) bool {
	for _, f := range rec {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 32); err != nil {
			return false
		}
	}
	return true
}
