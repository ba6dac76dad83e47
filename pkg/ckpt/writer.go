package ckpt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Write encodes params as little-endian float32 values.
func Write(w io.Writer, params []float32) error {
	bw := bufio.NewWriter(w)
	var buf [4]byte
	for _, v := range params {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes a checkpoint for d. params must hold exactly
// ParamCount(d) values in layout order.
func WriteFile(path string, d Dims, params []float32) error {
	want, err := ParamCount(d)
	if err != nil {
		return err
	}
	if len(params) != want {
		return fmt.Errorf("%w: have %d params, %s needs %d", ErrSizeMismatch, len(params), d, want)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, params); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
