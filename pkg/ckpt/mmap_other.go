//go:build !unix

package ckpt

import (
	"errors"
	"os"
)

func mmapFile(_ *os.File, _ int) ([]byte, error) {
	return nil, errors.New("mmap not supported on this platform")
}

func munmap(_ []byte) error {
	return nil
}
