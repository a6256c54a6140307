//go:build !unix

package mmap

import (
	"os"
	"runtime"

	"github.com/hexbee-net/errors"
)

func mapFile(_ *os.File, _ int) ([]byte, error) {
	return nil, errors.Errorf("memory mapping is not supported on %s", runtime.GOOS)
}

func unmapFile([]byte) error {
	return nil
}
