//go:build !unix

package dump

import (
	"errors"
	"os"
)

const mmapSupported = false

var errMmapUnsupported = errors.New("memory mapping not supported on this platform")

func mapFile(_ *os.File, _ int64) ([]byte, error) {
	return nil, errMmapUnsupported
}

func unmapFile(_ []byte) error {
	return nil
}
