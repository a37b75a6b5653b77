//go:build !linux

package location

import (
	"fmt"
	"io"
)

func openSerial(path string, baud int) (io.ReadCloser, error) {
	return nil, fmt.Errorf("nmea serial not supported on this platform")
}
