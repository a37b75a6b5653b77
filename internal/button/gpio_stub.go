//go:build !linux || (!arm && !arm64)

package button

import (
	"fmt"
	"time"
)

// Stub implementation for non-Linux and/or non-ARM platforms.
func openButton(pin int, onEdge func(time.Time)) (presser, error) {
	return nil, fmt.Errorf("button: gpio unsupported on this platform")
}
