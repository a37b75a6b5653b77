// Package display renders the current speed reading.
package display

import (
	"fmt"
	"log"
)

// Sink receives display text updates. Implementations must tolerate being
// called from the location delivery goroutine.
type Sink interface {
	SetText(text string)
}

// Acquiring is shown while the session is active but no speed has arrived.
func Acquiring() string {
	return "Speed: Acquiring GPS..."
}

// Kmh formats a whole km/h reading.
func Kmh(kmh int) string {
	return fmt.Sprintf("Speed: %d km/h", kmh)
}

// Console logs every text update, key=value style.
type Console struct{}

func (Console) SetText(text string) {
	log.Printf("display: %s", text)
}

// Multi fans updates to several sinks in order.
type Multi []Sink

func (m Multi) SetText(text string) {
	for _, s := range m {
		if s != nil {
			s.SetText(text)
		}
	}
}
