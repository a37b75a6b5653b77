// Package button turns a GPIO pushbutton into start/stop toggle events.
package button

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Config for the hardware button.
type Config struct {
	Enable bool

	// Pin is BCM GPIO numbering, matching the header silkscreen.
	Pin int
	// Debounce suppresses bounce edges after a registered press.
	Debounce time.Duration
}

// Service watches one GPIO line and invokes the callback on each debounced
// press. It is a no-op when disabled or when the platform has no GPIO.
type Service struct {
	cfg     Config
	onPress func()

	mu     sync.Mutex
	ln     presser
	lastAt time.Time
}

// presser is the platform backend: it delivers falling edges until closed.
type presser interface {
	Close() error
}

var openButtonFn = openButton

func New(cfg Config, onPress func()) *Service {
	if cfg.Pin == 0 {
		cfg.Pin = 17
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	return &Service{cfg: cfg, onPress: onPress}
}

// Start claims the line. Failure to find GPIO is logged, not fatal; the web
// and HTTP controls still work without the button.
func (s *Service) Start() error {
	if s == nil || !s.cfg.Enable {
		return nil
	}
	if s.onPress == nil {
		return fmt.Errorf("button: no press callback")
	}

	ln, err := openButtonFn(s.cfg.Pin, s.press)
	if err != nil {
		log.Printf("button: unavailable pin=%d: %v", s.cfg.Pin, err)
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	log.Printf("button: enabled pin=%d debounce=%s", s.cfg.Pin, s.cfg.Debounce)
	return nil
}

// press is invoked by the backend on each falling edge.
func (s *Service) press(at time.Time) {
	s.mu.Lock()
	if !s.lastAt.IsZero() && at.Sub(s.lastAt) < s.cfg.Debounce {
		s.mu.Unlock()
		return
	}
	s.lastAt = at
	cb := s.onPress
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}
