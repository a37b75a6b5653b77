// Package location defines the fix source contract and the concrete sources
// (gpsd, NMEA serial, simulator) that feed speed tracking.
package location

import (
	"fmt"
	"sync"
	"time"
)

var nowFn = time.Now

// Fix is a single position/velocity sample from a source.
//
// SpeedMPS is nil when the source produced a position (or a keepalive) without
// a usable ground speed; callers must treat that as "acquiring", not as zero.
type Fix struct {
	Time   time.Time
	LatDeg float64
	LonDeg float64

	SpeedMPS *float64
	TrackDeg *float64
}

// Accuracy selects how aggressively a source should chase fix quality.
type Accuracy int

const (
	AccuracyHighest Accuracy = iota
	AccuracyBalanced
)

// Options controls subscription cadence.
type Options struct {
	Accuracy Accuracy

	// Interval is the nominal cadence fixes are produced at.
	Interval time.Duration
	// MinInterval is the floor between two deliveries to the handler.
	MinInterval time.Duration

	// WaitForFix delays the first delivery until the source has a usable
	// position. Off by default: acquisition progress is itself displayed.
	WaitForFix bool
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.MinInterval <= 0 {
		o.MinInterval = 1 * time.Second
	}
	if o.MinInterval > o.Interval {
		o.MinInterval = o.Interval
	}
	return o
}

// Handler receives fixes. It runs on the source's delivery goroutine and must
// not block for long.
type Handler func(Fix)

// Source produces fixes for at most one subscriber at a time.
type Source interface {
	Subscribe(opts Options, fn Handler) (Subscription, error)
}

// Subscription is a scoped registration. Close is synchronous: once it
// returns, the handler will not be invoked again.
type Subscription interface {
	Close() error
}

// subscriber serializes deliveries against Close so sources get the
// synchronous-unsubscribe guarantee for free.
type subscriber struct {
	mu          sync.Mutex
	fn          Handler
	minInterval time.Duration
	waitForFix  bool

	closed   bool
	lastSent time.Time
	onClose  func()
}

func newSubscriber(opts Options, fn Handler, onClose func()) *subscriber {
	return &subscriber{
		fn:          fn,
		minInterval: opts.MinInterval,
		waitForFix:  opts.WaitForFix,
		onClose:     onClose,
	}
}

// deliver hands a fix to the handler unless the subscription is closed or the
// fix arrives inside the minimum interval. The handler runs under the lock,
// which is what makes Close synchronous.
func (s *subscriber) deliver(f Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.waitForFix && f.SpeedMPS == nil {
		return
	}
	now := nowFn()
	if !s.lastSent.IsZero() && now.Sub(s.lastSent) < s.minInterval {
		return
	}
	s.lastSent = now
	s.fn(f)
}

func (s *subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

var errAlreadySubscribed = fmt.Errorf("location: source already has an active subscription")
