// Package session owns the tracking session state machine and coordinates
// permission checks, fix delivery, display updates and sharing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"speedo/internal/display"
	"speedo/internal/location"
	"speedo/internal/notify"
	"speedo/internal/permission"
	"speedo/internal/share"
	"speedo/internal/units"
)

// State of the tracking session. Speed readings are only meaningful while
// Active.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

var (
	// ErrInactive is returned when sharing without an active session.
	ErrInactive = errors.New("session: start a session first")
	// ErrNoSpeed is returned when sharing before a positive speed arrived.
	ErrNoSpeed = errors.New("session: waiting for a speed fix")
	// ErrClosed is returned once the controller has been torn down.
	ErrClosed = errors.New("session: controller closed")
)

// Config for the controller.
type Config struct {
	// AppName tags shared text.
	AppName string
	// Options is passed through to the location source on each start.
	Options location.Options
}

// Controller is the single owner of the session/speed pair. All mutation
// happens under its lock, so user actions and fix deliveries are handled as
// discrete, non-overlapping events.
type Controller struct {
	cfg     Config
	src     location.Source
	gate    permission.Gate
	disp    display.Sink
	chooser *share.Chooser
	board   *notify.Board

	mu        sync.Mutex
	state     State
	sub       location.Subscription
	kmh       int
	haveSpeed bool
	text      string
	pending   bool
	closed    bool
}

func New(cfg Config, src location.Source, gate permission.Gate, disp display.Sink, chooser *share.Chooser, board *notify.Board) *Controller {
	if cfg.AppName == "" {
		cfg.AppName = "speedo"
	}
	c := &Controller{
		cfg:     cfg,
		src:     src,
		gate:    gate,
		disp:    disp,
		chooser: chooser,
		board:   board,
	}
	c.mu.Lock()
	c.setTextLocked(display.Kmh(0))
	c.mu.Unlock()
	return c
}

// setTextLocked pushes display text while holding the lock so a stale fix can
// never overwrite the stop/reset text.
func (c *Controller) setTextLocked(text string) {
	c.text = text
	if c.disp != nil {
		c.disp.SetText(text)
	}
}

// Start activates the session. Starting an already Active session is a
// no-op. Without a granted permission it issues one gate request; a granted
// decision resumes the start, a denied one surfaces a notice and leaves the
// session Inactive. The location source is never subscribed before a grant.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Active {
		c.mu.Unlock()
		return nil
	}
	if c.gate != nil && !c.gate.Granted() {
		if c.pending {
			// A request is already in flight; its continuation will
			// finish this start.
			c.mu.Unlock()
			return nil
		}
		c.pending = true
		c.mu.Unlock()
		c.requestPermission(ctx)
		return nil
	}
	err := c.startLocked()
	c.mu.Unlock()
	return err
}

// startLocked subscribes and flips to Active. Caller holds c.mu and has
// already checked permission.
func (c *Controller) startLocked() error {
	sub, err := c.src.Subscribe(c.cfg.Options, c.handleFix)
	if err != nil {
		return fmt.Errorf("session: subscribe: %w", err)
	}
	c.sub = sub
	c.state = Active
	c.kmh = 0
	c.haveSpeed = false
	c.setTextLocked(display.Acquiring())
	log.Printf("session: started")
	return nil
}

func (c *Controller) requestPermission(ctx context.Context) {
	id, ch := c.gate.Request()
	log.Printf("session: requesting location permission id=%s", id)

	go func() {
		var d permission.Decision
		select {
		case got, ok := <-ch:
			if !ok {
				got = permission.Denied
			}
			d = got
		case <-ctx.Done():
			c.mu.Lock()
			c.pending = false
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()

		if d != permission.Granted {
			c.board.Push("location permission denied")
			return
		}
		// Resume the originally intended action.
		if err := c.Start(ctx); err != nil {
			c.board.Push(fmt.Sprintf("start failed after permission grant: %v", err))
		}
	}()
}

// Stop deactivates the session. The subscription is closed synchronously, so
// once Stop returns no further fix can mutate state; the display then reads
// exactly "Speed: 0 km/h". Stop while Inactive is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return
	}
	c.state = Inactive
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	// Close outside the lock: an in-flight delivery may be waiting on c.mu
	// and Close waits for it to finish.
	if sub != nil {
		_ = sub.Close()
	}

	c.mu.Lock()
	if c.state == Inactive {
		// Guard against a concurrent restart between the two critical
		// sections.
		c.kmh = 0
		c.haveSpeed = false
		c.setTextLocked(display.Kmh(0))
	}
	c.mu.Unlock()
	log.Printf("session: stopped")
}

// handleFix runs on the source's delivery goroutine.
func (c *Controller) handleFix(f location.Fix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		// Delivery raced a stop; the session already ended.
		return
	}
	if f.SpeedMPS == nil {
		c.kmh = 0
		c.haveSpeed = false
		c.setTextLocked(display.Acquiring())
		return
	}
	c.kmh = units.KmhFromMps(*f.SpeedMPS)
	c.haveSpeed = true
	c.setTextLocked(display.Kmh(c.kmh))
}

// Share formats the current reading and hands it to the named share target
// (empty name means the configured default). Refusals surface as notices and
// sentinel errors, never as crashes.
func (c *Controller) Share(ctx context.Context, target string) error {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		c.board.Push("start a session first")
		return ErrInactive
	}
	if !c.haveSpeed || c.kmh <= 0 {
		c.mu.Unlock()
		c.board.Push("waiting for a speed fix")
		return ErrNoSpeed
	}
	kmh := c.kmh
	c.mu.Unlock()

	text := ShareText(kmh, c.cfg.AppName)
	if err := c.chooser.Share(ctx, target, text); err != nil {
		c.board.Push(fmt.Sprintf("share failed: %v", err))
		return err
	}
	c.board.Push(fmt.Sprintf("shared: %s", text))
	return nil
}

// ShareText is the exact payload handed to a share target.
func ShareText(kmh int, appName string) string {
	return fmt.Sprintf("%d km/h (%d mph) via %s", kmh, units.MphFromKmh(kmh), appName)
}

// Snapshot is a UI-friendly view of the controller.
type Snapshot struct {
	State       string `json:"state"`
	DisplayText string `json:"display_text"`
	Kmh         int    `json:"kmh"`
	HaveSpeed   bool   `json:"have_speed"`
}

func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{State: Inactive.String()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:       c.state.String(),
		DisplayText: c.text,
		Kmh:         c.kmh,
		HaveSpeed:   c.haveSpeed,
	}
}

// Close forces the session Inactive and releases the subscription. The
// controller cannot be started again afterwards.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.Stop()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
