package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"speedo/internal/location"
	"speedo/internal/notify"
	"speedo/internal/permission"
	"speedo/internal/share"
)

type fakeSub struct {
	mu     sync.Mutex
	fn     location.Handler
	closed bool
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) push(f location.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(f)
}

type fakeSource struct {
	mu         sync.Mutex
	cur        *fakeSub
	subscribes int
}

func (s *fakeSource) Subscribe(opts location.Options, fn location.Handler) (location.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.mu.Lock()
		open := !s.cur.closed
		s.cur.mu.Unlock()
		if open {
			return nil, fmt.Errorf("fake source: already subscribed")
		}
	}
	s.cur = &fakeSub{fn: fn}
	s.subscribes++
	return s.cur, nil
}

func (s *fakeSource) push(f location.Fix) {
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	if cur != nil {
		cur.push(f)
	}
}

func (s *fakeSource) subscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes
}

type recordSink struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordSink) SetText(text string) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
}

func (r *recordSink) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func (r *recordSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

type recordTarget struct {
	mu  sync.Mutex
	got []string
}

func (t *recordTarget) Name() string { return "test" }
func (t *recordTarget) Share(ctx context.Context, text string) error {
	t.mu.Lock()
	t.got = append(t.got, text)
	t.mu.Unlock()
	return nil
}

func speedFix(mps float64) location.Fix {
	return location.Fix{Time: time.Now(), SpeedMPS: &mps}
}

type harness struct {
	src    *fakeSource
	sink   *recordSink
	target *recordTarget
	board  *notify.Board
	ctrl   *Controller
}

func newHarness(t *testing.T, gate permission.Gate) *harness {
	t.Helper()
	h := &harness{
		src:    &fakeSource{},
		sink:   &recordSink{},
		target: &recordTarget{},
		board:  notify.NewBoard(10),
	}
	chooser := share.NewChooser("test")
	if err := chooser.Register(h.target); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h.ctrl = New(Config{AppName: "speedo"}, h.src, gate, h.sink, chooser, h.board)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) waitActive(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ctrl.Snapshot().State == "active" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never became active: %+v", h.ctrl.Snapshot())
}

func (h *harness) hasNotice(substr string) bool {
	notices, _ := h.board.Recent(0)
	for _, n := range notices {
		if strings.Contains(n.Text, substr) {
			return true
		}
	}
	return false
}

func TestStart_GrantedSubscribesAndShowsAcquiring(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.src.subscribeCount() != 1 {
		t.Fatalf("subscribes=%d want 1", h.src.subscribeCount())
	}
	if got := h.sink.last(); got != "Speed: Acquiring GPS..." {
		t.Fatalf("display=%q", got)
	}
	if snap := h.ctrl.Snapshot(); snap.State != "active" {
		t.Fatalf("state=%q want active", snap.State)
	}
}

func TestFixWithSpeedDisplaysKmh(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())

	h.src.push(speedFix(10))
	if got := h.sink.last(); got != "Speed: 36 km/h" {
		t.Fatalf("display=%q want Speed: 36 km/h", got)
	}
	if snap := h.ctrl.Snapshot(); snap.Kmh != 36 || !snap.HaveSpeed {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestFixWithoutSpeedShowsAcquiringNotStale(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())

	h.src.push(speedFix(10))
	h.src.push(location.Fix{Time: time.Now()})

	if got := h.sink.last(); got != "Speed: Acquiring GPS..." {
		t.Fatalf("display=%q want acquiring after signal loss", got)
	}
	// The stale 36 must not be shareable either.
	if err := h.ctrl.Share(context.Background(), ""); !errors.Is(err, ErrNoSpeed) {
		t.Fatalf("Share err=%v want ErrNoSpeed", err)
	}
}

func TestShare_FormatsAndRoutes(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())
	h.src.push(speedFix(10))

	if err := h.ctrl.Share(context.Background(), ""); err != nil {
		t.Fatalf("Share: %v", err)
	}
	h.target.mu.Lock()
	defer h.target.mu.Unlock()
	if len(h.target.got) != 1 {
		t.Fatalf("shared %d times want 1", len(h.target.got))
	}
	text := h.target.got[0]
	if !strings.Contains(text, "36 km/h") || !strings.Contains(text, "22 mph") {
		t.Fatalf("share text=%q", text)
	}
	if !strings.Contains(text, "speedo") {
		t.Fatalf("share text missing app name: %q", text)
	}
}

func TestShare_InactiveRefusedWithNotice(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})

	if err := h.ctrl.Share(context.Background(), ""); !errors.Is(err, ErrInactive) {
		t.Fatalf("Share err=%v want ErrInactive", err)
	}
	if !h.hasNotice("start a session first") {
		t.Fatalf("missing notice")
	}
	h.target.mu.Lock()
	defer h.target.mu.Unlock()
	if len(h.target.got) != 0 {
		t.Fatalf("shared while inactive: %v", h.target.got)
	}
}

func TestShare_ZeroSpeedRefused(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())
	h.src.push(speedFix(0))

	if got := h.sink.last(); got != "Speed: 0 km/h" {
		t.Fatalf("display=%q want zero speed shown live", got)
	}
	if err := h.ctrl.Share(context.Background(), ""); !errors.Is(err, ErrNoSpeed) {
		t.Fatalf("Share err=%v want ErrNoSpeed", err)
	}
	if !h.hasNotice("waiting for a speed fix") {
		t.Fatalf("missing notice")
	}
}

func TestStop_ResetsDisplayAndBlocksFurtherUpdates(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())
	h.src.push(speedFix(10))

	h.ctrl.Stop()
	if got := h.sink.last(); got != "Speed: 0 km/h" {
		t.Fatalf("display=%q want Speed: 0 km/h after stop", got)
	}

	before := h.sink.count()
	h.src.push(speedFix(20))
	if h.sink.count() != before {
		t.Fatalf("display updated after stop: %v", h.sink.texts)
	}
	if snap := h.ctrl.Snapshot(); snap.State != "inactive" || snap.Kmh != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestStartStopStart_ResubscribesCleanly(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())
	h.ctrl.Stop()
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if h.src.subscribeCount() != 2 {
		t.Fatalf("subscribes=%d want 2", h.src.subscribeCount())
	}
	// The fake source itself rejects overlapping subscriptions, so reaching
	// here means the first one was released before the second began.
	h.src.push(speedFix(5))
	if got := h.sink.last(); got != "Speed: 18 km/h" {
		t.Fatalf("display=%q", got)
	}
}

func TestStart_IdempotentWhileActive(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("repeat Start: %v", err)
	}
	if h.src.subscribeCount() != 1 {
		t.Fatalf("subscribes=%d want 1", h.src.subscribeCount())
	}
}

func TestStart_DeniedNeverSubscribes(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: false})

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.hasNotice("location permission denied") {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !h.hasNotice("location permission denied") {
		t.Fatalf("missing denial notice")
	}
	if h.src.subscribeCount() != 0 {
		t.Fatalf("subscribed despite denial")
	}
	if snap := h.ctrl.Snapshot(); snap.State != "inactive" {
		t.Fatalf("state=%q want inactive", snap.State)
	}
}

func TestStart_BrokeredGrantResumesStart(t *testing.T) {
	broker := permission.NewBroker()
	h := newHarness(t, broker)

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.src.subscribeCount() != 0 {
		t.Fatalf("subscribed before grant")
	}

	// A second start while the request is pending must not file another one.
	_ = h.ctrl.Start(context.Background())
	pend := broker.Pending()
	if len(pend) != 1 {
		t.Fatalf("pending=%d want 1", len(pend))
	}

	if err := broker.Resolve(pend[0].ID, permission.Granted); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	h.waitActive(t)
	if h.src.subscribeCount() != 1 {
		t.Fatalf("subscribes=%d want 1", h.src.subscribeCount())
	}
}

func TestClose_ForcesInactiveAndRejectsRestart(t *testing.T) {
	h := newHarness(t, permission.StaticGate{Allow: true})
	_ = h.ctrl.Start(context.Background())

	h.ctrl.Close()
	if snap := h.ctrl.Snapshot(); snap.State != "inactive" {
		t.Fatalf("state=%q want inactive after Close", snap.State)
	}
	if got := h.sink.last(); got != "Speed: 0 km/h" {
		t.Fatalf("display=%q", got)
	}
	if err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close err=%v want ErrClosed", err)
	}
}

func TestShareText(t *testing.T) {
	if got := ShareText(36, "speedo"); got != "36 km/h (22 mph) via speedo" {
		t.Fatalf("ShareText=%q", got)
	}
}
