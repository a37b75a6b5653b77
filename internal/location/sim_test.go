package location

import (
	"math"
	"testing"
	"time"
)

func collectFixes(t *testing.T, src Source, opts Options, n int) ([]Fix, Subscription) {
	t.Helper()
	ch := make(chan Fix, n*2)
	sub, err := src.Subscribe(opts, func(f Fix) {
		select {
		case ch <- f:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	out := make([]Fix, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case f := <-ch:
			out = append(out, f)
		case <-deadline:
			t.Fatalf("timed out after %d/%d fixes", len(out), n)
		}
	}
	return out, sub
}

func fastOpts() Options {
	return Options{Interval: time.Millisecond, MinInterval: time.Nanosecond}
}

func TestSim_WarmupThenRamp(t *testing.T) {
	sim := NewSim(SimConfig{CruiseKmh: 36, WarmupFixes: 2})
	fixes, sub := collectFixes(t, sim, fastOpts(), 6)
	defer sub.Close()

	for i := 0; i < 2; i++ {
		if fixes[i].SpeedMPS != nil {
			t.Fatalf("fix[%d].SpeedMPS=%v want nil during warmup", i, *fixes[i].SpeedMPS)
		}
	}
	want := []float64{1, 2, 3, 4}
	for i, w := range want {
		got := fixes[2+i].SpeedMPS
		if got == nil {
			t.Fatalf("fix[%d].SpeedMPS=nil want %v", 2+i, w)
		}
		if *got != w {
			t.Fatalf("fix[%d].SpeedMPS=%v want %v", 2+i, *got, w)
		}
	}
}

func TestSim_RampCapsAtCruise(t *testing.T) {
	sim := NewSim(SimConfig{CruiseKmh: 36, WarmupFixes: 0})
	for n := 0; n < 30; n++ {
		sp := sim.speedAt(n)
		if sp == nil {
			t.Fatalf("speedAt(%d)=nil", n)
		}
		if *sp > 10 {
			t.Fatalf("speedAt(%d)=%v exceeds cruise 10 m/s", n, *sp)
		}
	}
	if sp := sim.speedAt(20); *sp != 10 {
		t.Fatalf("speedAt(20)=%v want cruise 10", *sp)
	}
}

func TestSim_LatitudeAdvanceMatchesSpeed(t *testing.T) {
	sim := NewSim(SimConfig{CruiseKmh: 36, WarmupFixes: 0})
	fixes, sub := collectFixes(t, sim, fastOpts(), 5)
	defer sub.Close()

	// One tick stands in for one second, so the latitude step after fix k
	// must equal fix k's own speed over ~111 km per degree.
	for i := 1; i < len(fixes); i++ {
		want := *fixes[i-1].SpeedMPS / 1000.0 / 111.0
		got := fixes[i].LatDeg - fixes[i-1].LatDeg
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("lat step %d: %v want %v (speed %v m/s)", i, got, want, *fixes[i-1].SpeedMPS)
		}
	}
}

func TestSim_SingleSubscription(t *testing.T) {
	sim := NewSim(SimConfig{})
	sub, err := sim.Subscribe(fastOpts(), func(Fix) {})
	if err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if _, err := sim.Subscribe(fastOpts(), func(Fix) {}); err == nil {
		t.Fatalf("second Subscribe succeeded, want error")
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// After a synchronous close the slot is free again.
	sub2, err := sim.Subscribe(fastOpts(), func(Fix) {})
	if err != nil {
		t.Fatalf("re-Subscribe after Close: %v", err)
	}
	_ = sub2.Close()
}

func TestSubscription_NoDeliveriesAfterClose(t *testing.T) {
	sim := NewSim(SimConfig{WarmupFixes: 0})

	count := 0
	done := make(chan struct{})
	var sub Subscription
	var err error
	sub, err = sim.Subscribe(fastOpts(), func(Fix) {
		count++
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("no fix delivered")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	after := count
	time.Sleep(20 * time.Millisecond)
	if count != after {
		t.Fatalf("handler ran after Close: %d -> %d", after, count)
	}
}
