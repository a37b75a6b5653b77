package location

import (
	"math"
	"sync"
	"time"
)

// SimConfig controls the simulated source.
type SimConfig struct {
	// CruiseKmh is the speed the profile ramps to and holds.
	CruiseKmh int
	// WarmupFixes is how many initial fixes carry no speed, mimicking
	// signal acquisition.
	WarmupFixes int

	CenterLatDeg float64
	CenterLonDeg float64
}

// Sim is a deterministic fix source for demos and tests: a few speedless
// warmup fixes, then a ramp to cruise speed along a straight northbound
// track.
type Sim struct {
	cfg SimConfig

	mu     sync.Mutex
	active bool
}

func NewSim(cfg SimConfig) *Sim {
	if cfg.CruiseKmh <= 0 {
		cfg.CruiseKmh = 36
	}
	if cfg.WarmupFixes < 0 {
		cfg.WarmupFixes = 0
	}
	if cfg.CenterLatDeg == 0 && cfg.CenterLonDeg == 0 {
		cfg.CenterLatDeg = 52.5200
		cfg.CenterLonDeg = 13.4050
	}
	return &Sim{cfg: cfg}
}

// speedAt returns the profile speed for the nth delivered fix, or nil during
// warmup. The ramp accelerates 1 m/s per fix up to cruise.
func (s *Sim) speedAt(n int) *float64 {
	if n < s.cfg.WarmupFixes {
		return nil
	}
	cruise := float64(s.cfg.CruiseKmh) / 3.6
	v := float64(n - s.cfg.WarmupFixes + 1)
	if v > cruise {
		v = cruise
	}
	return &v
}

func (s *Sim) fixAt(n int, distKm float64, now time.Time) Fix {
	f := Fix{
		Time:   now,
		LatDeg: s.cfg.CenterLatDeg,
		LonDeg: s.cfg.CenterLonDeg,
	}
	f.SpeedMPS = s.speedAt(n)
	if f.SpeedMPS != nil {
		// Northbound track, ~111 km per degree of latitude.
		f.LatDeg += distKm / 111.0
		trk := 0.0
		f.TrackDeg = &trk
	}
	// Keep longitude sane even if someone configures a pole.
	if math.Abs(f.LatDeg) > 89 {
		f.LatDeg = math.Copysign(89, f.LatDeg)
	}
	return f
}

func (s *Sim) Subscribe(opts Options, fn Handler) (Subscription, error) {
	opts = opts.withDefaults()

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, errAlreadySubscribed
	}
	s.active = true
	s.mu.Unlock()

	quit := make(chan struct{})
	var quitOnce sync.Once
	sub := newSubscriber(opts, fn, func() {
		quitOnce.Do(func() { close(quit) })
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	})

	go func() {
		t := time.NewTicker(opts.Interval)
		defer t.Stop()
		n := 0
		distKm := 0.0
		for {
			select {
			case <-quit:
				return
			case now := <-t.C:
				f := s.fixAt(n, distKm, now)
				sub.deliver(f)
				if f.SpeedMPS != nil {
					// Each tick stands in for one second of travel, so the
					// position advance stays consistent with the reported
					// speed through the ramp.
					distKm += *f.SpeedMPS / 1000.0
				}
				n++
			}
		}
	}()

	return sub, nil
}
