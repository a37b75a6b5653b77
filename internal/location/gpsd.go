package location

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	gpsdDefaultAddr    = "127.0.0.1:2947"
	gpsdInitialBackoff = 250 * time.Millisecond
	gpsdMaxBackoff     = 10 * time.Second
)

// nextBackoff doubles the reconnect delay, capped at gpsdMaxBackoff.
func nextBackoff(cur time.Duration) time.Duration {
	cur *= 2
	if cur > gpsdMaxBackoff {
		cur = gpsdMaxBackoff
	}
	return cur
}

// GPSDConfig points at a gpsd instance.
type GPSDConfig struct {
	Addr string
}

// GPSD streams fixes from gpsd's JSON watch protocol. TPV reports carry speed
// in m/s directly (scaled mode), so no unit conversion happens here.
type GPSD struct {
	cfg GPSDConfig

	mu     sync.Mutex
	active bool
}

func NewGPSD(cfg GPSDConfig) *GPSD {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = gpsdDefaultAddr
	}
	return &GPSD{cfg: cfg}
}

type gpsdTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`
}

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

func gpsdWatch(conn net.Conn) error {
	// scaled=true yields SI units (m/s) and degrees.
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

// fixFromTPV maps one TPV report to a Fix. Reports without a 2D fix (or with
// no speed field) come through speedless so the caller shows acquisition.
func fixFromTPV(nowUTC time.Time, tpv gpsdTPV) Fix {
	f := Fix{Time: nowUTC}
	if tpv.Lat != nil {
		f.LatDeg = *tpv.Lat
	}
	if tpv.Lon != nil {
		f.LonDeg = *tpv.Lon
	}
	if tpv.Mode != nil && *tpv.Mode >= 2 && tpv.SpeedMS != nil && *tpv.SpeedMS >= 0 {
		v := *tpv.SpeedMS
		f.SpeedMPS = &v
	}
	if tpv.Track != nil {
		v := *tpv.Track
		f.TrackDeg = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
		f.Time = t
	}
	return f
}

func (g *GPSD) Subscribe(opts Options, fn Handler) (Subscription, error) {
	opts = opts.withDefaults()

	g.mu.Lock()
	if g.active {
		g.mu.Unlock()
		return nil, errAlreadySubscribed
	}
	g.active = true
	g.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	var connMu sync.Mutex
	var conn net.Conn

	sub := newSubscriber(opts, fn, func() {
		cancel()
		connMu.Lock()
		if conn != nil {
			_ = conn.Close()
		}
		connMu.Unlock()
		g.mu.Lock()
		g.active = false
		g.mu.Unlock()
	})

	go func() {
		log.Printf("location: gpsd source addr=%s", g.cfg.Addr)
		backoff := gpsdInitialBackoff

		for ctx.Err() == nil {
			c, err := dialGPSD(ctx, g.cfg.Addr)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("location: gpsd dial failed addr=%s: %v", g.cfg.Addr, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = nextBackoff(backoff)
				continue
			}
			backoff = gpsdInitialBackoff

			connMu.Lock()
			conn = c
			connMu.Unlock()

			g.readConn(ctx, c, sub)
			_ = c.Close()
			// Loop and reconnect.
		}
	}()

	return sub, nil
}

func (g *GPSD) readConn(ctx context.Context, conn net.Conn, sub *subscriber) {
	if err := gpsdWatch(conn); err != nil {
		log.Printf("location: gpsd watch failed: %v", err)
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, ok, err := parseGPSDLine(nowFn().UTC(), line)
		if err != nil {
			log.Printf("location: %v", err)
			continue
		}
		if ok {
			sub.deliver(fix)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("location: gpsd read stopped: %v", err)
	}
}

// parseGPSDLine returns ok=false for non-TPV classes (VERSION, SKY, WATCH).
func parseGPSDLine(nowUTC time.Time, line string) (Fix, bool, error) {
	var base struct {
		Class string `json:"class"`
	}
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return Fix{}, false, fmt.Errorf("gpsd json parse failed: %v", err)
	}
	if !strings.EqualFold(strings.TrimSpace(base.Class), "TPV") {
		return Fix{}, false, nil
	}
	var tpv gpsdTPV
	if err := json.Unmarshal([]byte(line), &tpv); err != nil {
		return Fix{}, false, fmt.Errorf("gpsd tpv parse failed: %v", err)
	}
	return fixFromTPV(nowUTC, tpv), true, nil
}
