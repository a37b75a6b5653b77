package web

import (
	"sync/atomic"
	"time"

	"speedo/internal/session"
)

// Status holds the static/service-level half of /api/status; the live half
// comes from the session controller at request time.
type Status struct {
	startUnixNano int64
	source        atomic.Value // string
	appName       atomic.Value // string
	shareTargets  atomic.Value // []string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.appName.Store("speedo")
	s.shareTargets.Store([]string{})
	return s
}

func (s *Status) SetStatic(appName, source string, shareTargets []string) {
	if appName != "" {
		s.appName.Store(appName)
	}
	if source != "" {
		s.source.Store(source)
	}
	if shareTargets != nil {
		s.shareTargets.Store(shareTargets)
	}
}

// StatusSnapshot is the JSON shape of /api/status.
type StatusSnapshot struct {
	Service      string           `json:"service"`
	AppName      string           `json:"app_name"`
	UptimeSec    float64          `json:"uptime_sec"`
	Source       string           `json:"source"`
	ShareTargets []string         `json:"share_targets"`
	Session      session.Snapshot `json:"session"`
}

func (s *Status) Snapshot(nowUTC time.Time, sess session.Snapshot) StatusSnapshot {
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano))
	return StatusSnapshot{
		Service:      "speedo",
		AppName:      s.appName.Load().(string),
		UptimeSec:    nowUTC.Sub(start).Seconds(),
		Source:       s.source.Load().(string),
		ShareTargets: s.shareTargets.Load().([]string),
		Session:      sess,
	}
}
