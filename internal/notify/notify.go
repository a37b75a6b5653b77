// Package notify keeps a small bounded ring of user-visible notices
// (permission outcomes, share refusals) for the web UI to show.
package notify

import (
	"log"
	"sync"
	"time"
)

type Notice struct {
	AtUTC string `json:"at_utc"`
	Text  string `json:"text"`
}

type Board struct {
	mu      sync.Mutex
	max     int
	notices []Notice
	dropped uint64
}

func NewBoard(max int) *Board {
	if max <= 0 {
		max = 50
	}
	return &Board{max: max}
}

// Push records a notice and mirrors it to the process log.
func (b *Board) Push(text string) {
	if b == nil || text == "" {
		return
	}
	log.Printf("notice: %s", text)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, Notice{
		AtUTC: time.Now().UTC().Format(time.RFC3339),
		Text:  text,
	})
	if len(b.notices) > b.max {
		over := len(b.notices) - b.max
		b.notices = b.notices[over:]
		b.dropped += uint64(over)
	}
}

// Recent returns up to tail notices, newest last, plus how many older ones
// fell off the ring.
func (b *Board) Recent(tail int) (notices []Notice, dropped uint64) {
	if b == nil {
		return nil, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.notices)
	if tail <= 0 || tail > n {
		tail = n
	}
	out := make([]Notice, tail)
	copy(out, b.notices[n-tail:])
	return out, b.dropped
}
