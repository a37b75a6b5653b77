// Package permission mediates access to the location capability.
//
// A Gate answers the current grant state and accepts asynchronous requests.
// Each request gets a token; whoever acts as the authority (the web UI, a
// test) resolves the token to granted or denied.
package permission

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome of one permission request.
type Decision int

const (
	Denied Decision = iota
	Granted
)

func (d Decision) String() string {
	if d == Granted {
		return "granted"
	}
	return "denied"
}

// Gate is the location-capability gate.
type Gate interface {
	// Granted reports the current grant state.
	Granted() bool
	// Request asks for the capability. The returned channel yields exactly
	// one Decision and is then closed.
	Request() (uuid.UUID, <-chan Decision)
}

// StaticGate answers with a fixed policy and resolves requests immediately.
type StaticGate struct {
	Allow bool
}

func (g StaticGate) Granted() bool { return g.Allow }

func (g StaticGate) Request() (uuid.UUID, <-chan Decision) {
	ch := make(chan Decision, 1)
	if g.Allow {
		ch <- Granted
	} else {
		ch <- Denied
	}
	close(ch)
	return uuid.New(), ch
}

// PendingRequest is a request awaiting an authority's decision.
type PendingRequest struct {
	ID          uuid.UUID `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Broker keeps requests pending until Resolve is called with the matching
// token. Once any request is granted the gate stays granted for the process
// lifetime, matching how platform permission grants persist.
type Broker struct {
	mu      sync.Mutex
	granted bool
	waiting map[uuid.UUID]pending
}

type pending struct {
	at time.Time
	ch chan Decision
}

func NewBroker() *Broker {
	return &Broker{waiting: make(map[uuid.UUID]pending)}
}

func (b *Broker) Granted() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted
}

func (b *Broker) Request() (uuid.UUID, <-chan Decision) {
	id := uuid.New()
	ch := make(chan Decision, 1)

	b.mu.Lock()
	if b.granted {
		b.mu.Unlock()
		ch <- Granted
		close(ch)
		return id, ch
	}
	b.waiting[id] = pending{at: time.Now().UTC(), ch: ch}
	b.mu.Unlock()
	return id, ch
}

// Pending lists requests awaiting a decision, oldest first.
func (b *Broker) Pending() []PendingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PendingRequest, 0, len(b.waiting))
	for id, p := range b.waiting {
		out = append(out, PendingRequest{ID: id, RequestedAt: p.at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// Resolve answers the request with the given token. Resolving a token twice
// (or an unknown token) is an error; the first decision wins.
func (b *Broker) Resolve(id uuid.UUID, d Decision) error {
	b.mu.Lock()
	p, ok := b.waiting[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("permission: unknown request %s", id)
	}
	delete(b.waiting, id)
	if d == Granted {
		b.granted = true
	}
	b.mu.Unlock()

	p.ch <- d
	close(p.ch)
	return nil
}
