package display

import "sync"

// Broadcaster fans display text out to any listeners (e.g. websocket
// clients). It keeps the most recent value so new subscribers get an
// immediate sample instead of a blank screen.
type Broadcaster struct {
	mu       sync.Mutex
	subs     map[int]chan string
	nextID   int
	last     string
	haveLast bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan string)}
}

// SetText implements Sink.
func (b *Broadcaster) SetText(text string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.last = text
	b.haveLast = true
	for _, ch := range b.subs {
		// Slow listeners drop updates rather than block delivery.
		select {
		case ch <- text:
		default:
		}
	}
	b.mu.Unlock()
}

// Last returns the most recent text, if any update has happened yet.
func (b *Broadcaster) Last() (string, bool) {
	if b == nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.haveLast
}

func (b *Broadcaster) Subscribe(buffer int) (int, <-chan string) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan string, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last, have := b.last, b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}
