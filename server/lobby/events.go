package lobby

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"tetris/server/metrics"
)

const eventsPing = 10 * time.Second

// Broadcaster fans lobby updates out to Server-Sent Event subscribers.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan string]struct{})}
}

// Subscribe registers a subscriber that first receives init.
func (b *Broadcaster) Subscribe(init string) (<-chan string, func()) {
	ch := make(chan string, 10)
	ch <- init
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	metrics.LobbySubscribers.Inc()
	return ch, func() { b.drop(ch) }
}

func (b *Broadcaster) drop(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
		metrics.LobbySubscribers.Dec()
	}
}

// Broadcast sends msg to every subscriber. Subscribers whose buffer is
// full are considered stale and dropped.
func (b *Broadcaster) Broadcast(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
			delete(b.clients, ch)
			close(ch)
			metrics.LobbySubscribers.Dec()
		}
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeEvents streams updates until the request ends or the subscriber
// is dropped.
func (b *Broadcaster) ServeEvents(w http.ResponseWriter, r *http.Request, init string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// the stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ch, cancel := b.Subscribe(init)
	defer cancel()

	ping := time.NewTicker(eventsPing)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
