package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ankittk/agentsync/internal/otel"
)

// subscriberBuffer is the per-client queue; a full queue drops events for that client only.
const subscriberBuffer = 256

// sseEvent is one published payload with its stream id.
type sseEvent struct {
	id   uint64
	data []byte
}

// SSEHub fans published JSON out to /stream subscribers. Delivery is best
// effort: banners, alerts and tones are transient by nature.
type SSEHub struct {
	mu   sync.RWMutex
	subs map[chan sseEvent]struct{}
	seq  atomic.Uint64

	// Keepalive is the comment-ping interval for idle streams.
	Keepalive time.Duration
}

func NewSSEHub() *SSEHub {
	return &SSEHub{subs: make(map[chan sseEvent]struct{}), Keepalive: 30 * time.Second}
}

func (h *SSEHub) Subscribe() chan sseEvent {
	ch := make(chan sseEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	otel.AddSSEConnection()
	return ch
}

func (h *SSEHub) Unsubscribe(ch chan sseEvent) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
		otel.RemoveSSEConnection()
	}
	h.mu.Unlock()
}

// Subscribers returns the number of connected streams.
func (h *SSEHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishJSON implements notify.Publisher.
func (h *SSEHub) PublishJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ev := sseEvent{id: h.seq.Add(1), data: b}
	otel.RecordSSEEvent(context.Background())
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is too slow; prevents global backpressure.
		}
	}
}

func (h *SSEHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := h.Subscribe()
		defer h.Unsubscribe(ch)

		// Initial ping so clients know the stream is live.
		_, _ = fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected"}`)
		flusher.Flush()

		interval := h.Keepalive
		if interval <= 0 {
			interval = 30 * time.Second
		}
		keepalive := time.NewTicker(interval)
		defer keepalive.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_, _ = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.id, ev.data)
				flusher.Flush()
			}
		}
	}
}
