package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/stepgate/stepgate/internal/domain"
)

// ─── Live Balance Feed ──────────────────────────────────────────────────────

// BalanceHub fans live balance events out to SSE subscribers so the UI
// can show the budget ticking without polling.
type BalanceHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewBalanceHub creates an empty broadcast hub.
func NewBalanceHub() *BalanceHub {
	return &BalanceHub{clients: make(map[chan []byte]struct{})}
}

// BalanceEvent is a single published balance change.
type BalanceEvent struct {
	Type             string `json:"type"` // "balance", "reset"
	TotalSteps       int64  `json:"total_steps_balance"`
	RemainingMinutes int64  `json:"remaining_minutes"`
	SpentSteps       int64  `json:"spent_steps"`
	DayKey           string `json:"day_key,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}

// Broadcast sends an event to every connected client. Slow clients drop
// the message rather than blocking the publisher.
func (h *BalanceHub) Broadcast(event BalanceEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// BroadcastBalance publishes a plain balance update.
func (h *BalanceHub) BroadcastBalance(b domain.BalanceSummary) {
	h.Broadcast(BalanceEvent{
		Type:             "balance",
		TotalSteps:       b.TotalStepsBalance,
		RemainingMinutes: b.RemainingMinutes,
		SpentSteps:       b.SpentSteps,
		Timestamp:        time.Now().Unix(),
	})
}

// Subscribe registers a new client. Returns the channel and an
// unsubscribe func.
func (h *BalanceHub) Subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (h *BalanceHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleEventsSSE serves the live balance feed via Server-Sent Events.
// GET /api/events
func (h *BalanceHub) HandleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	ch, unsub := h.Subscribe()
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
