package captions

import (
	"sync"
	"time"

	"github.com/LingByte/LingBridge/pkg/protocol"
)

// DefaultRecentCount is how many captions the overlay shows at once.
const DefaultRecentCount = 5

// Event is one caption as it is displayed and stored.
type Event struct {
	Text       string               `json:"caption"`
	Kind       protocol.CaptionKind `json:"type"`
	SenderID   string               `json:"sender_id"`
	SenderName string               `json:"sender_name"`
	Timestamp  time.Time            `json:"timestamp"`
}

// History is the append-only caption transcript for one call. Captions from
// both parties merge in arrival order; Clear is the only way to remove them.
type History struct {
	mu     sync.RWMutex
	events []Event
}

func NewHistory() *History {
	return &History{}
}

// Append adds a caption to the end of the transcript.
func (h *History) Append(e Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

// All returns a copy of the full transcript in arrival order.
func (h *History) All() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Recent returns the newest n captions in arrival order. n <= 0 uses the
// overlay default.
func (h *History) Recent(n int) []Event {
	if n <= 0 {
		n = DefaultRecentCount
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	start := len(h.events) - n
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(h.events)-start)
	copy(out, h.events[start:])
	return out
}

// Len returns the transcript length.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Clear drops the whole transcript atomically.
func (h *History) Clear() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}
