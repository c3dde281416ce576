package captions

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LingByte/LingBridge/pkg/protocol"
)

func event(text string, kind protocol.CaptionKind) Event {
	return Event{Text: text, Kind: kind, SenderID: "u1", SenderName: "Alice", Timestamp: time.Now()}
}

func TestHistoryAppendOrder(t *testing.T) {
	h := NewHistory()
	h.Append(event("one", protocol.CaptionSpeech))
	h.Append(event("two", protocol.CaptionSign))
	h.Append(event("three", protocol.CaptionSpeech))

	all := h.All()
	assert.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Text)
	assert.Equal(t, "two", all[1].Text)
	assert.Equal(t, "three", all[2].Text)
}

func TestHistoryRecent(t *testing.T) {
	h := NewHistory()
	for i := 1; i <= 8; i++ {
		h.Append(event(fmt.Sprintf("caption %d", i), protocol.CaptionSpeech))
	}

	recent := h.Recent(0) // overlay default
	assert.Len(t, recent, DefaultRecentCount)
	assert.Equal(t, "caption 4", recent[0].Text)
	assert.Equal(t, "caption 8", recent[4].Text)

	assert.Len(t, h.Recent(3), 3)
	assert.Len(t, h.Recent(100), 8)
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory()
	h.Append(event("one", protocol.CaptionSpeech))
	h.Append(event("two", protocol.CaptionSpeech))

	h.Clear()
	assert.Zero(t, h.Len())
	assert.Empty(t, h.All())
	assert.Empty(t, h.Recent(0))
}

func TestHistoryAllReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Append(event("original", protocol.CaptionSpeech))

	all := h.All()
	all[0].Text = "mutated"

	assert.Equal(t, "original", h.All()[0].Text)
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Append(event("x", protocol.CaptionSpeech))
				h.Recent(0)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, h.Len())
}
