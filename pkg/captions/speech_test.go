package captions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

// scriptedRecognizer plays back a fixed transcript sequence, then blocks
// until cancelled (or returns finalErr when set).
type scriptedRecognizer struct {
	transcripts []string
	gap         time.Duration
	finalErr    error

	mu   sync.Mutex
	runs int
}

func (r *scriptedRecognizer) Transcripts(ctx context.Context, out chan<- string) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	for _, text := range r.transcripts {
		select {
		case out <- text:
		case <-ctx.Done():
			return nil
		}
		if r.gap > 0 {
			time.Sleep(r.gap)
		}
	}
	if r.finalErr != nil {
		return r.finalErr
	}
	<-ctx.Done()
	return nil
}

func (r *scriptedRecognizer) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

type captionSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *captionSink) emit(text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
}

func (s *captionSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

func startProducer(t *testing.T, rec Recognizer, sink *captionSink) *SpeechProducer {
	t.Helper()
	p := NewSpeechProducer(rec, sink.emit)
	p.dedupe = 200 * time.Millisecond
	p.SetEnabled(true)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func TestSpeechSuppressesIdenticalWithinWindow(t *testing.T) {
	sink := &captionSink{}
	rec := &scriptedRecognizer{
		transcripts: []string{"hello there", "hello there"},
		gap:         20 * time.Millisecond,
	}
	startProducer(t, rec, sink)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"hello there"}, sink.all())
}

func TestSpeechEmitsEachDifferentTranscript(t *testing.T) {
	sink := &captionSink{}
	rec := &scriptedRecognizer{
		transcripts: []string{"hello there", "how are you"},
		gap:         20 * time.Millisecond, // well inside the dedupe window
	}
	startProducer(t, rec, sink)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"hello there", "how are you"}, sink.all())
}

func TestSpeechRepeatsAfterWindowElapses(t *testing.T) {
	sink := &captionSink{}
	rec := &scriptedRecognizer{
		transcripts: []string{"hello there", "hello there"},
		gap:         300 * time.Millisecond, // past the dedupe window
	}
	startProducer(t, rec, sink)

	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, []string{"hello there", "hello there"}, sink.all())
}

func TestSpeechDisabledDropsTranscripts(t *testing.T) {
	sink := &captionSink{}
	rec := &scriptedRecognizer{transcripts: []string{"should not appear"}}
	p := NewSpeechProducer(rec, sink.emit)
	p.dedupe = 200 * time.Millisecond
	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, sink.all())
}

func TestSpeechDisableClearsSuppressionRecord(t *testing.T) {
	sink := &captionSink{}
	p := NewSpeechProducer(nil, sink.emit)
	p.dedupe = 10 * time.Second
	p.SetEnabled(true)

	p.observe("hello there")
	p.SetEnabled(false)
	p.observe("dropped while muted")
	p.SetEnabled(true)
	p.observe("hello there") // fresh after the mute cycle

	assert.Equal(t, []string{"hello there", "hello there"}, sink.all())
}

func TestSpeechRestartsAfterTransientError(t *testing.T) {
	sink := &captionSink{}
	rec := &scriptedRecognizer{
		finalErr: apperrors.NewAppError(apperrors.ErrCodeRecognizerFailed, "stream reset"),
	}
	startProducer(t, rec, sink)

	// restartDelay is 1s; two runs prove the loop came back.
	time.Sleep(2500 * time.Millisecond)
	assert.GreaterOrEqual(t, rec.runCount(), 2)
}

func TestSpeechStopsPermanentlyOnPermissionDenial(t *testing.T) {
	sink := &captionSink{}
	rec := &scriptedRecognizer{
		finalErr: apperrors.NewAppError(apperrors.ErrCodePermissionDenied, "mic denied"),
	}
	startProducer(t, rec, sink)

	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, 1, rec.runCount())
	assert.Equal(t, []string{PermissionNotice}, sink.all())
}
