package captions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
	"github.com/LingByte/LingBridge/pkg/logger"
)

const (
	// dedupeWindow is how long an emitted transcript suppresses an
	// identical follow-up. Recognizers often re-deliver the same final
	// transcript in quick succession; re-publishing it would duplicate
	// the caption on the remote overlay.
	dedupeWindow = 3 * time.Second

	// restartDelay paces recognizer restarts after transient failures.
	restartDelay = 1 * time.Second

	// PermissionNotice is published once when the recognizer is denied
	// access and speech captions shut down for the rest of the call.
	PermissionNotice = "Speech captions unavailable: microphone access denied"
)

// Recognizer streams transcripts until the context is cancelled. Revisions of
// the same utterance are sent as separate values.
type Recognizer interface {
	Transcripts(ctx context.Context, out chan<- string) error
}

// SpeechProducer turns a recognizer's raw transcript stream into published
// captions. Each transcript is published immediately; an identical repeat
// within the dedupe window is suppressed. The producer restarts the
// recognizer after transient errors and stops for good on terminal ones.
type SpeechProducer struct {
	rec    Recognizer
	emit   func(text string)
	dedupe time.Duration

	mu          sync.Mutex
	enabled     bool
	lastEmitted string
	timer       *time.Timer
	cancel      context.CancelFunc
	running     bool
}

// NewSpeechProducer wires a recognizer to an emit callback. The producer
// starts disabled; call SetEnabled(true) once the call is active and unmuted.
func NewSpeechProducer(rec Recognizer, emit func(text string)) *SpeechProducer {
	return &SpeechProducer{rec: rec, emit: emit, dedupe: dedupeWindow}
}

// Start runs the recognize loop until ctx is cancelled or Stop is called.
func (p *SpeechProducer) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.run(ctx)
}

func (p *SpeechProducer) run(ctx context.Context) {
	for {
		transcripts := make(chan string, 8)
		done := make(chan error, 1)
		go func() {
			done <- p.rec.Transcripts(ctx, transcripts)
		}()

	recv:
		for {
			select {
			case <-ctx.Done():
				<-done
				return
			case text := <-transcripts:
				p.observe(text)
			case err := <-done:
				if err == nil || ctx.Err() != nil {
					return
				}
				if apperrors.IsTerminal(err) {
					logger.Warn("[Captions] Recognizer failed permanently", zap.Error(err))
					p.emitNotice()
					return
				}
				logger.Warn("[Captions] Recognizer error, restarting", zap.Error(err))
				break recv
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// observe publishes a transcript right away. A transcript identical to the
// last one emitted is dropped; the trailing timer forgets it after the
// dedupe window so the same sentence can be said again later.
func (p *SpeechProducer) observe(text string) {
	if text == "" {
		return
	}

	p.mu.Lock()
	if !p.enabled || text == p.lastEmitted {
		p.mu.Unlock()
		return
	}
	p.lastEmitted = text
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.dedupe, p.forgetLast)
	emit := p.emit
	p.mu.Unlock()

	if emit != nil {
		emit(text)
	}
}

func (p *SpeechProducer) forgetLast() {
	p.mu.Lock()
	p.lastEmitted = ""
	p.timer = nil
	p.mu.Unlock()
}

func (p *SpeechProducer) emitNotice() {
	p.mu.Lock()
	emit := p.emit
	enabled := p.enabled
	p.mu.Unlock()
	if emit != nil && enabled {
		emit(PermissionNotice)
	}
}

// SetEnabled gates caption production. Disabling clears the suppression
// record so an unmute starts fresh.
func (p *SpeechProducer) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	if !enabled {
		p.lastEmitted = ""
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
	}
}

// Stop halts the recognize loop. Idempotent.
func (p *SpeechProducer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.lastEmitted = ""
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
