package signdetect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/media"
)

// DefaultInterval spaces detection requests. Faster polling mostly buys
// rate-limit responses from the recognizer.
const DefaultInterval = 1200 * time.Millisecond

// Detector is what the producer needs from the recognition service.
type Detector interface {
	Detect(ctx context.Context, frame []byte, roomID, userID string) (Detection, error)
}

// Producer polls the local video for sign language and publishes detected
// symbols as captions. The same symbol is suppressed until a different one
// appears; detection failures are logged and skipped, never surfaced to the
// user.
type Producer struct {
	detector Detector
	grabber  media.FrameGrabber
	emit     func(sign string)
	interval time.Duration

	roomID string
	userID string

	mu       sync.Mutex
	enabled  bool
	lastSign string
	cancel   context.CancelFunc
	// generation invalidates responses that land after a stop
	generation int
}

func NewProducer(detector Detector, grabber media.FrameGrabber, roomID, userID string, emit func(sign string)) *Producer {
	return &Producer{
		detector: detector,
		grabber:  grabber,
		emit:     emit,
		interval: DefaultInterval,
		roomID:   roomID,
		userID:   userID,
	}
}

// SetInterval overrides the polling interval. Must be called before Start.
func (p *Producer) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

// Start begins polling until ctx is cancelled or Stop is called.
func (p *Producer) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	p.generation++
	gen := p.generation
	p.enabled = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.run(ctx, gen)
}

func (p *Producer) run(ctx context.Context, gen int) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.detectOnce(ctx, gen)
		}
	}
}

func (p *Producer) detectOnce(ctx context.Context, gen int) {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if !enabled {
		return
	}

	frame, err := p.grabber.Grab()
	if err != nil {
		return // no frame yet
	}

	detection, err := p.detector.Detect(ctx, frame, p.roomID, p.userID)
	if err != nil {
		logger.Debug("[SignDetect] Detection request failed", zap.Error(err))
		return
	}
	if !detection.Detected || detection.Sign == "" {
		return
	}

	p.mu.Lock()
	if gen != p.generation || !p.enabled {
		p.mu.Unlock()
		return // stale response, producer restarted or stopped
	}
	if detection.Sign == p.lastSign {
		p.mu.Unlock()
		return
	}
	p.lastSign = detection.Sign
	emit := p.emit
	p.mu.Unlock()

	if emit != nil {
		emit(detection.Sign)
	}
}

// SetEnabled gates detection without tearing down the poll loop. Used when
// the local video is switched off mid-call.
func (p *Producer) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	if !enabled {
		p.lastSign = ""
	}
}

// Stop halts polling and invalidates in-flight responses. Idempotent.
func (p *Producer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.enabled = false
	p.lastSign = ""
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
