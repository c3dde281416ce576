package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
	webrtcmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/youpy/go-wav"
	"go.uber.org/zap"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
	"github.com/LingByte/LingBridge/pkg/logger"
)

// WAVSource publishes a WAV file as a looping PCMA audio track. It stands in
// for a microphone in demos and tests.
type WAVSource struct {
	track *webrtc.TrackLocalStaticSample
	pcma  []byte

	muted atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWAVSource loads the file up front so format problems surface before the
// call starts.
func NewWAVSource(path string) (*WAVSource, error) {
	pcma, err := loadWAVAsPCMA(path)
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: TargetSampleRate},
		"audio", "lingbridge-audio",
	)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeMediaFailed, err)
	}

	return &WAVSource{track: track, pcma: pcma}, nil
}

func (s *WAVSource) Tracks() []*webrtc.TrackLocalStaticSample {
	return []*webrtc.TrackLocalStaticSample{s.track}
}

// Start paces frames at the nominal frame rate and loops the file until the
// context is cancelled or Stop is called. The source is reusable: after a
// Stop it can be started again for the next call.
func (s *WAVSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	frameDuration := time.Duration(FrameDurationMs) * time.Millisecond
	silence := make([]byte, BytesPerFrame)
	for i := range silence {
		silence[i] = alawSilence
	}

	logger.Info("[WAVSource] Starting playback",
		zap.Int("bytes", len(s.pcma)),
		zap.Int("sampleRate", TargetSampleRate))

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		end := offset + BytesPerFrame
		if end > len(s.pcma) {
			offset, end = 0, BytesPerFrame // loop
		}

		data := s.pcma[offset:end]
		if s.muted.Load() {
			data = silence
		}
		offset = end

		sample := webrtcmedia.Sample{Data: data, Duration: frameDuration}
		if err := s.track.WriteSample(sample); err != nil {
			return apperrors.WrapError(apperrors.ErrCodeMediaFailed, err)
		}
	}
}

// Stop cancels the current run. Idempotent.
func (s *WAVSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *WAVSource) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// SetVideoOff is a no-op, the source carries no video track.
func (s *WAVSource) SetVideoOff(bool) {}

// loadWAVAsPCMA reads a WAV file and converts it to mono 8kHz A-law.
func loadWAVAsPCMA(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeDeviceNotFound, err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeMediaFailed,
			fmt.Errorf("failed to get WAV format: %w", err))
	}
	if format.BitsPerSample != AudioBitDepth {
		return nil, apperrors.NewAppErrorf(apperrors.ErrCodeMediaFailed,
			"unsupported bit depth %d, want %d", format.BitsPerSample, AudioBitDepth)
	}

	var pcm []byte
	buf := make([]byte, 8192)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			pcm = append(pcm, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.WrapError(apperrors.ErrCodeMediaFailed, err)
		}
	}

	if format.NumChannels > 1 {
		pcm = StereoToMono(pcm)
	}
	if int(format.SampleRate) != TargetSampleRate {
		pcm, err = ResamplePCM(pcm, int(format.SampleRate), TargetSampleRate)
		if err != nil {
			return nil, apperrors.WrapError(apperrors.ErrCodeMediaFailed, err)
		}
	}

	return Pcm2pcma(pcm)
}
