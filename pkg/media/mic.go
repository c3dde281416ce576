//go:build cgo

package media

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/pion/webrtc/v3"
	webrtcmedia "github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
	"github.com/LingByte/LingBridge/pkg/logger"
)

const micBufferFrames = 16

// MicSource captures the default microphone and publishes it as a PCMA audio
// track.
type MicSource struct {
	track *webrtc.TrackLocalStaticSample
	muted atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewMicSource() (*MicSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: TargetSampleRate},
		"audio", "lingbridge-audio",
	)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeMediaFailed, err)
	}
	return &MicSource{track: track}, nil
}

func (s *MicSource) Tracks() []*webrtc.TrackLocalStaticSample {
	return []*webrtc.TrackLocalStaticSample{s.track}
}

// Start opens the capture device and pumps encoded frames to the track until
// the context is cancelled or Stop is called. The source is reusable across
// calls.
func (s *MicSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return classifyDeviceErr(err)
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = AudioChannels
	deviceConfig.SampleRate = TargetSampleRate
	deviceConfig.Alsa.NoMMap = 1

	frames := make(chan []byte, micBufferFrames)
	var pending []byte

	onRecv := func(_, input []byte, _ uint32) {
		pcmLen := BytesPerFrame * 2 // 16-bit PCM before companding
		pending = append(pending, input...)
		for len(pending) >= pcmLen {
			frame := make([]byte, pcmLen)
			copy(frame, pending[:pcmLen])
			pending = pending[pcmLen:]
			select {
			case frames <- frame:
			default:
				// 采集过快时丢帧
			}
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return classifyDeviceErr(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return classifyDeviceErr(err)
	}
	defer func() { _ = device.Stop() }()

	logger.Info("[MicSource] Capture started",
		zap.Int("sampleRate", TargetSampleRate),
		zap.Int("channels", AudioChannels))

	frameDuration := time.Duration(FrameDurationMs) * time.Millisecond
	silence := make([]byte, BytesPerFrame)
	for i := range silence {
		silence[i] = alawSilence
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case pcm := <-frames:
			data, err := Pcm2pcma(pcm)
			if err != nil {
				logger.Warn("[MicSource] Encode failed", zap.Error(err))
				continue
			}
			if s.muted.Load() {
				data = silence
			}
			sample := webrtcmedia.Sample{Data: data, Duration: frameDuration}
			if err := s.track.WriteSample(sample); err != nil {
				return apperrors.WrapError(apperrors.ErrCodeMediaFailed, err)
			}
		}
	}
}

// Stop cancels the current capture run. Idempotent.
func (s *MicSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *MicSource) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// SetVideoOff is a no-op, the source carries no video track.
func (s *MicSource) SetVideoOff(bool) {}

// classifyDeviceErr distinguishes missing hardware and OS permission refusals
// from transient failures so callers can avoid retrying terminal ones.
func classifyDeviceErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no device"), strings.Contains(msg, "device type not supported"):
		return apperrors.WrapError(apperrors.ErrCodeDeviceNotFound, err)
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return apperrors.WrapError(apperrors.ErrCodePermissionDenied, err)
	default:
		return apperrors.WrapError(apperrors.ErrCodeMediaFailed, err)
	}
}
