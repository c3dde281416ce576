package media

import (
	"context"

	"github.com/pion/webrtc/v3"
)

const (
	// Frame configuration
	FrameDurationMs = 20
	BytesPerFrame   = 160 // 20ms * 8000Hz = 160 samples = 160 bytes (PCMA is 1 byte per sample)
	// Audio configuration
	TargetSampleRate = 8000 // PCMA standard sample rate
	AudioChannels    = 1
	AudioBitDepth    = 16

	// PCMA silence. Writing silence instead of pausing the track keeps the
	// RTP timeline continuous across mute.
	alawSilence = 0xD5
)

// Source produces the local tracks a call publishes. Implementations own
// their capture loop; Start blocks until ctx is cancelled or Stop is called.
type Source interface {
	// Tracks returns the tracks to add to the peer connection. Must be
	// stable for the lifetime of the source.
	Tracks() []*webrtc.TrackLocalStaticSample
	// Start runs the capture loop.
	Start(ctx context.Context) error
	// Stop tears down the source. Idempotent.
	Stop()
	// SetMuted replaces outgoing audio with silence while keeping the
	// track alive.
	SetMuted(muted bool)
	// SetVideoOff suspends outgoing video frames.
	SetVideoOff(off bool)
}

// FrameGrabber returns the latest local video frame as an encoded image.
// Sign detection polls it; a grabber with no frame yet returns ErrNoFrame.
type FrameGrabber interface {
	Grab() ([]byte, error)
}
