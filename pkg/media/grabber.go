package media

import (
	"os"
	"sync"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

// ErrNoFrame is returned by grabbers that have not produced a frame yet.
var ErrNoFrame = apperrors.NewAppError(apperrors.ErrCodeMediaFailed, "no frame available")

// LatestFrameGrabber hands out whatever frame was most recently set. Capture
// code pushes frames in, sign detection pulls the newest one out.
type LatestFrameGrabber struct {
	mu    sync.RWMutex
	frame []byte
}

func NewLatestFrameGrabber() *LatestFrameGrabber {
	return &LatestFrameGrabber{}
}

// SetFrame stores an encoded frame, replacing the previous one.
func (g *LatestFrameGrabber) SetFrame(frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	g.mu.Lock()
	g.frame = buf
	g.mu.Unlock()
}

func (g *LatestFrameGrabber) Grab() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.frame == nil {
		return nil, ErrNoFrame
	}
	return g.frame, nil
}

// FileFrameGrabber serves a still image from disk on every grab. Demo stand-in
// for a camera.
type FileFrameGrabber struct {
	data []byte
}

func NewFileFrameGrabber(path string) (*FileFrameGrabber, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeDeviceNotFound, err)
	}
	return &FileFrameGrabber{data: data}, nil
}

func (g *FileFrameGrabber) Grab() ([]byte, error) {
	return g.data, nil
}
