package media

import (
	"fmt"

	"github.com/zaf/g711"
)

// Pcm2pcma encodes 16-bit little-endian PCM to G.711 A-law.
func Pcm2pcma(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm data length must be even, got %d", len(pcm))
	}
	return g711.EncodeAlaw(pcm), nil
}

// Pcma2pcm decodes G.711 A-law to 16-bit little-endian PCM.
func Pcma2pcm(alaw []byte) ([]byte, error) {
	return g711.DecodeAlaw(alaw), nil
}
