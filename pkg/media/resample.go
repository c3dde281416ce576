package media

import "fmt"

// ResamplePCM converts 16-bit mono PCM between sample rates using linear
// interpolation. Good enough for speech; callers that need better fidelity
// should resample upstream.
func ResamplePCM(data []byte, sourceRate, targetRate int) ([]byte, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d -> %d", sourceRate, targetRate)
	}
	if sourceRate == targetRate {
		return data, nil
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm data length must be even, got %d", len(data))
	}

	srcCount := len(data) / 2
	if srcCount == 0 {
		return []byte{}, nil
	}

	src := make([]int16, srcCount)
	for i := 0; i < srcCount; i++ {
		src[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}

	ratio := float64(sourceRate) / float64(targetRate)
	dstCount := int(float64(srcCount) / ratio)
	if dstCount == 0 {
		dstCount = 1
	}

	out := make([]byte, dstCount*2)
	for i := 0; i < dstCount; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= srcCount-1 {
			idx = srcCount - 1
		}

		sample := src[idx]
		if idx < srcCount-1 {
			frac := pos - float64(idx)
			sample = int16(float64(src[idx])*(1-frac) + float64(src[idx+1])*frac)
		}

		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out, nil
}

// StereoToMono averages the two channels of 16-bit interleaved stereo PCM.
func StereoToMono(data []byte) []byte {
	sampleCount := len(data) / 4
	out := make([]byte, sampleCount*2)

	for i := 0; i < sampleCount; i++ {
		left := int16(data[4*i]) | int16(data[4*i+1])<<8
		right := int16(data[4*i+2]) | int16(data[4*i+3])<<8
		avg := int16((int32(left) + int32(right)) / 2)

		out[2*i] = byte(avg)
		out[2*i+1] = byte(avg >> 8)
	}
	return out
}
