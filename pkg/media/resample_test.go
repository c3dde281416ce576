package media

import (
	"bytes"
	"testing"
)

func TestResamplePCM_SameRate(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02, 0x03}

	result, err := ResamplePCM(data, 16000, 16000)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !bytes.Equal(result, data) {
		t.Error("data should be unchanged for same rate")
	}
}

func TestResamplePCM_Upsample(t *testing.T) {
	data := []byte{0x00, 0x00, 0xFF, 0x7F} // 0, 32767

	result, err := ResamplePCM(data, 8000, 16000)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	expectedLen := len(data) * 2
	if len(result) < expectedLen-4 || len(result) > expectedLen+4 {
		t.Errorf("expected length around %d, got %d", expectedLen, len(result))
	}
}

func TestResamplePCM_Downsample(t *testing.T) {
	data := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x00, 0xFF, 0x7F}

	result, err := ResamplePCM(data, 16000, 8000)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	expectedLen := len(data) / 2
	if len(result) < expectedLen-4 || len(result) > expectedLen+4 {
		t.Errorf("expected length around %d, got %d", expectedLen, len(result))
	}
}

func TestResamplePCM_OddLength(t *testing.T) {
	if _, err := ResamplePCM([]byte{0x00, 0x01, 0x02}, 16000, 8000); err == nil {
		t.Error("expected error for odd-length PCM")
	}
}

func TestResamplePCM_InvalidRate(t *testing.T) {
	if _, err := ResamplePCM([]byte{0x00, 0x00}, 0, 8000); err == nil {
		t.Error("expected error for zero source rate")
	}
}

func TestResamplePCM_Empty(t *testing.T) {
	result, err := ResamplePCM([]byte{}, 16000, 8000)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %d bytes", len(result))
	}
}

func TestStereoToMono(t *testing.T) {
	// Two stereo samples: (100, 300) and (-200, -400).
	stereo := []byte{
		0x64, 0x00, 0x2C, 0x01,
		0x38, 0xFF, 0x70, 0xFE,
	}

	mono := StereoToMono(stereo)
	if len(mono) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(mono))
	}

	first := int16(mono[0]) | int16(mono[1])<<8
	if first != 200 {
		t.Errorf("expected averaged sample 200, got %d", first)
	}
	second := int16(mono[2]) | int16(mono[3])<<8
	if second != -300 {
		t.Errorf("expected averaged sample -300, got %d", second)
	}
}
