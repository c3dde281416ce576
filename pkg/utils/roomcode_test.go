package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewRoomCode()
		require.NoError(t, err)
		assert.Len(t, code, roomCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(roomCodeAlphabet, r),
				"unexpected character %q in %s", r, code)
		}
		seen[code] = true
	}
	// 50 draws from a 36^8 space should not collide
	assert.Len(t, seen, 50)
}

func TestValidRoomCode(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"generated code", "AB12CD34", true},
		{"minimum length", "AB12", true},
		{"lowercase accepted", "ab12cd34", true},
		{"empty", "", false},
		{"too short", "AB1", false},
		{"whitespace", "AB 12", false},
		{"punctuation", "AB12-CD3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidRoomCode(tt.code))
		})
	}
}
