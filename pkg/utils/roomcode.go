package utils

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid"
)

// Room codes are shared verbally or over chat, so the alphabet excludes
// nothing: casual collisions are tolerated (no server-side reservation).
const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 8

	// MinRoomCodeLength is the minimum accepted length when joining.
	MinRoomCodeLength = 4
)

// NewRoomCode generates a short shareable room code, e.g. "AB12CD34".
func NewRoomCode() (string, error) {
	return gonanoid.Generate(roomCodeAlphabet, roomCodeLength)
}

// ValidRoomCode reports whether code is acceptable for a join attempt:
// non-empty, minimum length, alphanumeric only.
func ValidRoomCode(code string) bool {
	if len(code) < MinRoomCodeLength {
		return false
	}
	for _, r := range strings.ToUpper(code) {
		if !strings.ContainsRune(roomCodeAlphabet, r) {
			return false
		}
	}
	return true
}
