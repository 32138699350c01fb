package security

import (
	"crypto/rand"
	"fmt"
)

// inviteAlphabet avoids characters that read ambiguously when typed from a
// phone screen (0/O, 1/I/L).
const inviteAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func NewInviteCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}

	code := make([]byte, length)
	for i, b := range buf {
		code[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(code), nil
}
