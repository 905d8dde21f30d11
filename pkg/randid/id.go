// Package randid generates random identifiers.
package randid

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generator produces a new identifier on each call. Implementations must be
// safe for concurrent use and must not block.
type Generator func() string

// UUIDHex returns a random (version 4) UUID rendered as 32 lowercase hex
// characters without dashes.
func UUIDHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Hex returns a Generator that renders n random bytes as 2n hex characters.
func Hex(n int) Generator {
	return func() string {
		b := make([]byte, n)
		_, _ = rand.Read(b) // crypto/rand.Read never returns an error
		return hex.EncodeToString(b)
	}
}

// Static returns a Generator that always yields id. Only useful in tests.
func Static(id string) Generator {
	return func() string { return id }
}

// Generate returns a random string of the given length drawn from [a-z0-9].
func Generate(length int) string {
	if length <= 0 {
		return ""
	}

	b := make([]byte, length)
	_, _ = rand.Read(b)

	var sb strings.Builder
	sb.Grow(length)
	for _, v := range b {
		// 256 % 36 introduces a slight bias; acceptable for short display ids.
		sb.WriteByte(alphabet[int(v)%len(alphabet)])
	}
	return sb.String()
}
