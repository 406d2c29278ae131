package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32

// TokenValue returns a URL-safe random string carrying 256 bits of entropy.
func TokenValue() (string, error) {
	const op = "lib.random.TokenValue"

	buf := make([]byte, tokenBytes)

	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
