package random

import (
	"encoding/base64"
	"testing"
)

func TestTokenValue(t *testing.T) {
	t.Parallel()

	a, err := TokenValue()
	if err != nil {
		t.Fatalf("TokenValue error: %v", err)
	}

	b, err := TokenValue()
	if err != nil {
		t.Fatalf("TokenValue error: %v", err)
	}

	if a == b {
		t.Fatalf("two generated tokens are equal: %q", a)
	}

	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("token is not URL-safe base64: %v", err)
	}
	if len(raw) != tokenBytes {
		t.Fatalf("token entropy mismatch: got %d bytes want %d", len(raw), tokenBytes)
	}
}
