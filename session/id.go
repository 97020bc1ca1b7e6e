package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// idBytes gives 256 bits of entropy per session id.
const idBytes = 32

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
