package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// newConnID returns a random identifier for one websocket connection.
func newConnID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "conn-unknown"
	}
	return hex.EncodeToString(b)
}

func trimBearer(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return header
}
