package xmpp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// newStanzaID returns an opaque server-chosen stanza identifier. Receivers
// must never interpret it.
func newStanzaID() string {
	return "znc_" + uuid.NewString()
}

// generateResource returns an opaque bind resource: the hex SHA-256 of 32
// random bytes.
func generateResource() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to a
		// UUID rather than binding an empty resource.
		return uuid.NewString()
	}
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}
