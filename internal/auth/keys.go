// Package auth handles credential hashing, session key minting and
// identity verification against the Moltbook directory.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// SessionKeyPrefix marks arena session keys on the wire.
const SessionKeyPrefix = "moltchess_"

// DigestCredential hashes an upstream credential for storage. The raw
// credential is never persisted.
func DigestCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// NewSessionKey mints a fresh session key.
func NewSessionKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return SessionKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewAgentID mints a new agent identifier.
func NewAgentID() string {
	return uuid.NewString()
}
