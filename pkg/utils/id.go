package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateID returns a prefixed identifier with eight bytes of entropy
// rendered as hex.
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return prefix + "_" + hex.EncodeToString(b)
}

// GenerateSessionID names one negotiated streaming session. The id shows up
// in logs and the status API so session restarts are distinguishable.
func GenerateSessionID() string {
	return GenerateID("session")
}
