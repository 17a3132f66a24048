package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewBookingRef returns an opaque booking reference like "BK-9f2a41cc".
// Collision resistance comes from the random token; uniqueness is not
// enforced beyond that.
func NewBookingRef() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "BK-" + hex.EncodeToString(b)
}
