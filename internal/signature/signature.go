// Package signature computes and checks the device signatures the attendance
// backend expects on check-in: HMAC-SHA256 of the device id, hex encoded.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 digest of deviceID keyed by secret.
func Sign(secret, deviceID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(deviceID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the valid signature of deviceID under secret.
// An empty device id or signature never verifies.
func Verify(secret, deviceID, signature string) bool {
	if deviceID == "" || signature == "" {
		return false
	}
	expected := Sign(secret, deviceID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
