package helpers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// GenResetToken returns 32 random bytes, hex encoded.
func GenResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenActivationCode returns 16 random bytes, url-safe base64 without padding.
func GenActivationCode() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
