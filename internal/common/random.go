package common

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MakeRandHexString generates size random bytes and hex-encodes them, so the
// result is twice as long as size.
func MakeRandHexString(size int) (string, error) {
	b, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MakeRandBase64String generates size random bytes rendered with standard base64.
func MakeRandBase64String(size int) (string, error) {
	b, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// MakeRandURLSafeString generates size random bytes rendered as unpadded
// base64url, safe to place in a query string without escaping.
func MakeRandURLSafeString(size int) (string, error) {
	b, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray overwrites b with zeros. Nil is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
