package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Alphabet for human-typeable short codes. 0/O and 1/I are excluded because
// cashiers read these codes off receipts and phone screens.
const ShortCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewTokenID returns the opaque credential identity for a payment token:
// 32 bytes of crypto-random data, base64url encoded.
func NewTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewShortCode draws n characters from the restricted alphabet using
// crypto/rand. Uniqueness among currently-valid codes is the issuer's job.
func NewShortCode(n int) (string, error) {
	out := make([]byte, n)
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate short code: %w", err)
	}
	for i := range raw {
		out[i] = ShortCodeAlphabet[int(raw[i])%len(ShortCodeAlphabet)]
	}
	return string(out), nil
}

// SignPaymentToken computes the integrity signature embedded in the long-form
// credential: HMAC-SHA256 over tokenID|orderID|expiresAt.
func SignPaymentToken(tokenID string, orderID uint, expiresAt time.Time, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(tokenID))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatUint(uint64(orderID), 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(expiresAt.Unix(), 10)))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func VerifyPaymentTokenSignature(signature, tokenID string, orderID uint, expiresAt time.Time, secret string) bool {
	expected := SignPaymentToken(tokenID, orderID, expiresAt, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
