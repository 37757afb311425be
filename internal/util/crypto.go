package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

func HmacSHA256(secret, data string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SignUserID returns the gateway signature asserting userID.
func SignUserID(secret, userID string) string {
	return HmacSHA256(secret, userID)
}

// VerifyUserSignature reports whether signature was produced by SignUserID
// for userID. Hex case is ignored.
func VerifyUserSignature(secret, userID, signature string) bool {
	if userID == "" || signature == "" {
		return false
	}
	return ConstantTimeEqual(SignUserID(secret, userID), strings.ToLower(signature))
}
