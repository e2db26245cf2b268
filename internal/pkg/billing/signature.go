package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// verifySignature checks a hex HMAC-SHA256 of payload keyed with secret.
func verifySignature(payload, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	key := strings.TrimSpace(secret)
	if sig == "" || key == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	return verifyHMAC([]byte(payload), decoded, []byte(key), sha256.New)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}

// Sign returns the hex HMAC-SHA256 of payload, the form the gateway sends.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
