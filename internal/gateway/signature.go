package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Signature computes the integrity signature the processor expects on a
// charge: hex(sha256(reference + amountInCents + currency + secret)).
func Signature(reference string, amountInCents int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountInCents, 10) + currency + secret))
	return hex.EncodeToString(sum[:])
}
