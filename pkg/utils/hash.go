package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashString returns a hex digest of the input. Used to key rate-limit
// counters so access tokens never appear verbatim in redis keys or logs.
func HashString(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:16])
}
