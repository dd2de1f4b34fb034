package scoring

import (
	"crypto/md5"
	"encoding/hex"
)

// ContentHash fingerprints response text for cache keying. md5 is fine
// here, the key is not adversarial.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
