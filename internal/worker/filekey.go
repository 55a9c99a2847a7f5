package worker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FileKey implements SPEC_FULL §3's obfuscated filename derivation:
// SHA-256(salt || ':' || mal_id || ':' || episode || ':' || provider ||
// ':' || resolution), hex-encoded and truncated to 32 characters. The
// salt doubles as the webhook bearer token, so a misconfigured worker
// fails both the same way.
func FileKey(salt string, malID int64, episode int, provider, resolution string) string {
	input := fmt.Sprintf("%s:%d:%d:%s:%s", salt, malID, episode, provider, resolution)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:32]
}
