// Package snapshot computes an integrity checksum over a gathered boot
// record, so a restart can detect a truncated or corrupted snapshot file
// before handing it to internal/codec for parsing.
package snapshot

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Checksum hashes a gathered boot-record string with BLAKE3 and returns
// the hex-encoded digest.
func Checksum(gathered string) string {
	sum := blake3.Sum256([]byte(gathered))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether gathered hashes to the given hex-encoded digest.
func Verify(gathered, want string) bool {
	return Checksum(gathered) == want
}
