package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum_DeterministicAndSensitiveToInput(t *testing.T) {
	a := Checksum("[[1, 1.000000, [1.000000], [6.000000]]]")
	b := Checksum("[[1, 1.000000, [1.000000], [6.000000]]]")
	c := Checksum("[[1, 1.000000, [1.000000], [6.000001]]]")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64, "hex-encoded blake3-256 digest is 64 characters")
}

func TestVerify(t *testing.T) {
	text := "[]"
	sum := Checksum(text)
	assert.True(t, Verify(text, sum))
	assert.False(t, Verify(text, "not-a-real-checksum"))
}
