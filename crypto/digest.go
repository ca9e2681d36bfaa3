package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/sha3"
)

// Digest computes the canonical content digest used for fingerprint
// deduplication and lookup keys.
func Digest(data []byte) []byte {
	h := sha3.Sum256(data)
	return h[:]
}

// DigestString returns the hex-encoded digest of data.
func DigestString(data []byte) string {
	return hex.EncodeToString(Digest(data))
}

// DigestVector hashes an amplitude vector by serializing each sample as
// a big-endian IEEE 754 double. The encoding is fixed so two devices
// hashing the same vector always agree on the content key.
func DigestVector(vector []float64) []byte {
	buf := make([]byte, 8*len(vector))
	for i, v := range vector {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return Digest(buf)
}
