package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// DeriveSeed derives a deterministic sub-seed from a base seed and a set
// of name parts. Each (band, state-pair) permutation stream gets its own
// sub-seed, so results do not depend on band or pair execution order and
// pairs can run in parallel.
func DeriveSeed(base int64, parts ...string) int64 {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(base))
	h.Write(buf[:])
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
