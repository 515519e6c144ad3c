// Package crypto provides the hashing and key-parsing primitives used to
// derive stable identifiers from wallet key material.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/zmigrate/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// TaggedHash hashes parts under a domain tag. Each part is length-prefixed
// so ("ab","c") and ("a","bc") never collide.
func TaggedHash(tag string, parts ...[]byte) types.Hash {
	h := blake3.New()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(tag)))
	h.Write(lenBuf[:])
	h.Write([]byte(tag))
	for _, p := range parts {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
