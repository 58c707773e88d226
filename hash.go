package knotcoin

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte SHA3-256 digest. Every consensus-critical hash in this
// core — block hashes, merkle roots, tx ids, PONC state — uses NIST
// FIPS 202 SHA3-256 (domain separation byte 0x06), never Keccak-256
// (0x01). golang.org/x/crypto/sha3 implements the NIST variant directly,
// so no domain byte bookkeeping is needed in this code; the comment exists
// only to record that the distinction was checked.
type Hash [HashBytes]byte

// ZeroHash is the all-zero digest used as the empty-merkle-root sentinel
// and as a parent-hash placeholder in genesis templates.
var ZeroHash Hash

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool { return h == ZeroHash }

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Less compares two hashes as big-endian 256-bit unsigned integers, used
// for PoW target comparisons and accumulated-work bookkeeping.
func (h Hash) Less(other Hash) bool {
	for i := 0; i < HashBytes; i++ {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// LessOrEqual reports h <= other under the same big-endian ordering.
func (h Hash) LessOrEqual(other Hash) bool {
	return h == other || h.Less(other)
}

func sum256(parts ...[]byte) Hash {
	hasher := sha3.New256()
	for _, p := range parts {
		hasher.Write(p)
	}
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

func le64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func le32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}
