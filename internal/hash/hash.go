// Package hash produces the 128-bit BLAKE3 content identifiers used across
// the substrate. Every entity id is a Digest; digests are also the seed
// material for hash-derived geometric projection.
package hash

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"

	"github.com/hartonomous/substrate/internal/apperr"
)

// Size is the digest width in bytes.
const Size = 16

// MaxCodepoint is the top of the Unicode codespace.
const MaxCodepoint = 0x10FFFF

// Digest is a 128-bit BLAKE3 digest: the first 16 bytes of BLAKE3-256.
type Digest [Size]byte

// Zero is the all-zero digest; used as a sentinel, never as a real id.
var Zero Digest

// Sum hashes b. Deterministic, order-sensitive, pure.
func Sum(b []byte) Digest {
	full := blake3.Sum256(b)
	var d Digest
	copy(d[:], full[:Size])
	return d
}

// SumCodepoint hashes the little-endian 4-byte encoding of cp.
func SumCodepoint(cp uint32) (Digest, error) {
	if cp > MaxCodepoint {
		return Zero, apperr.Newf(apperr.KindInvalidInput, "codepoint U+%X out of range", cp)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], cp)
	return Sum(buf[:]), nil
}

// SumWithContext hashes payload followed by context and a trailing
// length frame, so a zero-length context still yields a digest distinct
// from the plain Sum of the payload.
func SumWithContext(payload, context []byte) Digest {
	h := blake3.New(32, nil)
	h.Write(payload)
	h.Write(context)
	var frame [8]byte
	binary.LittleEndian.PutUint64(frame[:], uint64(len(context)))
	h.Write(frame[:])
	var d Digest
	copy(d[:], h.Sum(nil)[:Size])
	return d
}

// SumDigests hashes the concatenation of ds in order. Used for
// content-addressing compositions (over atom ids) and relations (over
// composition ids).
func SumDigests(ds []Digest) Digest {
	h := blake3.New(32, nil)
	for i := range ds {
		h.Write(ds[i][:])
	}
	var d Digest
	copy(d[:], h.Sum(nil)[:Size])
	return d
}

// Hex returns the lowercase hex encoding.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) String() string { return d.Hex() }

// Bytes returns a fresh slice copy of the digest.
func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])
	return out
}

// IsZero reports whether d is the sentinel zero digest.
func (d Digest) IsZero() bool { return d == Zero }

// Compare orders digests lexicographically by byte.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// Less reports d < other in canonical byte order.
func (d Digest) Less(other Digest) bool { return d.Compare(other) < 0 }

// ParseHex decodes a 32-character hex string into a Digest.
func ParseHex(s string) (Digest, error) {
	if len(s) != Size*2 {
		return Zero, apperr.Newf(apperr.KindInvalidInput, "invalid hex digest length %d, want %d", len(s), Size*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Zero, apperr.Wrap(apperr.KindInvalidInput, "invalid hex digest", err)
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// FromBytes copies a 16-byte slice into a Digest.
func FromBytes(b []byte) (Digest, error) {
	if len(b) != Size {
		return Zero, apperr.Newf(apperr.KindInvalidInput, "invalid digest length %d, want %d", len(b), Size)
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}
