// Package hilbert maps points of the unit 4-cube onto a 128-bit Hilbert
// curve index. The index is the locality-preserving spatial key stored with
// every physicality: nearby points on S³ receive nearby keys.
//
// The implementation is the 128-bit Skilling transpose variant (4 axes × 32
// bits); keys travel as two 64-bit words, most-significant word first.
package hilbert

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// Bits is the per-axis resolution.
const Bits = 32

// Dims is the number of axes.
const Dims = 4

// Key is a 128-bit Hilbert index.
type Key struct {
	Hi uint64
	Lo uint64
}

// Encode maps a point of [0,1]⁴ to its Hilbert key. Ordinates outside the
// cube are clamped, never rejected: callers feed freshly normalized S³
// points and float error must not turn into failures.
func Encode(coords [4]float64) Key {
	var grid [Dims]uint32
	for i, c := range coords {
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		grid[i] = uint32(c * 0xFFFFFFFF)
	}
	return FromGrid(grid)
}

// FromGrid encodes discrete 32-bit axis values directly.
func FromGrid(axes [Dims]uint32) Key {
	x := axes

	// Skilling: inverse undo excess work.
	for q := uint32(1) << (Bits - 1); q > 1; q >>= 1 {
		p := q - 1
		for i := 0; i < Dims; i++ {
			if x[i]&q != 0 {
				x[0] ^= p
			} else {
				t := (x[0] ^ x[i]) & p
				x[0] ^= t
				x[i] ^= t
			}
		}
	}

	// Gray encode.
	for i := 1; i < Dims; i++ {
		x[i] ^= x[i-1]
	}
	var t uint32
	for q := uint32(1) << (Bits - 1); q > 1; q >>= 1 {
		if x[Dims-1]&q != 0 {
			t ^= q - 1
		}
	}
	for i := 0; i < Dims; i++ {
		x[i] ^= t
	}

	// Interleave the transpose into one 128-bit integer, axis 0 first at
	// each bit position, most significant position first.
	var k Key
	for q := Bits - 1; q >= 0; q-- {
		for i := 0; i < Dims; i++ {
			k.Hi = k.Hi<<1 | k.Lo>>63
			k.Lo = k.Lo << 1
			k.Lo |= uint64(x[i]>>uint(q)) & 1
		}
	}
	return k
}

// Uint256 returns the key widened for arithmetic.
func (k Key) Uint256() *uint256.Int {
	return new(uint256.Int).SetBytes(k.Bytes())
}

// Distance returns |k − other| as unsigned 128-bit curve distance.
func (k Key) Distance(other Key) *uint256.Int {
	a, b := k.Uint256(), other.Uint256()
	if a.Lt(b) {
		a, b = b, a
	}
	return new(uint256.Int).Sub(a, b)
}

// Less orders keys as 128-bit integers.
func (k Key) Less(other Key) bool {
	if k.Hi != other.Hi {
		return k.Hi < other.Hi
	}
	return k.Lo < other.Lo
}

// IsZero reports the curve origin.
func (k Key) IsZero() bool { return k.Hi == 0 && k.Lo == 0 }

// Bytes returns the 16-byte big-endian wire form, most-significant word
// first.
func (k Key) Bytes() []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[:8], k.Hi)
	binary.BigEndian.PutUint64(out[8:], k.Lo)
	return out
}

// FromBytes rebuilds a key from its wire form.
func FromBytes(b []byte) (Key, error) {
	if len(b) != 16 {
		return Key{}, fmt.Errorf("hilbert key must be 16 bytes, got %d", len(b))
	}
	return Key{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// Hex renders the key as a 32-digit hex string.
func (k Key) Hex() string {
	return fmt.Sprintf("%016x%016x", k.Hi, k.Lo)
}

func (k Key) String() string { return k.Hex() }
