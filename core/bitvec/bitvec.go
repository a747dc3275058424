// Package bitvec provides rank/select-capable bit vectors backing the
// annotation matrices. Two storage flavors share one contract:
//
//   - Dense: a plain word array with a block-rank directory. Best when a
//     column holds a set bit in at least ~1/8 of its positions.
//   - Sparse: a roaring bitmap. Best for very sparse columns, where the
//     word array would be mostly zeros.
//
// Rank1(i) counts set bits in positions [0, i] (inclusive). Select1(r) is
// 1-indexed: Select1(1) is the position of the first set bit. Out-of-range
// indices are programmer errors and panic.
package bitvec

import (
	"fmt"
	"io"

	"github.com/adalundhe/annodex/core/serial"
)

// Vector is the read-only rank/select contract shared by all flavors.
type Vector interface {
	// Size returns the number of bits the vector conceptually holds.
	Size() uint64

	// NumSetBits returns the number of 1 bits.
	NumSetBits() uint64

	// Get reports whether the bit at position i is set.
	Get(i uint64) bool

	// Rank1 returns the number of set bits in positions [0, i].
	Rank1(i uint64) uint64

	// ConditionalRank1 returns Rank1(i) if the bit at i is set, else 0.
	ConditionalRank1(i uint64) uint64

	// Select1 returns the position of the r-th set bit, 1-indexed.
	Select1(r uint64) uint64

	// GetInt reads w bits starting at position i into the low bits of the
	// result, w <= 64. Bits past the end of the vector read as zero.
	GetInt(i uint64, w uint8) uint64

	// CallOnes invokes cb for every set position in ascending order.
	CallOnes(cb func(uint64))

	// Serialize writes the vector, prefixed with its flavor tag.
	Serialize(w io.Writer) error
}

// Flavor tags written ahead of the vector payload.
const (
	flavorDense  byte = 0
	flavorSparse byte = 1
)

// New picks a storage flavor by density: at least one set bit per 8
// positions picks Dense, anything sparser picks Sparse.
func New(size uint64, ones []uint64) Vector {
	if size > 0 && uint64(len(ones))*8 >= size {
		return NewDense(size, ones)
	}
	return NewSparse(size, ones)
}

// Load reads a vector serialized by any flavor's Serialize.
func Load(r io.Reader) (Vector, error) {
	tag, err := serial.ReadByte(r)
	if err != nil {
		return nil, fmt.Errorf("read bitvector flavor: %w", err)
	}
	switch tag {
	case flavorDense:
		return loadDense(r)
	case flavorSparse:
		return loadSparse(r)
	default:
		return nil, fmt.Errorf("unknown bitvector flavor %d", tag)
	}
}

// Equal reports whether two vectors hold the same bits, regardless of flavor.
func Equal(a, b Vector) bool {
	if a.Size() != b.Size() || a.NumSetBits() != b.NumSetBits() {
		return false
	}
	same := true
	a.CallOnes(func(i uint64) {
		if !b.Get(i) {
			same = false
		}
	})
	return same
}
