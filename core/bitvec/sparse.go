package bitvec

import (
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/adalundhe/annodex/core/serial"
)

// Sparse stores only the set positions in a roaring bitmap. Rank and select
// come from the bitmap's own directories; GetInt probes bit by bit, also when
// the Multi-BRWT windowed row scan calls it on a sparse filter.
type Sparse struct {
	bits *roaring64.Bitmap
	size uint64
}

// NewSparse builds a sparse vector of the given size with the given set
// positions.
func NewSparse(size uint64, ones []uint64) *Sparse {
	bm := roaring64.New()
	for _, i := range ones {
		if i >= size {
			panic(fmt.Sprintf("bitvec: position %d out of range %d", i, size))
		}
		bm.Add(i)
	}
	return &Sparse{bits: bm, size: size}
}

func (s *Sparse) Size() uint64       { return s.size }
func (s *Sparse) NumSetBits() uint64 { return s.bits.GetCardinality() }

func (s *Sparse) Get(i uint64) bool {
	if i >= s.size {
		panic(fmt.Sprintf("bitvec: index %d out of range %d", i, s.size))
	}
	return s.bits.Contains(i)
}

func (s *Sparse) Rank1(i uint64) uint64 {
	if i >= s.size {
		panic(fmt.Sprintf("bitvec: rank index %d out of range %d", i, s.size))
	}
	return s.bits.Rank(i)
}

func (s *Sparse) ConditionalRank1(i uint64) uint64 {
	if !s.bits.Contains(i) {
		return 0
	}
	return s.bits.Rank(i)
}

func (s *Sparse) Select1(r uint64) uint64 {
	if r == 0 || r > s.bits.GetCardinality() {
		panic(fmt.Sprintf("bitvec: select rank %d out of range %d", r, s.bits.GetCardinality()))
	}
	// roaring select is 0-indexed
	pos, err := s.bits.Select(r - 1)
	if err != nil {
		panic("bitvec: select out of range")
	}
	return pos
}

func (s *Sparse) GetInt(i uint64, w uint8) uint64 {
	if w == 0 {
		return 0
	}
	if w > 64 {
		panic("bitvec: GetInt width > 64")
	}
	var val uint64
	for b := uint8(0); b < w; b++ {
		pos := i + uint64(b)
		if pos >= s.size {
			break
		}
		if s.bits.Contains(pos) {
			val |= 1 << b
		}
	}
	return val
}

func (s *Sparse) CallOnes(cb func(uint64)) {
	it := s.bits.Iterator()
	for it.HasNext() {
		cb(it.Next())
	}
}

func (s *Sparse) Serialize(w io.Writer) error {
	if err := serial.WriteByte(w, flavorSparse); err != nil {
		return err
	}
	if err := serial.WriteUint64(w, s.size); err != nil {
		return err
	}
	if _, err := s.bits.WriteTo(w); err != nil {
		return fmt.Errorf("serialize sparse bitvector: %w", err)
	}
	return nil
}

func loadSparse(r io.Reader) (*Sparse, error) {
	size, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load sparse bitvector size: %w", err)
	}
	bm := roaring64.New()
	if _, err := bm.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("load sparse bitvector bitmap: %w", err)
	}
	return &Sparse{bits: bm, size: size}, nil
}
