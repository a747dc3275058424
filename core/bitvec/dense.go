package bitvec

import (
	"fmt"
	"io"
	"math/bits"

	"github.com/bits-and-blooms/bitset"

	"github.com/adalundhe/annodex/core/serial"
)

// wordsPerBlock is the rank directory granularity: one cumulative count per
// 8 words (512 bits), so Rank1 scans at most 8 words after one lookup.
const wordsPerBlock = 8

// Dense is a word-array bit vector with a block-rank directory.
type Dense struct {
	bits    *bitset.BitSet
	words   []uint64
	size    uint64
	numSet  uint64
	blockRk []uint64 // set bits before each block of 8 words
}

// NewDense builds a dense vector of the given size with the given set
// positions. Positions must be < size; duplicates are tolerated.
func NewDense(size uint64, ones []uint64) *Dense {
	bs := bitset.New(uint(size))
	for _, i := range ones {
		if i >= size {
			panic(fmt.Sprintf("bitvec: position %d out of range %d", i, size))
		}
		bs.Set(uint(i))
	}
	return denseFromBitSet(bs, size)
}

func denseFromBitSet(bs *bitset.BitSet, size uint64) *Dense {
	words := bs.Bytes()
	numWords := int((size + 63) / 64)
	if len(words) < numWords {
		padded := make([]uint64, numWords)
		copy(padded, words)
		words = padded
	}
	words = words[:numWords]

	numBlocks := (numWords + wordsPerBlock - 1) / wordsPerBlock
	blockRk := make([]uint64, numBlocks+1)
	var acc uint64
	for b := 0; b < numBlocks; b++ {
		blockRk[b] = acc
		end := min((b+1)*wordsPerBlock, numWords)
		for _, w := range words[b*wordsPerBlock : end] {
			acc += uint64(bits.OnesCount64(w))
		}
	}
	blockRk[numBlocks] = acc

	return &Dense{bits: bs, words: words, size: size, numSet: acc, blockRk: blockRk}
}

func (d *Dense) Size() uint64       { return d.size }
func (d *Dense) NumSetBits() uint64 { return d.numSet }

func (d *Dense) Get(i uint64) bool {
	if i >= d.size {
		panic(fmt.Sprintf("bitvec: index %d out of range %d", i, d.size))
	}
	return d.words[i/64]&(1<<(i%64)) != 0
}

func (d *Dense) Rank1(i uint64) uint64 {
	if i >= d.size {
		panic(fmt.Sprintf("bitvec: rank index %d out of range %d", i, d.size))
	}
	word := i / 64
	block := word / wordsPerBlock
	rank := d.blockRk[block]
	for w := block * wordsPerBlock; w < word; w++ {
		rank += uint64(bits.OnesCount64(d.words[w]))
	}
	// low mask includes position i itself
	return rank + uint64(bits.OnesCount64(d.words[word]<<(63-i%64)))
}

func (d *Dense) ConditionalRank1(i uint64) uint64 {
	if !d.Get(i) {
		return 0
	}
	return d.Rank1(i)
}

func (d *Dense) Select1(r uint64) uint64 {
	if r == 0 || r > d.numSet {
		panic(fmt.Sprintf("bitvec: select rank %d out of range %d", r, d.numSet))
	}
	// binary search the block directory for the block containing the r-th bit
	lo, hi := 0, len(d.blockRk)-1
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if d.blockRk[mid] < r {
			lo = mid
		} else {
			hi = mid
		}
	}
	rank := d.blockRk[lo]
	for w := lo * wordsPerBlock; w < len(d.words); w++ {
		cnt := uint64(bits.OnesCount64(d.words[w]))
		if rank+cnt >= r {
			return uint64(w)*64 + selectInWord(d.words[w], r-rank)
		}
		rank += cnt
	}
	panic("bitvec: select directory corrupt")
}

// selectInWord finds the position of the r-th (1-indexed) set bit in w.
func selectInWord(w uint64, r uint64) uint64 {
	for ; r > 1; r-- {
		w &= w - 1
	}
	return uint64(bits.TrailingZeros64(w))
}

func (d *Dense) GetInt(i uint64, w uint8) uint64 {
	if w == 0 {
		return 0
	}
	if w > 64 {
		panic("bitvec: GetInt width > 64")
	}
	word := i / 64
	shift := i % 64
	var val uint64
	if word < uint64(len(d.words)) {
		val = d.words[word] >> shift
		if shift > 0 && word+1 < uint64(len(d.words)) {
			val |= d.words[word+1] << (64 - shift)
		}
	}
	if w < 64 {
		val &= (1 << w) - 1
	}
	return val
}

func (d *Dense) CallOnes(cb func(uint64)) {
	for i, ok := d.bits.NextSet(0); ok && uint64(i) < d.size; i, ok = d.bits.NextSet(i + 1) {
		cb(uint64(i))
	}
}

func (d *Dense) Serialize(w io.Writer) error {
	if err := serial.WriteByte(w, flavorDense); err != nil {
		return err
	}
	if err := serial.WriteUint64(w, d.size); err != nil {
		return err
	}
	return serial.WriteUint64Slice(w, d.words)
}

func loadDense(r io.Reader) (*Dense, error) {
	size, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load dense bitvector size: %w", err)
	}
	words, err := serial.ReadUint64Slice(r)
	if err != nil {
		return nil, fmt.Errorf("load dense bitvector words: %w", err)
	}
	if uint64(len(words)) != (size+63)/64 {
		return nil, fmt.Errorf("dense bitvector: %d words for %d bits", len(words), size)
	}
	return denseFromBitSet(bitset.From(words), size), nil
}
