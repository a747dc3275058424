package bitvec

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomOnes(rng *rand.Rand, size uint64, n int) []uint64 {
	seen := make(map[uint64]bool, n)
	for len(seen) < n {
		seen[rng.Uint64()%size] = true
	}
	ones := make([]uint64, 0, n)
	for i := range seen {
		ones = append(ones, i)
	}
	sort.Slice(ones, func(a, b int) bool { return ones[a] < ones[b] })
	return ones
}

func TestDenseRankSelect(t *testing.T) {
	ones := []uint64{0, 3, 64, 65, 127, 500, 511}
	d := NewDense(512, ones)

	require.Equal(t, uint64(512), d.Size())
	require.Equal(t, uint64(7), d.NumSetBits())

	assert.Equal(t, uint64(1), d.Rank1(0))
	assert.Equal(t, uint64(1), d.Rank1(2))
	assert.Equal(t, uint64(2), d.Rank1(3))
	assert.Equal(t, uint64(5), d.Rank1(127))
	assert.Equal(t, uint64(7), d.Rank1(511))

	for r, pos := range ones {
		assert.Equal(t, pos, d.Select1(uint64(r+1)), "select %d", r+1)
	}

	assert.Equal(t, uint64(2), d.ConditionalRank1(3))
	assert.Equal(t, uint64(0), d.ConditionalRank1(4))
}

func TestFlavorsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const size = 10000
	ones := randomOnes(rng, size, 700)

	d := NewDense(size, ones)
	s := NewSparse(size, ones)

	require.Equal(t, d.NumSetBits(), s.NumSetBits())
	for trial := 0; trial < 2000; trial++ {
		i := rng.Uint64() % size
		assert.Equal(t, d.Get(i), s.Get(i))
		assert.Equal(t, d.Rank1(i), s.Rank1(i))
		assert.Equal(t, d.ConditionalRank1(i), s.ConditionalRank1(i))
	}
	for r := uint64(1); r <= d.NumSetBits(); r++ {
		assert.Equal(t, d.Select1(r), s.Select1(r))
	}
	for trial := 0; trial < 200; trial++ {
		i := rng.Uint64() % size
		w := uint8(1 + rng.Intn(64))
		assert.Equal(t, d.GetInt(i, w), s.GetInt(i, w))
	}

	var dOnes, sOnes []uint64
	d.CallOnes(func(i uint64) { dOnes = append(dOnes, i) })
	s.CallOnes(func(i uint64) { sOnes = append(sOnes, i) })
	assert.Equal(t, ones, dOnes)
	assert.Equal(t, ones, sOnes)
}

func TestGetIntZeroPadding(t *testing.T) {
	d := NewDense(70, []uint64{68, 69})
	// bits 68 and 69 sit 4 and 5 positions above 64
	assert.Equal(t, uint64(0b110000), d.GetInt(64, 64))
	// reading past the end zero-pads
	assert.Equal(t, uint64(0b11), d.GetInt(68, 64))
}

func TestSerializeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, tc := range []struct {
		name string
		v    Vector
	}{
		{"dense", NewDense(1000, randomOnes(rng, 1000, 400))},
		{"sparse", NewSparse(100000, randomOnes(rng, 100000, 50))},
		{"smart-dense", New(64, []uint64{1, 2, 3, 9, 10, 11, 12, 13})},
		{"smart-sparse", New(100000, []uint64{5, 99999})},
		{"empty", New(128, nil)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tc.v.Serialize(&buf))
			loaded, err := Load(&buf)
			require.NoError(t, err)
			assert.True(t, Equal(tc.v, loaded))
			assert.IsType(t, tc.v, loaded)
		})
	}
}

func TestSmartFlavorChoice(t *testing.T) {
	dense := New(64, []uint64{0, 8, 16, 24, 32, 40, 48, 56})
	_, ok := dense.(*Dense)
	assert.True(t, ok)

	sparse := New(1000, []uint64{999})
	_, ok = sparse.(*Sparse)
	assert.True(t, ok)
}
