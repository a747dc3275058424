package hll

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateAccuracy(t *testing.T) {
	s := New(DefaultPrecision)
	const n = 10000
	for i := uint64(0); i < n; i++ {
		s.AddUint64(i)
	}
	got := s.Estimate()
	assert.InEpsilon(t, float64(n), got, 0.05, "estimate %f for %d elements", got, n)
}

func TestSmallRangeUsesLinearCounting(t *testing.T) {
	s := New(DefaultPrecision)
	for i := uint64(0); i < 20; i++ {
		s.AddUint64(i)
	}
	assert.InDelta(t, 20, s.Estimate(), 3)
}

func TestMergeEqualsUnion(t *testing.T) {
	a, b, both := New(DefaultPrecision), New(DefaultPrecision), New(DefaultPrecision)
	for i := uint64(0); i < 5000; i++ {
		a.AddUint64(i)
		both.AddUint64(i)
	}
	for i := uint64(2500); i < 7500; i++ {
		b.AddUint64(i)
		both.AddUint64(i)
	}
	a.Merge(b)
	assert.Equal(t, both.Estimate(), a.Estimate())
	assert.InEpsilon(t, 7500, a.Estimate(), 0.05)
}

func TestColumnSketchesUnion(t *testing.T) {
	cs := NewColumnSketches(2, DefaultPrecision)
	for row := uint64(0); row < 4000; row++ {
		cols := []uint64{0}
		if row >= 2000 {
			cols = append(cols, 1)
		}
		cs.AddRow(row, cols)
	}
	sizeA, sizeB, sizeUnion := cs.EstimateUnion(0, 1)
	assert.InEpsilon(t, 4000, float64(sizeA), 0.06)
	assert.InEpsilon(t, 2000, float64(sizeB), 0.06)
	// column 1 is a subset of column 0
	assert.InEpsilon(t, 4000, float64(sizeUnion), 0.06)
	assert.LessOrEqual(t, math.Abs(float64(sizeUnion)-float64(sizeA)), float64(sizeA)/20)
}

func TestSerializeRoundTrip(t *testing.T) {
	cs := NewColumnSketches(3, DefaultPrecision)
	for row := uint64(0); row < 1000; row++ {
		cs.AddRow(row, []uint64{row % 3})
	}
	var buf bytes.Buffer
	require.NoError(t, cs.Serialize(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	require.Equal(t, cs.NumColumns(), loaded.NumColumns())
	for c := uint64(0); c < 3; c++ {
		assert.Equal(t, cs.sketches[c].Estimate(), loaded.sketches[c].Estimate())
	}
}
