package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCollapsesRuns(t *testing.T) {
	c := &Cigar{}
	c.Append(OpMatch, 3)
	c.Append(OpMatch, 2)
	c.Append(OpMismatch, 1)
	c.Append(OpMismatch, 0) // zero-length runs vanish
	assert.Equal(t, "5=1X", c.String())

	other := &Cigar{}
	other.Append(OpMismatch, 2)
	other.Append(OpMatch, 4)
	c.AppendCigar(other)
	assert.Equal(t, "5=3X4=", c.String())
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"10=", "3S4=1X2I5D1G2=", "5S10=5S"} {
		c, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, c.String())
	}
	for _, s := range []string{"=", "3Q", "12"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestValidate(t *testing.T) {
	c, err := Parse("4=")
	require.NoError(t, err)
	assert.NoError(t, c.Validate("ACGT", "ACGT"))
	// MATCH over differing characters
	assert.Error(t, c.Validate("ACGT", "ACGA"))

	c, err = Parse("2=1X1=")
	require.NoError(t, err)
	assert.NoError(t, c.Validate("ACGT", "ACAT"))
	// MISMATCH over equal characters
	assert.Error(t, c.Validate("ACGT", "ACGT"))

	// query exhausted
	c, err = Parse("5=")
	require.NoError(t, err)
	assert.Error(t, c.Validate("ACGTA", "ACGT"))

	// insertion directly after deletion
	c, err = Parse("2=1D1I1=")
	require.NoError(t, err)
	assert.Error(t, c.Validate("ACGT", "ACAT"))

	// deletion after insertion only over the sentinel
	c, err = Parse("2=1I1D1=")
	require.NoError(t, err)
	assert.Error(t, c.Validate("ACGT", "ACAT"))
	assert.NoError(t, c.Validate("AC$T", "ACAT"))
}

func TestCoverageCompensation(t *testing.T) {
	c, err := Parse("4=2I3=")
	require.NoError(t, err)
	assert.Equal(t, uint32(9), c.Coverage())

	// the I-G-1D splice pattern is coverage neutral
	c, err = Parse("4=2I1G1D3=")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), c.Coverage())
}

func TestMarkExactMatches(t *testing.T) {
	c, err := Parse("2S3=1X2=2S")
	require.NoError(t, err)

	mask := make([]bool, 10)
	added := c.MarkExactMatches(mask, false, false)
	assert.Equal(t, 5, added)
	assert.Equal(t, []bool{false, false, true, true, true, false, true, true, false, false}, mask)

	// marking again adds nothing
	assert.Equal(t, 0, c.MarkExactMatches(mask, false, false))

	// reversed traversal for the opposite orientation
	rev := make([]bool, 10)
	c.MarkExactMatches(rev, false, true)
	assert.Equal(t, []bool{false, false, true, true, false, true, true, true, false, false}, rev)
}

func TestMDString(t *testing.T) {
	c, err := Parse("3=1X2=")
	require.NoError(t, err)
	assert.Equal(t, "3G2", c.MDString("ACGGTT"))

	c, err = Parse("2=2D2=")
	require.NoError(t, err)
	assert.Equal(t, "2^GG2", c.MDString("ACGGTT"))
}

func TestClippingOps(t *testing.T) {
	c := NewCigar(3)
	c.Append(OpMatch, 5)
	c.Append(OpClipped, 2)
	assert.Equal(t, uint32(3), c.Clipping())
	assert.Equal(t, uint32(2), c.EndClipping())

	c.ExtendClipping(4)
	assert.Equal(t, uint32(7), c.Clipping())
	assert.Equal(t, uint32(7), c.TrimClipping())
	assert.Equal(t, uint32(0), c.Clipping())
	assert.Equal(t, uint32(2), c.TrimEndClipping())
	assert.Equal(t, "5=", c.String())
}
