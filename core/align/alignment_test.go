package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/graph"
)

// exactAlignment builds a full-match alignment of query[begin:end) against
// the graph path spelling the same characters.
func exactAlignment(t *testing.T, g *graph.HashDBG, cfg *Config, query string, begin, end int) *Alignment {
	t.Helper()
	nodes := g.MapToNodes(query[begin:end])
	for _, n := range nodes {
		require.NotEqual(t, graph.NPos, n)
	}
	s := &Seed{Query: query, Begin: begin, End: end, Nodes: nodes}
	a := NewAlignmentFromSeed(s, cfg)
	require.NoError(t, a.IsValid(g, cfg))
	return a
}

func TestSeedToAlignment(t *testing.T) {
	cfg := DefaultConfig()
	g := graph.NewHashDBG(3, "ACGTACGG")

	a := exactAlignment(t, g, cfg, "ACGTACGG", 1, 6)
	assert.Equal(t, "CGTAC", a.QueryView())
	assert.Equal(t, 1, a.Clipping())
	assert.Equal(t, 2, a.EndClipping())
	assert.Equal(t, cfg.MatchScoreOf(5), a.Score)
	assert.Equal(t, "1S5=2S", a.Cigar.String())
}

func TestTrimQueryPrefix(t *testing.T) {
	cfg := DefaultConfig()
	g := graph.NewHashDBG(3, "ACGTACGG")

	a := exactAlignment(t, g, cfg, "ACGTACGG", 0, 8)
	before := a.Score
	nodesBefore := len(a.Nodes)

	a.TrimQueryPrefix(2, g.K()-1, cfg)
	require.NoError(t, a.IsValid(g, cfg))
	assert.Equal(t, "GTACGG", a.QueryView())
	assert.Equal(t, 2, a.Clipping())
	assert.Equal(t, before-cfg.MatchScoreOf(2), a.Score)
	// the first two reference chars moved into the offset before nodes pop
	assert.LessOrEqual(t, len(a.Nodes), nodesBefore)
}

func TestTrimQuerySuffix(t *testing.T) {
	cfg := DefaultConfig()
	g := graph.NewHashDBG(3, "ACGTACGG")

	a := exactAlignment(t, g, cfg, "ACGTACGG", 0, 8)
	before := a.Score

	a.TrimQuerySuffix(3, cfg)
	require.NoError(t, a.IsValid(g, cfg))
	assert.Equal(t, "ACGTA", a.QueryView())
	assert.Equal(t, 3, a.EndClipping())
	assert.Equal(t, before-cfg.MatchScoreOf(3), a.Score)
}

func TestTrimLaws(t *testing.T) {
	cfg := DefaultConfig()
	g := graph.NewHashDBG(3, "ACGTACGG")

	for n := 1; n <= 5; n++ {
		a := exactAlignment(t, g, cfg, "ACGTACGG", 0, 8)
		orig := len(a.QueryView())
		prefix, _ := trimScoreScans(a, g.K()-1, cfg)
		expectLoss := prefix[n]

		a.TrimQueryPrefix(n, g.K()-1, cfg)
		assert.Equal(t, orig-n, len(a.QueryView()), "n=%d", n)
		assert.Equal(t, cfg.MatchScoreOf(8)-expectLoss, a.Score, "n=%d", n)
	}
}

func TestAppendAdjacent(t *testing.T) {
	cfg := DefaultConfig()
	g := graph.NewHashDBG(3, "ACGTACGG")
	query := "ACGTACGG"

	a := exactAlignment(t, g, cfg, query, 0, 5)
	b := exactAlignment(t, g, cfg, query, 5, 8)

	a.Append(b, 0, cfg)
	require.NoError(t, a.IsValid(nil, cfg))
	assert.Equal(t, query, a.QueryView())
	assert.Equal(t, cfg.MatchScoreOf(8), a.Score)
	assert.Equal(t, "8=", a.Cigar.String())
}

func TestInsertGapPrefix(t *testing.T) {
	cfg := DefaultConfig()
	g := graph.NewHashDBG(3, "ACGTA", "CCGGT")
	query := "ACGTAXXCCGGT"

	b := exactAlignment(t, g, cfg, query, 7, 12)
	before := b.Score

	b.InsertGapPrefix(2, g.K()-1, cfg)
	assert.Equal(t, 5, b.Clipping())
	assert.Equal(t, "5S1G2I5=", b.Cigar.String())
	// the jump costs one node insertion plus the opened gap
	expected := before + cfg.NodeInsertionPenalty + cfg.GapOpenPenalty + cfg.GapExtendPenalty
	assert.Equal(t, expected, b.Score)
}

func TestSpliceRecordsLabelChange(t *testing.T) {
	cfg := DefaultConfig()
	g := graph.NewHashDBG(3, "ACGTACGG")
	query := "ACGTACGG"

	a := exactAlignment(t, g, cfg, query, 0, 5)
	a.LabelSet = []annotation.Column{1}
	b := exactAlignment(t, g, cfg, query, 5, 8)
	b.LabelSet = []annotation.Column{2}

	scoreA, scoreB := a.Score, b.Score
	a.Splice(b, -4, cfg)
	require.NoError(t, a.IsValid(nil, cfg))
	assert.Equal(t, scoreA+scoreB-4, a.Score)
}

func TestReverseComplementInvolution(t *testing.T) {
	cfg := DefaultConfig()
	base := graph.NewHashDBG(3, "ACGTT", graph.ReverseComplement("ACGTT"))
	c := graph.NewCanonical(base)

	query := "ACGTT"
	queryRC := graph.ReverseComplement(query)

	nodes := c.MapToNodes(query)
	s := &Seed{Query: query, Begin: 0, End: 5, Nodes: nodes}
	a := NewAlignmentFromSeed(s, cfg)
	original := *a
	originalNodes := append([]graph.NodeIndex(nil), a.Nodes...)

	a.ReverseComplement(c, queryRC, cfg)
	require.False(t, a.Empty())
	assert.True(t, a.Orientation)

	a.ReverseComplement(c, query, cfg)
	require.False(t, a.Empty())
	assert.False(t, a.Orientation)
	assert.Equal(t, originalNodes, a.Nodes)
	assert.Equal(t, original.QueryView(), a.QueryView())
	assert.Equal(t, original.Score, a.Score)
}
