package align

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/graph"
)

func labeledAlignment(t *testing.T, g *graph.HashDBG, cfg *Config, query string,
	begin, end int, cols ...annotation.Column) Alignment {
	t.Helper()
	a := exactAlignment(t, g, cfg, query, begin, end)
	a.LabelSet = cols
	return *a
}

func chainTestConfig(k int) *Config {
	cfg := DefaultConfig()
	cfg.MinSeedLength = k
	cfg.LabelChangeScore = -1
	cfg.AllowJump = true
	return cfg
}

// Forbidden label change: with the oracle returning no admissible
// transition, two differently-labeled alignments must come back separately,
// never as one chain.
func TestForbiddenLabelChange(t *testing.T) {
	g := graph.NewHashDBG(3, "ACGTACGGTTAC")
	cfg := chainTestConfig(g.K())
	cfg.LabelChangeScore = NInf
	query := "ACGTACGGTTAC"

	a := labeledAlignment(t, g, cfg, query, 0, 6, 1)
	b := labeledAlignment(t, g, cfg, query, 6, 12, 2)

	scorer := &LabelChangeScorer{Config: cfg}
	var out []Alignment
	ChainAlignments(g, cfg, scorer, []Alignment{a, b}, func(res Alignment) {
		out = append(out, res)
	}, nil)

	require.Len(t, out, 2)
	for i := range out {
		assert.Len(t, out[i].Columns(), 1, "no chained label sets")
		assert.NotContains(t, out[i].Cigar.String(), "G", "no splices")
	}
}

// The same two pieces chain once the label change is merely penalized.
func TestAllowedLabelChangeChains(t *testing.T) {
	g := graph.NewHashDBG(3, "ACGTACGGTTAC")
	cfg := chainTestConfig(g.K())
	query := "ACGTACGGTTAC"

	a := labeledAlignment(t, g, cfg, query, 0, 6, 1)
	b := labeledAlignment(t, g, cfg, query, 6, 12, 2)

	scorer := &LabelChangeScorer{Config: cfg}
	var out []Alignment
	ChainAlignments(g, cfg, scorer, []Alignment{a, b}, func(res Alignment) {
		out = append(out, res)
	}, nil)

	require.NotEmpty(t, out)
	best := out[0]
	for i := range out {
		if out[i].Score > best.Score {
			best = out[i]
		}
	}
	assert.Equal(t, query, best.QueryView(), "the chain spans the query")
	require.NoError(t, best.IsValid(nil, cfg))
	// the label change cost is carried in the extra scores, and the chain
	// continues under the union of the two label sets
	assert.Contains(t, best.ExtraScores, cfg.LabelChangeScore)
	assert.Equal(t, []annotation.Column{1, 2}, best.Columns())
}

// Three alignments where the middle one is graph-discontiguous from the
// first: a jump chains all three; without jumps only the contiguous suffix
// pair chains.
func TestChainWithJump(t *testing.T) {
	part1 := "ACGTAACCGGT"
	part2 := "TTGGCCAATGCA"
	g := graph.NewHashDBG(5, part1, part2)
	query := part1 + part2 // part2 starts at query position 11

	cfg := chainTestConfig(g.K())

	// A covers part1; B and C overlap by k-1 inside part2, but B is
	// graph-discontiguous from A
	a := labeledAlignment(t, g, cfg, query, 0, 11, 1)
	b := labeledAlignment(t, g, cfg, query, 11, 17, 1)
	c := labeledAlignment(t, g, cfg, query, 13, 23, 1)

	run := func(allowJump bool) []Alignment {
		cfg := chainTestConfig(g.K())
		cfg.AllowJump = allowJump
		scorer := &LabelChangeScorer{Config: cfg}
		var out []Alignment
		ChainAlignments(g, cfg, scorer, []Alignment{a, b, c},
			func(res Alignment) { out = append(out, res) }, nil)
		return out
	}

	withJump := run(true)
	var full *Alignment
	for i := range withJump {
		if withJump[i].QueryView() == query {
			full = &withJump[i]
		}
	}
	require.NotNil(t, full, "allow_jump chains A, B and C into one alignment")
	assert.True(t, strings.Contains(full.Cigar.String(), "G"), "the jump leaves a NODE_INSERTION")
	require.NoError(t, full.IsValid(nil, cfg))
	// C loses its 4-character overlap prefix to the splice trim; the jump
	// costs one node insertion
	assert.Equal(t,
		a.Score+b.Score+c.Score-cfg.MatchScoreOf(4)+cfg.NodeInsertionPenalty,
		full.Score)

	noJump := run(false)
	for i := range noJump {
		assert.NotEqual(t, query, noJump[i].QueryView(),
			"without jumps the discontiguous prefix cannot join")
	}
	// the contiguous pair B-C still chains
	var joined bool
	for i := range noJump {
		if noJump[i].QueryView() == query[11:] {
			joined = true
		}
	}
	assert.True(t, joined)
}

func TestPassThroughFullWidthAlignments(t *testing.T) {
	g := graph.NewHashDBG(3, "ACGTAC")
	cfg := chainTestConfig(g.K())
	query := "ACGTAC"

	full := labeledAlignment(t, g, cfg, query, 0, len(query), 1)
	other := labeledAlignment(t, g, cfg, query, 0, 4, 2)

	var out []Alignment
	ChainAlignments(g, cfg, &LabelChangeScorer{Config: cfg},
		[]Alignment{full, other}, func(res Alignment) { out = append(out, res) }, nil)
	assert.Len(t, out, 2, "unclipped alignments pass through untouched")
}

func TestLabelChangeScorerContract(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LabelChangeScore = -5
	scorer := &LabelChangeScorer{Config: cfg}

	// equal sets and supersets are free
	_, score, ok := scorer.Score('A', []annotation.Column{1, 2}, []annotation.Column{1, 2})
	require.True(t, ok)
	assert.Equal(t, Score(0), score)

	_, score, ok = scorer.Score('A', []annotation.Column{1, 2, 3}, []annotation.Column{2})
	require.True(t, ok)
	assert.Equal(t, Score(0), score)

	// disjoint sets pay the constant without sketches
	_, score, ok = scorer.Score('A', []annotation.Column{1}, []annotation.Column{2})
	require.True(t, ok)
	assert.Equal(t, Score(-5), score)

	// the sentinel forbids
	_, _, ok = scorer.Score(graph.Sentinel, []annotation.Column{1}, []annotation.Column{2})
	assert.False(t, ok)

	// NInf forbids
	cfg.LabelChangeScore = NInf
	_, _, ok = scorer.Score('A', []annotation.Column{1}, []annotation.Column{2})
	assert.False(t, ok)
}
