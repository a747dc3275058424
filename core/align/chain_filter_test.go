package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/annodex/core/graph"
	"github.com/adalundhe/annodex/core/pathindex"
)

func TestChainAndFilterSeedsSameUnitig(t *testing.T) {
	cfg := testChainConfig()
	query := "AACCGGTTACGT"
	g := graph.NewHashDBG(4, query)
	pi := pathindex.Build(g, 100, nil)
	require.Equal(t, uint64(1), pi.NumUnitigs())

	s1 := Seed{Query: query, Begin: 0, End: 5, Nodes: g.MapToNodes(query[0:5])}
	s2 := Seed{Query: query, Begin: 5, End: 10, Nodes: g.MapToNodes(query[5:10])}

	var chains []Chain
	numSeeds, ok := ChainAndFilterSeeds(cfg, pi, query, []Seed{s1, s2},
		func(c Chain, _ Score) bool {
			chains = append(chains, c)
			return true
		}, nil)
	require.True(t, ok)
	assert.Equal(t, 2, numSeeds)
	require.NotEmpty(t, chains)
	assert.Len(t, chains[0], 2, "same-unitig seeds with matching gaps chain")
}

func TestChainAndFilterSeedsUnreachable(t *testing.T) {
	cfg := testChainConfig()
	// two disconnected components: no graph path between the seeds
	part1 := "AACCGGTT"
	part2 := "TTTTAAAC"
	g := graph.NewHashDBG(4, part1, part2)
	pi := pathindex.Build(g, 100, nil)

	query := part1 + part2
	s1 := Seed{Query: query, Begin: 0, End: 8, Nodes: g.MapToNodes(part1)}
	s2 := Seed{Query: query, Begin: 8, End: 16, Nodes: g.MapToNodes(part2)}

	var chains []Chain
	_, _ = ChainAndFilterSeeds(cfg, pi, query, []Seed{s1, s2},
		func(c Chain, _ Score) bool {
			chains = append(chains, c)
			return true
		}, nil)
	for _, c := range chains {
		assert.Len(t, c, 1, "seeds on unreachable unitigs must not chain")
	}
}
