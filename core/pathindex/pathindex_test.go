package pathindex

import (
	"bytes"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/annodex/core/graph"
)

// diamond builds the test-plan topology on 0-based ids: unitig 0 sources a
// bubble through branches 1 and 2 (each 10 bases) into terminus 3; unitig 4
// is unrelated.
func diamond(sourceLen uint64) *unitigGraph {
	return &unitigGraph{
		lengths:  []uint64{sourceLen, 10, 10, 7, 3},
		outgoing: [][]int{{1, 2}, {3}, {3}, nil, nil},
		incoming: [][]int{nil, {0}, {0}, {1, 2}, nil},
	}
}

func diamondIndex(t *testing.T, sourceLen uint64) *PathIndex {
	t.Helper()
	ug := diamond(sourceLen)
	sources, termini, isStart, canReach := indexSuperbubbles(ug, nil)
	p := &PathIndex{
		numUnitigs: 5,
		sbSources:  sources,
		sbTermini:  termini,
		isStart:    isStart,
		canReach:   canReach,
	}
	p.distMemo, _ = lru.New[[2]uint64, uint64](16)
	return p
}

func TestSuperbubbleIndexing(t *testing.T) {
	p := diamondIndex(t, 5)

	assert.True(t, p.IsSuperbubbleSource(1))
	assert.False(t, p.IsSuperbubbleSource(2))
	assert.False(t, p.IsSuperbubbleSource(5))

	term, dist := p.SuperbubbleTerminus(1)
	assert.Equal(t, uint64(4), term)
	assert.Equal(t, uint64(15), dist, "source length 5 plus branch length 10")

	sb, d := p.SuperbubbleAndDist(2)
	assert.Equal(t, uint64(1), sb)
	assert.Equal(t, uint64(5), d)

	sb, d = p.SuperbubbleAndDist(4)
	assert.Equal(t, uint64(1), sb)
	assert.Equal(t, uint64(15), d)

	sb, _ = p.SuperbubbleAndDist(5)
	assert.Equal(t, uint64(0), sb, "the unrelated unitig is in no bubble")
}

// Distance queries from the test plan: source to terminus is the branch
// walk, the two branches cannot reach each other, and the unrelated unitig
// is unreachable.
func TestGetDist(t *testing.T) {
	p := diamondIndex(t, 5)

	assert.Equal(t, uint64(15), p.GetDist(1, 4, 100), "len(source) + branch length")
	assert.Equal(t, uint64(5), p.GetDist(1, 2, 100))
	assert.Equal(t, uint64(10), p.GetDist(2, 4, 100))
	assert.Equal(t, Unreachable, p.GetDist(2, 3, 100))
	assert.Equal(t, Unreachable, p.GetDist(1, 5, 100))
	assert.Equal(t, uint64(0), p.GetDist(3, 3, 100))

	// the cap applies
	assert.Equal(t, Unreachable, p.GetDist(1, 4, 10))
}

func TestCallDists(t *testing.T) {
	p := diamondIndex(t, 5)
	var got []uint64
	p.CallDists(1, 4, 100, func(d uint64) { got = append(got, d) })
	assert.Equal(t, []uint64{15}, got)

	got = nil
	p.CallDists(2, 3, 100, func(d uint64) { got = append(got, d) })
	assert.Empty(t, got)
}

func TestDeterministicUnderParallelism(t *testing.T) {
	first, _, _, _ := indexSuperbubbles(diamond(5), nil)
	for trial := 0; trial < 5; trial++ {
		again, _, _, _ := indexSuperbubbles(diamond(5), nil)
		assert.Equal(t, first, again)
	}
}

func TestBuildFromGraph(t *testing.T) {
	// two paths sharing a fork: several unitigs, every node placed once
	g := graph.NewHashDBG(4, "AACCGGTTAC", "AACCGATTAC")
	p := Build(g, 100, nil)

	require.Greater(t, p.NumUnitigs(), uint64(1))

	// every node resolves to exactly one unitig placement, and the
	// placement's coordinate is inside the unitig
	nodes := make([]graph.NodeIndex, 0, g.MaxIndex())
	for n := graph.NodeIndex(1); n <= g.MaxIndex(); n++ {
		nodes = append(nodes, n)
	}
	placements := p.NodeCoords(nodes)
	for i, places := range placements {
		require.Len(t, places, 1, "node %d", nodes[i])
		pathID, offset := places[0][0], places[0][1]
		require.GreaterOrEqual(t, pathID, uint64(1))
		require.LessOrEqual(t, pathID, p.NumUnitigs())
		assert.Less(t, offset, p.PathLength(pathID))
	}

	// boundaries agree with the coordinate space
	for id := uint64(1); id <= p.NumUnitigs(); id++ {
		front, back := p.UnitigBoundary(id)
		assert.NotEqual(t, graph.NPos, front)
		assert.NotEqual(t, graph.NPos, back)
		assert.Equal(t, id, p.CoordToPathID(p.PathIDToCoord(id)))
	}
}

func TestPathIndexSerializeRoundTrip(t *testing.T) {
	g := graph.NewHashDBG(4, "AACCGGTTAC", "AACCGATTAC")
	p := Build(g, 100, nil)

	var buf bytes.Buffer
	require.NoError(t, p.Serialize(&buf))
	loaded, err := Load(&buf, g)
	require.NoError(t, err)

	require.Equal(t, p.NumUnitigs(), loaded.NumUnitigs())
	for a := uint64(1); a <= p.NumUnitigs(); a++ {
		for b := uint64(1); b <= p.NumUnitigs(); b++ {
			assert.Equal(t, p.GetDist(a, b, 1000), loaded.GetDist(a, b, 1000))
		}
	}

	nodes := []graph.NodeIndex{1, 2, 3}
	assert.Equal(t, p.NodeCoords(nodes), loaded.NodeCoords(nodes))
}
