package rowdiff

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/graph"
)

// chainGraph builds a graph spelling one linear path of n nodes, so row i's
// successor is row i+1 and the last row is the only sink.
func chainGraph(t *testing.T, n int) *graph.HashDBG {
	t.Helper()
	seq := make([]byte, 0, n+2)
	// a non-repeating 3-mer walk over ACGT
	bases := "ACGT"
	for i := 0; i < n+2; i++ {
		seq = append(seq, bases[i%4])
	}
	g := graph.NewHashDBG(3, string(seq))
	require.Equal(t, uint64(n), g.MaxIndex())
	return g
}

func TestEncodeDecodeDiff(t *testing.T) {
	for _, x := range []int64{1, -1, 2, -2, 100, -100, 1 << 40, -(1 << 40)} {
		assert.Equal(t, x, DecodeDiff(EncodeDiff(x)), "x=%d", x)
	}
	// zero deltas are never stored
	assert.Panics(t, func() { EncodeDiff(0) })
}

// The worked chain from the test plan: rows r0 -> r1 -> r2 anchored at r2,
// rows r0={A,B}, r1={B,C}, r2={C}. Stored deltas must be r0={A,C}, r1={B},
// r2={C}, and reconstruction must return the originals.
func TestBinaryChainOfThree(t *testing.T) {
	g := chainGraph(t, 3)

	source := annotation.NewColumnMajor(3, [][]Row{
		{0},    // A
		{0, 1}, // B
		{1, 2}, // C
	})

	routing := BuildRouting(g, 100, nil)
	require.True(t, routing.Anchor.Get(2))
	require.False(t, routing.Anchor.Get(0))
	require.False(t, routing.Anchor.Get(1))

	m := TransformBinary(g, routing, source)

	// stored deltas: {A,B} xor {B,C} = {A,C}, {B,C} xor {C} = {B}
	assert.Equal(t, []Column{0, 2}, m.Diffs().GetRow(0))
	assert.Equal(t, []Column{1}, m.Diffs().GetRow(1))
	assert.Equal(t, []Column{2}, m.Diffs().GetRow(2))

	// reconstruction
	assert.Equal(t, []Column{0, 1}, m.GetRow(0))
	assert.Equal(t, []Column{1, 2}, m.GetRow(1))
	assert.Equal(t, []Column{2}, m.GetRow(2))

	// anchors store the absolute row
	assert.Equal(t, source.GetRow(2), m.Diffs().GetRow(2))
}

func TestBinaryMatchesSourceOnBranchingGraph(t *testing.T) {
	g := graph.NewHashDBG(4, "ACGTACCGGTTA", "ACGTAGGCATCA", "TTTTTT")
	numRows := g.MaxIndex()

	columns := [][]Row{nil, nil, nil}
	for row := Row(0); row < numRows; row++ {
		columns[row%3] = append(columns[row%3], row)
		if row%5 == 0 {
			columns[(row+1)%3] = append(columns[(row+1)%3], row)
		}
	}
	for c := range columns {
		dedupSorted(&columns[c])
	}
	source := annotation.NewColumnMajor(numRows, columns)

	for _, maxPath := range []int{1, 2, 100} {
		routing := BuildRouting(g, maxPath, nil)
		m := TransformBinary(g, routing, source)

		for row := Row(0); row < numRows; row++ {
			assert.Equal(t, source.GetRow(row), nonEmpty(m.GetRow(row)), "maxPath=%d row=%d", maxPath, row)
		}
		for col := Column(0); col < source.NumColumns(); col++ {
			assert.Equal(t, source.GetColumn(col), m.GetColumn(col), "maxPath=%d col=%d", maxPath, col)
		}

		// batched equals repeated single-row queries
		all := make([]Row, numRows)
		for i := range all {
			all[i] = Row(i)
		}
		batched := m.GetRows(all)
		for i, row := range all {
			assert.Equal(t, m.GetRow(row), batched[i])
		}
	}
}

func TestRoutingBreaksCycles(t *testing.T) {
	// CGCGCG... spells a 2-cycle between CGC and GCG
	g := graph.NewHashDBG(3, "CGCGC")
	routing := BuildRouting(g, 100, nil)

	anchors := 0
	for row := Row(0); row < g.MaxIndex(); row++ {
		if routing.Anchor.Get(row) {
			anchors++
		}
	}
	require.Greater(t, anchors, 0, "a cycle needs at least one anchor")

	source := annotation.NewColumnMajor(g.MaxIndex(), [][]Row{{0}, {1}})
	m := TransformBinary(g, routing, source)
	assert.Equal(t, []Column{0}, m.GetRow(0))
	assert.Equal(t, []Column{1}, m.GetRow(1))
}

func TestIntRowDiff(t *testing.T) {
	g := chainGraph(t, 4)

	source := annotation.NewColumnValues(4,
		[][]Row{{0, 1, 2}, {1, 3}},
		[][]uint64{{7, 7, 2}, {5, 9}},
	)

	routing := BuildRouting(g, 2, nil)
	m := TransformInt(g, routing, source)

	all := []Row{0, 1, 2, 3}
	want := source.GetRowValues(all)
	got := m.GetRowValues(all)
	for i := range all {
		assert.Equal(t, want[i], nonEmptyValues(got[i]), "row %d", i)
	}
}

func TestTupleRowDiff(t *testing.T) {
	g := chainGraph(t, 4)

	// one labeled reference passing through rows 0..3 at coordinates 10..13,
	// plus a second label on rows 1 and 2
	source := annotation.NewColumnCoords(4,
		[][]Row{{0, 1, 2, 3}, {1, 2}},
		[][][]uint64{
			{{10}, {11}, {12}, {13}},
			{{100}, {101}},
		},
	)

	routing := BuildRouting(g, 100, nil)
	m := TransformTuple(g, routing, source)

	all := []Row{0, 1, 2, 3}
	want := source.GetRowTuples(all)
	got := m.GetRowTuples(all)
	for i := range all {
		assert.Equal(t, want[i], got[i], "row %d", i)
	}
}

func TestTupleRowDiffSerializeRoundTrip(t *testing.T) {
	g := chainGraph(t, 4)
	source := annotation.NewColumnCoords(4,
		[][]Row{{0, 1, 2, 3}},
		[][][]uint64{{{10}, {11}, {12}, {13}}},
	)
	routing := BuildRouting(g, 100, nil)
	m := TransformTuple(g, routing, source)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	require.Equal(t, Magic, string(buf.Bytes()[:4]))

	loaded, err := LoadTuple(&buf, func(r io.Reader) (annotation.MultiIntMatrix, error) {
		return annotation.LoadColumnCoords(r)
	})
	require.NoError(t, err)
	loaded.SetGraph(g)

	all := []Row{0, 1, 2, 3}
	assert.Equal(t, m.GetRowTuples(all), loaded.GetRowTuples(all))
}

func TestGetRowTupleDiffs(t *testing.T) {
	g := chainGraph(t, 4)
	source := annotation.NewColumnCoords(4,
		[][]Row{{0, 1, 2, 3}},
		[][][]uint64{{{10}, {11}, {12}, {13}}},
	)
	routing := BuildRouting(g, 100, nil)
	m := TransformTuple(g, routing, source)

	all := []Row{0, 1, 2, 3}
	diffs := m.GetRowTupleDiffs(all, nil)
	require.Len(t, diffs, 4)

	// the first row is absolute
	assert.Equal(t, annotation.RowTuples{{Column: 0, Tuple: annotation.Tuple{10}}}, diffs[0])
	// consecutive rows walk the same reference, so the shifted symmetric
	// difference is empty
	for i := 1; i < 4; i++ {
		assert.Empty(t, diffs[i], "row %d", i)
	}

	// supplying the first tuple skips its chain walk but returns it verbatim
	first := annotation.RowTuples{{Column: 0, Tuple: annotation.Tuple{10}}}
	withFirst := m.GetRowTupleDiffs(all, &first)
	assert.Equal(t, diffs[0], withFirst[0])
	assert.Equal(t, diffs[1:], withFirst[1:])
}

func dedupSorted(rows *[]Row) {
	in := *rows
	for i := 1; i < len(in); i++ {
		for j := i; j > 0 && in[j] < in[j-1]; j-- {
			in[j], in[j-1] = in[j-1], in[j]
		}
	}
	out := in[:0]
	for i, r := range in {
		if i == 0 || r != in[i-1] {
			out = append(out, r)
		}
	}
	*rows = out
}

func nonEmpty(cols []Column) []Column {
	if cols == nil {
		return []Column{}
	}
	return cols
}

func nonEmptyValues(vals annotation.RowValues) annotation.RowValues {
	if vals == nil {
		return annotation.RowValues{}
	}
	return vals
}
