package brwt

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/annodex/core/annotation"
)

// the 4x4 matrix from the test plan: r0={A}, r1={B,D}, r2={}, r3={A,C}
func fourByFour(t *testing.T) (*annotation.ColumnMajor, *Matrix) {
	t.Helper()
	source := annotation.NewColumnMajor(4, [][]Row{
		{0, 3}, // A
		{1},    // B
		{3},    // C
		{1},    // D
	})
	m, err := Build(source, BuildConfig{Arity: 2})
	require.NoError(t, err)
	return source, m
}

func TestFourByFour(t *testing.T) {
	_, m := fourByFour(t)

	require.Equal(t, uint64(4), m.NumRows())
	require.Equal(t, uint64(4), m.NumColumns())
	require.Equal(t, uint64(5), m.NumRelations())

	assert.Equal(t, []Column{1, 3}, m.GetRow(1))
	assert.Equal(t, []Column{0, 2}, m.GetRow(3))
	assert.Empty(t, m.GetRow(2))

	assert.Equal(t, []Row{0, 3}, m.GetColumn(0))
	assert.Equal(t, []Row{1}, m.GetColumn(3))
}

func TestSerializeLoadPreserves(t *testing.T) {
	_, m := fourByFour(t)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)

	for row := Row(0); row < 4; row++ {
		assert.Equal(t, m.GetRow(row), loaded.GetRow(row))
	}
	for col := Column(0); col < 4; col++ {
		assert.Equal(t, m.GetColumn(col), loaded.GetColumn(col))
	}
}

func TestLoadRejectsBadChildCount(t *testing.T) {
	_, m := fourByFour(t)
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	// the child count is the first u64 after assignments and filter; build a
	// corrupted stream by serializing a node whose count field is patched
	raw := buf.Bytes()
	corrupt := &Matrix{assignments: m.assignments, nonzeroRows: m.nonzeroRows}
	var head bytes.Buffer
	require.NoError(t, corrupt.assignments.Serialize(&head))
	require.NoError(t, corrupt.nonzeroRows.Serialize(&head))
	patched := append([]byte(nil), head.Bytes()...)
	patched = append(patched, 3, 0, 0, 0, 0, 0, 0, 0) // claims 3 children for 2 groups
	patched = append(patched, raw[head.Len()+8:]...)

	_, err := Load(bytes.NewReader(patched))
	require.Error(t, err)
}

func randomMatrix(t *testing.T, rng *rand.Rand, numRows uint64, numCols, density int) *annotation.ColumnMajor {
	t.Helper()
	columns := make([][]Row, numCols)
	for c := range columns {
		seen := make(map[Row]bool)
		for i := 0; i < density; i++ {
			seen[rng.Uint64()%numRows] = true
		}
		for r := range seen {
			columns[c] = append(columns[c], r)
		}
		rows := columns[c]
		for i := 1; i < len(rows); i++ {
			for j := i; j > 0 && rows[j] < rows[j-1]; j-- {
				rows[j], rows[j-1] = rows[j-1], rows[j]
			}
		}
	}
	return annotation.NewColumnMajor(numRows, columns)
}

func TestAgainstColumnMajor(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	source := randomMatrix(t, rng, 300, 17, 40)

	for _, arity := range []int{2, 3, 5} {
		m, err := Build(source, BuildConfig{Arity: arity})
		require.NoError(t, err)

		require.Equal(t, source.NumRows(), m.NumRows())
		require.Equal(t, source.NumColumns(), m.NumColumns())
		require.Equal(t, source.NumRelations(), m.NumRelations())

		for row := Row(0); row < source.NumRows(); row++ {
			assert.Equal(t, nonNil(source.GetRow(row)), nonNil(m.GetRow(row)), "arity %d row %d", arity, row)
			for col := Column(0); col < source.NumColumns(); col++ {
				assert.Equal(t, source.Get(row, col), m.Get(row, col))
			}
		}
		for col := Column(0); col < source.NumColumns(); col++ {
			assert.Equal(t, source.GetColumn(col), nonNilRows(m.GetColumn(col)))
		}
	}
}

func TestGetRowsMatchesGetRow(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	source := randomMatrix(t, rng, 1000, 9, 300)
	m, err := Build(source, BuildConfig{Arity: 3})
	require.NoError(t, err)

	// consecutive runs exercise the 64-bit window path, scattered rows the
	// single-probe path
	rows := []Row{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 64, 65, 127, 500, 999}
	batched := m.GetRows(rows)
	require.Len(t, batched, len(rows))
	for i, row := range rows {
		assert.Equal(t, nonNil(m.GetRow(row)), nonNil(batched[i]), "row %d", row)
	}
}

func TestGetColumnRanks(t *testing.T) {
	_, m := fourByFour(t)

	ranks := m.GetColumnRanks(3)
	require.Len(t, ranks, 2)
	// r3 holds A (second set bit of column A) and C (first of column C)
	assert.Equal(t, annotation.ColumnValue{Column: 0, Value: 2}, ranks[0])
	assert.Equal(t, annotation.ColumnValue{Column: 2, Value: 1}, ranks[1])
}

func nonNil(cols []Column) []Column {
	if cols == nil {
		return []Column{}
	}
	return cols
}

func nonNilRows(rows []Row) []Row {
	if rows == nil {
		return []Row{}
	}
	return rows
}
