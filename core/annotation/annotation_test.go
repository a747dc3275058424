package annotation

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelEncoderRoundTrip(t *testing.T) {
	e := NewLabelEncoder()
	require.Equal(t, Column(0), e.InsertAndEncode("sample_a"))
	require.Equal(t, Column(1), e.InsertAndEncode("sample_b"))
	require.Equal(t, Column(0), e.InsertAndEncode("sample_a"))
	require.Equal(t, uint64(2), e.Size())

	c, ok := e.Encode("sample_b")
	require.True(t, ok)
	assert.Equal(t, Column(1), c)
	_, ok = e.Encode("missing")
	assert.False(t, ok)
	assert.Equal(t, "sample_a", e.Decode(0))

	var buf bytes.Buffer
	require.NoError(t, e.Serialize(&buf))
	loaded := NewLabelEncoder()
	require.NoError(t, loaded.Load(&buf))
	assert.Equal(t, e.Labels(), loaded.Labels())
}

func TestLabelEncoderMerge(t *testing.T) {
	a, b := NewLabelEncoder(), NewLabelEncoder()
	a.InsertAndEncode("x")
	b.InsertAndEncode("y")
	b.InsertAndEncode("x")
	a.Merge(b)
	assert.Equal(t, []string{"x", "y"}, a.Labels())
}

func TestLabelEncoderRename(t *testing.T) {
	e := NewLabelEncoder()
	e.InsertAndEncode("a")
	e.InsertAndEncode("b")

	// unknown source labels warn and are skipped
	require.NoError(t, e.Rename(map[string]string{"a": "a2", "zzz": "ignored"}, slog.Default()))
	assert.Equal(t, []string{"a2", "b"}, e.Labels())

	// duplicate target names are a hard error and leave the encoder intact
	require.Error(t, e.Rename(map[string]string{"a2": "b"}, slog.Default()))
	assert.Equal(t, []string{"a2", "b"}, e.Labels())
}

func TestColumnMajorDuality(t *testing.T) {
	m := NewColumnMajor(4, [][]Row{
		{0, 3}, // A
		{1},    // B
		{3},    // C
		{1},    // D
	})
	require.Equal(t, uint64(5), m.NumRelations())

	// get(r, c) == (get_row(r) contains c) == (get_column(c) contains r)
	for r := Row(0); r < m.NumRows(); r++ {
		rowCols := m.GetRow(r)
		for c := Column(0); c < m.NumColumns(); c++ {
			inRow := ContainsColumn(rowCols, c)
			inCol := false
			for _, cr := range m.GetColumn(c) {
				if cr == r {
					inCol = true
				}
			}
			assert.Equal(t, m.Get(r, c), inRow)
			assert.Equal(t, m.Get(r, c), inCol)
		}
	}

	batched := m.GetRows([]Row{0, 1, 2, 3})
	for r := Row(0); r < 4; r++ {
		assert.Equal(t, m.GetRow(r), batched[r])
	}
}

func TestColumnMajorSerializeRoundTrip(t *testing.T) {
	m := NewColumnMajor(100, [][]Row{{5, 50, 99}, {0}, nil})
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	loaded, err := LoadColumnMajor(&buf)
	require.NoError(t, err)
	for r := Row(0); r < 100; r++ {
		assert.Equal(t, m.GetRow(r), loaded.GetRow(r))
	}
	for c := Column(0); c < 3; c++ {
		assert.Equal(t, m.GetColumn(c), loaded.GetColumn(c))
	}
}

func TestColumnValues(t *testing.T) {
	m := NewColumnValues(5,
		[][]Row{{0, 2}, {2, 4}},
		[][]uint64{{7, 9}, {1, 3}},
	)
	values := m.GetRowValues([]Row{0, 1, 2, 3, 4})
	assert.Equal(t, RowValues{{0, 7}}, values[0])
	assert.Empty(t, values[1])
	assert.Equal(t, RowValues{{0, 9}, {1, 1}}, values[2])
	assert.Equal(t, RowValues{{1, 3}}, values[4])

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	loaded, err := LoadColumnValues(&buf)
	require.NoError(t, err)
	assert.Equal(t, values, loaded.GetRowValues([]Row{0, 1, 2, 3, 4}))
}

func TestColumnCoords(t *testing.T) {
	m := NewColumnCoords(4,
		[][]Row{{0, 1}, {1}},
		[][][]uint64{{{10, 20}, {11}}, {{5}}},
	)
	require.Equal(t, uint64(4), m.NumAttributes())

	tuples := m.GetRowTuples([]Row{0, 1, 2})
	assert.Equal(t, RowTuples{{0, Tuple{10, 20}}}, tuples[0])
	assert.Equal(t, RowTuples{{0, Tuple{11}}, {1, Tuple{5}}}, tuples[1])
	assert.Empty(t, tuples[2])

	// row values report coordinate counts
	values := m.GetRowValues([]Row{0, 1})
	assert.Equal(t, RowValues{{0, 2}}, values[0])
	assert.Equal(t, RowValues{{0, 1}, {1, 1}}, values[1])

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	loaded, err := LoadColumnCoords(&buf)
	require.NoError(t, err)
	assert.Equal(t, tuples, loaded.GetRowTuples([]Row{0, 1, 2}))
}

func TestRowCache(t *testing.T) {
	inner := NewColumnMajor(10, [][]Row{{1, 2, 3}, {3, 4}})
	cached, err := NewRowCache(inner, 100)
	require.NoError(t, err)
	defer cached.Close()

	for trial := 0; trial < 3; trial++ {
		assert.Equal(t, inner.GetRow(3), cached.GetRow(3))
		rows := []Row{0, 1, 2, 3, 4}
		assert.Equal(t, inner.GetRows(rows), cached.GetRows(rows))
	}
	assert.Equal(t, inner.GetColumn(1), cached.GetColumn(1))
}

func TestSplitSlice(t *testing.T) {
	slice := []Column{1, 3, ColumnSentinel, ColumnSentinel, 0, ColumnSentinel}
	rows := SplitSlice(slice, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, []Column{1, 3}, rows[0])
	assert.Empty(t, rows[1])
	assert.Equal(t, []Column{0}, rows[2])
}
