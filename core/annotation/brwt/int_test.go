package brwt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/annodex/core/annotation"
)

func TestIntMatchesColumnValues(t *testing.T) {
	source := annotation.NewColumnValues(6,
		[][]Row{{0, 2, 5}, {1, 2}, {4}},
		[][]uint64{{10, 20, 30}, {1, 2}, {7}},
	)
	m, err := BuildInt(source, BuildConfig{Arity: 2})
	require.NoError(t, err)

	all := []Row{0, 1, 2, 3, 4, 5}
	want := source.GetRowValues(all)
	got := m.GetRowValues(all)
	for i := range all {
		assert.Equal(t, nonNilValues(want[i]), nonNilValues(got[i]), "row %d", i)
	}
}

func TestIntSerializeRoundTrip(t *testing.T) {
	source := annotation.NewColumnValues(6,
		[][]Row{{0, 2, 5}, {1, 2}},
		[][]uint64{{10, 20, 30}, {1, 2}},
	)
	m, err := BuildInt(source, BuildConfig{Arity: 2})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	loaded, err := LoadInt(&buf)
	require.NoError(t, err)

	all := []Row{0, 1, 2, 3, 4, 5}
	assert.Equal(t, m.GetRowValues(all), loaded.GetRowValues(all))
}

func TestNewIntValidates(t *testing.T) {
	source := annotation.NewColumnMajor(4, [][]Row{{0, 1}, {2}})
	m, err := Build(source, BuildConfig{Arity: 2})
	require.NoError(t, err)

	_, err = NewInt(m, [][]uint64{{1, 2}})
	assert.Error(t, err, "column count mismatch")
	_, err = NewInt(m, [][]uint64{{1}, {2}})
	assert.Error(t, err, "value count mismatch")
	_, err = NewInt(m, [][]uint64{{1, 2}, {3}})
	assert.NoError(t, err)
}

func nonNilValues(vals annotation.RowValues) annotation.RowValues {
	if vals == nil {
		return annotation.RowValues{}
	}
	return vals
}
