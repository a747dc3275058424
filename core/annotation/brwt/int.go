package brwt

import (
	"fmt"
	"io"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/serial"
)

// Int attaches one integer count per set bit to a Multi-BRWT matrix. The
// column ranks the tree reports index the per-column value arrays, so the
// counts live outside the tree and the batched rank queries stay untouched.
type Int struct {
	*Matrix
	values [][]uint64 // per column, indexed by the set bit's rank - 1
}

// NewInt pairs a built tree with per-column value arrays.
func NewInt(m *Matrix, values [][]uint64) (*Int, error) {
	if uint64(len(values)) != m.NumColumns() {
		return nil, fmt.Errorf("brwt: %d value columns for %d matrix columns",
			len(values), m.NumColumns())
	}
	for c := range values {
		if got := uint64(len(m.GetColumn(Column(c)))); got != uint64(len(values[c])) {
			return nil, fmt.Errorf("brwt: column %d has %d set bits but %d values",
				c, got, len(values[c]))
		}
	}
	return &Int{Matrix: m, values: values}, nil
}

// BuildInt constructs the tree from an integer column matrix and carries
// its counts over; ranks within a column are preserved by the tree.
func BuildInt(source *annotation.ColumnValues, cfg BuildConfig) (*Int, error) {
	m, err := Build(source.ColumnMajor, cfg)
	if err != nil {
		return nil, err
	}
	values := make([][]uint64, source.NumColumns())
	for c := range values {
		values[c] = source.ColumnData(Column(c))
	}
	return NewInt(m, values)
}

func (m *Int) GetRowValues(rows []Row) []annotation.RowValues {
	result := m.GetRowsRanks(rows)
	for _, row := range result {
		for i, cr := range row {
			row[i].Value = m.values[cr.Column][cr.Value-1]
		}
	}
	return result
}

func (m *Int) Serialize(w io.Writer) error {
	if err := m.Matrix.Serialize(w); err != nil {
		return err
	}
	for _, vs := range m.values {
		if err := serial.WriteUint64Slice(w, vs); err != nil {
			return err
		}
	}
	return nil
}

func LoadInt(r io.Reader) (*Int, error) {
	m, err := Load(r)
	if err != nil {
		return nil, err
	}
	values := make([][]uint64, m.NumColumns())
	for c := range values {
		if values[c], err = serial.ReadUint64Slice(r); err != nil {
			return nil, fmt.Errorf("load brwt values for column %d: %w", c, err)
		}
	}
	return NewInt(m, values)
}

var _ annotation.IntMatrix = (*Int)(nil)
