package annotation

import (
	"fmt"
	"io"
	"sort"

	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/serial"
)

// ColumnMajor stores one bit vector per label. It is the build-time source
// representation every transform starts from, and a queryable matrix in its
// own right.
type ColumnMajor struct {
	numRows uint64
	columns []bitvec.Vector
}

// NewColumnMajor builds a matrix from per-column sorted row lists.
func NewColumnMajor(numRows uint64, columns [][]Row) *ColumnMajor {
	m := &ColumnMajor{numRows: numRows, columns: make([]bitvec.Vector, len(columns))}
	for c, rows := range columns {
		m.columns[c] = bitvec.New(numRows, rows)
	}
	return m
}

// FromColumns wraps already-built column vectors.
func FromColumns(numRows uint64, columns []bitvec.Vector) *ColumnMajor {
	return &ColumnMajor{numRows: numRows, columns: columns}
}

func (m *ColumnMajor) NumRows() uint64    { return m.numRows }
func (m *ColumnMajor) NumColumns() uint64 { return uint64(len(m.columns)) }

func (m *ColumnMajor) NumRelations() uint64 {
	var n uint64
	for _, col := range m.columns {
		n += col.NumSetBits()
	}
	return n
}

func (m *ColumnMajor) Column(c Column) bitvec.Vector { return m.columns[c] }

func (m *ColumnMajor) Get(row Row, col Column) bool {
	return m.columns[col].Get(row)
}

func (m *ColumnMajor) GetRow(row Row) []Column {
	var cols []Column
	for c, v := range m.columns {
		if v.Get(row) {
			cols = append(cols, Column(c))
		}
	}
	return cols
}

func (m *ColumnMajor) GetRows(rows []Row) [][]Column {
	result := make([][]Column, len(rows))
	for i, row := range rows {
		result[i] = m.GetRow(row)
	}
	return result
}

func (m *ColumnMajor) GetColumn(col Column) []Row {
	rows := make([]Row, 0, m.columns[col].NumSetBits())
	m.columns[col].CallOnes(func(i uint64) { rows = append(rows, i) })
	return rows
}

func (m *ColumnMajor) Serialize(w io.Writer) error {
	if err := serial.WriteUint64(w, m.numRows); err != nil {
		return err
	}
	if err := serial.WriteUint64(w, uint64(len(m.columns))); err != nil {
		return err
	}
	for _, col := range m.columns {
		if err := col.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func LoadColumnMajor(r io.Reader) (*ColumnMajor, error) {
	numRows, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load column matrix rows: %w", err)
	}
	numCols, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load column matrix columns: %w", err)
	}
	m := &ColumnMajor{numRows: numRows, columns: make([]bitvec.Vector, numCols)}
	for c := range m.columns {
		if m.columns[c], err = bitvec.Load(r); err != nil {
			return nil, fmt.Errorf("load column %d: %w", c, err)
		}
	}
	return m, nil
}

// ColumnValues attaches one integer count per set bit to a column-major
// matrix. Counts for column c are indexed by the set bit's rank.
type ColumnValues struct {
	*ColumnMajor
	values [][]uint64
}

// NewColumnValues pairs per-column sorted row lists with their counts.
func NewColumnValues(numRows uint64, columns [][]Row, values [][]uint64) *ColumnValues {
	for c := range columns {
		if len(columns[c]) != len(values[c]) {
			panic(fmt.Sprintf("column %d: %d rows, %d values", c, len(columns[c]), len(values[c])))
		}
	}
	return &ColumnValues{ColumnMajor: NewColumnMajor(numRows, columns), values: values}
}

// ColumnData exposes one column's rank-indexed count array, for transforms
// that re-host the counts next to another binary representation.
func (m *ColumnValues) ColumnData(c Column) []uint64 {
	return m.values[c]
}

func (m *ColumnValues) GetRowValues(rows []Row) []RowValues {
	result := make([]RowValues, len(rows))
	for i, row := range rows {
		for c, v := range m.columns {
			if r := v.ConditionalRank1(row); r > 0 {
				result[i] = append(result[i], ColumnValue{Column(c), m.values[c][r-1]})
			}
		}
	}
	return result
}

func (m *ColumnValues) Serialize(w io.Writer) error {
	if err := m.ColumnMajor.Serialize(w); err != nil {
		return err
	}
	for _, vs := range m.values {
		if err := serial.WriteUint64Slice(w, vs); err != nil {
			return err
		}
	}
	return nil
}

func LoadColumnValues(r io.Reader) (*ColumnValues, error) {
	cm, err := LoadColumnMajor(r)
	if err != nil {
		return nil, err
	}
	values := make([][]uint64, cm.NumColumns())
	for c := range values {
		if values[c], err = serial.ReadUint64Slice(r); err != nil {
			return nil, fmt.Errorf("load values for column %d: %w", c, err)
		}
		if uint64(len(values[c])) != cm.columns[c].NumSetBits() {
			return nil, fmt.Errorf("column %d: %d values for %d set bits",
				c, len(values[c]), cm.columns[c].NumSetBits())
		}
	}
	return &ColumnValues{ColumnMajor: cm, values: values}, nil
}

// ColumnCoords attaches a sorted coordinate set per set bit. Coordinates for
// column c are stored flat; starts[r] delimits the set of the bit with rank
// r+1.
type ColumnCoords struct {
	*ColumnMajor
	starts [][]uint64 // per column, len = numSetBits + 1
	coords [][]uint64 // per column, flat coordinate storage
}

// NewColumnCoords pairs per-column sorted row lists with per-bit coordinate
// sets.
func NewColumnCoords(numRows uint64, columns [][]Row, tuples [][][]uint64) *ColumnCoords {
	m := &ColumnCoords{
		ColumnMajor: NewColumnMajor(numRows, columns),
		starts:      make([][]uint64, len(columns)),
		coords:      make([][]uint64, len(columns)),
	}
	for c := range columns {
		if len(columns[c]) != len(tuples[c]) {
			panic(fmt.Sprintf("column %d: %d rows, %d tuples", c, len(columns[c]), len(tuples[c])))
		}
		starts := make([]uint64, 1, len(tuples[c])+1)
		var flat []uint64
		for _, tuple := range tuples[c] {
			if !sort.SliceIsSorted(tuple, func(a, b int) bool { return tuple[a] < tuple[b] }) {
				panic("coordinate tuple not sorted")
			}
			flat = append(flat, tuple...)
			starts = append(starts, uint64(len(flat)))
		}
		m.starts[c] = starts
		m.coords[c] = flat
	}
	return m
}

func (m *ColumnCoords) NumAttributes() uint64 {
	var n uint64
	for _, flat := range m.coords {
		n += uint64(len(flat))
	}
	return n
}

func (m *ColumnCoords) tuple(c Column, rank uint64) Tuple {
	flat := m.coords[c][m.starts[c][rank-1]:m.starts[c][rank]]
	tuple := make(Tuple, len(flat))
	for i, v := range flat {
		tuple[i] = Coord(v)
	}
	return tuple
}

func (m *ColumnCoords) GetRowValues(rows []Row) []RowValues {
	tuples := m.GetRowTuples(rows)
	result := make([]RowValues, len(tuples))
	for i, row := range tuples {
		for _, ct := range row {
			result[i] = append(result[i], ColumnValue{ct.Column, uint64(len(ct.Tuple))})
		}
	}
	return result
}

func (m *ColumnCoords) GetRowTuples(rows []Row) []RowTuples {
	result := make([]RowTuples, len(rows))
	for i, row := range rows {
		for c, v := range m.columns {
			if r := v.ConditionalRank1(row); r > 0 {
				result[i] = append(result[i], ColumnTuple{Column(c), m.tuple(Column(c), r)})
			}
		}
	}
	return result
}

func (m *ColumnCoords) Serialize(w io.Writer) error {
	if err := m.ColumnMajor.Serialize(w); err != nil {
		return err
	}
	for c := range m.starts {
		if err := serial.WriteUint64Slice(w, m.starts[c]); err != nil {
			return err
		}
		if err := serial.WriteUint64Slice(w, m.coords[c]); err != nil {
			return err
		}
	}
	return nil
}

func LoadColumnCoords(r io.Reader) (*ColumnCoords, error) {
	cm, err := LoadColumnMajor(r)
	if err != nil {
		return nil, err
	}
	m := &ColumnCoords{
		ColumnMajor: cm,
		starts:      make([][]uint64, cm.NumColumns()),
		coords:      make([][]uint64, cm.NumColumns()),
	}
	for c := range m.starts {
		if m.starts[c], err = serial.ReadUint64Slice(r); err != nil {
			return nil, fmt.Errorf("load coordinate starts for column %d: %w", c, err)
		}
		if m.coords[c], err = serial.ReadUint64Slice(r); err != nil {
			return nil, fmt.Errorf("load coordinates for column %d: %w", c, err)
		}
		if uint64(len(m.starts[c])) != cm.columns[c].NumSetBits()+1 {
			return nil, fmt.Errorf("column %d: coordinate delimiters inconsistent", c)
		}
	}
	return m, nil
}
