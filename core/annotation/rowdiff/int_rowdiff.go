package rowdiff

import (
	"fmt"
	"io"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/graph"
)

// EncodeDiff folds a nonzero signed delta into an unsigned storage code so
// zero deltas never need a stored cell: +1,-1,+2,-2,... map to 0,1,2,3,...
func EncodeDiff(x int64) uint64 {
	if x == 0 {
		panic("rowdiff: zero delta must not be stored")
	}
	if x < 0 {
		return uint64(-x-1)*2 + 1
	}
	return uint64(x-1) * 2
}

// DecodeDiff is the inverse of EncodeDiff.
func DecodeDiff(c uint64) int64 {
	if c&1 == 0 {
		return int64(c/2) + 1
	}
	return -int64((c + 1) / 2)
}

// rowDelta is one cell of a decoded integer delta row.
type rowDelta struct {
	Column Column
	Value  int64
}

// Int wraps a base integer matrix storing signed count deltas.
type Int struct {
	transform
	diffs annotation.IntMatrix
}

func NewInt(g graph.DeBruijnGraph, anchor, forkSucc bitvec.Vector, diffs annotation.IntMatrix) *Int {
	return &Int{transform{g, anchor, forkSucc}, diffs}
}

func (m *Int) Diffs() annotation.IntMatrix { return m.diffs }

func (m *Int) NumRows() uint64      { return m.diffs.NumRows() }
func (m *Int) NumColumns() uint64   { return m.diffs.NumColumns() }
func (m *Int) NumRelations() uint64 { return m.diffs.NumRelations() }

func (m *Int) Get(row Row, col Column) bool {
	return annotation.ContainsColumn(m.GetRow(row), col)
}

func (m *Int) GetRow(row Row) []Column {
	return m.GetRows([]Row{row})[0]
}

func (m *Int) GetRows(rows []Row) [][]Column {
	values := m.GetRowValues(rows)
	result := make([][]Column, len(values))
	for i, row := range values {
		cols := make([]Column, len(row))
		for j, cv := range row {
			cols[j] = cv.Column
		}
		result[i] = cols
	}
	return result
}

// GetRowValues reconstructs absolute counts by summing decoded deltas along
// each truncated successor path. Sums are trusted not to overflow.
func (m *Int) GetRowValues(rows []Row) []annotation.RowValues {
	rdIDs, paths := m.collectPaths(rows)

	stored := m.diffs.GetRowValues(rdIDs)
	decoded := make([][]rowDelta, len(stored))
	for i, row := range stored {
		decoded[i] = make([]rowDelta, len(row))
		for j, cv := range row {
			decoded[i][j] = rowDelta{cv.Column, DecodeDiff(cv.Value)}
		}
	}

	result := make([]annotation.RowValues, len(rows))
	for i := range rows {
		path := paths[i]
		row := decoded[path[len(path)-1]]
		for j := len(path) - 2; j >= 0; j-- {
			row = addIntDiff(decoded[path[j]], row)
			decoded[path[j]] = row
		}
		values := make(annotation.RowValues, 0, len(row))
		for _, cd := range row {
			values = append(values, annotation.ColumnValue{Column: cd.Column, Value: uint64(cd.Value)})
		}
		result[i] = values
	}
	return result
}

func (m *Int) GetColumn(col Column) []Row {
	var result []Row
	const batch = 1024
	for begin := Row(0); begin < m.NumRows(); begin += batch {
		end := min(begin+batch, m.NumRows())
		rows := make([]Row, 0, end-begin)
		for r := begin; r < end; r++ {
			rows = append(rows, r)
		}
		for i, cols := range m.GetRows(rows) {
			if annotation.ContainsColumn(cols, col) {
				result = append(result, rows[i])
			}
		}
	}
	return result
}

func (m *Int) Serialize(w io.Writer) error {
	if err := m.serializeHeader(w); err != nil {
		return err
	}
	return m.diffs.Serialize(w)
}

func LoadInt(r io.Reader, loadBase func(io.Reader) (annotation.IntMatrix, error)) (*Int, error) {
	m := &Int{}
	if err := m.loadHeader(r); err != nil {
		return nil, err
	}
	var err error
	if m.diffs, err = loadBase(r); err != nil {
		return nil, fmt.Errorf("load integer row-diff base: %w", err)
	}
	return m, nil
}

// addIntDiff merges two sorted delta lists by column, summing equal columns
// and dropping zero sums.
func addIntDiff(diff, row []rowDelta) []rowDelta {
	if len(diff) == 0 {
		return row
	}
	result := make([]rowDelta, 0, len(row)+len(diff))
	i, j := 0, 0
	for i < len(row) && j < len(diff) {
		switch {
		case row[i].Column < diff[j].Column:
			result = append(result, row[i])
			i++
		case row[i].Column > diff[j].Column:
			result = append(result, diff[j])
			j++
		default:
			if sum := row[i].Value + diff[j].Value; sum != 0 {
				result = append(result, rowDelta{row[i].Column, sum})
			}
			i++
			j++
		}
	}
	result = append(result, row[i:]...)
	result = append(result, diff[j:]...)
	return result
}
