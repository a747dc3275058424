package rowdiff

import (
	"fmt"
	"io"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/graph"
)

// Shift is added to every coordinate on each edge traversal: the same
// reference position sits one base later in the successor's frame.
const Shift = 1

// Tuple wraps a base coordinate matrix storing per-column coordinate-set
// symmetric differences against the shifted successor row.
type Tuple struct {
	transform
	diffs annotation.MultiIntMatrix
}

func NewTuple(g graph.DeBruijnGraph, anchor, forkSucc bitvec.Vector, diffs annotation.MultiIntMatrix) *Tuple {
	return &Tuple{transform{g, anchor, forkSucc}, diffs}
}

func (m *Tuple) Diffs() annotation.MultiIntMatrix { return m.diffs }

func (m *Tuple) NumRows() uint64       { return m.diffs.NumRows() }
func (m *Tuple) NumColumns() uint64    { return m.diffs.NumColumns() }
func (m *Tuple) NumRelations() uint64  { return m.diffs.NumRelations() }
func (m *Tuple) NumAttributes() uint64 { return m.diffs.NumAttributes() }

func (m *Tuple) Get(row Row, col Column) bool {
	return annotation.ContainsColumn(m.GetRow(row), col)
}

func (m *Tuple) GetRow(row Row) []Column {
	return m.GetRows([]Row{row})[0]
}

func (m *Tuple) GetRows(rows []Row) [][]Column {
	tuples := m.GetRowTuples(rows)
	result := make([][]Column, len(tuples))
	for i, row := range tuples {
		cols := make([]Column, len(row))
		for j, ct := range row {
			cols[j] = ct.Column
		}
		result[i] = cols
	}
	return result
}

func (m *Tuple) GetRowValues(rows []Row) []annotation.RowValues {
	tuples := m.GetRowTuples(rows)
	result := make([]annotation.RowValues, len(tuples))
	for i, row := range tuples {
		values := make(annotation.RowValues, len(row))
		for j, ct := range row {
			values[j] = annotation.ColumnValue{Column: ct.Column, Value: uint64(len(ct.Tuple))}
		}
		result[i] = values
	}
	return result
}

// GetRowTuples reconstructs absolute coordinate sets by folding stored
// symmetric differences along each truncated successor path, un-shifting
// once per edge.
func (m *Tuple) GetRowTuples(rows []Row) []annotation.RowTuples {
	rdIDs, paths := m.collectPaths(rows)
	rdRows := m.diffs.GetRowTuples(rdIDs)

	result := make([]annotation.RowTuples, len(rows))
	for i := range rows {
		path := paths[i]
		row := rdRows[path[len(path)-1]]
		for j := len(path) - 2; j >= 0; j-- {
			row = addTupleDiff(rdRows[path[j]], row)
			rdRows[path[j]] = row
		}
		result[i] = row
	}
	return result
}

// GetRowTupleDiffs serves a path of consecutive query rows: the first result
// is the absolute tuple row (taken verbatim from firstTuple when supplied,
// saving a chain walk), every following result is the row-to-row coordinate
// delta — the per-column symmetric difference against the previous row
// shifted by Shift — which is the form the chainer consumes.
func (m *Tuple) GetRowTupleDiffs(rows []Row, firstTuple *annotation.RowTuples) []annotation.RowTuples {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) == 1 {
		if firstTuple != nil {
			return []annotation.RowTuples{*firstTuple}
		}
		return m.GetRowTuples(rows)
	}

	var abs []annotation.RowTuples
	if firstTuple != nil {
		abs = append([]annotation.RowTuples{*firstTuple}, m.GetRowTuples(rows[1:])...)
	} else {
		abs = m.GetRowTuples(rows)
	}

	result := make([]annotation.RowTuples, len(abs))
	result[0] = abs[0]
	for i := 1; i < len(abs); i++ {
		result[i] = tupleRowDelta(abs[i-1], abs[i])
	}
	return result
}

func (m *Tuple) GetColumn(col Column) []Row {
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

func (m *Tuple) Serialize(w io.Writer) error {
	if err := m.serializeHeader(w); err != nil {
		return err
	}
	return m.diffs.Serialize(w)
}

func LoadTuple(r io.Reader, loadBase func(io.Reader) (annotation.MultiIntMatrix, error)) (*Tuple, error) {
	m := &Tuple{}
	if err := m.loadHeader(r); err != nil {
		return nil, err
	}
	var err error
	if m.diffs, err = loadBase(r); err != nil {
		return nil, fmt.Errorf("load tuple row-diff base: %w", err)
	}
	return m, nil
}

// addTupleDiff folds a stored delta into the successor's reconstructed row:
// per-column coordinate-set symmetric difference, empty results dropped,
// then every coordinate un-shifted by Shift for the edge just walked back.
func addTupleDiff(diff, row annotation.RowTuples) annotation.RowTuples {
	merged := row
	if len(diff) > 0 {
		merged = make(annotation.RowTuples, 0, len(row)+len(diff))
		i, j := 0, 0
		for i < len(row) && j < len(diff) {
			switch {
			case row[i].Column < diff[j].Column:
				merged = append(merged, row[i])
				i++
			case row[i].Column > diff[j].Column:
				merged = append(merged, diff[j])
				j++
			default:
				if len(diff[j].Tuple) > 0 {
					if sym := symmetricDifference(row[i].Tuple, diff[j].Tuple); len(sym) > 0 {
						merged = append(merged, annotation.ColumnTuple{Column: row[i].Column, Tuple: sym})
					}
				}
				i++
				j++
			}
		}
		merged = append(merged, row[i:]...)
		merged = append(merged, diff[j:]...)
	}

	result := make(annotation.RowTuples, len(merged))
	for i, ct := range merged {
		tuple := make(annotation.Tuple, len(ct.Tuple))
		for j, c := range ct.Tuple {
			tuple[j] = c - Shift
		}
		result[i] = annotation.ColumnTuple{Column: ct.Column, Tuple: tuple}
	}
	return result
}

// tupleRowDelta returns the per-column symmetric difference between the
// current row and the previous row shifted forward by Shift.
func tupleRowDelta(prev, cur annotation.RowTuples) annotation.RowTuples {
	shifted := make(annotation.RowTuples, len(prev))
	for i, ct := range prev {
		tuple := make(annotation.Tuple, len(ct.Tuple))
		for j, c := range ct.Tuple {
			tuple[j] = c + Shift
		}
		shifted[i] = annotation.ColumnTuple{Column: ct.Column, Tuple: tuple}
	}

	result := make(annotation.RowTuples, 0, len(cur)+len(shifted))
	i, j := 0, 0
	for i < len(cur) && j < len(shifted) {
		switch {
		case cur[i].Column < shifted[j].Column:
			result = append(result, cur[i])
			i++
		case cur[i].Column > shifted[j].Column:
			result = append(result, shifted[j])
			j++
		default:
			if sym := symmetricDifference(cur[i].Tuple, shifted[j].Tuple); len(sym) > 0 {
				result = append(result, annotation.ColumnTuple{Column: cur[i].Column, Tuple: sym})
			}
			i++
			j++
		}
	}
	result = append(result, cur[i:]...)
	result = append(result, shifted[j:]...)
	return result
}

// symmetricDifference of two sorted coordinate sets.
func symmetricDifference(a, b annotation.Tuple) annotation.Tuple {
	result := make(annotation.Tuple, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			result = append(result, a[i])
			i++
		case a[i] > b[j]:
			result = append(result, b[j])
			j++
		default:
			i++
			j++
		}
	}
	result = append(result, a[i:]...)
	result = append(result, b[j:]...)
	return result
}

var (
	_ annotation.MultiIntMatrix = (*Tuple)(nil)
	_ annotation.IntMatrix      = (*Int)(nil)
	_ annotation.BinaryMatrix   = (*Binary)(nil)
)
