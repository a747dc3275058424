package brwt

import (
	"fmt"
	"io"
	"math/bits"
	"sort"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/serial"
)

type (
	Row    = annotation.Row
	Column = annotation.Column
)

// Matrix is one node of a Multi-BRWT tree; the root represents the whole
// binary matrix. nonzeroRows marks which of the rows passed down from the
// parent hold any set bit in the columns owned by this subtree.
type Matrix struct {
	assignments *Assignments
	nonzeroRows bitvec.Vector
	children    []*Matrix
}

func (m *Matrix) NumRows() uint64    { return m.nonzeroRows.Size() }
func (m *Matrix) NumColumns() uint64 { return m.assignments.Size() }

func (m *Matrix) NumRelations() uint64 {
	if len(m.children) == 0 {
		return m.nonzeroRows.NumSetBits()
	}
	var n uint64
	for _, child := range m.children {
		n += child.NumRelations()
	}
	return n
}

func (m *Matrix) Get(row Row, col Column) bool {
	if len(m.children) == 0 {
		return m.nonzeroRows.Get(row)
	}

	rank := m.nonzeroRows.ConditionalRank1(row)
	if rank == 0 {
		return false
	}

	child := m.assignments.Group(col)
	return m.children[child].Get(rank-1, m.assignments.Rank(col))
}

func (m *Matrix) GetRow(row Row) []Column {
	ranks := m.GetColumnRanks(row)
	cols := make([]Column, len(ranks))
	for i, cr := range ranks {
		cols[i] = cr.Column
	}
	sort.Slice(cols, func(a, b int) bool { return cols[a] < cols[b] })
	return cols
}

// GetColumnRanks returns, for every column set at row, the rank of the row
// within that column (the count of set bits in the column up to and
// including row). The ranks index per-column payload arrays in the integer
// matrix variants.
func (m *Matrix) GetColumnRanks(row Row) []annotation.ColumnValue {
	rank := m.nonzeroRows.ConditionalRank1(row)
	if rank == 0 {
		return nil
	}

	if len(m.children) == 0 {
		return []annotation.ColumnValue{{Column: 0, Value: rank}}
	}

	var result []annotation.ColumnValue
	indexInChild := rank - 1
	for k, child := range m.children {
		for _, cr := range child.GetColumnRanks(indexInChild) {
			result = append(result, annotation.ColumnValue{
				Column: m.assignments.Get(uint64(k), cr.Column),
				Value:  cr.Value,
			})
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Column < result[b].Column })
	return result
}

// GetRows is the batched row query; the result preserves input order. Runs
// of nearby row ids benefit from the windowed filter scan, so callers that
// can sort should.
func (m *Matrix) GetRows(rowIDs []Row) [][]Column {
	slice := m.sliceRows(rowIDs)
	rows := make([][]Column, 0, len(rowIDs))
	var current []Column
	for _, v := range slice {
		if v.Column == annotation.ColumnSentinel {
			sort.Slice(current, func(a, b int) bool { return current[a] < current[b] })
			rows = append(rows, current)
			current = nil
			continue
		}
		current = append(current, v.Column)
	}
	return rows
}

// sliceRows returns concatenated per-row sorted (column, rank) lists, each
// terminated by a ColumnSentinel element. Input rows that fall inside one
// 64-bit filter word are batched through a single GetInt: one word fetch is
// treated as worth about five single-bit probes, so the window path is taken
// only when it covers at least five input rows.
func (m *Matrix) sliceRows(rowIDs []Row) []annotation.ColumnValue {
	slice := make([]annotation.ColumnValue, 0, len(rowIDs)*2)
	delim := annotation.ColumnValue{Column: annotation.ColumnSentinel}

	if len(m.children) == 0 {
		for _, i := range rowIDs {
			if rank := m.nonzeroRows.ConditionalRank1(i); rank > 0 {
				slice = append(slice, annotation.ColumnValue{Column: 0, Value: rank})
			}
			slice = append(slice, delim)
		}
		return slice
	}

	childRowIDs := make([]Row, 0, len(rowIDs))
	skipRow := make([]bool, len(rowIDs))
	for i := range skipRow {
		skipRow[i] = true
	}

	for i := 0; i < len(rowIDs); i++ {
		offset := rowIDs[i]

		if i+4 < len(rowIDs) && rowIDs[i+4] >= offset && rowIDs[i+4] < offset+64 &&
			offset+64 <= m.nonzeroRows.Size() {
			word := m.nonzeroRows.GetInt(offset, 64)
			rank := ^uint64(0)
			for ; i < len(rowIDs) && rowIDs[i] >= offset && rowIDs[i] < offset+64; i++ {
				b := rowIDs[i] - offset
				if word&(1<<b) != 0 {
					if rank == ^uint64(0) {
						if offset > 0 {
							rank = m.nonzeroRows.Rank1(offset - 1)
						} else {
							rank = 0
						}
					}
					lowMask := uint64(1)<<(b+1) - 1
					if b == 63 {
						lowMask = ^uint64(0)
					}
					childRowIDs = append(childRowIDs, rank+uint64(bits.OnesCount64(word&lowMask))-1)
					skipRow[i] = false
				}
			}
			i--
		} else if rank := m.nonzeroRows.ConditionalRank1(offset); rank > 0 {
			childRowIDs = append(childRowIDs, rank-1)
			skipRow[i] = false
		}
	}

	if len(childRowIDs) == 0 {
		for range rowIDs {
			slice = append(slice, delim)
		}
		return slice
	}

	// query all child subtrees, remapping local columns to this node's space
	childSlices := make([][]annotation.ColumnValue, len(m.children))
	pos := make([]int, len(m.children))
	for j, child := range m.children {
		childSlices[j] = child.sliceRows(childRowIDs)
		for k := range childSlices[j] {
			if childSlices[j][k].Column != annotation.ColumnSentinel {
				childSlices[j][k].Column = m.assignments.Get(uint64(j), childSlices[j][k].Column)
			}
		}
	}

	for i := range rowIDs {
		if !skipRow[i] {
			for j := range childSlices {
				for childSlices[j][pos[j]].Column != annotation.ColumnSentinel {
					slice = append(slice, childSlices[j][pos[j]])
					pos[j]++
				}
				pos[j]++
			}
		}
		slice = append(slice, delim)
	}

	return slice
}

// GetRowsRanks is the batched form of GetColumnRanks.
func (m *Matrix) GetRowsRanks(rowIDs []Row) []annotation.RowValues {
	slice := m.sliceRows(rowIDs)
	rows := make([]annotation.RowValues, 0, len(rowIDs))
	var current annotation.RowValues
	for _, v := range slice {
		if v.Column == annotation.ColumnSentinel {
			sort.Slice(current, func(a, b int) bool { return current[a].Column < current[b].Column })
			rows = append(rows, current)
			current = nil
			continue
		}
		current = append(current, v)
	}
	return rows
}

func (m *Matrix) GetColumn(col Column) []Row {
	numNonzero := m.nonzeroRows.NumSetBits()
	if numNonzero == 0 {
		return nil
	}

	if len(m.children) == 0 {
		rows := make([]Row, 0, numNonzero)
		m.nonzeroRows.CallOnes(func(i uint64) { rows = append(rows, i) })
		return rows
	}

	child := m.assignments.Group(col)
	rows := m.children[child].GetColumn(m.assignments.Rank(col))

	// if the filter has no zeros, child rows are already in this node's space
	if numNonzero == m.nonzeroRows.Size() {
		return rows
	}

	for i := range rows {
		rows[i] = m.nonzeroRows.Select1(rows[i] + 1)
	}
	return rows
}

func (m *Matrix) Serialize(w io.Writer) error {
	if len(m.children) != 0 && uint64(len(m.children)) != m.assignments.NumGroups() {
		return fmt.Errorf("brwt: %d children for %d column groups",
			len(m.children), m.assignments.NumGroups())
	}
	if err := m.assignments.Serialize(w); err != nil {
		return err
	}
	if err := m.nonzeroRows.Serialize(w); err != nil {
		return err
	}
	if err := serial.WriteUint64(w, uint64(len(m.children))); err != nil {
		return err
	}
	for _, child := range m.children {
		if err := child.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func Load(r io.Reader) (*Matrix, error) {
	m := &Matrix{}
	var err error
	if m.assignments, err = LoadAssignments(r); err != nil {
		return nil, fmt.Errorf("load brwt assignments: %w", err)
	}
	if m.nonzeroRows, err = bitvec.Load(r); err != nil {
		return nil, fmt.Errorf("load brwt filter: %w", err)
	}
	numChildren, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load brwt child count: %w", err)
	}
	if numChildren != 0 && numChildren != m.assignments.NumGroups() {
		return nil, fmt.Errorf("brwt: %d children for %d column groups",
			numChildren, m.assignments.NumGroups())
	}
	m.children = make([]*Matrix, numChildren)
	for i := range m.children {
		if m.children[i], err = Load(r); err != nil {
			return nil, fmt.Errorf("load brwt child %d: %w", i, err)
		}
	}
	return m, nil
}

// AvgArity reports the average number of children over internal nodes.
func (m *Matrix) AvgArity() float64 {
	var numInternal, numChildren uint64
	m.bft(func(node *Matrix) {
		if len(node.children) > 0 {
			numInternal++
			numChildren += uint64(len(node.children))
		}
	})
	if numInternal == 0 {
		return 0
	}
	return float64(numChildren) / float64(numInternal)
}

// NumNodes reports the number of nodes in the tree.
func (m *Matrix) NumNodes() uint64 {
	var n uint64
	m.bft(func(*Matrix) { n++ })
	return n
}

func (m *Matrix) bft(cb func(*Matrix)) {
	queue := []*Matrix{m}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		cb(node)
		queue = append(queue, node.children...)
	}
}
