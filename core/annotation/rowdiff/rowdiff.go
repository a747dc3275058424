// Package rowdiff implements the row-diff storage transform: each row of a
// wrapped base matrix stores the delta between a node's annotation and that
// of its graph-chosen successor. Anchor rows store absolute content, so any
// row is reconstructed by walking the successor chain to an anchor and
// folding the deltas back.
package rowdiff

import (
	"fmt"
	"io"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/graph"
	"github.com/adalundhe/annodex/core/serial"
)

type (
	Row    = annotation.Row
	Column = annotation.Column
)

// Magic is the version tag prepended to every serialized row-diff matrix.
const Magic = "v2.0"

// rdPathReserve sizes per-query path buffers; successor chains are short
// because the transform caps anchor distance.
const rdPathReserve = 32

// transform carries the state shared by the binary, integer, and tuple
// variants: the graph handle, the anchor bitmap indexed by row, and the
// per-edge fork-successor flags choosing the successor on branching nodes.
type transform struct {
	graph    graph.DeBruijnGraph
	anchor   bitvec.Vector
	forkSucc bitvec.Vector
}

// SetGraph installs the graph handle after load. The graph is observed, not
// owned.
func (t *transform) SetGraph(g graph.DeBruijnGraph) { t.graph = g }

func (t *transform) Anchor() bitvec.Vector { return t.anchor }

// edgeID addresses the outgoing edge of node labeled c in the fork-successor
// bitmap.
func edgeID(node graph.NodeIndex, c byte) uint64 {
	var letter uint64
	switch c {
	case 'A':
		letter = 0
	case 'C':
		letter = 1
	case 'G':
		letter = 2
	case 'T':
		letter = 3
	default:
		panic(fmt.Sprintf("rowdiff: edge letter %q outside alphabet", c))
	}
	return (node-1)*uint64(len(graph.Alphabet)) + letter
}

// Successor returns the row-diff successor of a node: the single outgoing
// neighbor, or on branching nodes the neighbor whose edge is flagged in
// forkSucc. Sinks have no successor and must be anchors.
func Successor(g graph.DeBruijnGraph, node graph.NodeIndex, forkSucc bitvec.Vector) graph.NodeIndex {
	first, flagged := graph.NPos, graph.NPos
	degree := 0
	g.CallOutgoing(node, func(next graph.NodeIndex, c byte) {
		degree++
		if first == graph.NPos {
			first = next
		}
		if forkSucc != nil && forkSucc.Get(edgeID(node, c)) {
			flagged = next
		}
	})
	if degree > 1 && flagged != graph.NPos {
		return flagged
	}
	return first
}

func (t *transform) successorRow(row Row) Row {
	succ := Successor(t.graph, row+1, t.forkSucc)
	if succ == graph.NPos {
		panic(fmt.Sprintf("rowdiff: non-anchor row %d has no successor", row))
	}
	return succ - 1
}

// collectPaths walks the successor chain of every query row until an anchor
// or a row already scheduled, and returns the deduplicated row list plus,
// per query row, the ordered indices of its truncated path. Interrupting on
// previously-seen rows keeps shared chain suffixes linear.
func (t *transform) collectPaths(rows []Row) (rdIDs []Row, paths [][]int) {
	rdIDs = make([]Row, 0, len(rows)*2)
	paths = make([][]int, len(rows))
	nodeToRD := make(map[Row]int, len(rows)*2)

	for i, queryRow := range rows {
		row := queryRow
		path := make([]int, 0, rdPathReserve)
		for {
			idx, seen := nodeToRD[row]
			if !seen {
				idx = len(rdIDs)
				nodeToRD[row] = idx
				rdIDs = append(rdIDs, row)
			}
			path = append(path, idx)

			// a row reached before will be reconstructed before this one
			if seen || t.anchor.Get(row) {
				break
			}
			row = t.successorRow(row)
		}
		paths[i] = path
	}
	return rdIDs, paths
}

func (t *transform) serializeHeader(w io.Writer) error {
	if err := serial.WriteMagic(w, Magic); err != nil {
		return err
	}
	if err := t.anchor.Serialize(w); err != nil {
		return err
	}
	return t.forkSucc.Serialize(w)
}

func (t *transform) loadHeader(r io.Reader) error {
	if err := serial.ExpectMagic(r, Magic); err != nil {
		return fmt.Errorf("row-diff header: %w", err)
	}
	var err error
	if t.anchor, err = bitvec.Load(r); err != nil {
		return fmt.Errorf("load row-diff anchors: %w", err)
	}
	if t.forkSucc, err = bitvec.Load(r); err != nil {
		return fmt.Errorf("load row-diff fork successors: %w", err)
	}
	return nil
}

// Binary wraps a base binary matrix storing symmetric-difference deltas.
type Binary struct {
	transform
	diffs annotation.BinaryMatrix
}

func NewBinary(g graph.DeBruijnGraph, anchor, forkSucc bitvec.Vector, diffs annotation.BinaryMatrix) *Binary {
	return &Binary{transform{g, anchor, forkSucc}, diffs}
}

func (m *Binary) Diffs() annotation.BinaryMatrix { return m.diffs }

func (m *Binary) NumRows() uint64      { return m.diffs.NumRows() }
func (m *Binary) NumColumns() uint64   { return m.diffs.NumColumns() }
func (m *Binary) NumRelations() uint64 { return m.diffs.NumRelations() }

func (m *Binary) Get(row Row, col Column) bool {
	return annotation.ContainsColumn(m.GetRow(row), col)
}

func (m *Binary) GetRow(row Row) []Column {
	return m.GetRows([]Row{row})[0]
}

func (m *Binary) GetRows(rows []Row) [][]Column {
	rdIDs, paths := m.collectPaths(rows)
	rdRows := m.diffs.GetRows(rdIDs)

	result := make([][]Column, len(rows))
	for i := range rows {
		path := paths[i]
		row := rdRows[path[len(path)-1]]
		for j := len(path) - 2; j >= 0; j-- {
			row = xorRows(rdRows[path[j]], row)
			rdRows[path[j]] = row
		}
		result[i] = row
	}
	return result
}

// GetColumn reconstructs every row; the transform has no per-column index.
func (m *Binary) GetColumn(col Column) []Row {
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

func (m *Binary) Serialize(w io.Writer) error {
	if err := m.serializeHeader(w); err != nil {
		return err
	}
	return m.diffs.Serialize(w)
}

// LoadBinary reads a binary row-diff matrix; loadBase loads whatever base
// representation the stream carries. The graph must be installed with
// SetGraph before the first query.
func LoadBinary(r io.Reader, loadBase func(io.Reader) (annotation.BinaryMatrix, error)) (*Binary, error) {
	m := &Binary{}
	if err := m.loadHeader(r); err != nil {
		return nil, err
	}
	var err error
	if m.diffs, err = loadBase(r); err != nil {
		return nil, fmt.Errorf("load row-diff base: %w", err)
	}
	return m, nil
}

// xorRows is the sorted-merge symmetric difference of two column lists.
func xorRows(a, b []Column) []Column {
	result := make([]Column, 0, len(a)+len(b))
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
