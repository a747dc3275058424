package rowdiff

import (
	"log/slog"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/graph"
)

// Routing is the successor assignment the transform builder produces: which
// rows anchor, which edge to follow at forks, and the flattened per-row
// successor (not meaningful for anchors).
type Routing struct {
	Anchor   bitvec.Vector
	ForkSucc bitvec.Vector
	succ     []Row // per row; undefined for anchors
}

// BuildRouting chooses a successor for every node and places anchors so that
// every successor chain terminates within maxPathLength steps. Sinks anchor;
// cycles are broken by anchoring the node that would close them. On
// branching nodes the lexicographically first outgoing edge is flagged as
// the fork successor.
func BuildRouting(g graph.DeBruijnGraph, maxPathLength int, logger *slog.Logger) *Routing {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPathLength < 1 {
		maxPathLength = 1
	}

	numRows := g.MaxIndex()
	var anchorRows, forkEdges []uint64
	isAnchor := make([]bool, numRows)
	succ := make([]Row, numRows)

	for node := graph.NodeIndex(1); node <= numRows; node++ {
		row := node - 1
		degree := 0
		first := graph.NPos
		var firstEdge uint64
		g.CallOutgoing(node, func(next graph.NodeIndex, c byte) {
			degree++
			if first == graph.NPos {
				first = next
				firstEdge = edgeID(node, c)
			}
		})
		switch {
		case degree == 0:
			isAnchor[row] = true
		case degree == 1:
			succ[row] = first - 1
		default:
			succ[row] = first - 1
			forkEdges = append(forkEdges, firstEdge)
		}
	}

	// walk chains; cap anchor distance and break cycles
	const unknown = -1
	dist := make([]int, numRows)
	for i := range dist {
		dist[i] = unknown
	}
	onPath := make([]bool, numRows)

	for start := Row(0); start < numRows; start++ {
		if dist[start] != unknown {
			continue
		}
		path := []Row{}
		row := start
		for {
			if isAnchor[row] || dist[row] != unknown {
				break
			}
			if onPath[row] {
				// the chain closed on itself; cut it here
				isAnchor[row] = true
				break
			}
			onPath[row] = true
			path = append(path, row)
			row = succ[row]
		}

		base := 0
		if !isAnchor[row] && dist[row] != unknown {
			base = dist[row]
		}
		for i := len(path) - 1; i >= 0; i-- {
			r := path[i]
			onPath[r] = false
			if isAnchor[r] {
				dist[r] = 0
				base = 0
				continue
			}
			base++
			if base > maxPathLength {
				isAnchor[r] = true
				base = 0
			}
			dist[r] = base
		}
		if isAnchor[row] && dist[row] == unknown {
			dist[row] = 0
		}
	}

	for row := Row(0); row < numRows; row++ {
		if isAnchor[row] {
			anchorRows = append(anchorRows, row)
		}
	}
	logger.Debug("row-diff routing assigned",
		"rows", numRows, "anchors", len(anchorRows), "forks", len(forkEdges))

	return &Routing{
		Anchor:   bitvec.New(numRows, anchorRows),
		ForkSucc: bitvec.New(numRows*uint64(len(graph.Alphabet)), forkEdges),
		succ:     succ,
	}
}

// SuccessorRow returns the successor row assigned to a non-anchor row.
func (r *Routing) SuccessorRow(row Row) Row { return r.succ[row] }

// TransformBinary rewrites a column-major matrix into row-diff deltas: every
// non-anchor row stores the symmetric difference with its successor's row,
// anchors store the absolute row.
func TransformBinary(g graph.DeBruijnGraph, routing *Routing, source *annotation.ColumnMajor) *Binary {
	numRows := source.NumRows()
	deltaColumns := make([][]Row, source.NumColumns())

	for row := Row(0); row < numRows; row++ {
		cols := source.GetRow(row)
		if !routing.Anchor.Get(row) {
			cols = xorRows(cols, source.GetRow(routing.SuccessorRow(row)))
		}
		for _, c := range cols {
			deltaColumns[c] = append(deltaColumns[c], row)
		}
	}

	diffs := annotation.NewColumnMajor(numRows, deltaColumns)
	return NewBinary(g, routing.Anchor, routing.ForkSucc, diffs)
}

// TransformInt rewrites an integer matrix into encoded signed deltas.
func TransformInt(g graph.DeBruijnGraph, routing *Routing, source *annotation.ColumnValues) *Int {
	numRows := source.NumRows()
	deltaColumns := make([][]Row, source.NumColumns())
	deltaValues := make([][]uint64, source.NumColumns())

	allRows := make([]Row, numRows)
	for r := range allRows {
		allRows[r] = Row(r)
	}
	values := source.GetRowValues(allRows)

	for row := Row(0); row < numRows; row++ {
		deltas := make([]rowDelta, 0, len(values[row]))
		for _, cv := range values[row] {
			deltas = append(deltas, rowDelta{cv.Column, int64(cv.Value)})
		}
		if !routing.Anchor.Get(row) {
			succ := values[routing.SuccessorRow(row)]
			neg := make([]rowDelta, len(succ))
			for i, cv := range succ {
				neg[i] = rowDelta{cv.Column, -int64(cv.Value)}
			}
			deltas = addIntDiff(neg, deltas)
		}
		for _, cd := range deltas {
			deltaColumns[cd.Column] = append(deltaColumns[cd.Column], row)
			deltaValues[cd.Column] = append(deltaValues[cd.Column], EncodeDiff(cd.Value))
		}
	}

	diffs := annotation.NewColumnValues(numRows, deltaColumns, deltaValues)
	return NewInt(g, routing.Anchor, routing.ForkSucc, diffs)
}

// TransformTuple rewrites a coordinate matrix: every non-anchor row stores
// the per-column symmetric difference between its shifted coordinate sets
// and the successor's, anchors store absolute coordinate sets.
func TransformTuple(g graph.DeBruijnGraph, routing *Routing, source *annotation.ColumnCoords) *Tuple {
	numRows := source.NumRows()
	deltaColumns := make([][]Row, source.NumColumns())
	deltaTuples := make([][][]uint64, source.NumColumns())

	allRows := make([]Row, numRows)
	for r := range allRows {
		allRows[r] = Row(r)
	}
	tuples := source.GetRowTuples(allRows)

	for row := Row(0); row < numRows; row++ {
		var stored annotation.RowTuples
		if routing.Anchor.Get(row) {
			stored = tuples[row]
		} else {
			stored = tupleRowDelta(tuples[row], tuples[routing.SuccessorRow(row)])
		}
		for _, ct := range stored {
			raw := make([]uint64, len(ct.Tuple))
			for i, c := range ct.Tuple {
				raw[i] = uint64(c)
			}
			deltaColumns[ct.Column] = append(deltaColumns[ct.Column], row)
			deltaTuples[ct.Column] = append(deltaTuples[ct.Column], raw)
		}
	}

	diffs := annotation.NewColumnCoords(numRows, deltaColumns, deltaTuples)
	return NewTuple(g, routing.Anchor, routing.ForkSucc, diffs)
}
