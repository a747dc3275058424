package align

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/graph"
)

// notFetched marks a node whose annotation row is queued but not resolved.
const notFetched = ^uint32(0)

// AnnotationBuffer coalesces node-to-row annotation lookups for one query:
// paths are queued as the aligner discovers them, then resolved in a single
// batched matrix call. Distinct column sets are interned once and referred
// to by small ids; id 0 is the empty set.
//
// The buffer is per-query state and is not safe for concurrent use, except
// for the intern table which is guarded for the chainer's read-mostly
// access pattern.
type AnnotationBuffer struct {
	graph     graph.DeBruijnGraph
	matrix    annotation.BinaryMatrix
	multiInt  annotation.MultiIntMatrix
	canonical *graph.Canonical

	mu         sync.Mutex
	columnSets [][]annotation.Column
	setIndex   map[uint64][]uint32 // content hash -> candidate ids

	nodeToCols  map[graph.NodeIndex]uint32
	labelCoords map[graph.NodeIndex][]annotation.Tuple

	queuedPaths [][]graph.NodeIndex

	rowBatchSize     int
	maxCoordsPerNode int
}

// NewAnnotationBuffer borrows the graph and the matrix; neither is owned.
// Coordinates are served when the matrix implements MultiIntMatrix and the
// graph is in basic mode.
func NewAnnotationBuffer(g graph.DeBruijnGraph, matrix annotation.BinaryMatrix, cfg *Config) *AnnotationBuffer {
	b := &AnnotationBuffer{
		graph:            g,
		matrix:           matrix,
		columnSets:       [][]annotation.Column{{}},
		setIndex:         map[uint64][]uint32{emptySetHash(): {0}},
		nodeToCols:       make(map[graph.NodeIndex]uint32),
		labelCoords:      make(map[graph.NodeIndex][]annotation.Tuple),
		rowBatchSize:     cfg.RowBatchSize,
		maxCoordsPerNode: cfg.MaxCoordsPerNode,
	}
	if c, ok := g.(*graph.Canonical); ok {
		b.canonical = c
	}
	if mi, ok := matrix.(annotation.MultiIntMatrix); ok && b.canonical == nil {
		b.multiInt = mi
	}
	return b
}

func (b *AnnotationBuffer) HasCoordinates() bool { return b.multiInt != nil }

func (b *AnnotationBuffer) Graph() graph.DeBruijnGraph { return b.graph }

func hashColumnSet(cols []annotation.Column) uint64 {
	var d xxhash.Digest
	d.Reset()
	var buf [8]byte
	for _, c := range cols {
		for i := range buf {
			buf[i] = byte(c >> (8 * i))
		}
		d.Write(buf[:])
	}
	return d.Sum64()
}

func emptySetHash() uint64 { return hashColumnSet(nil) }

// CacheColumnSet interns a sorted column set and returns its id.
func (b *AnnotationBuffer) CacheColumnSet(cols []annotation.Column) uint32 {
	h := hashColumnSet(cols)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.setIndex[h] {
		if columnsEqual(b.columnSets[id], cols) {
			return id
		}
	}
	id := uint32(len(b.columnSets))
	b.columnSets = append(b.columnSets, append([]annotation.Column(nil), cols...))
	b.setIndex[h] = append(b.setIndex[h], id)
	return id
}

// GetCachedColumnSet resolves an interned id back to its sorted column set.
func (b *AnnotationBuffer) GetCachedColumnSet(id uint32) []annotation.Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.columnSets[id]
}

func columnsEqual(a, b []annotation.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// QueuePath records nodes that will need annotations later.
func (b *AnnotationBuffer) QueuePath(path []graph.NodeIndex) {
	b.queuedPaths = append(b.queuedPaths, append([]graph.NodeIndex(nil), path...))
}

// baseNode folds a node onto the one carrying its annotation row.
func (b *AnnotationBuffer) baseNode(node graph.NodeIndex) graph.NodeIndex {
	if b.canonical != nil {
		return b.canonical.GetBaseNode(node)
	}
	return node
}

func (b *AnnotationBuffer) isDummy(node graph.NodeIndex) bool {
	seq := b.graph.NodeSequence(node)
	for i := 0; i < len(seq); i++ {
		if seq[i] == graph.Sentinel {
			return true
		}
	}
	return false
}

// FetchQueuedAnnotations resolves every queued node in batched matrix
// calls, folding canonical node pairs onto one entry and mapping dummy
// nodes to the empty set.
func (b *AnnotationBuffer) FetchQueuedAnnotations() {
	var queuedNodes []graph.NodeIndex
	var queuedRows []annotation.Row

	flush := func() {
		if len(queuedNodes) == 0 {
			return
		}
		if b.HasCoordinates() {
			for i, tuples := range b.multiInt.GetRowTuples(queuedRows) {
				cols := make([]annotation.Column, 0, len(tuples))
				coords := make([]annotation.Tuple, 0, len(tuples))
				for _, ct := range tuples {
					cols = append(cols, ct.Column)
					if len(ct.Tuple) <= b.maxCoordsPerNode {
						coords = append(coords, ct.Tuple)
					} else {
						coords = append(coords, nil)
					}
				}
				b.nodeToCols[queuedNodes[i]] = b.CacheColumnSet(cols)
				b.labelCoords[queuedNodes[i]] = coords
			}
		} else {
			for i, cols := range b.matrix.GetRows(queuedRows) {
				sorted := append([]annotation.Column(nil), cols...)
				sort.Slice(sorted, func(x, y int) bool { return sorted[x] < sorted[y] })
				b.nodeToCols[queuedNodes[i]] = b.CacheColumnSet(sorted)
			}
		}
		queuedNodes = queuedNodes[:0]
		queuedRows = queuedRows[:0]
	}

	for _, path := range b.queuedPaths {
		for _, node := range path {
			if node == graph.NPos {
				continue
			}
			base := b.baseNode(node)
			if b.isDummy(base) {
				b.nodeToCols[base] = 0
				continue
			}
			if _, seen := b.nodeToCols[base]; seen {
				continue
			}
			b.nodeToCols[base] = notFetched
			queuedNodes = append(queuedNodes, base)
			queuedRows = append(queuedRows, base-1)
			if len(queuedRows) >= b.rowBatchSize {
				flush()
			}
		}
	}
	flush()
	b.queuedPaths = b.queuedPaths[:0]
}

// GetLabels returns the interned column-set id for a fetched node; ok is
// false when the node was never queued or not yet fetched.
func (b *AnnotationBuffer) GetLabels(node graph.NodeIndex) (uint32, bool) {
	id, seen := b.nodeToCols[b.baseNode(node)]
	if !seen || id == notFetched {
		return 0, false
	}
	return id, true
}

// GetLabelsAndCoords returns the interned set and the per-column coordinate
// tuples. When only labels were batched, coordinates for this single node
// are fetched lazily.
func (b *AnnotationBuffer) GetLabelsAndCoords(node graph.NodeIndex) ([]annotation.Column, []annotation.Tuple) {
	base := b.baseNode(node)
	id, seen := b.nodeToCols[base]
	if !seen || id == notFetched {
		return nil, nil
	}
	cols := b.GetCachedColumnSet(id)
	if !b.HasCoordinates() {
		return cols, nil
	}
	coords, ok := b.labelCoords[base]
	if !ok {
		tuples := b.multiInt.GetRowTuples([]annotation.Row{base - 1})[0]
		coords = make([]annotation.Tuple, 0, len(tuples))
		for _, ct := range tuples {
			coords = append(coords, ct.Tuple)
		}
		b.labelCoords[base] = coords
	}
	return cols, coords
}
