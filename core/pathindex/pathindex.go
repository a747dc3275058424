// Package pathindex maps each graph node to its containing unitig and
// answers unitig-to-unitig shortest-distance queries through a chain of
// simple superbubbles. The chainer's graph-aware gap model is its only
// consumer.
package pathindex

import (
	"fmt"
	"io"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/annotation/rowdiff"
	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/graph"
	"github.com/adalundhe/annodex/core/serial"
)

// Unreachable is returned by GetDist when no superbubble chain connects
// two unitigs.
const Unreachable = uint64(math.MaxUint64)

// FileExtension names the sidecar persisted next to the graph.
const FileExtension = ".paths"

const distMemoSize = 1 << 16

// PathIndex is the unitig + superbubble extension. Unitig ids are 1-based;
// 0 means "no unitig".
type PathIndex struct {
	graph *graph.HashDBG

	numUnitigs uint64
	boundaries []uint64 // global coordinate of each unitig's first base; len n+1
	fronts     []graph.NodeIndex
	backs      []graph.NodeIndex

	// pathBoundaries marks each unitig's first coordinate in the global
	// coordinate space; rank gives CoordToPathID, select PathIDToCoord.
	pathBoundaries bitvec.Vector

	// coords maps each node to its global coordinates, stored through the
	// same coordinate-matrix machinery the annotation layer uses, row-diff
	// wrapped against the graph.
	coords *rowdiff.Tuple

	// superbubble tables, indexed by 0-based unitig id. sources holds
	// (source id + 1, dist from source) pairs; termini (terminus id + 1,
	// dist to terminus) pairs for source unitigs.
	sbSources   []uint64 // 2n
	sbTermini   []uint64 // 2n
	isStart     bitvec.Vector
	canReach    bitvec.Vector

	distMemo *lru.Cache[[2]uint64, uint64]
}

// NumUnitigs returns the number of unitigs indexed.
func (p *PathIndex) NumUnitigs() uint64 { return p.numUnitigs }

// PathLength returns the number of bases of a unitig.
func (p *PathIndex) PathLength(pathID uint64) uint64 {
	return p.boundaries[pathID] - p.boundaries[pathID-1]
}

// CoordToPathID maps a global coordinate to its unitig id.
func (p *PathIndex) CoordToPathID(coord uint64) uint64 {
	return p.pathBoundaries.Rank1(coord)
}

// PathIDToCoord returns the global coordinate of a unitig's first base.
func (p *PathIndex) PathIDToCoord(pathID uint64) uint64 {
	return p.pathBoundaries.Select1(pathID)
}

// UnitigBoundary returns a unitig's first and last node.
func (p *PathIndex) UnitigBoundary(pathID uint64) (front, back graph.NodeIndex) {
	return p.fronts[pathID-1], p.backs[pathID-1]
}

// NodeCoords returns, per input node, the (unitig id, coordinate-in-unitig)
// placements of that node.
func (p *PathIndex) NodeCoords(nodes []graph.NodeIndex) [][][2]uint64 {
	rows := make([]annotation.Row, 0, len(nodes))
	picked := make([]bool, len(nodes))
	for i, n := range nodes {
		if n == graph.NPos {
			continue
		}
		picked[i] = true
		rows = append(rows, n-1)
	}
	tuples := p.coords.GetRowTuples(rows)

	result := make([][][2]uint64, len(nodes))
	ti := 0
	for i := range nodes {
		if !picked[i] {
			continue
		}
		for _, ct := range tuples[ti] {
			for _, c := range ct.Tuple {
				coord := uint64(c)
				pathID := p.CoordToPathID(coord)
				result[i] = append(result[i], [2]uint64{pathID, coord - p.PathIDToCoord(pathID)})
			}
		}
		ti++
	}
	return result
}

// IsSuperbubbleSource reports whether a unitig sources a simple superbubble.
func (p *PathIndex) IsSuperbubbleSource(pathID uint64) bool {
	return pathID >= 1 && pathID <= p.numUnitigs && p.isStart.Get(pathID-1)
}

// SuperbubbleTerminus returns the terminus unitig of a source and the
// distance to it, or (0, 0) when pathID sources nothing.
func (p *PathIndex) SuperbubbleTerminus(pathID uint64) (uint64, uint64) {
	if !p.IsSuperbubbleSource(pathID) {
		return 0, 0
	}
	return p.sbTermini[(pathID-1)*2], p.sbTermini[(pathID-1)*2+1]
}

// SuperbubbleAndDist returns the source of the superbubble containing
// pathID and the distance from that source, or (0, 0) when uncontained.
func (p *PathIndex) SuperbubbleAndDist(pathID uint64) (uint64, uint64) {
	if pathID < 1 || pathID > p.numUnitigs {
		return 0, 0
	}
	return p.sbSources[(pathID-1)*2], p.sbSources[(pathID-1)*2+1]
}

// CanReachSuperbubbleTerminus reports whether every forward walk from
// pathID reaches its superbubble's terminus.
func (p *PathIndex) CanReachSuperbubbleTerminus(pathID uint64) bool {
	return pathID >= 1 && pathID <= p.numUnitigs && p.canReach.Get(pathID-1)
}

// GetDist returns the shortest through-the-superbubble-chain distance from
// unitig a to unitig b, or Unreachable. Results up to maxDist are exact;
// anything longer reports Unreachable.
func (p *PathIndex) GetDist(a, b, maxDist uint64) uint64 {
	if a == b {
		return 0
	}
	key := [2]uint64{a, b}
	if p.distMemo != nil {
		if d, ok := p.distMemo.Get(key); ok {
			if d > maxDist {
				return Unreachable
			}
			return d
		}
	}
	d := p.computeDist(a, b, maxDist)
	if d == Unreachable {
		// not memoized: a larger cap may still succeed
		return Unreachable
	}
	if p.distMemo != nil {
		p.distMemo.Add(key, d)
	}
	if d > maxDist {
		return Unreachable
	}
	return d
}

func (p *PathIndex) computeDist(a, b, maxDist uint64) uint64 {
	sb1, d1 := p.SuperbubbleAndDist(a)
	sb2, d2 := p.SuperbubbleAndDist(b)
	isSource1 := p.IsSuperbubbleSource(a)

	// b sits inside the superbubble sourced at a
	if isSource1 && sb2 == a {
		return d2
	}

	// both inside the same superbubble: only source-to-terminus-aligned
	// walks have a well-defined length
	if sb1 == sb2 && sb1 != 0 {
		if t, _ := p.SuperbubbleTerminus(sb1); t == b && p.CanReachSuperbubbleTerminus(a) {
			return d2 - d1
		}
		return Unreachable
	}

	if !p.CanReachSuperbubbleTerminus(a) {
		return Unreachable
	}

	src := a
	if !isSource1 {
		src = sb1
	}
	if src == 0 {
		return Unreachable
	}
	t, d := p.SuperbubbleTerminus(src)
	if t == 0 {
		return Unreachable
	}
	if !isSource1 {
		d -= d1
	}

	// walk the superbubble chain backward from b's source until reaching
	// the terminus of a's bubble
	for sb2 != 0 && sb2 != t && d < maxDist {
		nextSB, nextD := p.SuperbubbleAndDist(sb2)
		if nextSB != 0 {
			d += nextD
		}
		sb2 = nextSB
	}
	if sb2 != t {
		return Unreachable
	}
	return d + d2
}

// CallDists reports each feasible distance from unitig a to unitig b up to
// maxDist. The chainer uses it as its gap oracle.
func (p *PathIndex) CallDists(a, b, maxDist uint64, cb func(uint64)) {
	if d := p.GetDist(a, b, maxDist); d != Unreachable {
		cb(d)
	}
}

func (p *PathIndex) Serialize(w io.Writer) error {
	if err := serial.WriteUint64(w, p.numUnitigs); err != nil {
		return err
	}
	if err := serial.WriteUint64Slice(w, p.boundaries); err != nil {
		return err
	}
	if err := serial.WriteUint64Slice(w, p.fronts); err != nil {
		return err
	}
	if err := serial.WriteUint64Slice(w, p.backs); err != nil {
		return err
	}
	if err := p.pathBoundaries.Serialize(w); err != nil {
		return err
	}
	if err := serial.WriteUint64Slice(w, p.sbSources); err != nil {
		return err
	}
	if err := serial.WriteUint64Slice(w, p.sbTermini); err != nil {
		return err
	}
	if err := p.isStart.Serialize(w); err != nil {
		return err
	}
	if err := p.canReach.Serialize(w); err != nil {
		return err
	}
	return p.coords.Serialize(w)
}

// Load reads a path index and binds it to the graph it was built from.
func Load(r io.Reader, g *graph.HashDBG) (*PathIndex, error) {
	p := &PathIndex{graph: g}
	var err error
	if p.numUnitigs, err = serial.ReadUint64(r); err != nil {
		return nil, fmt.Errorf("load path index size: %w", err)
	}
	if p.boundaries, err = serial.ReadUint64Slice(r); err != nil {
		return nil, fmt.Errorf("load unitig boundaries: %w", err)
	}
	if p.fronts, err = serial.ReadUint64Slice(r); err != nil {
		return nil, fmt.Errorf("load unitig fronts: %w", err)
	}
	if p.backs, err = serial.ReadUint64Slice(r); err != nil {
		return nil, fmt.Errorf("load unitig backs: %w", err)
	}
	if p.pathBoundaries, err = bitvec.Load(r); err != nil {
		return nil, fmt.Errorf("load path boundaries: %w", err)
	}
	if p.sbSources, err = serial.ReadUint64Slice(r); err != nil {
		return nil, fmt.Errorf("load superbubble sources: %w", err)
	}
	if p.sbTermini, err = serial.ReadUint64Slice(r); err != nil {
		return nil, fmt.Errorf("load superbubble termini: %w", err)
	}
	if p.isStart, err = bitvec.Load(r); err != nil {
		return nil, fmt.Errorf("load superbubble indicator: %w", err)
	}
	if p.canReach, err = bitvec.Load(r); err != nil {
		return nil, fmt.Errorf("load terminus reachability: %w", err)
	}
	if p.coords, err = rowdiff.LoadTuple(r, func(r io.Reader) (annotation.MultiIntMatrix, error) {
		return annotation.LoadColumnCoords(r)
	}); err != nil {
		return nil, fmt.Errorf("load path coordinates: %w", err)
	}
	p.coords.SetGraph(g)
	p.distMemo, _ = lru.New[[2]uint64, uint64](distMemoSize)
	return p, nil
}
