package pathindex

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/annotation/rowdiff"
	"github.com/adalundhe/annodex/core/bitvec"
	"github.com/adalundhe/annodex/core/graph"
)

// unitigGraph is the unitig-level view the superbubble enumerator walks.
// Splitting it from the node graph keeps the traversal testable on
// synthetic topologies.
type unitigGraph struct {
	lengths  []uint64 // bases per unitig, 0-based ids
	outgoing [][]int  // unitig adjacency
	incoming [][]int
}

// Build constructs the path index: unitig enumeration, the coordinate
// matrix, and the superbubble tables.
func Build(g *graph.HashDBG, maxRowDiffPath int, logger *slog.Logger) *PathIndex {
	if logger == nil {
		logger = slog.Default()
	}

	p := &PathIndex{graph: g, boundaries: []uint64{0}}
	frontToUnitig := make(map[graph.NodeIndex]int)
	backToUnitig := make(map[graph.NodeIndex]int)

	numRows := g.MaxIndex()
	coordColumns := [][]annotation.Row{nil}
	coordTuples := [][][]uint64{nil}
	nodeCoords := make(map[annotation.Row][]uint64)

	g.CallUnitigs(func(seq string, path []graph.NodeIndex) {
		id := len(p.fronts)
		frontToUnitig[path[0]] = id
		backToUnitig[path[len(path)-1]] = id
		p.fronts = append(p.fronts, path[0])
		p.backs = append(p.backs, path[len(path)-1])

		coord := p.boundaries[len(p.boundaries)-1]
		for _, node := range path {
			nodeCoords[node-1] = append(nodeCoords[node-1], coord)
			coord++
		}
		p.boundaries = append(p.boundaries, coord)
	})
	p.numUnitigs = uint64(len(p.fronts))

	for row := annotation.Row(0); row < numRows; row++ {
		if coords, ok := nodeCoords[row]; ok {
			coordColumns[0] = append(coordColumns[0], row)
			coordTuples[0] = append(coordTuples[0], coords)
		}
	}
	coordSource := annotation.NewColumnCoords(numRows, coordColumns, coordTuples)
	routing := rowdiff.BuildRouting(g, maxRowDiffPath, logger)
	p.coords = rowdiff.TransformTuple(g, routing, coordSource)

	boundaryBits := make([]uint64, p.numUnitigs)
	for i := uint64(0); i < p.numUnitigs; i++ {
		boundaryBits[i] = p.boundaries[i]
	}
	total := p.boundaries[len(p.boundaries)-1]
	if total == 0 {
		total = 1
	}
	p.pathBoundaries = bitvec.New(total, boundaryBits)

	ug := &unitigGraph{
		lengths:  make([]uint64, p.numUnitigs),
		outgoing: make([][]int, p.numUnitigs),
		incoming: make([][]int, p.numUnitigs),
	}
	for i := uint64(0); i < p.numUnitigs; i++ {
		ug.lengths[i] = p.boundaries[i+1] - p.boundaries[i]
		g.CallOutgoing(p.backs[i], func(next graph.NodeIndex, _ byte) {
			if nid, ok := frontToUnitig[next]; ok {
				ug.outgoing[i] = append(ug.outgoing[i], nid)
				ug.incoming[nid] = append(ug.incoming[nid], int(i))
			}
		})
	}

	p.sbSources, p.sbTermini, p.isStart, p.canReach = indexSuperbubbles(ug, logger)
	p.distMemo, _ = lru.New[[2]uint64, uint64](distMemoSize)

	logger.Info("indexed paths",
		"unitigs", p.numUnitigs,
		"superbubbles", p.isStart.NumSetBits())
	return p
}

// indexSuperbubbles runs a parallel per-unitig BFS recognizing simple
// superbubbles: between a source and a terminus every internal path has
// the same length, the only way out of any internal unitig is toward the
// terminus, and there are no cycles. Complex bubbles are skipped.
func indexSuperbubbles(ug *unitigGraph, logger *slog.Logger) (sources, termini []uint64, isStart, canReach bitvec.Vector) {
	n := len(ug.lengths)
	const unset = uint64(math.MaxUint64)
	sources = make([]uint64, 2*n)
	termini = make([]uint64, 2*n)
	for i := range sources {
		sources[i] = unset
		termini[i] = unset
	}
	startBits := make([]bool, n)
	reachBits := make([]bool, n)

	var mu sync.Mutex
	var numSkipped atomic.Uint64

	// sourceMin keeps the nearest containing source per unitig
	sourceMin := func(uid int, src, dist uint64) {
		mu.Lock()
		defer mu.Unlock()
		if dist < sources[uid*2+1] {
			sources[uid*2+1] = dist
			sources[uid*2] = src
		}
	}

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			visited := make(map[int]bool)
			seen := map[int]map[uint64]bool{i: {0: true}}
			parents := make(map[int][]int)
			stack := [][2]uint64{{uint64(i), 0}}
			isTerminal := false
			terminus := -1
			termDist := uint64(0)

			publish := func(term int, tDist uint64, markReach bool) bool {
				for _, dists := range seen {
					if len(dists) != 1 {
						// paths of different lengths: complex, skipped
						numSkipped.Add(1)
						return false
					}
				}
				mu.Lock()
				startBits[i] = true
				mu.Unlock()
				for uid, dists := range seen {
					var d uint64
					for k := range dists {
						d = k
					}
					if markReach {
						mu.Lock()
						reachBits[uid] = true
						mu.Unlock()
					}
					if uid == i {
						continue
					}
					sourceMin(uid, uint64(i)+1, d)
				}
				if term >= 0 {
					mu.Lock()
					termini[i*2] = uint64(term) + 1
					termini[i*2+1] = tDist
					mu.Unlock()
				}
				return true
			}

			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				uid, dist := int(top[0]), top[1]
				visited[uid] = true

				hasCycle := false
				hasChildren := false
				length := ug.lengths[uid]
				for _, next := range ug.outgoing[uid] {
					hasChildren = true
					if next == i {
						hasCycle = true
						break
					}
					addParents := seen[next] == nil
					if seen[next] == nil {
						seen[next] = make(map[uint64]bool)
					}
					seen[next][dist+length] = true
					allVisited := true
					for _, sibling := range ug.incoming[next] {
						if addParents {
							parents[next] = append(parents[next], sibling)
						}
						if !visited[sibling] {
							allVisited = false
						}
					}
					if allVisited {
						stack = append(stack, [2]uint64{uint64(next), dist + length})
					}
				}

				if hasCycle {
					isTerminal = false
					break
				}
				if !hasChildren {
					isTerminal = true
				}

				if len(stack) == 1 && len(visited)+1 == len(seen) {
					last := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					luid, ldist := int(last[0]), last[1]

					cycle := false
					for _, next := range ug.outgoing[luid] {
						if next == i {
							cycle = true
						}
					}
					if cycle {
						isTerminal = false
						continue
					}

					terminus = luid
					termDist = ldist
					publish(terminus, termDist, !isTerminal)
				}
			}

			if isTerminal && len(seen) > 1 {
				if publish(terminus, termDist, false) && terminus >= 0 {
					// only unitigs with a path to the terminus can reach it
					found := map[int]bool{terminus: true}
					back := []int{terminus}
					for len(back) > 0 {
						cur := back[len(back)-1]
						back = back[:len(back)-1]
						for _, parent := range parents[cur] {
							if !found[parent] {
								found[parent] = true
								back = append(back, parent)
							}
						}
					}
					mu.Lock()
					for uid := range seen {
						reachBits[uid] = found[uid]
					}
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	if skipped := numSkipped.Load(); skipped > 0 {
		logger.Debug("skipped complex superbubbles", "count", skipped)
	}

	for i := range sources {
		if sources[i] == unset {
			sources[i] = 0
		}
		if termini[i] == unset {
			termini[i] = 0
		}
	}

	var startOnes, reachOnes []uint64
	for i := 0; i < n; i++ {
		if startBits[i] {
			startOnes = append(startOnes, uint64(i))
		}
		if reachBits[i] {
			reachOnes = append(reachOnes, uint64(i))
		}
	}
	size := uint64(n)
	if size == 0 {
		size = 1
	}
	return sources, termini, bitvec.New(size, startOnes), bitvec.New(size, reachOnes)
}
