// Package graph provides the de Bruijn graph surface the annotation and
// alignment code consumes: node ids, adjacency, and node spellings; the
// row-diff transform picks its successors from this adjacency. The succinct on-disk
// graph lives outside this repository; HashDBG is the in-memory
// implementation used for building annotations and in tests.
package graph

import (
	"sort"
	"strings"
)

// NodeIndex identifies a graph node, 1-based. NPos marks "no node".
type NodeIndex = uint64

const NPos NodeIndex = 0

// Alphabet is the DNA alphabet the graphs operate over. Sentinel marks
// dummy k-mer positions that never carry annotations.
const (
	Alphabet = "ACGT"
	Sentinel = '$'
)

// Mode describes how reverse complements are represented.
type Mode int

const (
	// ModeBasic stores every observed k-mer as its own node.
	ModeBasic Mode = iota
	// ModeCanonical identifies each k-mer with its reverse complement.
	ModeCanonical
	// ModePrimary stores only canonical k-mers; queries wrap the graph in a
	// canonical view.
	ModePrimary
)

// DeBruijnGraph is the read-only contract the core queries against.
type DeBruijnGraph interface {
	K() int
	Mode() Mode

	// MaxIndex returns the largest valid node id; ids run in [1, MaxIndex].
	MaxIndex() NodeIndex

	// NodeSequence spells the k-mer of a node.
	NodeSequence(node NodeIndex) string

	// MapToNodes maps every k-mer of seq to a node id, NPos for misses.
	MapToNodes(seq string) []NodeIndex

	// CallOutgoing enumerates outgoing edges as (target node, edge letter).
	CallOutgoing(node NodeIndex, cb func(next NodeIndex, c byte))

	// CallIncoming enumerates incoming edges as (source node, first letter
	// of the source k-mer).
	CallIncoming(node NodeIndex, cb func(prev NodeIndex, c byte))

	Outdegree(node NodeIndex) int
	Indegree(node NodeIndex) int
}

// complement maps a nucleotide to its complement; everything else maps to
// itself so sentinels pass through.
func complement(c byte) byte {
	switch c {
	case 'A':
		return 'T'
	case 'T':
		return 'A'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	}
	return c
}

// ReverseComplement returns the reverse complement of a DNA sequence.
func ReverseComplement(seq string) string {
	var b strings.Builder
	b.Grow(len(seq))
	for i := len(seq) - 1; i >= 0; i-- {
		b.WriteByte(complement(seq[i]))
	}
	return b.String()
}

// HashDBG is a hash-table de Bruijn graph over the DNA alphabet.
type HashDBG struct {
	k     int
	mode  Mode
	ids   map[string]NodeIndex
	kmers []string // 1-based; kmers[0] unused
}

// NewHashDBG indexes every k-mer of the given sequences.
func NewHashDBG(k int, sequences ...string) *HashDBG {
	g := &HashDBG{k: k, mode: ModeBasic, ids: make(map[string]NodeIndex), kmers: []string{""}}
	for _, seq := range sequences {
		g.AddSequence(seq)
	}
	return g
}

// AddSequence indexes the k-mers of one more sequence. Only valid while the
// graph is being built; annotations index node ids, so adding after an
// annotation was built invalidates it.
func (g *HashDBG) AddSequence(seq string) {
	for i := 0; i+g.k <= len(seq); i++ {
		kmer := seq[i : i+g.k]
		if _, ok := g.ids[kmer]; !ok {
			g.kmers = append(g.kmers, kmer)
			g.ids[kmer] = NodeIndex(len(g.kmers) - 1)
		}
	}
}

func (g *HashDBG) K() int              { return g.k }
func (g *HashDBG) Mode() Mode          { return g.mode }
func (g *HashDBG) MaxIndex() NodeIndex { return NodeIndex(len(g.kmers) - 1) }

func (g *HashDBG) NodeSequence(node NodeIndex) string { return g.kmers[node] }

func (g *HashDBG) KmerToNode(kmer string) NodeIndex { return g.ids[kmer] }

func (g *HashDBG) MapToNodes(seq string) []NodeIndex {
	if len(seq) < g.k {
		return nil
	}
	nodes := make([]NodeIndex, 0, len(seq)-g.k+1)
	for i := 0; i+g.k <= len(seq); i++ {
		nodes = append(nodes, g.ids[seq[i:i+g.k]])
	}
	return nodes
}

func (g *HashDBG) CallOutgoing(node NodeIndex, cb func(next NodeIndex, c byte)) {
	suffix := g.kmers[node][1:]
	for i := 0; i < len(Alphabet); i++ {
		c := Alphabet[i]
		if next, ok := g.ids[suffix+string(c)]; ok {
			cb(next, c)
		}
	}
}

func (g *HashDBG) CallIncoming(node NodeIndex, cb func(prev NodeIndex, c byte)) {
	prefix := g.kmers[node][:g.k-1]
	for i := 0; i < len(Alphabet); i++ {
		c := Alphabet[i]
		if prev, ok := g.ids[string(c)+prefix]; ok {
			cb(prev, c)
		}
	}
}

func (g *HashDBG) Outdegree(node NodeIndex) int {
	n := 0
	g.CallOutgoing(node, func(NodeIndex, byte) { n++ })
	return n
}

func (g *HashDBG) Indegree(node NodeIndex) int {
	n := 0
	g.CallIncoming(node, func(NodeIndex, byte) { n++ })
	return n
}

// CallUnitigs enumerates maximal non-branching paths. Each callback gets the
// unitig's spelling and its node path. Every node belongs to exactly one
// unitig; isolated cycles are emitted starting at their smallest node id.
func (g *HashDBG) CallUnitigs(cb func(seq string, path []NodeIndex)) {
	visited := make([]bool, g.MaxIndex()+1)

	isStart := func(node NodeIndex) bool {
		if g.Indegree(node) != 1 {
			return true
		}
		var prev NodeIndex
		g.CallIncoming(node, func(p NodeIndex, _ byte) { prev = p })
		return g.Outdegree(prev) > 1
	}

	emit := func(start NodeIndex) {
		path := []NodeIndex{start}
		visited[start] = true
		node := start
		for g.Outdegree(node) == 1 {
			var next NodeIndex
			g.CallOutgoing(node, func(n NodeIndex, _ byte) { next = n })
			if visited[next] || isStart(next) {
				break
			}
			visited[next] = true
			path = append(path, next)
			node = next
		}
		var b strings.Builder
		b.WriteString(g.kmers[path[0]])
		for _, n := range path[1:] {
			b.WriteByte(g.kmers[n][g.k-1])
		}
		cb(b.String(), path)
	}

	starts := make([]NodeIndex, 0)
	for node := NodeIndex(1); node <= g.MaxIndex(); node++ {
		if isStart(node) {
			starts = append(starts, node)
		}
	}
	sort.Slice(starts, func(a, b int) bool { return starts[a] < starts[b] })
	for _, node := range starts {
		if !visited[node] {
			emit(node)
		}
	}
	// whatever remains sits on isolated cycles
	for node := NodeIndex(1); node <= g.MaxIndex(); node++ {
		if !visited[node] {
			emit(node)
		}
	}
}
