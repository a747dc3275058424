package graph

// Canonical presents a base graph together with the reverse complement of
// every node. Ids [1, n] are the base graph's nodes; ids (n, 2n] are their
// reverse complements. Annotations are stored against base nodes only, so a
// node and its reverse complement share one annotation row.
type Canonical struct {
	base *HashDBG
}

func NewCanonical(base *HashDBG) *Canonical {
	return &Canonical{base: base}
}

func (c *Canonical) K() int              { return c.base.k }
func (c *Canonical) Mode() Mode          { return ModeCanonical }
func (c *Canonical) MaxIndex() NodeIndex { return 2 * c.base.MaxIndex() }

func (c *Canonical) Base() *HashDBG { return c.base }

// GetBaseNode folds a node id onto the base node carrying its annotation row.
func (c *Canonical) GetBaseNode(node NodeIndex) NodeIndex {
	if node == NPos || node <= c.base.MaxIndex() {
		return node
	}
	return node - c.base.MaxIndex()
}

// ReverseComplementNode maps a node to the node spelling its reverse
// complement, or NPos if the complement k-mer is not in the graph.
func (c *Canonical) ReverseComplementNode(node NodeIndex) NodeIndex {
	if node == NPos {
		return NPos
	}
	if node > c.base.MaxIndex() {
		return node - c.base.MaxIndex()
	}
	return node + c.base.MaxIndex()
}

func (c *Canonical) NodeSequence(node NodeIndex) string {
	if node <= c.base.MaxIndex() {
		return c.base.NodeSequence(node)
	}
	return ReverseComplement(c.base.NodeSequence(node - c.base.MaxIndex()))
}

func (c *Canonical) MapToNodes(seq string) []NodeIndex {
	if len(seq) < c.base.k {
		return nil
	}
	nodes := make([]NodeIndex, 0, len(seq)-c.base.k+1)
	for i := 0; i+c.base.k <= len(seq); i++ {
		kmer := seq[i : i+c.base.k]
		if node := c.base.KmerToNode(kmer); node != NPos {
			nodes = append(nodes, node)
		} else if node := c.base.KmerToNode(ReverseComplement(kmer)); node != NPos {
			nodes = append(nodes, node+c.base.MaxIndex())
		} else {
			nodes = append(nodes, NPos)
		}
	}
	return nodes
}

func (c *Canonical) CallOutgoing(node NodeIndex, cb func(next NodeIndex, ch byte)) {
	seq := c.NodeSequence(node)[1:]
	for i := 0; i < len(Alphabet); i++ {
		ch := Alphabet[i]
		kmer := seq + string(ch)
		if next := c.base.KmerToNode(kmer); next != NPos {
			cb(next, ch)
		} else if next := c.base.KmerToNode(ReverseComplement(kmer)); next != NPos {
			cb(next+c.base.MaxIndex(), ch)
		}
	}
}

func (c *Canonical) CallIncoming(node NodeIndex, cb func(prev NodeIndex, ch byte)) {
	seq := c.NodeSequence(node)
	prefix := seq[:c.base.k-1]
	for i := 0; i < len(Alphabet); i++ {
		ch := Alphabet[i]
		kmer := string(ch) + prefix
		if prev := c.base.KmerToNode(kmer); prev != NPos {
			cb(prev, ch)
		} else if prev := c.base.KmerToNode(ReverseComplement(kmer)); prev != NPos {
			cb(prev+c.base.MaxIndex(), ch)
		}
	}
}

func (c *Canonical) Outdegree(node NodeIndex) int {
	n := 0
	c.CallOutgoing(node, func(NodeIndex, byte) { n++ })
	return n
}

func (c *Canonical) Indegree(node NodeIndex) int {
	n := 0
	c.CallIncoming(node, func(NodeIndex, byte) { n++ })
	return n
}

// SpellPath reconstructs the sequence spelled by a node path.
func SpellPath(g DeBruijnGraph, path []NodeIndex) string {
	if len(path) == 0 {
		return ""
	}
	seq := []byte(g.NodeSequence(path[0]))
	for _, node := range path[1:] {
		kmer := g.NodeSequence(node)
		seq = append(seq, kmer[len(kmer)-1])
	}
	return string(seq)
}
