package align

import (
	"sort"

	"github.com/adalundhe/annodex/core/graph"
)

// anchor is one DP state of the alignment chainer: the endpoint of a
// maximal exact-match stretch inside one local alignment.
type anchor struct {
	begin, end int // absolute query positions
	colSet     uint32
	alnID      int
	nodeIdx    int // index into the alignment's path at the anchor end
	length     int
}

// anchorState carries the running DP values.
type anchorState struct {
	score     Score
	last      int
	lastJump  bool // the connection from `last` was a jump
	memLength int
}

// ChainAlignments splices already-computed local alignments on one
// orientation into longer chains, switching labels at a scored cost and,
// when AllowJump is set, crossing graph discontinuities for a single
// NodeInsertionPenalty. Chains must draw on at least two source
// alignments; everything else reaches the callback unchanged.
func ChainAlignments(g graph.DeBruijnGraph, cfg *Config, scorer *LabelChangeScorer,
	alignments []Alignment, callback func(Alignment), terminate func() bool) {

	if terminate == nil {
		terminate = func() bool { return false }
	}
	if len(alignments) < 2 {
		for i := range alignments {
			callback(alignments[i])
		}
		return
	}

	// full-width or offset alignments cannot be spliced further
	var working []Alignment
	for i := range alignments {
		a := &alignments[i]
		if (a.Clipping() == 0 && a.EndClipping() == 0) || a.Offset > 0 {
			callback(*a)
			continue
		}
		working = append(working, *a)
	}
	if len(working) == 0 {
		return
	}

	sort.SliceStable(working, func(x, y int) bool {
		a, b := &working[x], &working[y]
		if a.Orientation != b.Orientation {
			return !a.Orientation
		}
		aEnd, bEnd := a.Clipping()+len(a.QueryView()), b.Clipping()+len(b.QueryView())
		if aEnd != bEnd {
			return aEnd < bEnd
		}
		if a.Clipping() != b.Clipping() {
			return a.Clipping() < b.Clipping()
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return len(a.Sequence) < len(b.Sequence)
	})

	nodeOverlap := g.K() - 1

	// per-alignment trim score scans
	prefixScores := make([][]Score, len(working))
	suffixScores := make([][]Score, len(working))
	for i := range working {
		prefixScores[i], suffixScores[i] = trimScoreScans(&working[i], nodeOverlap, cfg)
	}

	anchors := enumerateAnchors(working, scorer, cfg)
	if len(anchors) == 0 {
		for i := range working {
			callback(working[i])
		}
		return
	}

	sort.SliceStable(anchors, func(x, y int) bool {
		if anchors[x].end != anchors[y].end {
			return anchors[x].end < anchors[y].end
		}
		if anchors[x].colSet != anchors[y].colSet {
			return anchors[x].colSet < anchors[y].colSet
		}
		return anchors[x].begin < anchors[y].begin
	})

	states := make([]anchorState, len(anchors))
	for i := range anchors {
		aln := &working[anchors[i].alnID]
		base := suffixScores[anchors[i].alnID][anchors[i].end-aln.Clipping()]
		states[i] = anchorState{
			score:     base,
			last:      -1,
			memLength: anchors[i].length,
		}
	}

	bandwidth := cfg.bandwidth()
	for i := range anchors {
		ai := &anchors[i]
		aCur := &working[ai.alnID]
		iAlnBegin := aCur.Clipping()
		// score of i's alignment from its start through this anchor's end
		gainTo := suffixScores[ai.alnID][ai.end-iAlnBegin]

		for back := 1; back <= bandwidth && i-back >= 0; back++ {
			j := i - back
			aj := &anchors[j]
			if aj.end > ai.end {
				continue
			}

			if aj.alnID == ai.alnID {
				// progress within one alignment
				if aj.end >= ai.end {
					continue
				}
				gain := gainTo - suffixScores[ai.alnID][aj.end-iAlnBegin]
				if cand := states[j].score + gain; cand > states[i].score {
					states[i].score = cand
					states[i].last = j
					states[i].lastJump = false
					states[i].memLength = states[j].memLength + (ai.end - aj.end)
				}
				continue
			}

			aPrev := &working[aj.alnID]
			jAlnEnd := len(aPrev.FullQuery()) - aPrev.EndClipping()
			overlap := jAlnEnd - iAlnBegin
			_, changeScore, ok := s2labelChange(scorer, aPrev, aCur)
			if !ok {
				continue
			}

			if overlap >= 0 && overlap <= nodeOverlap && adjacentPieces(g, aPrev, aCur) {
				// contiguous connection: i's alignment loses its overlap
				// prefix to a trim and pays only the label change
				gain := gainTo - prefixScores[ai.alnID][overlap]
				if cand := states[j].score + gain + changeScore; cand > states[i].score {
					states[i].score = cand
					states[i].last = j
					states[i].lastJump = false
					states[i].memLength = ai.length
				}
			}

			// a graph-discontiguous jump commits only once both sides of
			// it have matched a full k-mer
			if cfg.AllowJump && overlap <= 0 &&
				states[j].memLength >= g.K() && ai.length >= g.K() {
				gap := -overlap
				cost := cfg.NodeInsertionPenalty
				if gap > 0 {
					cost += cfg.GapOpenPenalty + Score(gap-1)*cfg.GapExtendPenalty
				}
				if cand := states[j].score + gainTo + cost + changeScore; cand > states[i].score {
					states[i].score = cand
					states[i].last = j
					states[i].lastJump = true
					states[i].memLength = ai.length
				}
			}
		}
	}

	// backtrack best chains
	type start struct {
		score Score
		idx   int
	}
	starts := make([]start, 0, len(states))
	for i := range states {
		starts = append(starts, start{states[i].score, i})
	}
	sort.SliceStable(starts, func(x, y int) bool { return starts[x].score > starts[y].score })

	usedAnchor := make([]bool, len(anchors))
	usedAln := make([]bool, len(working))

	for _, st := range starts {
		if terminate() {
			return
		}
		if usedAnchor[st.idx] {
			continue
		}

		var chainIdx []int
		var jumps []bool
		for i := st.idx; i >= 0; {
			chainIdx = append(chainIdx, i)
			usedAnchor[i] = true
			next := states[i].last
			if next >= 0 {
				jumps = append(jumps, states[i].lastJump)
			}
			i = next
		}
		// walk order was end-to-start; flip
		reverseInts(chainIdx)
		reverseBools(jumps)

		// collapse consecutive anchors of one alignment into segments
		var segments []chainSegment
		for k, idx := range chainIdx {
			id := anchors[idx].alnID
			if len(segments) > 0 && segments[len(segments)-1].alnID == id {
				continue
			}
			jump := false
			if k > 0 {
				jump = jumps[k-1]
			}
			segments = append(segments, chainSegment{id, jump})
		}
		if len(segments) < 2 {
			continue
		}

		spliced, ok := spliceSegments(g, cfg, scorer, working, segments)
		if !ok {
			continue
		}
		for _, seg := range segments {
			usedAln[seg.alnID] = true
		}
		callback(spliced)
	}

	// alignments no chain consumed still reach the output
	for i := range working {
		if !usedAln[i] {
			callback(working[i])
		}
	}
}

// chainSegment is one source alignment inside a backtracked chain, with
// the connection mode linking it to the previous segment.
type chainSegment struct {
	alnID int
	jump  bool
}

// spliceSegments trims, gap-inserts, and appends the chain's alignments
// into one spliced alignment.
func spliceSegments(g graph.DeBruijnGraph, cfg *Config, scorer *LabelChangeScorer,
	working []Alignment, segments []chainSegment) (Alignment, bool) {

	nodeOverlap := g.K() - 1
	cur := working[segments[0].alnID]
	cur.Nodes = append([]graph.NodeIndex(nil), cur.Nodes...)
	cur.Cigar = cur.Cigar.Clone()

	for s := 1; s < len(segments); s++ {
		next := working[segments[s].alnID]
		next.Nodes = append([]graph.NodeIndex(nil), next.Nodes...)
		next.Cigar = next.Cigar.Clone()

		_, changeScore, ok := s2labelChange(scorer, &cur, &next)
		if !ok {
			return Alignment{}, false
		}

		curEnd := len(cur.FullQuery()) - cur.EndClipping()
		overlap := curEnd - next.Clipping()
		if overlap > 0 {
			next.TrimQueryPrefix(overlap, nodeOverlap, cfg)
			if next.Empty() {
				return Alignment{}, false
			}
		}
		if segments[s].jump {
			gap := next.Clipping() - curEnd
			next.InsertGapPrefix(gap, nodeOverlap, cfg)
		}
		cur.Splice(&next, changeScore, cfg)
		if cur.Empty() {
			return Alignment{}, false
		}
	}
	return cur, true
}

// enumerateAnchors walks each alignment's CIGAR and emits an anchor at
// every query position where a stretch of at least MinSeedLength
// consecutive matches ends over a real path node. Runs merge into one
// maximal anchor per stretch.
func enumerateAnchors(working []Alignment, scorer *LabelChangeScorer, cfg *Config) []anchor {
	var anchors []anchor
	for id := range working {
		a := &working[id]
		colSet := a.LabelColumns
		if a.Buffer == nil && scorer != nil && scorer.Buffer != nil {
			colSet = scorer.Buffer.CacheColumnSet(a.Columns())
		}

		q := a.Clipping()
		nodeIdx := -a.Offset
		runStart := -1
		flush := func(runEnd int) {
			if runStart < 0 || runEnd-runStart < cfg.MinSeedLength {
				runStart = -1
				return
			}
			idx := nodeIdx
			if idx < 0 {
				idx = 0
			}
			if idx >= len(a.Nodes) {
				idx = len(a.Nodes) - 1
			}
			anchors = append(anchors, anchor{
				begin:   runEnd - cfg.MinSeedLength,
				end:     runEnd,
				colSet:  colSet,
				alnID:   id,
				nodeIdx: idx,
				length:  runEnd - runStart,
			})
			runStart = -1
		}

		for _, op := range a.Cigar.Ops() {
			switch op.Op {
			case OpMatch:
				if runStart < 0 {
					runStart = q
				}
				q += int(op.Len)
				nodeIdx += int(op.Len)
			case OpMismatch:
				flush(q)
				q += int(op.Len)
				nodeIdx += int(op.Len)
			case OpInsertion:
				flush(q)
				q += int(op.Len)
			case OpDeletion:
				flush(q)
				nodeIdx += int(op.Len)
			case OpNodeInsertion:
				flush(q)
			case OpClipped:
				flush(q)
			}
		}
		flush(q)
	}
	return anchors
}

// trimScoreScans returns prefixScores (score lost trimming i query prefix
// characters) and suffixScores (score remaining when restricted to the
// first i view characters).
func trimScoreScans(a *Alignment, nodeOverlap int, cfg *Config) (prefix, suffix []Score) {
	n := len(a.QueryView())
	prefix = make([]Score, n+1)
	suffix = make([]Score, n+1)

	work := *a
	work.Nodes = append([]graph.NodeIndex(nil), work.Nodes...)
	work.Cigar = work.Cigar.Clone()
	prefix[0] = 0
	for i := 1; i <= n; i++ {
		if work.Empty() {
			prefix[i] = a.Score
			continue
		}
		work.TrimQueryPrefix(1, nodeOverlap, cfg)
		prefix[i] = a.Score - work.Score
	}

	work = *a
	work.Nodes = append([]graph.NodeIndex(nil), work.Nodes...)
	work.Cigar = work.Cigar.Clone()
	suffix[n] = a.Score
	for i := n - 1; i >= 0; i-- {
		if work.Empty() {
			suffix[i] = 0
			continue
		}
		work.TrimQuerySuffix(1, cfg)
		suffix[i] = work.Score
	}
	return prefix, suffix
}

// adjacentPieces reports whether b's path can physically continue a's: the
// paths share the junction node or an edge connects them.
func adjacentPieces(g graph.DeBruijnGraph, a, b *Alignment) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	last := a.Nodes[len(a.Nodes)-1]
	first := b.Nodes[0]
	if last == first {
		return true
	}
	adjacent := false
	g.CallOutgoing(last, func(next graph.NodeIndex, _ byte) {
		if next == first {
			adjacent = true
		}
	})
	return adjacent
}

// s2labelChange scores the transition between two pieces; an unlabeled
// piece on either side makes the connection free.
func s2labelChange(scorer *LabelChangeScorer, from, to *Alignment) (uint32, Score, bool) {
	if scorer == nil || len(from.Columns()) == 0 || len(to.Columns()) == 0 {
		return 0, 0, true
	}
	c := byte('A')
	if len(to.Sequence) > 0 {
		c = to.Sequence[0]
	}
	fromCols := from.Columns()
	if from.Buffer != nil {
		fromCols = from.Buffer.GetCachedColumnSet(from.LastColumns())
	}
	return scorer.Score(c, fromCols, to.Columns())
}

func reverseInts(s []int) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}

func reverseBools(s []bool) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}
