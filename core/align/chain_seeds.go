package align

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/viterin/vek/vek32"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/graph"
)

// tableElem is one sparse-DP row of the seed chainer: a (label, coordinate)
// instance of a seed.
type tableElem struct {
	label   annotation.Column
	coord   int64
	clip    int32 // query begin of the seed
	end     int32 // query end of the seed
	score   Score
	seedIdx int32
}

const noBacktrace = int32(-1)

// ChainLink is one element of a chain: an alignment and its query distance
// from the previous element (0 for the first).
type ChainLink struct {
	Aln  Alignment
	Dist int64
}

// Chain is a totally ordered sequence of coordinate-consistent alignments.
type Chain []ChainLink

// chainSeeds runs the sparse DP over the per-(label, coordinate) table and
// returns the scored table with backtrace pointers. The scoring follows
// minimap2: an exact extension scores its length, a gap g between query and
// reference advancement costs ceil(sl*g + 0.5*log2(g+1)) with
// sl = MinSeedLength/100.
func chainSeeds(cfg *Config, query string, seeds []Seed) (dp []tableElem, backtrace []int32, numSeeds, numNodes int) {
	if len(seeds) == 0 {
		return nil, nil, 0, 0
	}

	maxPerLocus := cfg.MaxNumSeedsPerLocus
	if maxPerLocus <= 0 {
		maxPerLocus = 32
	}

	labelSizes := make(map[annotation.Column]int)
	for i := range seeds {
		s := &seeds[i]
		numNodes += len(s.Nodes)
		for j, label := range s.Columns {
			coords := s.Coordinates[j]
			take := min(len(coords), maxPerLocus)
			// newest coordinates first, as the table is coordinate-descending
			for c := len(coords) - 1; c >= len(coords)-take; c-- {
				labelSizes[label]++
				dp = append(dp, tableElem{
					label:   label,
					coord:   coords[c],
					clip:    int32(s.Begin),
					end:     int32(s.End),
					score:   Score(s.End - s.Begin),
					seedIdx: int32(i),
				})
			}
		}
	}
	numSeeds = len(dp)

	backtrace = make([]int32, len(dp))
	for i := range backtrace {
		backtrace[i] = noBacktrace
	}
	if len(dp) == 0 {
		return dp, backtrace, numSeeds, numNodes
	}

	// label ascending, coordinate descending, then query position: within a
	// label, later entries sit earlier on the reference
	sort.SliceStable(dp, func(a, b int) bool {
		if dp[a].label != dp[b].label {
			return dp[a].label < dp[b].label
		}
		if dp[a].coord != dp[b].coord {
			return dp[a].coord > dp[b].coord
		}
		if dp[a].clip != dp[b].clip {
			return dp[a].clip < dp[b].clip
		}
		return dp[a].end < dp[b].end
	})

	querySize := int64(len(query))
	bandwidth := cfg.bandwidth()
	sl := float32(cfg.MinSeedLength) * 0.01

	labelEnd := 0
	for i := 0; i < len(dp); i++ {
		if i == labelEnd {
			labelEnd += labelSizes[dp[i].label]
		}
		prev := dp[i]
		if prev.clip == 0 {
			continue
		}

		windowEnd := min(i+1+bandwidth, labelEnd)
		coordCutoff := prev.coord - querySize

		j := i + 1
		for j < windowEnd && dp[j].coord >= coordCutoff {
			j++
		}
		window := dp[i+1 : j]
		if len(window) == 0 {
			continue
		}

		gaps := make([]float32, len(window))
		for w := range window {
			dist := int64(prev.clip - window[w].clip)
			coordDist := prev.coord - window[w].coord
			gaps[w] = float32(absInt64(coordDist - dist))
		}
		penalties := gapPenalties(gaps, sl)

		for w := range window {
			cand := &dp[i+1+w]
			dist := int64(prev.clip - cand.clip)
			coordDist := prev.coord - cand.coord
			if dist <= 0 || max(dist, coordDist) >= querySize {
				continue
			}
			match := min(dist, coordDist, int64(cand.end-cand.clip))
			curScore := prev.score + Score(match)
			if coordDist != dist {
				curScore -= Score(math.Ceil(float64(penalties[w])))
			}
			if curScore >= cand.score {
				cand.score = curScore
				backtrace[i+1+w] = int32(i)
			}
		}
	}

	return dp, backtrace, numSeeds, numNodes
}

// gapPenalties computes sl*g + 0.5*log2(g+1) for a window of gaps in one
// vectorized pass; gapPenaltiesScalar is the reference implementation the
// property tests hold it to.
func gapPenalties(gaps []float32, sl float32) []float32 {
	logs := vek32.AddNumber(gaps, 1)
	logs = vek32.Log2(logs)
	logs = vek32.MulNumber(logs, 0.5)
	linear := vek32.MulNumber(gaps, sl)
	return vek32.Add(linear, logs)
}

func gapPenaltiesScalar(gaps []float32, sl float32) []float32 {
	out := make([]float32, len(gaps))
	for i, g := range gaps {
		out[i] = sl*g + 0.5*float32(math.Log2(float64(g)+1))
	}
	return out
}

func absInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// CallSeedChainsBothStrands chains the forward and reverse-complement seed
// sets and calls back each distinct chain with its score, best first.
// Chains with identical node paths merge their coordinate sets instead of
// being reported twice. Chains on a label the skip predicate accepts are
// dropped. The callback returning false or the terminate probe stop the
// enumeration. Reports whether the covered
// query fraction passed the MinExactMatch gate.
func CallSeedChainsBothStrands(cfg *Config,
	fwdQuery, rcQuery string,
	fwdSeeds, rcSeeds []Seed,
	callback func(Chain, Score) bool,
	skipLabel func(annotation.Column) bool,
	terminate func() bool,
) (numSeeds, numNodes int, coverageOK bool) {
	if skipLabel == nil {
		skipLabel = func(annotation.Column) bool { return false }
	}
	if terminate == nil {
		terminate = func() bool { return false }
	}

	queries := [2]string{fwdQuery, rcQuery}
	bothSeeds := [2][]Seed{compactSeeds(fwdSeeds), compactSeeds(rcSeeds)}
	if len(bothSeeds[0]) == 0 && len(bothSeeds[1]) == 0 {
		return 0, 0, false
	}

	var dpTables [2][]tableElem
	var backtraces [2][]int32
	for strand := 0; strand < 2; strand++ {
		dp, bt, ns, nn := chainSeeds(cfg, queries[strand], bothSeeds[strand])
		dpTables[strand] = dp
		backtraces[strand] = bt
		numSeeds += ns
		numNodes += nn
	}

	type start struct {
		score  Score
		strand int
		idx    int
	}
	var starts []start
	for strand := 0; strand < 2; strand++ {
		for i := range dpTables[strand] {
			starts = append(starts, start{dpTables[strand][i].score, strand, i})
		}
	}
	if len(starts) == 0 {
		return numSeeds, numNodes, false
	}
	sort.SliceStable(starts, func(a, b int) bool {
		if starts[a].score != starts[b].score {
			return starts[a].score > starts[b].score
		}
		if starts[a].strand != starts[b].strand {
			return starts[a].strand < starts[b].strand
		}
		return starts[a].idx < starts[b].idx
	})

	used := [2][]bool{
		make([]bool, len(dpTables[0])),
		make([]bool, len(dpTables[1])),
	}

	coverageOK = true
	stopped := false
	var group []Chain
	var groupScore Score
	coverageThreshold := int(cfg.MinExactMatch * float64(len(fwdQuery)))

	flush := func() bool {
		if len(group) == 0 {
			return true
		}
		// coverage gate over the equal-score group
		mask := make([]bool, len(fwdQuery))
		covered := 0
		for _, chain := range group {
			for i := range chain {
				covered += chain[i].Aln.Cigar.MarkExactMatches(mask, true, chain[i].Aln.Orientation)
			}
		}
		if covered < coverageThreshold {
			coverageOK = false
			return false
		}
		// identical chains merge coordinate sets
		merged := make(map[uint64]int)
		var order []int
		for ci := range group {
			key := chainFingerprint(group[ci])
			if at, ok := merged[key]; ok {
				mergeChainCoordinates(group[at], group[ci])
				continue
			}
			merged[key] = ci
			order = append(order, ci)
		}
		for _, ci := range order {
			if terminate() || !callback(group[ci], groupScore) {
				return false
			}
		}
		group = group[:0]
		return true
	}

	for _, st := range starts {
		if terminate() || stopped {
			break
		}
		if used[st.strand][st.idx] {
			continue
		}

		chain := backtrackChain(cfg, queries[st.strand], bothSeeds[st.strand],
			dpTables[st.strand], backtraces[st.strand], used[st.strand], st.idx, skipLabel)
		if chain == nil {
			continue
		}

		if len(group) > 0 && st.score != groupScore {
			if !flush() {
				stopped = true
				break
			}
		}
		groupScore = st.score
		group = append(group, chain)
	}
	if !stopped {
		flush()
	}
	return numSeeds, numNodes, coverageOK
}

func compactSeeds(seeds []Seed) []Seed {
	out := seeds[:0:0]
	for i := range seeds {
		if !seeds[i].Empty() && len(seeds[i].Columns) > 0 {
			out = append(out, seeds[i])
		}
	}
	return out
}

// backtrackChain walks one DP chain, re-labels every seed with its chain
// label and coordinate, collapses clean overlaps, and lifts the seeds into
// alignments.
func backtrackChain(cfg *Config, query string, seeds []Seed,
	dp []tableElem, backtrace []int32, used []bool, idx int,
	skipLabel func(annotation.Column) bool) Chain {

	type chainSeed struct {
		seed  Seed
		coord int64
	}
	// scores accumulate from the query end backward, so the best start is the
	// chain's earliest element and the backtrace walks forward in the query
	var picked []chainSeed
	for i := int32(idx); i != noBacktrace; i = backtrace[i] {
		elem := dp[i]
		if skipLabel(elem.label) {
			break
		}
		used[i] = true
		s := seeds[elem.seedIdx]
		s.Nodes = append([]graph.NodeIndex(nil), s.Nodes...)
		s.Columns = []annotation.Column{elem.label}
		s.Coordinates = []annotation.Tuple{{elem.coord}}
		picked = append(picked, chainSeed{s, elem.coord})
	}
	if len(picked) == 0 {
		return nil
	}

	// collapse overlapping seeds whose coordinate gap equals the query gap
	for i := len(picked) - 1; i > 0; i-- {
		cur := &picked[i].seed
		prev := &picked[i-1].seed
		if cur.Empty() || prev.Empty() {
			continue
		}
		if prev.End > cur.Begin {
			coordDist := picked[i].coord + int64(cur.End-cur.Begin) -
				picked[i-1].coord - int64(prev.End-prev.Begin)
			dist := int64(cur.End - prev.End)
			if dist == coordDist && int64(len(cur.Nodes)) >= dist && dist > 0 {
				prev.Expand(cur.Nodes[int64(len(cur.Nodes))-dist:])
				cur.Nodes = nil
			}
		}
	}

	chain := make(Chain, 0, len(picked))
	lastCoord := int64(0)
	for i := range picked {
		if picked[i].seed.Empty() {
			continue
		}
		dist := int64(0)
		if len(chain) > 0 {
			dist = picked[i].coord - lastCoord
		}
		chain = append(chain, ChainLink{Aln: *NewAlignmentFromSeed(&picked[i].seed, cfg), Dist: dist})
		lastCoord = picked[i].coord
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

func chainFingerprint(chain Chain) uint64 {
	var d xxhash.Digest
	d.Reset()
	var buf [8]byte
	write := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		d.Write(buf[:])
	}
	for i := range chain {
		for _, n := range chain[i].Aln.Nodes {
			write(n)
		}
		write(uint64(chain[i].Dist))
		write(^uint64(0))
	}
	return d.Sum64()
}

// mergeChainCoordinates folds src's per-element label coordinates into dst
// for chains over identical node paths: the label sets union, and columns
// present in both union their coordinate sets.
func mergeChainCoordinates(dst, src Chain) {
	for i := range dst {
		if i >= len(src) {
			return
		}
		a, b := &dst[i].Aln, &src[i].Aln
		cols := make([]annotation.Column, 0, len(a.LabelSet)+len(b.LabelSet))
		coords := make([]annotation.Tuple, 0, cap(cols))
		x, y := 0, 0
		for x < len(a.LabelSet) && y < len(b.LabelSet) {
			switch {
			case a.LabelSet[x] < b.LabelSet[y]:
				cols = append(cols, a.LabelSet[x])
				coords = append(coords, a.Coordinates[x])
				x++
			case a.LabelSet[x] > b.LabelSet[y]:
				cols = append(cols, b.LabelSet[y])
				coords = append(coords, b.Coordinates[y])
				y++
			default:
				cols = append(cols, a.LabelSet[x])
				coords = append(coords, unionTuples(a.Coordinates[x], b.Coordinates[y]))
				x++
				y++
			}
		}
		for ; x < len(a.LabelSet); x++ {
			cols = append(cols, a.LabelSet[x])
			coords = append(coords, a.Coordinates[x])
		}
		for ; y < len(b.LabelSet); y++ {
			cols = append(cols, b.LabelSet[y])
			coords = append(coords, b.Coordinates[y])
		}
		a.LabelSet = cols
		a.Coordinates = coords
	}
}

func unionTuples(a, b annotation.Tuple) annotation.Tuple {
	out := make(annotation.Tuple, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
