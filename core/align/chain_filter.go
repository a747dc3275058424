package align

import (
	"math"
	"sort"

	"github.com/adalundhe/annodex/core/pathindex"
)

// ChainAndFilterSeeds chains seeds with gap costs measured in the graph
// rather than in reference-coordinate space: each seed is placed on its
// unitig and inter-seed distances come from the path index's superbubble
// chain, discarding connections the graph cannot realize. Mirrors the
// coordinate chainer otherwise; the returned chains feed the same splicer.
func ChainAndFilterSeeds(cfg *Config, pi *pathindex.PathIndex, query string, seeds []Seed,
	callback func(Chain, Score) bool, terminate func() bool) (numSeeds int, coverageOK bool) {

	if terminate == nil {
		terminate = func() bool { return false }
	}
	seeds = compactPlacedSeeds(seeds)
	if len(seeds) == 0 {
		return 0, false
	}

	// place each seed on its unitigs
	firstNodes := make([]uint64, len(seeds))
	for i := range seeds {
		firstNodes[i] = seeds[i].Nodes[0]
	}
	placements := pi.NodeCoords(firstNodes)

	type placedElem struct {
		unitig  uint64
		offset  uint64 // coordinate within the unitig
		clip    int32
		end     int32
		score   Score
		seedIdx int32
	}
	var table []placedElem
	for i := range seeds {
		for _, place := range placements[i] {
			table = append(table, placedElem{
				unitig:  place[0],
				offset:  place[1],
				clip:    int32(seeds[i].Begin),
				end:     int32(seeds[i].End),
				score:   Score(seeds[i].End - seeds[i].Begin),
				seedIdx: int32(i),
			})
		}
	}
	numSeeds = len(table)
	if numSeeds == 0 {
		return 0, false
	}

	// later query positions first, mirroring the coordinate table order
	sort.SliceStable(table, func(a, b int) bool {
		if table[a].clip != table[b].clip {
			return table[a].clip > table[b].clip
		}
		return table[a].end > table[b].end
	})

	backtrace := make([]int32, len(table))
	for i := range backtrace {
		backtrace[i] = noBacktrace
	}

	querySize := int64(len(query))
	sl := float32(cfg.MinSeedLength) * 0.01
	bandwidth := cfg.bandwidth()

	for i := range table {
		prev := table[i]
		if prev.clip == 0 {
			continue
		}
		windowEnd := min(i+1+bandwidth, len(table))
		for j := i + 1; j < windowEnd; j++ {
			if terminate() {
				return numSeeds, false
			}
			cand := &table[j]
			dist := int64(prev.clip - cand.clip)
			if dist <= 0 || dist >= querySize {
				continue
			}

			// graph distance from the candidate (earlier in the query) to
			// this element
			coordDist := int64(-1)
			if cand.unitig == prev.unitig && prev.offset >= cand.offset {
				coordDist = int64(prev.offset - cand.offset)
			} else {
				d := pi.GetDist(cand.unitig, prev.unitig, uint64(querySize)*2)
				if d == pathindex.Unreachable {
					continue
				}
				coordDist = int64(d) + int64(prev.offset) - int64(cand.offset)
			}
			if coordDist <= 0 || coordDist >= querySize {
				continue
			}

			match := min(dist, coordDist, int64(cand.end-cand.clip))
			curScore := prev.score + Score(match)
			if coordDist != dist {
				gap := float64(absInt64(coordDist - dist))
				curScore -= Score(math.Ceil(float64(sl)*gap + 0.5*math.Log2(gap+1)))
			}
			if curScore >= cand.score {
				cand.score = curScore
				backtrace[j] = int32(i)
			}
		}
	}

	type start struct {
		score Score
		idx   int
	}
	starts := make([]start, 0, len(table))
	for i := range table {
		starts = append(starts, start{table[i].score, i})
	}
	sort.SliceStable(starts, func(a, b int) bool { return starts[a].score > starts[b].score })

	used := make([]bool, len(table))
	coverageThreshold := int(cfg.MinExactMatch * float64(len(query)))
	coverageOK = true

	for _, st := range starts {
		if terminate() {
			break
		}
		if used[st.idx] {
			continue
		}
		var chain Chain
		lastEnd := int32(-1)
		for i := int32(st.idx); i != noBacktrace; i = backtrace[i] {
			used[i] = true
			s := seeds[table[i].seedIdx]
			if s.Empty() {
				continue
			}
			dist := int64(0)
			if lastEnd >= 0 {
				dist = int64(table[i].clip) - int64(lastEnd)
			}
			lastEnd = table[i].end
			chain = append(chain, ChainLink{Aln: *NewAlignmentFromSeed(&s, cfg), Dist: dist})
		}
		if len(chain) == 0 {
			continue
		}

		mask := make([]bool, len(query))
		covered := 0
		for i := range chain {
			covered += chain[i].Aln.Cigar.MarkExactMatches(mask, true, chain[i].Aln.Orientation)
		}
		if covered < coverageThreshold {
			coverageOK = false
			break
		}
		if !callback(chain, st.score) {
			break
		}
	}
	return numSeeds, coverageOK
}

func compactPlacedSeeds(seeds []Seed) []Seed {
	out := seeds[:0:0]
	for i := range seeds {
		if !seeds[i].Empty() {
			out = append(out, seeds[i])
		}
	}
	return out
}
