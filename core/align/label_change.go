package align

import (
	"math"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/graph"
	"github.com/adalundhe/annodex/core/hll"
)

// LabelChangeScorer scores transitions between label sets along a chain.
// With per-column HLL sketches the score reflects how plausible the switch
// is given the estimated overlap of the two labels' k-mer sets; without
// them the configured constant applies. A false result forbids the
// transition.
type LabelChangeScorer struct {
	Buffer   *AnnotationBuffer
	Sketches *hll.ColumnSketches
	Config   *Config
}

// Score computes the cost of switching from label set `from` to label set
// `to` when appending a piece whose first reference character is c. The
// result is the interned set the chain continues under plus its score.
func (s *LabelChangeScorer) Score(c byte, from, to []annotation.Column) (uint32, Score, bool) {
	if c == graph.Sentinel {
		return 0, 0, false
	}

	inter, diff := intersectionDifference(to, from)
	if len(inter) > 0 {
		// continuing under shared labels is free
		return s.cache(inter), 0, true
	}
	if len(from) == 0 || len(diff) == 0 {
		return 0, 0, false
	}

	if s.Sketches == nil {
		if s.Config.LabelChangeScore == NInf {
			return 0, 0, false
		}
		return s.cache(diff), s.Config.LabelChangeScore, true
	}

	lambda := float64(s.Config.MatchScore)
	bestScore := NInf
	var bestSet []annotation.Column
	for _, d := range diff {
		dScore := NInf
		for _, src := range from {
			sizeA, sizeB, sizeUnion := s.Sketches.EstimateUnion(src, d)
			sizeSum := sizeA + sizeB
			if sizeUnion >= sizeSum || sizeB == 0 {
				// no estimated overlap between the two labels
				continue
			}
			overlap := math.Min(float64(sizeB), float64(sizeSum-sizeUnion))
			score := Score((math.Log2(overlap) - math.Log2(float64(sizeB))) * lambda)
			if score > dScore {
				dScore = score
			}
		}
		if dScore == NInf {
			continue
		}
		switch {
		case dScore > bestScore:
			bestScore = dScore
			bestSet = []annotation.Column{d}
		case dScore == bestScore:
			bestSet = append(bestSet, d)
		}
	}
	if bestScore == NInf {
		return 0, 0, false
	}
	return s.cache(bestSet), bestScore, true
}

func (s *LabelChangeScorer) cache(cols []annotation.Column) uint32 {
	if s.Buffer == nil {
		return 0
	}
	return s.Buffer.CacheColumnSet(cols)
}

// intersectionDifference splits sorted a into (a ∩ b, a \ b).
func intersectionDifference(a, b []annotation.Column) (inter, diff []annotation.Column) {
	i, j := 0, 0
	for i < len(a) {
		switch {
		case j == len(b) || a[i] < b[j]:
			diff = append(diff, a[i])
			i++
		case a[i] > b[j]:
			j++
		default:
			inter = append(inter, a[i])
			i++
			j++
		}
	}
	return inter, diff
}
