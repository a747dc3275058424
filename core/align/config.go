// Package align implements the read-time alignment layer: the CIGAR and
// Alignment value types, the per-query annotation buffer, and the two
// chaining passes that turn local seed matches into long, possibly
// label-switching, possibly spliced alignments.
package align

import "math"

// Score is an alignment score. NInf marks a forbidden transition; it is kept
// far from the int32 floor so sums of penalties cannot wrap.
type Score = int32

const NInf Score = math.MinInt32 / 2

// Config carries the scoring and chaining parameters. Penalties are stored
// as the (negative) score contribution they add.
type Config struct {
	MatchScore       Score `yaml:"match_score"`
	MismatchPenalty  Score `yaml:"mismatch_penalty"`   // negative
	GapOpenPenalty   Score `yaml:"gap_open_penalty"`   // negative, charged per gap run
	GapExtendPenalty Score `yaml:"gap_extend_penalty"` // negative, per extra gap char

	// NodeInsertionPenalty is charged once per spliced jump between
	// graph-discontiguous pieces.
	NodeInsertionPenalty Score `yaml:"node_insertion_penalty"` // negative

	// LabelChangeScore is the constant transition score used when no HLL
	// sketches are available. NInf forbids label changes outright.
	LabelChangeScore Score `yaml:"label_change_score"`

	// MinSeedLength feeds both the anchor enumerator and the minimap2-derived
	// linear gap cost (sl = MinSeedLength / 100).
	MinSeedLength int `yaml:"min_seed_length"`

	// MinExactMatch gates chains on the fraction of query covered by exact
	// matches.
	MinExactMatch float64 `yaml:"min_exact_match"`

	// Bandwidth bounds how many predecessor anchors each DP step examines.
	Bandwidth int `yaml:"bandwidth"`

	// AllowJump permits graph-discontiguous transitions in the alignment
	// chainer.
	AllowJump bool `yaml:"allow_jump"`

	// MaxNumSeedsPerLocus caps how many coordinates of one seed explode
	// into DP rows.
	MaxNumSeedsPerLocus int `yaml:"max_num_seeds_per_locus"`

	// RowBatchSize bounds one annotation fetch.
	RowBatchSize int `yaml:"row_batch_size"`

	// MaxCoordsPerNode bounds the coordinate sets cached per node.
	MaxCoordsPerNode int `yaml:"max_coords_per_node"`
}

// DefaultConfig mirrors the scoring defaults of the original engine.
func DefaultConfig() *Config {
	return &Config{
		MatchScore:           2,
		MismatchPenalty:      -3,
		GapOpenPenalty:       -6,
		GapExtendPenalty:     -2,
		NodeInsertionPenalty: -12,
		LabelChangeScore:     NInf,
		MinSeedLength:        15,
		MinExactMatch:        0.7,
		Bandwidth:            65,
		MaxNumSeedsPerLocus:  32,
		RowBatchSize:         1 << 14,
		MaxCoordsPerNode:     32,
	}
}

func (c *Config) bandwidth() int {
	if c.Bandwidth <= 0 {
		return 65
	}
	return c.Bandwidth
}

// ScorePair scores one aligned character pair.
func (c *Config) ScorePair(ref, query byte) Score {
	if ref == query {
		return c.MatchScore
	}
	return c.MismatchPenalty
}

// MatchScoreOf scores an exact match of the given length.
func (c *Config) MatchScoreOf(length int) Score {
	return Score(length) * c.MatchScore
}

// ScoreCigar applies the scoring function to a CIGAR over the given
// reference spelling and query view. This is the definition alignment
// scores are validated against.
func (c *Config) ScoreCigar(cg *Cigar, reference, query string) Score {
	var score Score
	ri, qi := 0, 0
	for _, op := range cg.Ops() {
		switch op.Op {
		case OpClipped:
			// clipping is free and consumes nothing inside the view
		case OpMatch, OpMismatch:
			for i := 0; i < int(op.Len); i++ {
				score += c.ScorePair(reference[ri], query[qi])
				ri++
				qi++
			}
		case OpInsertion:
			score += c.GapOpenPenalty + Score(op.Len-1)*c.GapExtendPenalty
			qi += int(op.Len)
		case OpDeletion:
			score += c.GapOpenPenalty + Score(op.Len-1)*c.GapExtendPenalty
			ri += int(op.Len)
		case OpNodeInsertion:
			score += c.NodeInsertionPenalty
		}
	}
	return score
}
