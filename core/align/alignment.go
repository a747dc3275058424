package align

import (
	"fmt"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/graph"
)

// Seed is a local exact match feeding the chainer. It borrows the query
// string; the query must outlive the seed.
type Seed struct {
	Query       string // full oriented query
	Begin, End  int    // matched view [Begin, End)
	Nodes       []graph.NodeIndex
	Orientation bool
	Offset      int

	// Columns and Coordinates run parallel: Coordinates[i] holds the
	// coordinates of the seed's first nucleotide under Columns[i].
	Columns     []annotation.Column
	Coordinates []annotation.Tuple
}

func (s *Seed) Empty() bool       { return len(s.Nodes) == 0 }
func (s *Seed) QueryView() string { return s.Query[s.Begin:s.End] }

// Expand grows the seed to the right by the given nodes, one query
// character per node.
func (s *Seed) Expand(next []graph.NodeIndex) {
	s.End += len(next)
	s.Nodes = append(s.Nodes, next...)
}

// NumCharMatchesInSeeds counts distinct query positions covered by seeds.
func NumCharMatchesInSeeds(seeds []Seed) int {
	var mask []bool
	for i := range seeds {
		s := &seeds[i]
		if s.Empty() {
			continue
		}
		if mask == nil {
			mask = make([]bool, len(s.Query))
		}
		for p := s.Begin; p < s.End; p++ {
			mask[p] = true
		}
	}
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

// Alignment is one scored path through the graph spelling part of the
// query. It borrows the query string; a results container bundles the two.
type Alignment struct {
	query      string
	begin, end int

	Nodes       []graph.NodeIndex
	Sequence    string
	Score       Score
	Cigar       *Cigar
	Orientation bool

	// Offset counts characters of the first node clipped away.
	Offset int

	// Buffer interns the label sets below; nil means the label set, if any,
	// lives directly in LabelSet.
	Buffer       *AnnotationBuffer
	LabelColumns uint32
	LabelSet     []annotation.Column

	// Coordinates, when present, holds per label column the coordinates of
	// the first nucleotide.
	Coordinates []annotation.Tuple

	// ColumnDiffs records, for chains that switch labels mid-path, the
	// interned label set in effect after each appended piece.
	ColumnDiffs []uint32

	// ExtraScores accumulates label-change contributions that are not a
	// function of the CIGAR.
	ExtraScores []Score
}

// NewAlignmentFromSeed lifts a seed into a full-match alignment.
func NewAlignmentFromSeed(s *Seed, cfg *Config) *Alignment {
	a := &Alignment{
		query:       s.Query,
		begin:       s.Begin,
		end:         s.End,
		Nodes:       append([]graph.NodeIndex(nil), s.Nodes...),
		Sequence:    s.QueryView(),
		Orientation: s.Orientation,
		Offset:      s.Offset,
		LabelSet:    s.Columns,
		Coordinates: s.Coordinates,
		Cigar:       NewCigar(uint32(s.Begin)),
	}
	a.Cigar.Append(OpMatch, uint32(s.End-s.Begin))
	a.Cigar.Append(OpClipped, uint32(len(s.Query)-s.End))
	a.UpdateScore(cfg)
	return a
}

func (a *Alignment) Empty() bool         { return len(a.Nodes) == 0 }
func (a *Alignment) QueryView() string   { return a.query[a.begin:a.end] }
func (a *Alignment) FullQuery() string   { return a.query }
func (a *Alignment) Clipping() int       { return a.begin }
func (a *Alignment) EndClipping() int    { return len(a.query) - a.end }
func (a *Alignment) HasAnnotation() bool { return a.Buffer != nil }
func (a *Alignment) Size() int           { return len(a.Nodes) }

// Columns decodes the label set, empty for unlabeled alignments.
func (a *Alignment) Columns() []annotation.Column {
	if a.Buffer == nil {
		return a.LabelSet
	}
	return a.Buffer.GetCachedColumnSet(a.LabelColumns)
}

// LastColumns is the label set in effect at the end of the path.
func (a *Alignment) LastColumns() uint32 {
	if len(a.ColumnDiffs) > 0 {
		return a.ColumnDiffs[len(a.ColumnDiffs)-1]
	}
	return a.LabelColumns
}

// UpdateScore recomputes the score from the CIGAR and the extra scores;
// every mutator ends with it so the score invariant holds by construction.
func (a *Alignment) UpdateScore(cfg *Config) {
	a.Score = cfg.ScoreCigar(a.Cigar, a.Sequence, a.QueryView())
	for _, s := range a.ExtraScores {
		a.Score += s
	}
}

// trimRefFront drops one reference character off the front, keeping the
// path/offset invariant |nodes| == |spelling| - k + 1 + offset.
func (a *Alignment) trimRefFront(nodeOverlap int) {
	if a.Offset == nodeOverlap {
		a.Nodes = a.Nodes[1:]
		if len(a.ColumnDiffs) > 0 {
			a.ColumnDiffs = a.ColumnDiffs[1:]
		}
	} else {
		a.Offset++
	}
	a.Sequence = a.Sequence[1:]
}

// TrimQueryPrefix removes n query characters from the front of the view,
// consuming insertions with the query, deletions with the reference, and
// dropping excess deletions stranded at the new boundary. Coordinates shift
// by the reference characters consumed.
func (a *Alignment) TrimQueryPrefix(n, nodeOverlap int, cfg *Config) {
	if n == 0 {
		return
	}
	ops := append([]OpLen(nil), a.Cigar.ops...)
	i := 0
	clip := uint32(0)
	if len(ops) > 0 && ops[0].Op == OpClipped {
		clip = ops[0].Len
		i++
	}

	qLeft := n
	refConsumed := 0
	for i < len(ops) && qLeft > 0 {
		op := &ops[i]
		if op.Op == OpClipped {
			break
		}
		switch op.Op {
		case OpMatch, OpMismatch:
			take := min(int(op.Len), qLeft)
			qLeft -= take
			refConsumed += take
			op.Len -= uint32(take)
		case OpInsertion:
			take := min(int(op.Len), qLeft)
			qLeft -= take
			op.Len -= uint32(take)
		case OpDeletion:
			refConsumed += int(op.Len)
			op.Len = 0
		case OpNodeInsertion:
			op.Len = 0
		}
		if op.Len == 0 {
			i++
		}
	}
	// deletions stranded at the boundary go too
	for i < len(ops) && (ops[i].Op == OpDeletion || ops[i].Op == OpNodeInsertion) {
		if ops[i].Op == OpDeletion {
			refConsumed += int(ops[i].Len)
		}
		i++
	}

	trimmed := n - qLeft
	rebuilt := &Cigar{}
	rebuilt.Append(OpClipped, clip+uint32(trimmed))
	for ; i < len(ops); i++ {
		rebuilt.Append(ops[i].Op, ops[i].Len)
	}
	a.Cigar = rebuilt
	a.begin += trimmed
	for j := 0; j < refConsumed; j++ {
		if len(a.Sequence) == 0 {
			break
		}
		a.trimRefFront(nodeOverlap)
	}
	if refConsumed > 0 && a.Coordinates != nil {
		shifted := make([]annotation.Tuple, len(a.Coordinates))
		for ci, tuple := range a.Coordinates {
			next := make(annotation.Tuple, len(tuple))
			for k, c := range tuple {
				next[k] = c + annotation.Coord(refConsumed)
			}
			shifted[ci] = next
		}
		a.Coordinates = shifted
	}
	if len(a.Nodes) == 0 {
		*a = Alignment{query: a.query, Cigar: &Cigar{}}
		return
	}
	a.UpdateScore(cfg)
}

// TrimQuerySuffix removes n query characters from the back of the view.
func (a *Alignment) TrimQuerySuffix(n int, cfg *Config) {
	if n == 0 {
		return
	}
	ops := append([]OpLen(nil), a.Cigar.ops...)
	i := len(ops) - 1
	endClip := uint32(0)
	if i >= 0 && ops[i].Op == OpClipped {
		endClip = ops[i].Len
		i--
	}

	qLeft := n
	refConsumed := 0
	for i >= 0 && qLeft > 0 {
		op := &ops[i]
		if op.Op == OpClipped {
			break
		}
		switch op.Op {
		case OpMatch, OpMismatch:
			take := min(int(op.Len), qLeft)
			qLeft -= take
			refConsumed += take
			op.Len -= uint32(take)
		case OpInsertion:
			take := min(int(op.Len), qLeft)
			qLeft -= take
			op.Len -= uint32(take)
		case OpDeletion:
			refConsumed += int(op.Len)
			op.Len = 0
		case OpNodeInsertion:
			op.Len = 0
		}
		if op.Len == 0 {
			i--
		}
	}
	for i >= 0 && (ops[i].Op == OpDeletion || ops[i].Op == OpNodeInsertion) {
		if ops[i].Op == OpDeletion {
			refConsumed += int(ops[i].Len)
		}
		i--
	}

	trimmed := n - qLeft
	rebuilt := &Cigar{}
	for j := 0; j <= i; j++ {
		rebuilt.Append(ops[j].Op, ops[j].Len)
	}
	rebuilt.Append(OpClipped, endClip+uint32(trimmed))
	a.Cigar = rebuilt
	a.end -= trimmed
	for j := 0; j < refConsumed && len(a.Nodes) > 0; j++ {
		a.Nodes = a.Nodes[:len(a.Nodes)-1]
		if len(a.ColumnDiffs) > 0 {
			a.ColumnDiffs = a.ColumnDiffs[:len(a.ColumnDiffs)-1]
		}
		a.Sequence = a.Sequence[:len(a.Sequence)-1]
	}
	if len(a.Nodes) == 0 {
		*a = Alignment{query: a.query, Cigar: &Cigar{}}
		return
	}
	a.UpdateScore(cfg)
}

// ExtendOffset pretends extraNodes precede the path, raising the offset
// accordingly; used when splicing into the middle of a node.
func (a *Alignment) ExtendOffset(extraNodes []graph.NodeIndex) {
	if len(extraNodes) == 0 {
		return
	}
	a.Nodes = append(append([]graph.NodeIndex(nil), extraNodes...), a.Nodes...)
	a.Offset += len(extraNodes)
	if len(a.ColumnDiffs) > 0 {
		pad := make([]uint32, len(extraNodes))
		for i := range pad {
			pad[i] = a.LabelColumns
		}
		a.ColumnDiffs = append(pad, a.ColumnDiffs...)
	}
}

// InsertGapPrefix prepares the alignment for concatenation onto a
// predecessor separated by gap query characters and a graph discontinuity:
// a NODE_INSERTION (charged NodeInsertionPenalty) followed by an INSERTION
// of the gap characters, which move out of the clipping.
func (a *Alignment) InsertGapPrefix(gap, nodeOverlap int, cfg *Config) {
	if gap < 0 {
		// overlap was already reconciled by a prefix trim
		gap = 0
	}
	ops := append([]OpLen(nil), a.Cigar.ops...)
	i := 0
	if len(ops) > 0 && ops[0].Op == OpClipped {
		i++
	}
	rebuilt := &Cigar{}
	rebuilt.Append(OpClipped, uint32(a.begin-gap))
	rebuilt.Append(OpNodeInsertion, 1)
	rebuilt.Append(OpInsertion, uint32(gap))
	for ; i < len(ops); i++ {
		rebuilt.Append(ops[i].Op, ops[i].Len)
	}
	a.Cigar = rebuilt
	a.begin -= gap
	a.UpdateScore(cfg)
}

// Append concatenates other onto the end of this alignment: paths,
// spellings, CIGARs, label diffs. The query views must be adjacent. An
// extra score (e.g. a label change cost) is carried in ExtraScores.
func (a *Alignment) Append(other *Alignment, extraScore Score, cfg *Config) {
	a.Cigar.TrimEndClipping()
	oc := other.Cigar.Clone()
	oc.TrimClipping()
	a.Cigar.AppendCigar(oc)

	if a.Buffer == nil && other.Buffer == nil {
		a.LabelSet = unionColumns(a.LabelSet, other.LabelSet)
	}

	// per-step label ids so mixed-label chains stay queryable
	if a.Buffer != nil || other.Buffer != nil {
		if a.Buffer == nil {
			a.Buffer = other.Buffer
		}
		needDiffs := len(a.ColumnDiffs) > 0 || len(other.ColumnDiffs) > 0 ||
			other.LabelColumns != a.LabelColumns
		if needDiffs {
			if len(a.ColumnDiffs) == 0 {
				a.ColumnDiffs = make([]uint32, len(a.Nodes))
				for i := range a.ColumnDiffs {
					a.ColumnDiffs[i] = a.LabelColumns
				}
			}
			if len(other.ColumnDiffs) > 0 {
				a.ColumnDiffs = append(a.ColumnDiffs, other.ColumnDiffs...)
			} else {
				for range other.Nodes {
					a.ColumnDiffs = append(a.ColumnDiffs, other.LabelColumns)
				}
			}
		}
	}

	a.Nodes = append(a.Nodes, other.Nodes...)
	a.Sequence += other.Sequence
	a.end = other.end
	if extraScore != 0 {
		a.ExtraScores = append(a.ExtraScores, extraScore)
	}
	a.ExtraScores = append(a.ExtraScores, other.ExtraScores...)
	a.UpdateScore(cfg)
}

func unionColumns(a, b []annotation.Column) []annotation.Column {
	out := make([]annotation.Column, 0, len(a)+len(b))
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

// Splice is Append with the label change recorded.
func (a *Alignment) Splice(other *Alignment, labelChangeScore Score, cfg *Config) {
	a.Append(other, labelChangeScore, cfg)
}

// ReverseComplement flips the alignment onto the other strand. queryRC must
// be the reverse complement of the full query. Only offset-free alignments
// reverse cleanly; others are emptied.
func (a *Alignment) ReverseComplement(g *graph.Canonical, queryRC string, cfg *Config) {
	if a.Offset != 0 {
		*a = Alignment{query: queryRC, Cigar: &Cigar{}}
		return
	}
	nodes := make([]graph.NodeIndex, len(a.Nodes))
	for i := range nodes {
		nodes[i] = g.ReverseComplementNode(a.Nodes[len(a.Nodes)-1-i])
		if nodes[i] == graph.NPos {
			*a = Alignment{query: queryRC, Cigar: &Cigar{}}
			return
		}
	}
	rebuilt := &Cigar{}
	ops := a.Cigar.ops
	for i := len(ops) - 1; i >= 0; i-- {
		rebuilt.Append(ops[i].Op, ops[i].Len)
	}
	begin, end := a.begin, a.end
	a.Nodes = nodes
	a.Sequence = graph.ReverseComplement(a.Sequence)
	a.Cigar = rebuilt
	a.begin = len(a.query) - end
	a.end = len(a.query) - begin
	a.query = queryRC
	a.Orientation = !a.Orientation
	a.UpdateScore(cfg)
}

// IsValid checks the value invariants: the CIGAR spells the stored view and
// spelling, the clipping mirrors the view bounds, the path agrees with the
// spelling (for jump-free alignments), and the score equals the scoring
// function plus the extra scores.
func (a *Alignment) IsValid(g graph.DeBruijnGraph, cfg *Config) error {
	if a.Empty() {
		return nil
	}
	if err := a.Cigar.Validate(a.Sequence, a.QueryView()); err != nil {
		return err
	}
	if int(a.Cigar.Clipping()) != a.begin {
		return fmt.Errorf("clipping %d does not match view begin %d", a.Cigar.Clipping(), a.begin)
	}
	if int(a.Cigar.EndClipping()) != a.EndClipping() {
		return fmt.Errorf("end clipping %d does not match view end %d", a.Cigar.EndClipping(), a.EndClipping())
	}
	hasJump := false
	for _, op := range a.Cigar.ops {
		if op.Op == OpNodeInsertion {
			hasJump = true
		}
	}
	if g != nil && !hasJump {
		if want := len(a.Sequence) - g.K() + 1 + a.Offset; want != len(a.Nodes) {
			return fmt.Errorf("path length %d, want %d", len(a.Nodes), want)
		}
		if spelled := graph.SpellPath(g, a.Nodes); spelled[a.Offset:] != a.Sequence {
			return fmt.Errorf("path spells %q, stored %q", spelled[a.Offset:], a.Sequence)
		}
	}
	if len(a.ColumnDiffs) > 0 && len(a.ColumnDiffs) != len(a.Nodes) {
		return fmt.Errorf("label diff length %d for path length %d", len(a.ColumnDiffs), len(a.Nodes))
	}
	if cfg != nil {
		want := cfg.ScoreCigar(a.Cigar, a.Sequence, a.QueryView())
		for _, s := range a.ExtraScores {
			want += s
		}
		if a.Score != want {
			return fmt.Errorf("score %d, want %d", a.Score, want)
		}
	}
	return nil
}

// Results bundles a query with the alignments borrowing it, guaranteeing
// the views stay valid for the alignments' lifetime.
type Results struct {
	Query      string
	QueryRC    string
	Alignments []Alignment
}

func NewResults(query string) *Results {
	return &Results{Query: query, QueryRC: graph.ReverseComplement(query)}
}

func (r *Results) Add(a Alignment) {
	r.Alignments = append(r.Alignments, a)
}
