package align

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adalundhe/annodex/core/graph"
)

// Op is a CIGAR operator.
type Op byte

const (
	OpMatch         Op = '='
	OpMismatch      Op = 'X'
	OpInsertion     Op = 'I' // query consumes, reference does not
	OpDeletion      Op = 'D' // reference consumes, query does not
	OpClipped       Op = 'S' // query consumes, only at the ends
	OpNodeInsertion Op = 'G' // neither consumes; marks a spliced node
)

// OpLen is one run-length-encoded CIGAR element.
type OpLen struct {
	Op  Op
	Len uint32
}

// Cigar is a run-length-encoded edit script between a reference spelling
// and a query view.
type Cigar struct {
	ops []OpLen
}

// NewCigar starts a CIGAR with an optional leading clip.
func NewCigar(clipping uint32) *Cigar {
	c := &Cigar{}
	c.Append(OpClipped, clipping)
	return c
}

func (c *Cigar) Ops() []OpLen { return c.ops }
func (c *Cigar) Empty() bool  { return len(c.ops) == 0 }

func (c *Cigar) Clone() *Cigar {
	return &Cigar{ops: append([]OpLen(nil), c.ops...)}
}

// Append adds a run, collapsing into the tail when the operator repeats.
func (c *Cigar) Append(op Op, n uint32) {
	if n == 0 {
		return
	}
	if len(c.ops) > 0 && c.ops[len(c.ops)-1].Op == op {
		c.ops[len(c.ops)-1].Len += n
		return
	}
	c.ops = append(c.ops, OpLen{op, n})
}

// AppendCigar concatenates other, collapsing across the seam.
func (c *Cigar) AppendCigar(other *Cigar) {
	if len(other.ops) == 0 {
		return
	}
	c.Append(other.ops[0].Op, other.ops[0].Len)
	c.ops = append(c.ops, other.ops[1:]...)
}

// Clipping returns the leading clip length.
func (c *Cigar) Clipping() uint32 {
	if len(c.ops) > 0 && c.ops[0].Op == OpClipped {
		return c.ops[0].Len
	}
	return 0
}

// EndClipping returns the trailing clip length.
func (c *Cigar) EndClipping() uint32 {
	if len(c.ops) > 0 && c.ops[len(c.ops)-1].Op == OpClipped {
		return c.ops[len(c.ops)-1].Len
	}
	return 0
}

// ExtendClipping grows the leading clip by n.
func (c *Cigar) ExtendClipping(n uint32) {
	if n == 0 {
		return
	}
	if len(c.ops) > 0 && c.ops[0].Op == OpClipped {
		c.ops[0].Len += n
		return
	}
	c.ops = append([]OpLen{{OpClipped, n}}, c.ops...)
}

// TrimClipping removes the leading clip and returns its length.
func (c *Cigar) TrimClipping() uint32 {
	if len(c.ops) > 0 && c.ops[0].Op == OpClipped {
		n := c.ops[0].Len
		c.ops = c.ops[1:]
		return n
	}
	return 0
}

// TrimEndClipping removes the trailing clip and returns its length.
func (c *Cigar) TrimEndClipping() uint32 {
	if len(c.ops) > 0 && c.ops[len(c.ops)-1].Op == OpClipped {
		n := c.ops[len(c.ops)-1].Len
		c.ops = c.ops[:len(c.ops)-1]
		return n
	}
	return 0
}

// NumMatches counts exact-match positions.
func (c *Cigar) NumMatches() uint32 {
	var n uint32
	for _, op := range c.ops {
		if op.Op == OpMatch {
			n += op.Len
		}
	}
	return n
}

// Coverage counts query positions covered by the alignment. A DELETION of
// one base right after a NODE_INSERTION that follows an INSERTION is the
// coverage-neutral splice pattern: the counter gives back the insertion it
// compensates for.
func (c *Cigar) Coverage() uint32 {
	var coverage uint32
	for i, op := range c.ops {
		switch op.Op {
		case OpMatch, OpMismatch, OpInsertion:
			coverage += op.Len
		case OpDeletion:
			if op.Len == 1 && i >= 2 &&
				c.ops[i-1].Op == OpNodeInsertion && c.ops[i-2].Op == OpInsertion {
				coverage -= c.ops[i-2].Len
			}
		}
	}
	return coverage
}

func (c *Cigar) String() string {
	var b strings.Builder
	for _, op := range c.ops {
		b.WriteString(strconv.FormatUint(uint64(op.Len), 10))
		b.WriteByte(byte(op.Op))
	}
	return b.String()
}

// Parse reads the textual CIGAR form back.
func Parse(s string) (*Cigar, error) {
	c := &Cigar{}
	count := 0
	sawCount := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= '0' && ch <= '9' {
			count = count*10 + int(ch-'0')
			sawCount = true
			continue
		}
		switch Op(ch) {
		case OpMatch, OpMismatch, OpInsertion, OpDeletion, OpClipped, OpNodeInsertion:
			if !sawCount {
				return nil, fmt.Errorf("cigar %q: operator %c without count", s, ch)
			}
			c.Append(Op(ch), uint32(count))
			count = 0
			sawCount = false
		default:
			return nil, fmt.Errorf("cigar %q: unknown operator %c", s, ch)
		}
	}
	if sawCount {
		return nil, fmt.Errorf("cigar %q: trailing count", s)
	}
	return c, nil
}

// MDString renders the SAM MD tag for the reference spelling.
func (c *Cigar) MDString(reference string) string {
	var b strings.Builder
	ri := 0
	matchCount := 0
	for _, op := range c.ops {
		switch op.Op {
		case OpMatch:
			matchCount += int(op.Len)
			ri += int(op.Len)
		case OpMismatch:
			for i := 0; i < int(op.Len); i++ {
				b.WriteString(strconv.Itoa(matchCount))
				matchCount = 0
				b.WriteByte(reference[ri])
				ri++
			}
		case OpDeletion:
			if matchCount > 0 {
				b.WriteString(strconv.Itoa(matchCount))
				matchCount = 0
			}
			b.WriteByte('^')
			b.WriteString(reference[ri : ri+int(op.Len)])
			ri += int(op.Len)
		}
	}
	if matchCount > 0 {
		b.WriteString(strconv.Itoa(matchCount))
	}
	return b.String()
}

// MarkExactMatches stamps true into mask for every query position under a
// MATCH operator and returns how many positions flipped. The mask covers
// the full query; traversal is reversed for the opposite orientation.
func (c *Cigar) MarkExactMatches(mask []bool, skipClipping, orientation bool) int {
	added := 0
	pos := 0
	at := func(i int) int {
		if orientation {
			return len(mask) - 1 - i
		}
		return i
	}
	for _, op := range c.ops {
		switch op.Op {
		case OpClipped:
			if !skipClipping {
				pos += int(op.Len)
			}
		case OpInsertion, OpMismatch:
			pos += int(op.Len)
		case OpMatch:
			for i := 0; i < int(op.Len); i++ {
				if !mask[at(pos)] {
					mask[at(pos)] = true
					added++
				}
				pos++
			}
		}
	}
	return added
}

// Validate checks that the CIGAR spells query against reference. It fails
// on empty runs, exhausting either sequence mid-script, a MATCH spanning
// characters that differ, an INSERTION directly after a DELETION, and a
// DELETION directly after an INSERTION unless the deleted reference
// character is the graph sentinel.
func (c *Cigar) Validate(reference, query string) error {
	ri, qi := 0, 0
	for i, op := range c.ops {
		if op.Len == 0 {
			return fmt.Errorf("empty operation %c in %s", op.Op, c)
		}
		switch op.Op {
		case OpClipped:
			// clips sit outside the view; nothing consumed here
			if i != 0 && i != len(c.ops)-1 {
				return fmt.Errorf("interior clipping in %s", c)
			}
		case OpMatch, OpMismatch:
			if ri+int(op.Len) > len(reference) {
				return fmt.Errorf("reference exhausted at op %d of %s", i, c)
			}
			if qi+int(op.Len) > len(query) {
				return fmt.Errorf("query exhausted at op %d of %s", i, c)
			}
			equal := reference[ri:ri+int(op.Len)] == query[qi:qi+int(op.Len)]
			if equal != (op.Op == OpMatch) {
				return fmt.Errorf("op %c disagrees with sequences at %d in %s", op.Op, i, c)
			}
			ri += int(op.Len)
			qi += int(op.Len)
		case OpInsertion:
			if i > 0 && c.ops[i-1].Op == OpDeletion {
				return fmt.Errorf("insertion after deletion in %s", c)
			}
			if qi+int(op.Len) > len(query) {
				return fmt.Errorf("query exhausted at op %d of %s", i, c)
			}
			qi += int(op.Len)
		case OpDeletion:
			if ri >= len(reference) {
				return fmt.Errorf("reference exhausted at op %d of %s", i, c)
			}
			if i > 0 && c.ops[i-1].Op == OpInsertion && reference[ri] != graph.Sentinel {
				return fmt.Errorf("deletion after insertion in %s", c)
			}
			if ri+int(op.Len) > len(reference) {
				return fmt.Errorf("reference exhausted at op %d of %s", i, c)
			}
			ri += int(op.Len)
		case OpNodeInsertion:
			// consumes neither
		default:
			return fmt.Errorf("unknown operator %c in %s", op.Op, c)
		}
	}
	if ri != len(reference) {
		return fmt.Errorf("reference end not reached by %s", c)
	}
	if qi != len(query) {
		return fmt.Errorf("query end not reached by %s", c)
	}
	return nil
}
