// Package hll provides HyperLogLog cardinality sketches, one per annotation
// column, used by the aligner's label-change scorer to estimate how much two
// labels' k-mer sets overlap without touching the matrix.
package hll

import (
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"

	"github.com/adalundhe/annodex/core/serial"
)

// DefaultPrecision gives 2^10 registers, ~3% relative error.
const DefaultPrecision = 10

// Sketch is a HyperLogLog counter.
type Sketch struct {
	precision uint8
	registers []uint8
}

func New(precision uint8) *Sketch {
	if precision < 4 || precision > 18 {
		panic(fmt.Sprintf("hll: precision %d outside [4, 18]", precision))
	}
	return &Sketch{precision: precision, registers: make([]uint8, 1<<precision)}
}

// Add folds one element into the sketch.
func (s *Sketch) Add(data []byte) {
	s.AddHash(xxhash.Sum64(data))
}

// AddUint64 folds an integer element (e.g. a node id) into the sketch.
func (s *Sketch) AddUint64(v uint64) {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	s.AddHash(xxhash.Sum64(buf[:]))
}

func (s *Sketch) AddHash(h uint64) {
	idx := h >> (64 - s.precision)
	rest := h<<s.precision | 1<<(s.precision-1)
	rank := uint8(bits.LeadingZeros64(rest)) + 1
	if rank > s.registers[idx] {
		s.registers[idx] = rank
	}
}

// Merge folds other into s; both must share a precision.
func (s *Sketch) Merge(other *Sketch) {
	if s.precision != other.precision {
		panic("hll: merging sketches of different precision")
	}
	for i, r := range other.registers {
		if r > s.registers[i] {
			s.registers[i] = r
		}
	}
}

// Estimate returns the approximate number of distinct elements added.
func (s *Sketch) Estimate() float64 {
	m := float64(len(s.registers))
	var sum float64
	zeros := 0
	for _, r := range s.registers {
		sum += 1 / float64(uint64(1)<<r)
		if r == 0 {
			zeros++
		}
	}
	estimate := alpha(len(s.registers)) * m * m / sum
	if estimate <= 2.5*m && zeros > 0 {
		// linear counting for the small range
		return m * math.Log(m/float64(zeros))
	}
	return estimate
}

func alpha(m int) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	}
	return 0.7213 / (1 + 1.079/float64(m))
}

func (s *Sketch) Serialize(w io.Writer) error {
	if err := serial.WriteByte(w, s.precision); err != nil {
		return err
	}
	_, err := w.Write(s.registers)
	return err
}

func LoadSketch(r io.Reader) (*Sketch, error) {
	precision, err := serial.ReadByte(r)
	if err != nil {
		return nil, fmt.Errorf("load hll precision: %w", err)
	}
	if precision < 4 || precision > 18 {
		return nil, fmt.Errorf("hll precision %d outside [4, 18]", precision)
	}
	s := New(precision)
	if _, err := io.ReadFull(r, s.registers); err != nil {
		return nil, fmt.Errorf("load hll registers: %w", err)
	}
	return s, nil
}

// ColumnSketches carries one sketch per annotation column.
type ColumnSketches struct {
	sketches []*Sketch
}

// NewColumnSketches allocates numColumns empty sketches.
func NewColumnSketches(numColumns uint64, precision uint8) *ColumnSketches {
	cs := &ColumnSketches{sketches: make([]*Sketch, numColumns)}
	for i := range cs.sketches {
		cs.sketches[i] = New(precision)
	}
	return cs
}

func (cs *ColumnSketches) NumColumns() uint64 { return uint64(len(cs.sketches)) }

// AddRow folds a row id into every column present at that row.
func (cs *ColumnSketches) AddRow(row uint64, columns []uint64) {
	for _, c := range columns {
		cs.sketches[c].AddUint64(row)
	}
}

// EstimateUnion returns the estimated sizes of columns a and b and of their
// union, the inputs the label-change score derives overlap from.
func (cs *ColumnSketches) EstimateUnion(a, b uint64) (sizeA, sizeB, sizeUnion uint64) {
	union := New(cs.sketches[a].precision)
	union.Merge(cs.sketches[a])
	union.Merge(cs.sketches[b])
	return uint64(cs.sketches[a].Estimate()),
		uint64(cs.sketches[b].Estimate()),
		uint64(union.Estimate())
}

func (cs *ColumnSketches) Serialize(w io.Writer) error {
	if err := serial.WriteUint64(w, uint64(len(cs.sketches))); err != nil {
		return err
	}
	for _, s := range cs.sketches {
		if err := s.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func Load(r io.Reader) (*ColumnSketches, error) {
	n, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load column sketches: %w", err)
	}
	cs := &ColumnSketches{sketches: make([]*Sketch, n)}
	for i := range cs.sketches {
		if cs.sketches[i], err = LoadSketch(r); err != nil {
			return nil, fmt.Errorf("load sketch %d: %w", i, err)
		}
	}
	return cs, nil
}
