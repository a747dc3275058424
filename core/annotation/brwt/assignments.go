// Package brwt implements the Multi-BRWT matrix: a recursive
// column-partitioning binary matrix with a nonzero-row filter bitmap at each
// tree node. Leaves own exactly one column; internal nodes route queries to
// the child subtree owning the column, re-indexing rows through the filter's
// rank/select directories on the way down and up.
package brwt

import (
	"fmt"
	"io"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/serial"
)

// Assignments maps each global column of a node to the child subtree owning
// it and to its local column id inside that subtree, plus the inverse map.
type Assignments struct {
	group   []uint64               // per global column: child index
	rank    []uint64               // per global column: local column id
	inverse [][]annotation.Column  // per child: local column -> global column
}

// NewAssignments builds the map from a partition of [0, numColumns) into
// per-child column groups. The groups must be disjoint and cover the range;
// a violation is a build-time error.
func NewAssignments(numColumns uint64, partition [][]annotation.Column) (*Assignments, error) {
	a := &Assignments{
		group:   make([]uint64, numColumns),
		rank:    make([]uint64, numColumns),
		inverse: make([][]annotation.Column, len(partition)),
	}
	seen := make([]bool, numColumns)
	for g, cols := range partition {
		a.inverse[g] = append([]annotation.Column(nil), cols...)
		for local, col := range cols {
			if col >= numColumns {
				return nil, fmt.Errorf("column %d out of range %d", col, numColumns)
			}
			if seen[col] {
				return nil, fmt.Errorf("column %d assigned to two groups", col)
			}
			seen[col] = true
			a.group[col] = uint64(g)
			a.rank[col] = uint64(local)
		}
	}
	for col, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("column %d not assigned to any group", col)
		}
	}
	return a, nil
}

// Size returns the number of columns mapped.
func (a *Assignments) Size() uint64 { return uint64(len(a.group)) }

// NumGroups returns the number of children columns are partitioned into.
func (a *Assignments) NumGroups() uint64 { return uint64(len(a.inverse)) }

// Group returns the child index owning col.
func (a *Assignments) Group(col annotation.Column) uint64 { return a.group[col] }

// Rank returns col's local column id inside its group.
func (a *Assignments) Rank(col annotation.Column) annotation.Column { return a.rank[col] }

// Get maps a child's local column id back to the global column.
func (a *Assignments) Get(child uint64, local annotation.Column) annotation.Column {
	return a.inverse[child][local]
}

func (a *Assignments) Serialize(w io.Writer) error {
	if err := serial.WriteUint64(w, uint64(len(a.group))); err != nil {
		return err
	}
	if err := serial.WriteUint64(w, uint64(len(a.inverse))); err != nil {
		return err
	}
	for _, cols := range a.inverse {
		if err := serial.WriteUint64Slice(w, cols); err != nil {
			return err
		}
	}
	return nil
}

func LoadAssignments(r io.Reader) (*Assignments, error) {
	numColumns, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load assignments size: %w", err)
	}
	numGroups, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load assignments groups: %w", err)
	}
	partition := make([][]annotation.Column, numGroups)
	for g := range partition {
		if partition[g], err = serial.ReadUint64Slice(r); err != nil {
			return nil, fmt.Errorf("load assignment group %d: %w", g, err)
		}
	}
	return NewAssignments(numColumns, partition)
}
