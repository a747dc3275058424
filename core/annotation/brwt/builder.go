package brwt

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/bitvec"
)

// BuildConfig controls the shape of the constructed tree.
type BuildConfig struct {
	// Arity is the maximum number of children per internal node.
	Arity int

	// SampleRows caps how many leading rows feed the column-similarity
	// profiles during clustering.
	SampleRows uint64

	// Workers bounds parallel subtree construction; 0 means GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

func (c *BuildConfig) defaults() {
	if c.Arity < 2 {
		c.Arity = 2
	}
	if c.SampleRows == 0 {
		c.SampleRows = 4096
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Build constructs a Multi-BRWT from a column-major matrix. Similar columns
// are clustered under common subtrees so the nonzero-row filters shrink fast
// on the way down. The column permutation lives entirely inside the nodes'
// assignment maps; queries see the original column ids.
func Build(source *annotation.ColumnMajor, cfg BuildConfig) (*Matrix, error) {
	cfg.defaults()

	numColumns := source.NumColumns()
	if numColumns == 0 {
		return nil, fmt.Errorf("brwt: cannot build from zero columns")
	}

	columns := make([][]Row, numColumns)
	for c := uint64(0); c < numColumns; c++ {
		columns[c] = source.GetColumn(c)
	}

	order := clusterColumns(columns, min(cfg.SampleRows, source.NumRows()))

	cfg.Logger.Debug("building multi-brwt",
		"columns", numColumns, "rows", source.NumRows(), "arity", cfg.Arity)

	sem := make(chan struct{}, cfg.Workers)
	return buildNode(source.NumRows(), columns, order, cfg.Arity, sem)
}

// buildNode builds the subtree over the node's column space. columns[i] is
// the sorted set-position list of the node-local column i, in the row space
// of size numRows handed down by the parent. order lists the local column
// ids adjacent-by-similarity; contiguous chunks of it become the children.
func buildNode(numRows uint64, columns [][]Row, order []int, arity int,
	sem chan struct{}) (*Matrix, error) {
	if len(columns) == 1 {
		assignments, err := NewAssignments(1, [][]Column{{0}})
		if err != nil {
			return nil, err
		}
		return &Matrix{
			assignments: assignments,
			nonzeroRows: bitvec.New(numRows, columns[0]),
		}, nil
	}

	union := unionRows(columns)
	nonzero := bitvec.New(numRows, union)

	// split the similarity order into contiguous groups of at most arity
	groupSize := arity
	if (len(columns)+arity-1)/arity == 1 {
		// a single group would recurse forever; fall back to one leaf each
		groupSize = 1
	}
	var partition [][]Column
	for begin := 0; begin < len(order); begin += groupSize {
		end := min(begin+groupSize, len(order))
		group := make([]Column, 0, end-begin)
		for _, c := range order[begin:end] {
			group = append(group, Column(c))
		}
		partition = append(partition, group)
	}

	assignments, err := NewAssignments(uint64(len(columns)), partition)
	if err != nil {
		return nil, err
	}

	node := &Matrix{
		assignments: assignments,
		nonzeroRows: nonzero,
		children:    make([]*Matrix, len(partition)),
	}

	childRows := uint64(len(union))
	var eg errgroup.Group
	for g, group := range partition {
		childColumns := make([][]Row, len(group))
		for local, col := range group {
			childColumns[local] = projectRows(columns[col], union)
		}
		childOrder := make([]int, len(group))
		for i := range childOrder {
			childOrder[i] = i
		}
		build := func() error {
			child, err := buildNode(childRows, childColumns, childOrder, arity, sem)
			if err != nil {
				return err
			}
			node.children[g] = child
			return nil
		}
		// build inline when no slot is free: a slot holder waits on its children
		select {
		case sem <- struct{}{}:
			eg.Go(func() error {
				defer func() { <-sem }()
				return build()
			})
		default:
			if err := build(); err != nil {
				return nil, err
			}
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return node, nil
}

// unionRows merges sorted position lists into one sorted deduplicated list.
func unionRows(columns [][]Row) []Row {
	var total int
	for _, c := range columns {
		total += len(c)
	}
	merged := make([]Row, 0, total)
	for _, c := range columns {
		merged = append(merged, c...)
	}
	sort.Slice(merged, func(a, b int) bool { return merged[a] < merged[b] })
	union := merged[:0]
	for i, r := range merged {
		if i == 0 || r != merged[i-1] {
			union = append(union, r)
		}
	}
	return union
}

// projectRows maps the positions of a column onto indices within the union.
// Every position of the column is present in the union by construction.
func projectRows(rows, union []Row) []Row {
	projected := make([]Row, len(rows))
	j := 0
	for i, r := range rows {
		for union[j] < r {
			j++
		}
		projected[i] = Row(j)
	}
	return projected
}

// clusterColumns orders columns so that similar ones are adjacent. Each
// column gets a sampled presence profile; a greedy nearest-neighbor chain
// over profile dot products produces the order.
func clusterColumns(columns [][]Row, sampleRows uint64) []int {
	n := len(columns)
	order := make([]int, 0, n)
	if n <= 2 {
		for i := 0; i < n; i++ {
			order = append(order, i)
		}
		return order
	}

	profiles := make([][]float64, n)
	for c, rows := range columns {
		profile := make([]float64, sampleRows)
		for _, r := range rows {
			if r >= sampleRows {
				break
			}
			profile[r] = 1
		}
		profiles[c] = profile
	}

	used := make([]bool, n)
	cur := 0
	used[0] = true
	order = append(order, 0)
	for len(order) < n {
		best, bestSim := -1, -1.0
		for c := 0; c < n; c++ {
			if used[c] {
				continue
			}
			sim := floats.Dot(profiles[cur], profiles[c])
			if sim > bestSim {
				best, bestSim = c, sim
			}
		}
		used[best] = true
		order = append(order, best)
		cur = best
	}
	return order
}
