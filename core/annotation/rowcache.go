package annotation

import (
	"fmt"
	"io"

	"github.com/dgraph-io/ristretto"
)

// RowCache is a read-through cache in front of any binary matrix. It serves
// repeated row queries from memory and falls through to the inner matrix in
// one batch for the misses. Intended for the CLI query path; the aligner's
// AnnotationBuffer batches per query and does not need it.
type RowCache struct {
	inner BinaryMatrix
	cache *ristretto.Cache
}

// NewRowCache wraps inner with a cache bounded to roughly maxEntries rows.
func NewRowCache(inner BinaryMatrix, maxEntries int64) (*RowCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("row cache: %w", err)
	}
	return &RowCache{inner: inner, cache: cache}, nil
}

func (m *RowCache) NumRows() uint64      { return m.inner.NumRows() }
func (m *RowCache) NumColumns() uint64   { return m.inner.NumColumns() }
func (m *RowCache) NumRelations() uint64 { return m.inner.NumRelations() }

func (m *RowCache) Get(row Row, col Column) bool {
	return ContainsColumn(m.GetRow(row), col)
}

func (m *RowCache) GetRow(row Row) []Column {
	if v, ok := m.cache.Get(row); ok {
		return v.([]Column)
	}
	cols := m.inner.GetRow(row)
	m.cache.Set(row, cols, 1)
	return cols
}

func (m *RowCache) GetRows(rows []Row) [][]Column {
	result := make([][]Column, len(rows))
	var missIdx []int
	var misses []Row
	for i, row := range rows {
		if v, ok := m.cache.Get(row); ok {
			result[i] = v.([]Column)
		} else {
			missIdx = append(missIdx, i)
			misses = append(misses, row)
		}
	}
	if len(misses) > 0 {
		for j, cols := range m.inner.GetRows(misses) {
			result[missIdx[j]] = cols
			m.cache.Set(misses[j], cols, 1)
		}
	}
	return result
}

func (m *RowCache) GetColumn(col Column) []Row {
	return m.inner.GetColumn(col)
}

// Serialize passes through; the cache itself is never persisted.
func (m *RowCache) Serialize(w io.Writer) error {
	return m.inner.Serialize(w)
}

var _ BinaryMatrix = (*RowCache)(nil)

// Close releases the cache's internal goroutines.
func (m *RowCache) Close() { m.cache.Close() }
