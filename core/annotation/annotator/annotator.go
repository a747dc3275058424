// Package annotator binds a label encoder to a compressed annotation matrix
// and handles the on-disk container: the encoder followed by the matrix
// bytes, with the representation encoded in the file extension.
package annotator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/annotation/brwt"
	"github.com/adalundhe/annodex/core/annotation/rowdiff"
	"github.com/adalundhe/annodex/core/graph"
)

// Variant names a matrix representation; it doubles as the file-extension
// stem, e.g. VariantRowDiffBRWT is stored as "<name>.row_diff_brwt.annodbg".
type Variant string

const (
	VariantColumn         Variant = "column"
	VariantBRWT           Variant = "brwt"
	VariantRowDiff        Variant = "row_diff"
	VariantRowDiffBRWT    Variant = "row_diff_brwt"
	VariantIntColumn      Variant = "int_column"
	VariantIntBRWT        Variant = "int_brwt"
	VariantRowDiffInt     Variant = "row_diff_int"
	VariantRowDiffIntBRWT Variant = "row_diff_int_brwt"
	VariantCoordColumn    Variant = "column_coord"
	VariantRowDiffCoord   Variant = "row_diff_coord"
)

const fileSuffix = ".annodbg"

// Annotator is a label encoder plus the matrix it indexes into.
type Annotator struct {
	Variant Variant
	Encoder *annotation.LabelEncoder
	Matrix  annotation.BinaryMatrix
}

// Extension returns the full file extension for a variant.
func (v Variant) Extension() string { return "." + string(v) + fileSuffix }

// VariantOf recovers the variant from a file name, dispatching the loader.
func VariantOf(path string) (Variant, error) {
	if !strings.HasSuffix(path, fileSuffix) {
		return "", fmt.Errorf("%s: not an %s file", path, fileSuffix)
	}
	stem := strings.TrimSuffix(path, fileSuffix)
	dot := strings.LastIndexByte(stem, '.')
	if dot < 0 {
		return "", fmt.Errorf("%s: missing annotation variant extension", path)
	}
	v := Variant(stem[dot+1:])
	switch v {
	case VariantColumn, VariantBRWT, VariantRowDiff, VariantRowDiffBRWT,
		VariantIntColumn, VariantIntBRWT, VariantRowDiffInt, VariantRowDiffIntBRWT,
		VariantCoordColumn, VariantRowDiffCoord:
		return v, nil
	}
	return "", fmt.Errorf("%s: unknown annotation variant %q", path, v)
}

// CheckCompatibility verifies the graph/annotation row correspondence:
// the matrix must have one row per graph node.
func (a *Annotator) CheckCompatibility(g graph.DeBruijnGraph) error {
	numRows := a.Matrix.NumRows()
	max := g.MaxIndex()
	if g.Mode() == graph.ModeCanonical {
		if c, ok := g.(*graph.Canonical); ok {
			max = c.Base().MaxIndex()
		}
	}
	if numRows != max {
		return fmt.Errorf("graph has %d nodes but annotation has %d rows", max, numRows)
	}
	return nil
}

func (a *Annotator) Serialize(w io.Writer) error {
	if err := a.Encoder.Serialize(w); err != nil {
		return fmt.Errorf("serialize label encoder: %w", err)
	}
	return a.Matrix.Serialize(w)
}

// SaveFile writes the container to "<base><variant extension>" and returns
// the path written.
func (a *Annotator) SaveFile(base string) (string, error) {
	path := base + a.Variant.Extension()
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := a.Serialize(w); err != nil {
		return "", fmt.Errorf("serialize %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a container of a known variant. Row-diff variants need the
// graph to resolve successor chains; it may be nil for the others.
func Load(r io.Reader, v Variant, g graph.DeBruijnGraph) (*Annotator, error) {
	encoder := annotation.NewLabelEncoder()
	if err := encoder.Load(r); err != nil {
		return nil, err
	}

	var matrix annotation.BinaryMatrix
	var err error
	switch v {
	case VariantColumn:
		matrix, err = annotation.LoadColumnMajor(r)
	case VariantBRWT:
		matrix, err = brwt.Load(r)
	case VariantRowDiff:
		matrix, err = loadRowDiff(r, g, func(r io.Reader) (annotation.BinaryMatrix, error) {
			return annotation.LoadColumnMajor(r)
		})
	case VariantRowDiffBRWT:
		matrix, err = loadRowDiff(r, g, func(r io.Reader) (annotation.BinaryMatrix, error) {
			return brwt.Load(r)
		})
	case VariantIntColumn:
		matrix, err = annotation.LoadColumnValues(r)
	case VariantIntBRWT:
		matrix, err = brwt.LoadInt(r)
	case VariantRowDiffInt:
		var m *rowdiff.Int
		m, err = rowdiff.LoadInt(r, func(r io.Reader) (annotation.IntMatrix, error) {
			return annotation.LoadColumnValues(r)
		})
		if m != nil {
			m.SetGraph(g)
			matrix = m
		}
	case VariantRowDiffIntBRWT:
		var m *rowdiff.Int
		m, err = rowdiff.LoadInt(r, func(r io.Reader) (annotation.IntMatrix, error) {
			return brwt.LoadInt(r)
		})
		if m != nil {
			m.SetGraph(g)
			matrix = m
		}
	case VariantCoordColumn:
		matrix, err = annotation.LoadColumnCoords(r)
	case VariantRowDiffCoord:
		var m *rowdiff.Tuple
		m, err = rowdiff.LoadTuple(r, func(r io.Reader) (annotation.MultiIntMatrix, error) {
			return annotation.LoadColumnCoords(r)
		})
		if m != nil {
			m.SetGraph(g)
			matrix = m
		}
	default:
		return nil, fmt.Errorf("unknown annotation variant %q", v)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s matrix: %w", v, err)
	}

	return &Annotator{Variant: v, Encoder: encoder, Matrix: matrix}, nil
}

func loadRowDiff(r io.Reader, g graph.DeBruijnGraph,
	loadBase func(io.Reader) (annotation.BinaryMatrix, error)) (annotation.BinaryMatrix, error) {
	m, err := rowdiff.LoadBinary(r, loadBase)
	if err != nil {
		return nil, err
	}
	m.SetGraph(g)
	return m, nil
}

// LoadFile opens a container, dispatching the representation on the file
// extension.
func LoadFile(path string, g graph.DeBruijnGraph) (*Annotator, error) {
	v, err := VariantOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := Load(bufio.NewReader(f), v, g)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return a, nil
}
