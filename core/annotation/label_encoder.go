package annotation

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/adalundhe/annodex/core/serial"
)

// LabelEncoder is a bijection between string labels and contiguous column
// ids. Columns are assigned in insertion order.
type LabelEncoder struct {
	encode map[string]Column
	decode []string
}

func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{encode: make(map[string]Column)}
}

func (e *LabelEncoder) Size() uint64 { return uint64(len(e.decode)) }

// InsertAndEncode returns the column for label, assigning the next free id
// on first sight.
func (e *LabelEncoder) InsertAndEncode(label string) Column {
	if c, ok := e.encode[label]; ok {
		return c
	}
	c := Column(len(e.decode))
	e.encode[label] = c
	e.decode = append(e.decode, label)
	return c
}

// Encode returns the column for a known label.
func (e *LabelEncoder) Encode(label string) (Column, bool) {
	c, ok := e.encode[label]
	return c, ok
}

// Decode returns the label for a column. Out-of-range columns are a
// programmer error.
func (e *LabelEncoder) Decode(c Column) string {
	return e.decode[c]
}

func (e *LabelEncoder) Labels() []string {
	return append([]string(nil), e.decode...)
}

// Merge inserts every label of other, preserving this encoder's ids.
func (e *LabelEncoder) Merge(other *LabelEncoder) {
	for _, label := range other.decode {
		e.InsertAndEncode(label)
	}
}

// Rename applies a label rename map. Unknown source labels are skipped with
// a warning; a duplicate target name is an error because two columns cannot
// share one label.
func (e *LabelEncoder) Rename(renames map[string]string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	next := make([]string, len(e.decode))
	copy(next, e.decode)
	for from, to := range renames {
		c, ok := e.encode[from]
		if !ok {
			logger.Warn("label not found, skipping rename", "label", from)
			continue
		}
		next[c] = to
	}
	seen := make(map[string]bool, len(next))
	for _, label := range next {
		if seen[label] {
			return fmt.Errorf("rename produces duplicate label %q", label)
		}
		seen[label] = true
	}
	e.decode = next
	e.encode = make(map[string]Column, len(next))
	for i, label := range next {
		e.encode[label] = Column(i)
	}
	return nil
}

func (e *LabelEncoder) Serialize(w io.Writer) error {
	if err := serial.WriteUint64(w, uint64(len(e.decode))); err != nil {
		return err
	}
	for _, label := range e.decode {
		if err := serial.WriteString(w, label); err != nil {
			return err
		}
	}
	return nil
}

func (e *LabelEncoder) Load(r io.Reader) error {
	n, err := serial.ReadUint64(r)
	if err != nil {
		return fmt.Errorf("load label encoder: %w", err)
	}
	e.decode = make([]string, 0, n)
	e.encode = make(map[string]Column, n)
	for i := uint64(0); i < n; i++ {
		label, err := serial.ReadString(r)
		if err != nil {
			return fmt.Errorf("load label %d: %w", i, err)
		}
		if _, ok := e.encode[label]; ok {
			return fmt.Errorf("duplicate label %q in encoder", label)
		}
		e.encode[label] = Column(len(e.decode))
		e.decode = append(e.decode, label)
	}
	return nil
}
