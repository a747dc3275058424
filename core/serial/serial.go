// Package serial provides the length-prefixed binary stream primitives shared
// by every Serialize/Load pair in the annotation and index code. All integers
// are little-endian; slices are length-prefixed with a uint64.
package serial

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteUint64 writes a single little-endian uint64.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads a single little-endian uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteByte writes a single byte tag.
func WriteByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadByte reads a single byte tag.
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteUint64Slice writes a length-prefixed []uint64.
func WriteUint64Slice(w io.Writer, vs []uint64) error {
	if err := WriteUint64(w, uint64(len(vs))); err != nil {
		return err
	}
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	_, err := w.Write(buf)
	return err
}

// ReadUint64Slice reads a length-prefixed []uint64.
func ReadUint64Slice(r io.Reader) ([]uint64, error) {
	n, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	vs := make([]uint64, n)
	for i := range vs {
		vs[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return vs, nil
}

// WriteString writes a length-prefixed string.
func WriteString(w io.Writer, s string) error {
	if err := WriteUint64(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a length-prefixed string.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadUint64(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteMagic writes a fixed version tag, e.g. "v2.0".
func WriteMagic(w io.Writer, magic string) error {
	_, err := io.WriteString(w, magic)
	return err
}

// ExpectMagic reads len(magic) bytes and fails unless they match.
func ExpectMagic(r io.Reader, magic string) error {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if string(buf) != magic {
		return fmt.Errorf("bad magic: got %q, want %q", buf, magic)
	}
	return nil
}
