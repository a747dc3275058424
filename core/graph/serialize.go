package graph

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/adalundhe/annodex/core/serial"
)

// FileExtension names a serialized graph on disk.
const FileExtension = ".dbg"

const graphMagic = "adbg"

func (g *HashDBG) Serialize(w io.Writer) error {
	if err := serial.WriteMagic(w, graphMagic); err != nil {
		return err
	}
	if err := serial.WriteUint64(w, uint64(g.k)); err != nil {
		return err
	}
	if err := serial.WriteByte(w, byte(g.mode)); err != nil {
		return err
	}
	if err := serial.WriteUint64(w, g.MaxIndex()); err != nil {
		return err
	}
	for _, kmer := range g.kmers[1:] {
		if err := serial.WriteString(w, kmer); err != nil {
			return err
		}
	}
	return nil
}

func LoadHashDBG(r io.Reader) (*HashDBG, error) {
	if err := serial.ExpectMagic(r, graphMagic); err != nil {
		return nil, fmt.Errorf("graph header: %w", err)
	}
	k, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load graph k: %w", err)
	}
	mode, err := serial.ReadByte(r)
	if err != nil {
		return nil, fmt.Errorf("load graph mode: %w", err)
	}
	numNodes, err := serial.ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("load graph size: %w", err)
	}
	g := &HashDBG{
		k:     int(k),
		mode:  Mode(mode),
		ids:   make(map[string]NodeIndex, numNodes),
		kmers: make([]string, 1, numNodes+1),
	}
	for i := uint64(0); i < numNodes; i++ {
		kmer, err := serial.ReadString(r)
		if err != nil {
			return nil, fmt.Errorf("load k-mer %d: %w", i, err)
		}
		if len(kmer) != g.k {
			return nil, fmt.Errorf("k-mer %d has length %d, want %d", i, len(kmer), g.k)
		}
		g.kmers = append(g.kmers, kmer)
		g.ids[kmer] = NodeIndex(len(g.kmers) - 1)
	}
	return g, nil
}

// SaveFile writes the graph to base + FileExtension.
func (g *HashDBG) SaveFile(base string) (string, error) {
	path := base + FileExtension
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := g.Serialize(w); err != nil {
		return "", fmt.Errorf("serialize %s: %w", path, err)
	}
	return path, w.Flush()
}

// LoadFile reads a graph written by SaveFile.
func LoadFile(path string) (*HashDBG, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := LoadHashDBG(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return g, nil
}
