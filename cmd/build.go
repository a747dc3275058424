package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/annotation/annotator"
	"github.com/adalundhe/annodex/core/annotation/brwt"
	"github.com/adalundhe/annodex/core/annotation/rowdiff"
	"github.com/adalundhe/annodex/core/graph"
	"github.com/adalundhe/annodex/core/pathindex"
)

var (
	buildK         int
	buildOut       string
	buildVariant   string
	buildPathIndex bool
)

var buildCmd = &cobra.Command{
	Use:   "build <sequences>...",
	Short: "Build a graph and annotation from labeled sequence files",
	Long: `Build indexes one or more sequence files (one sequence per line; the
file name is the sample label) into a de Bruijn graph plus a compressed
annotation matrix of the requested representation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		g := graph.NewHashDBG(buildK)
		encoder := annotation.NewLabelEncoder()
		perLabel := make(map[annotation.Column][]string)
		for _, path := range args {
			label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			col := encoder.InsertAndEncode(label)
			seqs, err := readSequences(path)
			if err != nil {
				return err
			}
			for _, seq := range seqs {
				g.AddSequence(seq)
			}
			perLabel[col] = append(perLabel[col], seqs...)
		}
		logger.Info("graph built", "k", buildK, "nodes", g.MaxIndex(), "labels", encoder.Size())

		graphPath, err := g.SaveFile(buildOut)
		if err != nil {
			return err
		}
		logger.Info("graph written", "path", graphPath)

		// raw per-label columns
		columns := make([][]annotation.Row, encoder.Size())
		for col, seqs := range perLabel {
			seen := make(map[annotation.Row]bool)
			for _, seq := range seqs {
				for _, node := range g.MapToNodes(seq) {
					if node != graph.NPos {
						seen[node-1] = true
					}
				}
			}
			rows := make([]annotation.Row, 0, len(seen))
			for r := range seen {
				rows = append(rows, r)
			}
			sortRows(rows)
			columns[col] = rows
		}
		source := annotation.NewColumnMajor(g.MaxIndex(), columns)

		var matrix annotation.BinaryMatrix
		variant := annotator.Variant(buildVariant)
		switch variant {
		case annotator.VariantColumn:
			matrix = source
		case annotator.VariantBRWT:
			matrix, err = brwt.Build(source, cfg.BRWTBuildConfig())
			if err != nil {
				return err
			}
		case annotator.VariantRowDiff:
			routing := rowdiff.BuildRouting(g, cfg.Annotation.MaxRowDiffPath, logger)
			matrix = rowdiff.TransformBinary(g, routing, source)
		case annotator.VariantRowDiffBRWT:
			routing := rowdiff.BuildRouting(g, cfg.Annotation.MaxRowDiffPath, logger)
			deltas := rowdiff.TransformBinary(g, routing, source)
			base, err := brwt.Build(deltas.Diffs().(*annotation.ColumnMajor), cfg.BRWTBuildConfig())
			if err != nil {
				return err
			}
			matrix = rowdiff.NewBinary(g, routing.Anchor, routing.ForkSucc, base)
		default:
			return fmt.Errorf("unsupported annotation variant %q", buildVariant)
		}

		anno := &annotator.Annotator{Variant: variant, Encoder: encoder, Matrix: matrix}
		annoPath, err := anno.SaveFile(buildOut)
		if err != nil {
			return err
		}
		logger.Info("annotation written",
			"path", annoPath, "relations", matrix.NumRelations())

		if buildPathIndex {
			pi := pathindex.Build(g, cfg.Annotation.MaxRowDiffPath, logger)
			f, err := os.Create(buildOut + pathindex.FileExtension)
			if err != nil {
				return err
			}
			defer f.Close()
			w := bufio.NewWriter(f)
			if err := pi.Serialize(w); err != nil {
				return fmt.Errorf("serialize path index: %w", err)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			logger.Info("path index written", "unitigs", pi.NumUnitigs())
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().IntVarP(&buildK, "kmer-length", "k", 31, "k-mer length")
	buildCmd.Flags().StringVarP(&buildOut, "output", "o", "graph", "output base path")
	buildCmd.Flags().StringVar(&buildVariant, "anno-type", "column",
		"annotation representation: column, brwt, row_diff, row_diff_brwt")
	buildCmd.Flags().BoolVar(&buildPathIndex, "path-index", false, "also build the unitig path index")
	rootCmd.AddCommand(buildCmd)
}

func readSequences(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var seqs []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ">") || strings.HasPrefix(line, "#") {
			continue
		}
		seqs = append(seqs, strings.ToUpper(line))
	}
	return seqs, scanner.Err()
}

func sortRows(rows []annotation.Row) {
	sort.Slice(rows, func(a, b int) bool { return rows[a] < rows[b] })
}
