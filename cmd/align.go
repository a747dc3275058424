package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/annodex/core/align"
	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/annotation/annotator"
	"github.com/adalundhe/annodex/core/graph"
)

var (
	alignGraph string
	alignAnno  string
)

var alignCmd = &cobra.Command{
	Use:   "align <read>...",
	Short: "Align reads against the labeled graph by seed chaining",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		g, err := graph.LoadFile(alignGraph)
		if err != nil {
			return err
		}
		anno, err := annotator.LoadFile(alignAnno, g)
		if err != nil {
			return err
		}
		if err := anno.CheckCompatibility(g); err != nil {
			return err
		}

		for _, read := range args {
			read = strings.ToUpper(read)
			results := alignRead(g, anno, &cfg.Aligner, read)
			if len(results.Alignments) == 0 {
				fmt.Printf("%s\t*\n", read)
				continue
			}
			for i := range results.Alignments {
				a := &results.Alignments[i]
				strand := "+"
				if a.Orientation {
					strand = "-"
				}
				labels := make([]string, 0)
				for _, c := range a.Columns() {
					labels = append(labels, anno.Encoder.Decode(c))
				}
				fmt.Printf("%s\t%s\t%d\t%s\t%s\n",
					a.QueryView(), strand, a.Score, a.Cigar, strings.Join(labels, ";"))
			}
		}
		return nil
	},
}

// alignRead runs the exact-match seeder and the chainer over one read.
func alignRead(g *graph.HashDBG, anno *annotator.Annotator, cfg *align.Config, read string) *align.Results {
	results := align.NewResults(read)
	buffer := align.NewAnnotationBuffer(g, anno.Matrix, cfg)

	seedStrand := func(query string, orientation bool) []align.Seed {
		nodes := g.MapToNodes(query)
		buffer.QueuePath(nodes)
		buffer.FetchQueuedAnnotations()

		// maximal stretches of present k-mers become seeds
		var seeds []align.Seed
		begin := -1
		flush := func(end int) {
			if begin < 0 {
				return
			}
			path := nodes[begin : end-g.K()+1]
			labels := map[annotation.Column]bool{}
			for _, node := range path {
				if id, ok := buffer.GetLabels(node); ok {
					for _, c := range buffer.GetCachedColumnSet(id) {
						labels[c] = true
					}
				}
			}
			cols := make([]annotation.Column, 0, len(labels))
			for c := range labels {
				cols = append(cols, c)
			}
			sortColumns(cols)
			coords := make([]annotation.Tuple, len(cols))
			for i := range coords {
				coords[i] = annotation.Tuple{int64(begin)}
			}
			seeds = append(seeds, align.Seed{
				Query: query, Begin: begin, End: end,
				Nodes: append([]graph.NodeIndex(nil), path...), Orientation: orientation,
				Columns: cols, Coordinates: coords,
			})
			begin = -1
		}
		for i, node := range nodes {
			if node == graph.NPos {
				flush(i + g.K() - 1)
				continue
			}
			if begin < 0 {
				begin = i
			}
		}
		flush(len(query))
		return seeds
	}

	fwdSeeds := seedStrand(results.Query, false)
	rcSeeds := seedStrand(results.QueryRC, true)

	align.CallSeedChainsBothStrands(cfg, results.Query, results.QueryRC, fwdSeeds, rcSeeds,
		func(chain align.Chain, score align.Score) bool {
			for i := range chain {
				results.Add(chain[i].Aln)
			}
			return true
		}, nil, nil)
	return results
}

func sortColumns(cols []annotation.Column) {
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0 && cols[j] < cols[j-1]; j-- {
			cols[j], cols[j-1] = cols[j-1], cols[j]
		}
	}
}

func init() {
	alignCmd.Flags().StringVarP(&alignGraph, "graph", "g", "", "graph file (.dbg)")
	alignCmd.Flags().StringVarP(&alignAnno, "annotation", "a", "", "annotation file (.annodbg)")
	_ = alignCmd.MarkFlagRequired("graph")
	_ = alignCmd.MarkFlagRequired("annotation")
	rootCmd.AddCommand(alignCmd)
}
