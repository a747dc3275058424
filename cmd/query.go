package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/annodex/core/annotation"
	"github.com/adalundhe/annodex/core/annotation/annotator"
	"github.com/adalundhe/annodex/core/graph"
)

var (
	queryGraph string
	queryAnno  string
	queryLabel string
)

var queryCmd = &cobra.Command{
	Use:   "query <sequence>...",
	Short: "Report which labels each query sequence occurs in",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := manager.Get()

		g, err := graph.LoadFile(queryGraph)
		if err != nil {
			return err
		}
		anno, err := annotator.LoadFile(queryAnno, g)
		if err != nil {
			return err
		}
		if err := anno.CheckCompatibility(g); err != nil {
			return err
		}

		matrix := anno.Matrix
		if cfg.Runtime.RowCacheEntries > 0 {
			cached, err := annotation.NewRowCache(matrix, cfg.Runtime.RowCacheEntries)
			if err != nil {
				return err
			}
			defer cached.Close()
			matrix = cached
		}

		if queryLabel != "" {
			col, ok := anno.Encoder.Encode(queryLabel)
			if !ok {
				return fmt.Errorf("unknown label %q", queryLabel)
			}
			rows := matrix.GetColumn(col)
			fmt.Printf("%s\t%d nodes\n", queryLabel, len(rows))
			return nil
		}

		for _, seq := range args {
			seq = strings.ToUpper(seq)
			counts := make(map[annotation.Column]int)
			total := 0
			var rows []annotation.Row
			for _, node := range g.MapToNodes(seq) {
				if node != graph.NPos {
					rows = append(rows, node-1)
					total++
				}
			}
			for _, cols := range matrix.GetRows(rows) {
				for _, c := range cols {
					counts[c]++
				}
			}
			var parts []string
			for c := annotation.Column(0); c < anno.Encoder.Size(); c++ {
				if n := counts[c]; n > 0 {
					parts = append(parts, fmt.Sprintf("%s:%d/%d", anno.Encoder.Decode(c), n, total))
				}
			}
			fmt.Printf("%s\t%s\n", seq, strings.Join(parts, "\t"))
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryGraph, "graph", "g", "", "graph file (.dbg)")
	queryCmd.Flags().StringVarP(&queryAnno, "annotation", "a", "", "annotation file (.annodbg)")
	queryCmd.Flags().StringVar(&queryLabel, "label", "", "dump the node count of one label instead")
	_ = queryCmd.MarkFlagRequired("graph")
	_ = queryCmd.MarkFlagRequired("annotation")
	rootCmd.AddCommand(queryCmd)
}
