package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/annodex/core/annotation/annotator"
	"github.com/adalundhe/annodex/core/annotation/brwt"
	"github.com/adalundhe/annodex/core/graph"
)

var statsGraph string

var statsCmd = &cobra.Command{
	Use:   "stats <annotation>",
	Short: "Report annotation matrix statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var g *graph.HashDBG
		if statsGraph != "" {
			var err error
			if g, err = graph.LoadFile(statsGraph); err != nil {
				return err
			}
		}
		anno, err := annotator.LoadFile(args[0], g)
		if err != nil {
			return err
		}
		m := anno.Matrix
		fmt.Printf("representation:\t%s\n", anno.Variant)
		fmt.Printf("rows:\t%d\n", m.NumRows())
		fmt.Printf("columns:\t%d\n", m.NumColumns())
		fmt.Printf("relations:\t%d\n", m.NumRelations())
		if m.NumRows() > 0 && m.NumColumns() > 0 {
			density := float64(m.NumRelations()) / float64(m.NumRows()) / float64(m.NumColumns())
			fmt.Printf("density:\t%.6f\n", density)
		}
		if b, ok := m.(*brwt.Matrix); ok {
			fmt.Printf("brwt nodes:\t%d\n", b.NumNodes())
			fmt.Printf("brwt avg arity:\t%.2f\n", b.AvgArity())
		}
		for _, label := range anno.Encoder.Labels() {
			fmt.Printf("label:\t%s\n", label)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsGraph, "graph", "g", "", "graph file, required for row-diff annotations")
	rootCmd.AddCommand(statsCmd)
}
