package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/annodex/core/annotation/annotator"
	"github.com/adalundhe/annodex/core/graph"
)

var (
	relabelGraph string
	relabelMap   string
	relabelOut   string
)

var relabelCmd = &cobra.Command{
	Use:   "relabel <annotation>",
	Short: "Rename annotation labels from a two-column map file",
	Long: `Relabel rewrites label names in an annotation container. The map file
holds one "old<TAB>new" pair per line. Unknown old names are skipped with a
warning; a rename that would leave two columns with the same name fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var g *graph.HashDBG
		if relabelGraph != "" {
			var err error
			if g, err = graph.LoadFile(relabelGraph); err != nil {
				return err
			}
		}
		anno, err := annotator.LoadFile(args[0], g)
		if err != nil {
			return err
		}

		renames, err := readRenameMap(relabelMap)
		if err != nil {
			return err
		}
		if err := anno.Encoder.Rename(renames, logger); err != nil {
			return err
		}

		out := relabelOut
		if out == "" {
			out = strings.TrimSuffix(args[0], anno.Variant.Extension())
		}
		path, err := anno.SaveFile(out)
		if err != nil {
			return err
		}
		logger.Info("annotation relabeled", "path", path)
		return nil
	},
}

func readRenameMap(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	renames := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad rename line %q", line)
		}
		renames[fields[0]] = fields[1]
	}
	return renames, scanner.Err()
}

func init() {
	relabelCmd.Flags().StringVarP(&relabelGraph, "graph", "g", "", "graph file, required for row-diff annotations")
	relabelCmd.Flags().StringVarP(&relabelMap, "map", "m", "", "two-column rename map file")
	relabelCmd.Flags().StringVarP(&relabelOut, "output", "o", "", "output base path (defaults to in-place)")
	_ = relabelCmd.MarkFlagRequired("map")
	rootCmd.AddCommand(relabelCmd)
}
