package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/annodex/core/config"
)

var (
	configPath string
	verbose    bool

	manager *config.Manager
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "annodex",
	Short: "Annodex - an annotated de Bruijn graph index",
	Long: `Annodex builds, compresses, and queries annotated de Bruijn graphs:
sequence collections are indexed as k-mer graphs, sample labels live in a
compressed annotation matrix, and reads align against both.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		manager = config.NewManager(configPath)
		return manager.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}
