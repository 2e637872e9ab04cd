package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = manager.Close() }()

		stats, err := manager.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Files:    %d\n", stats.FileCount)
		fmt.Printf("Chunks:   %d\n", stats.ChunkCount)
		fmt.Printf("Provider: %s\n", stats.EmbeddingProvider)
		fmt.Printf("Model:    %s\n", stats.EmbeddingModel)
		fmt.Printf("Database: %s\n", cfg.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
