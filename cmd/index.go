package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"kbindex/internal/indexer"
)

var (
	flagForce   bool
	flagPattern string
	flagWorkers int
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a knowledge file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = manager.Close() }()

		opts := indexer.Options{
			Force:         flagForce,
			MaxTokens:     cfg.Chunker.MaxTokens,
			OverlapTokens: cfg.Chunker.OverlapTokens,
			Workers:       flagWorkers,
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if !info.IsDir() {
			result, err := manager.IndexFile(cmd.Context(), path, opts)
			if err != nil {
				return err
			}
			if result.Skipped {
				fmt.Printf("Unchanged, skipped: %s\n", path)
			} else {
				fmt.Printf("Indexed %s (%d chunks)\n", path, result.Chunks)
			}
			return nil
		}

		pattern := flagPattern
		if pattern == "" {
			pattern = cfg.Index.FilePattern
		}

		fmt.Printf("Indexing %s...\n", path)
		start := time.Now()

		result, err := manager.IndexDirectory(cmd.Context(), path, pattern, opts)
		if err != nil {
			return err
		}

		fmt.Printf("\nDone in %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Files:   %d indexed, %d skipped, %d failed\n",
			result.FilesIndexed, result.FilesSkipped, result.FilesFailed)
		fmt.Printf("  Chunks:  %d\n", result.ChunksCreated)
		for _, failure := range result.Failures {
			fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", failure.Path, failure.Err)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "re-index files even when unchanged")
	indexCmd.Flags().StringVar(&flagPattern, "pattern", "", "file name glob (default from config, *.md)")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel workers (default: CPU count)")
	rootCmd.AddCommand(indexCmd)
}
