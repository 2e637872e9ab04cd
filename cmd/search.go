package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kbindex/internal/knowledge"
	"kbindex/internal/searcher"
)

var (
	flagMaxResults int
	flagMinScore   float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = manager.Close() }()

		maxResults := flagMaxResults
		if maxResults == 0 {
			maxResults = cfg.Search.MaxResults
		}
		minScore := flagMinScore
		if minScore == 0 {
			minScore = cfg.Search.MinScore
		}

		results, err := manager.Search(cmd.Context(), query, searcher.Options{
			MaxResults:   maxResults,
			MinScore:     minScore,
			VectorWeight: cfg.Search.VectorWeight,
			TextWeight:   cfg.Search.TextWeight,
		})
		if err != nil {
			return err
		}

		fmt.Print(knowledge.FormatResults(results))
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&flagMaxResults, "max-results", "n", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64Var(&flagMinScore, "min-score", 0, "minimum composite score (default from config, negative disables the threshold)")
	rootCmd.AddCommand(searchCmd)
}
