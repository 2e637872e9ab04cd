package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kbindex/internal/config"
	"kbindex/internal/embedder"
	"kbindex/internal/knowledge"
)

var (
	flagConfig string
	flagDB     string
)

var rootCmd = &cobra.Command{
	Use:   "kbindex",
	Short: "Hybrid semantic and keyword search over persona knowledge bases",
	Long: `kbindex indexes markdown knowledge bases into a local SQLite database
and serves hybrid retrieval: embedding similarity fused with FTS5
keyword matching. Run it as a CLI or as an MCP server over stdio.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ./kbindex.yaml, then ~/.config/kbindex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides config)")
}

// loadConfig resolves the effective configuration from flags and files
func loadConfig() (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return cfg, nil
}

// newManager opens the knowledge base described by the configuration
func newManager(cfg *config.AppConfig) (*knowledge.Manager, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return knowledge.New(knowledge.Config{
		DBPath: cfg.DBPath,
		EmbedderConfig: embedder.Config{
			Provider:  cfg.Embedder.Provider,
			Model:     cfg.Embedder.Model,
			BaseURL:   cfg.Embedder.BaseURL,
			CacheSize: cfg.Embedder.CacheSize,
		},
	})
}
