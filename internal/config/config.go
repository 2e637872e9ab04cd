// Package config loads the application configuration from YAML, falling
// back to sensible defaults when no file exists. Secrets (API keys) never
// live here; providers read them from the environment.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	// Provider forces a backend ("openai", "gemini", "siliconflow").
	// Empty means auto-detect from environment API keys.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// CacheSize caps the in-memory embedding LRU.
	CacheSize int `yaml:"cache_size"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// SearchConfig holds default search parameters.
type SearchConfig struct {
	MaxResults   int     `yaml:"max_results"`
	MinScore     float64 `yaml:"min_score"`
	VectorWeight float64 `yaml:"vector_weight"`
	TextWeight   float64 `yaml:"text_weight"`
}

// IndexConfig holds indexing parameters.
type IndexConfig struct {
	FilePattern string `yaml:"file_pattern"`
	Workers     int    `yaml:"workers"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DBPath   string         `yaml:"db_path"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	Search   SearchConfig   `yaml:"search"`
	Index    IndexConfig    `yaml:"index"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig()
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := applyConfigDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./kbindex.yaml first, then ~/.config/kbindex/config.yaml.
// If neither exists, defaults are returned without writing anything.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "kbindex.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err == nil {
		if _, statErr := os.Stat(userPath); statErr == nil {
			cfg, err := Load(userPath)
			return cfg, userPath, err
		}
	}
	cfg, err := defaultConfig()
	return cfg, "", err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kbindex", "config.yaml"), nil
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "kbindex", "index.db"), nil
}

func defaultConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := applyConfigDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyConfigDefaults(cfg *AppConfig) error {
	if cfg.DBPath == "" {
		dbPath, err := defaultDBPath()
		if err != nil {
			return err
		}
		cfg.DBPath = dbPath
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 400
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = 80
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 6
	}
	if cfg.Search.MinScore == 0 {
		cfg.Search.MinScore = 0.35
	}
	if cfg.Search.VectorWeight == 0 && cfg.Search.TextWeight == 0 {
		cfg.Search.VectorWeight = 0.7
		cfg.Search.TextWeight = 0.3
	}
	if cfg.Index.FilePattern == "" {
		cfg.Index.FilePattern = "*.md"
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 10000
	}
	return nil
}
