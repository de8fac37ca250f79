package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/engram-labs/engram/internal/models"
)

type Config struct {
	Port         int
	DBPath       string
	LogLevel     string
	CategoryFile string
	// Embedding
	EmbeddingDim     int
	EmbedCacheBytes  int64
	EmbedInitTimeout int // seconds
	ONNXModelPath    string
	ONNXTokenizer    string
	ONNXSharedLib    string
	// Retrieval tuning
	DefaultTopK         int
	SimilarityThreshold float64
	// Sync
	SyncMaxRetries int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                envInt("PORT", 8741),
		DBPath:              envStr("ENGRAM_DB_PATH", "/data/engram.db"),
		LogLevel:            envStr("LOG_LEVEL", "info"),
		CategoryFile:        envStr("ENGRAM_CATEGORY_FILE", ""),
		EmbeddingDim:        envInt("EMBEDDING_DIM", 384),
		EmbedCacheBytes:     int64(envInt("EMBED_CACHE_BYTES", 64<<20)),
		EmbedInitTimeout:    envInt("EMBED_INIT_TIMEOUT_SECS", 30),
		ONNXModelPath:       envStr("ONNX_MODEL_PATH", ""),
		ONNXTokenizer:       envStr("ONNX_TOKENIZER_PATH", ""),
		ONNXSharedLib:       envStr("ONNX_SHARED_LIB", ""),
		DefaultTopK:         envInt("DEFAULT_TOP_K", 10),
		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.0),
		SyncMaxRetries:      envInt("SYNC_MAX_RETRIES", 3),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("ENGRAM_DB_PATH must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.DefaultTopK < 1 {
		return fmt.Errorf("DEFAULT_TOP_K must be positive, got %d", c.DefaultTopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0,1], got %f", c.SimilarityThreshold)
	}
	if c.SyncMaxRetries < 1 {
		return fmt.Errorf("SYNC_MAX_RETRIES must be positive, got %d", c.SyncMaxRetries)
	}
	return nil
}

// categoryFile is the YAML shape of an overlay file: user-defined
// categories merged on top of the built-in taxonomy at startup.
type categoryFile struct {
	Categories []struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		Keywords    []string `yaml:"keywords"`
	} `yaml:"categories"`
}

// LoadCategoryOverlay parses the overlay file configured via
// ENGRAM_CATEGORY_FILE. Returns nil when no file is configured.
func (c *Config) LoadCategoryOverlay() ([]models.Category, error) {
	if c.CategoryFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.CategoryFile)
	if err != nil {
		return nil, fmt.Errorf("read category file: %w", err)
	}
	var f categoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse category file: %w", err)
	}
	var out []models.Category
	for _, entry := range f.Categories {
		if entry.Name == "" {
			return nil, fmt.Errorf("category file: entry with empty name")
		}
		out = append(out, models.Category{
			Name:        entry.Name,
			Description: entry.Description,
			Keywords:    models.StringList(entry.Keywords),
		})
	}
	return out, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
