// Package config loads the immutable run configuration: environment
// bootstrap plus a YAML filter/topic file. Nothing here mutates after
// Load returns.
package config

import (
	"fmt"
	"os"
)

// Config is the environment-driven bootstrap: endpoints and paths the
// process needs before it can load anything else.
type Config struct {
	EmbeddingURL   string
	EmbeddingModel string
	StatePath      string
	OutputDir      string
	FilterPath     string

	// Replay source: a captured dump of normalized items to process.
	DumpPath   string
	Platform   string
	SourceKind string
}

func Load() (*Config, error) {
	embeddingURL, err := getEnv("EMBEDDING_URL")
	if err != nil {
		return nil, err
	}

	return &Config{
		EmbeddingURL:   embeddingURL,
		EmbeddingModel: getEnvDefault("EMBEDDING_MODEL", "sentence-transformers/all-mpnet-base-v2"),
		StatePath:      getEnvDefault("STATE_PATH", "data/sift.db"),
		OutputDir:      getEnvDefault("OUTPUT_DIR", "outputs"),
		FilterPath:     getEnvDefault("FILTER_CONFIG", ""),
		DumpPath:       getEnvDefault("DUMP_PATH", ""),
		Platform:       getEnvDefault("PLATFORM", "replay"),
		SourceKind:     getEnvDefault("SOURCE_KIND", "forum"),
	}, nil
}

func getEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is required but not set", key)
	}
	return value, nil
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
