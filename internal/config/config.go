// Package config provides configuration loading and structs for the tanya server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Fetch     FetchConfig     `yaml:"fetch"`
	OCR       OCRConfig       `yaml:"ocr"`
	Answer    AnswerConfig    `yaml:"answer"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	MaxSessions    int    `yaml:"max_sessions"`
}

// StorageConfig selects and locates the profile store.
// Backend is "json" (one file per user under ProfileDir) or "sqlite" (DatabasePath).
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	ProfileDir   string `yaml:"profile_dir"`
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig holds embedder settings.
// Provider is "onnx", "gemini", or "hashing" (deterministic, offline).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-request embedding timeout as a duration.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// VectorConfig selects the vector backend: "memory" or "faiss".
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
}

// RetrievalConfig holds chunking and ranking settings.
type RetrievalConfig struct {
	ChunkSize   int   `yaml:"chunk_size"`
	TopK        int   `yaml:"top_k"`
	FollowLinks *bool `yaml:"follow_links"`
	MaxLinks    int   `yaml:"max_links"`
}

// FollowLinksOrDefault returns whether URLs found in uploads are fetched; defaults to true when unset.
func (r *RetrievalConfig) FollowLinksOrDefault() bool {
	if r.FollowLinks != nil {
		return *r.FollowLinks
	}
	return true
}

// FetchConfig holds web fetcher settings.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxBytes       int64  `yaml:"max_bytes"`
	UserAgent      string `yaml:"user_agent"`
}

// Timeout returns the fetch timeout as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// OCRConfig holds tesseract settings.
type OCRConfig struct {
	Disabled       bool   `yaml:"disabled"`
	TesseractPath  string `yaml:"tesseract_path"`
	Language       string `yaml:"language"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the OCR timeout as a duration.
func (o OCRConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// AnswerConfig holds answer generator settings.
// Provider is "gemini" or "extractive" (offline, returns the best evidence).
type AnswerConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the answer timeout as a duration.
func (a AnswerConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// WatchConfig holds inbox watch settings.
type WatchConfig struct {
	Directories    []string `yaml:"directories"`
	Extensions     []string `yaml:"extensions"`
	Recursive      *bool    `yaml:"recursive"`
	DebounceMillis int      `yaml:"debounce_millis"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.ProfileDir = expandPath(cfg.Storage.ProfileDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects unknown provider and backend names.
func Validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("invalid storage backend %q", cfg.Storage.Backend)
	}
	switch cfg.Embedding.Provider {
	case "onnx", "gemini", "hashing":
	default:
		return fmt.Errorf("invalid embedding provider %q", cfg.Embedding.Provider)
	}
	switch cfg.Answer.Provider {
	case "gemini", "extractive":
	default:
		return fmt.Errorf("invalid answer provider %q", cfg.Answer.Provider)
	}
	if cfg.Retrieval.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", cfg.Retrieval.ChunkSize)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
