// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted for STORE_BACKEND.
const (
	BackendQdrant = "qdrant"
	BackendSQLite = "sqlite"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Server     ServerConfig     `yaml:"server"`

	// CachePath is the directory holding the embeddings snapshot.
	CachePath string `yaml:"cache_path"`
	// DocumentsPath is the default directory for bulk ingestion.
	DocumentsPath string `yaml:"documents_path"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	SQLitePath string `yaml:"sqlite_path"`
}

// URL returns the base URL of the Qdrant HTTP API.
func (s StoreConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// OllamaConfig configures the embedding and generation model host.
type OllamaConfig struct {
	URL             string `yaml:"url"`
	EmbeddingModel  string `yaml:"embedding_model"`
	GenerationModel string `yaml:"generation_model"`
	// Dimension is the embedding dimension every vector must have.
	Dimension int `yaml:"dimension"`
}

// ChunkingConfig configures how cleaned text is split into word windows.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures the query pipeline.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// MaxContextLength is the assembled-context cutoff in runes.
	MaxContextLength int `yaml:"max_context_length"`
}

// GenerationConfig holds decoding parameters passed to the generation model.
type GenerationConfig struct {
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in increasing order of precedence. If envFile is
// non-empty it is loaded with godotenv first; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	cfg := defaults()

	if path := os.Getenv("DOCCHAT_CONFIG"); path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    BackendQdrant,
			Host:       "localhost",
			Port:       6333,
			Collection: "documents",
			SQLitePath: "./docchat.db",
		},
		Ollama: OllamaConfig{
			URL:             "http://localhost:11434",
			EmbeddingModel:  "nomic-embed-text",
			GenerationModel: "qwen2.5:7b",
			Dimension:       768,
		},
		Chunking:  ChunkingConfig{Size: 500, Overlap: 50},
		Retrieval: RetrievalConfig{TopK: 5, MaxContextLength: 2000},
		Generation: GenerationConfig{
			Temperature: 0.7,
			TopP:        0.95,
			MaxTokens:   512,
		},
		Server:        ServerConfig{Host: "0.0.0.0", Port: 8000},
		CachePath:     "./embeddings",
		DocumentsPath: "./documents",
	}
}

// mergeFile overlays values from a YAML config file onto cfg.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Host = getEnv("QDRANT_HOST", cfg.Store.Host)
	cfg.Store.Port = getEnvInt("QDRANT_PORT", cfg.Store.Port)
	cfg.Store.Collection = getEnv("QDRANT_COLLECTION_NAME", cfg.Store.Collection)
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", cfg.Store.SQLitePath)

	cfg.Ollama.URL = getEnv("OLLAMA_URL", cfg.Ollama.URL)
	cfg.Ollama.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.Ollama.EmbeddingModel)
	cfg.Ollama.GenerationModel = getEnv("GENERATION_MODEL", cfg.Ollama.GenerationModel)
	cfg.Ollama.Dimension = getEnvInt("EMBEDDING_DIMENSION", cfg.Ollama.Dimension)

	cfg.Chunking.Size = getEnvInt("CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunking.Overlap)

	cfg.Retrieval.TopK = getEnvInt("TOP_K_RESULTS", cfg.Retrieval.TopK)
	cfg.Retrieval.MaxContextLength = getEnvInt("MAX_CONTEXT_LENGTH", cfg.Retrieval.MaxContextLength)

	cfg.Generation.Temperature = getEnvFloat("GEN_TEMPERATURE", cfg.Generation.Temperature)
	cfg.Generation.TopP = getEnvFloat("GEN_TOP_P", cfg.Generation.TopP)
	cfg.Generation.MaxTokens = getEnvInt("GEN_MAX_TOKENS", cfg.Generation.MaxTokens)

	cfg.Server.Host = getEnv("API_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("API_PORT", cfg.Server.Port)

	cfg.CachePath = getEnv("EMBEDDINGS_CACHE_PATH", cfg.CachePath)
	cfg.DocumentsPath = getEnv("DOCUMENTS_PATH", cfg.DocumentsPath)
}

// Validate checks for values that would make the pipelines misbehave.
// Chunk parameters are checked again by the chunker; failing here surfaces
// the problem at startup instead of on the first upload.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendQdrant, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Ollama.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Ollama.Dimension)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MaxContextLength <= 0 {
		return fmt.Errorf("max context length must be positive, got %d", c.Retrieval.MaxContextLength)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
