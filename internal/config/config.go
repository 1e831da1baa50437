package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Sparse    SparseConfig    `toml:"sparse"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Agent     AgentConfig     `toml:"agent"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type EmbeddingConfig struct {
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

type DatabaseConfig struct {
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type ChunkingConfig struct {
	SmallChunkSize  int `toml:"small_chunk_size"`
	ParentChunkSize int `toml:"parent_chunk_size"`
}

type SparseConfig struct {
	Dimension int `toml:"dimension"`
}

type RetrievalConfig struct {
	TopK           int     `toml:"top_k"`
	RerankTopK     int     `toml:"rerank_top_k"`
	Alpha          float64 `toml:"alpha"`
	Threshold      float64 `toml:"threshold"`
	LexicalBonus   float64 `toml:"lexical_bonus"`
	LexicalPenalty float64 `toml:"lexical_penalty"`
}

type AgentConfig struct {
	MaxIterations int `toml:"max_iterations"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:       LLMConfig{BaseURL: "http://localhost:11434/v1", Model: "llama3.1"},
		Embedding: EmbeddingConfig{BaseURL: "http://localhost:11434/v1", Model: "nomic-embed-text", Dimensions: 768},
		Database:  DatabaseConfig{Path: "contexture.db"},
		Chunking:  ChunkingConfig{SmallChunkSize: 175, ParentChunkSize: 512},
		Sparse:    SparseConfig{Dimension: 32000},
		Retrieval: RetrievalConfig{TopK: 20, RerankTopK: 10, Alpha: 0.3, Threshold: 0.1, LexicalBonus: 1.2, LexicalPenalty: 0.8},
		Agent:     AgentConfig{MaxIterations: 5},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "contexture.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CONTEXTURE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CONTEXTURE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CONTEXTURE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CONTEXTURE_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("CONTEXTURE_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if os.Getenv("CONTEXTURE_OBSERVER_ENABLED") == "true" || os.Getenv("CONTEXTURE_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}

	return cfg
}
