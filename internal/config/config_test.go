package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Chunking.SmallChunkSize != 175 || cfg.Chunking.ParentChunkSize != 512 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Sparse.Dimension != 32000 {
		t.Errorf("sparse dimension = %d, want 32000", cfg.Sparse.Dimension)
	}
	if cfg.Retrieval.Alpha != 0.3 || cfg.Retrieval.TopK != 20 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("agent max iterations = %d, want 5", cfg.Agent.MaxIterations)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
model = "mistral"

[retrieval]
top_k = 50
alpha = 0.5
`), 0644)

	cfg := Load(path)
	if cfg.LLM.Model != "mistral" {
		t.Errorf("expected mistral, got %s", cfg.LLM.Model)
	}
	if cfg.Retrieval.TopK != 50 || cfg.Retrieval.Alpha != 0.5 {
		t.Errorf("unexpected retrieval: %+v", cfg.Retrieval)
	}
	// Defaults preserved
	if cfg.Chunking.SmallChunkSize != 175 {
		t.Errorf("default should be preserved, got %d", cfg.Chunking.SmallChunkSize)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CONTEXTURE_LLM_API_KEY", "env-key")
	t.Setenv("CONTEXTURE_POSTGRES_URL", "postgres://env")

	cfg := Load("/nonexistent/path.toml")
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Database.PostgresURL != "postgres://env" {
		t.Errorf("expected env url, got %s", cfg.Database.PostgresURL)
	}
	// Fallback: embedding inherits the LLM key.
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("expected embedding fallback to env-key, got %s", cfg.Embedding.APIKey)
	}
}
