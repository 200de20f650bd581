package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "INDEX_BACKEND", "QDRANT_URL", "POSTGRES_DSN", "OCR_BACKEND", "OCR_URL",
		"OLLAMA_URL", "OLLAMA_GEN_MODEL", "CHUNK_SIZE", "CHUNK_OVERLAP", "RETRIEVAL_MIN_SCORE",
		"RENDER_BACKEND", "EVENTS_BACKEND", "RESILIENCE_BREAKER_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IndexBackend != IndexBackendMemory || cfg.OCRBackend != OCRBackendNone {
		t.Fatalf("unexpected backends: index=%q ocr=%q", cfg.IndexBackend, cfg.OCRBackend)
	}
	if cfg.ChunkSize != 600 || cfg.ChunkOverlap != 100 || cfg.ChunkMinLength != 50 {
		t.Fatalf("unexpected chunking defaults: %+v", cfg)
	}
	if cfg.RetrievalMinScore != 0.05 || cfg.CrossTopK != 1 {
		t.Fatalf("unexpected retrieval defaults: %+v", cfg)
	}
	if cfg.IndexTimeout() != 30*time.Second || cfg.MaxUploadBytes() != 50<<20 {
		t.Fatalf("unexpected derived values")
	}
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "index_backend: qdrant\nqdrant_url: http://qdrant:6333\nchunk_size: 800\nretrieval_min_score: 0.2\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_SIZE", "700")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IndexBackend != IndexBackendQdrant || cfg.QdrantURL != "http://qdrant:6333" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ChunkSize != 700 {
		t.Fatalf("expected env to override file, got %d", cfg.ChunkSize)
	}
	if cfg.RetrievalMinScore != 0.2 {
		t.Fatalf("expected min score from file, got %v", cfg.RetrievalMinScore)
	}
	if cfg.ChunkOverlap != 100 {
		t.Fatalf("expected untouched default overlap, got %d", cfg.ChunkOverlap)
	}
}

func TestLoadRejectsMissingBackendSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "qdrant url", env: map[string]string{"INDEX_BACKEND": "qdrant"}, want: "QDRANT_URL"},
		{name: "postgres dsn", env: map[string]string{"INDEX_BACKEND": "postgres"}, want: "POSTGRES_DSN"},
		{name: "ocr url", env: map[string]string{"OCR_BACKEND": "http"}, want: "OCR_URL"},
		{name: "unknown index", env: map[string]string{"INDEX_BACKEND": "elastic"}, want: "INDEX_BACKEND"},
		{name: "overlap too large", env: map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"}, want: "chunking"},
		{name: "min score above one", env: map[string]string{"RETRIEVAL_MIN_SCORE": "2.5"}, want: "RETRIEVAL_MIN_SCORE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !domain.IsKind(err, domain.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestResilienceConversion(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rc := cfg.Resilience()
	if rc.Breaker.Enabled || rc.Retry.MaxAttempts != 3 || rc.Retry.InitialBackoff != 200*time.Millisecond {
		t.Fatalf("unexpected resilience config: %+v", rc)
	}
}
