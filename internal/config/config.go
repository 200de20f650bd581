package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/infrastructure/resilience"
)

const (
	IndexBackendMemory   = "memory"
	IndexBackendQdrant   = "qdrant"
	IndexBackendPostgres = "postgres"

	OCRBackendNone      = "none"
	OCRBackendHTTP      = "http"
	OCRBackendTesseract = "tesseract"

	RenderBackendXObject = "xobject"
	RenderBackendMuPDF   = "mupdf"

	EventsBackendNone = "none"
	EventsBackendNATS = "nats"
)

type Config struct {
	APIPort        string  `yaml:"api_port"`
	LogLevel       string  `yaml:"log_level"`
	MaxConnections int     `yaml:"max_connections"`
	MaxInflight    int     `yaml:"max_inflight"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	MaxUploadMB    int     `yaml:"max_upload_mb"`

	IndexBackend        string `yaml:"index_backend"`
	IndexSession        string `yaml:"index_session"`
	IndexTimeoutSeconds int    `yaml:"index_timeout_seconds"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	QdrantURL           string `yaml:"qdrant_url"`
	QdrantCollection    string `yaml:"qdrant_collection"`

	OllamaURL           string  `yaml:"ollama_url"`
	OllamaGenModel      string  `yaml:"ollama_gen_model"`
	ModelTimeoutSeconds int     `yaml:"model_timeout_seconds"`
	ModelTemperature    float64 `yaml:"model_temperature"`

	OCRBackend            string  `yaml:"ocr_backend"`
	OCRURL                string  `yaml:"ocr_url"`
	OCRLanguage           string  `yaml:"ocr_language"`
	OCRWorkers            int     `yaml:"ocr_workers"`
	OCRTimeoutSeconds     int     `yaml:"ocr_timeout_seconds"`
	RenderBackend         string  `yaml:"render_backend"`
	RenderScale           float64 `yaml:"render_scale"`
	TextMinChars          int     `yaml:"text_min_chars"`
	TextMinCharsPerSqInch float64 `yaml:"text_min_chars_per_sq_inch"`
	ExtractTimeoutSeconds int     `yaml:"extract_timeout_seconds"`

	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	ChunkMinLength int `yaml:"chunk_min_length"`

	RetrievalCandidates int     `yaml:"retrieval_candidates"`
	RetrievalMinScore   float64 `yaml:"retrieval_min_score"`
	CrossTopK           int     `yaml:"cross_top_k"`

	EventsBackend     string `yaml:"events_backend"`
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	RetryMaxAttempts        int     `yaml:"retry_max_attempts"`
	RetryInitialBackoffMS   int     `yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMS       int     `yaml:"retry_max_backoff_ms"`
	BreakerEnabled          bool    `yaml:"breaker_enabled"`
	BreakerMinRequests      int     `yaml:"breaker_min_requests"`
	BreakerFailureRatio     float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeoutSecs  int     `yaml:"breaker_open_timeout_seconds"`
	BreakerHalfOpenMaxCalls int     `yaml:"breaker_half_open_max_calls"`
}

func Defaults() Config {
	return Config{
		APIPort:        "8000",
		LogLevel:       "info",
		MaxConnections: 256,
		MaxInflight:    8,
		RateLimitRPS:   5,
		RateLimitBurst: 10,
		MaxUploadMB:    50,

		IndexBackend:        IndexBackendMemory,
		IndexTimeoutSeconds: 30,
		PostgresDSN:         "",
		QdrantURL:           "",
		QdrantCollection:    "policy_chunks",

		OllamaURL:           "http://localhost:11434",
		OllamaGenModel:      "llama3.1:8b",
		ModelTimeoutSeconds: 120,
		ModelTemperature:    0.1,

		OCRBackend:            OCRBackendNone,
		OCRLanguage:           "eng",
		OCRWorkers:            4,
		OCRTimeoutSeconds:     60,
		RenderBackend:         RenderBackendXObject,
		RenderScale:           2.0,
		TextMinChars:          20,
		TextMinCharsPerSqInch: 0.5,
		ExtractTimeoutSeconds: 300,

		ChunkSize:      600,
		ChunkOverlap:   100,
		ChunkMinLength: 50,

		RetrievalCandidates: 50,
		RetrievalMinScore:   0.05,
		CrossTopK:           1,

		EventsBackend:     EventsBackendNone,
		NATSURL:           "nats://localhost:4222",
		NATSSubjectPrefix: "policyqa",

		RetryMaxAttempts:        3,
		RetryInitialBackoffMS:   200,
		RetryMaxBackoffMS:       2000,
		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeoutSecs:  30,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// Load applies defaults, then the YAML file named by CONFIG_FILE, then
// environment variables, and validates the result.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg = cfg.withEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.WrapError(domain.ErrConfig, "read config file", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return domain.WrapError(domain.ErrConfig, "parse config file", fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

func (c Config) withEnv() Config {
	c.APIPort = mustEnv("API_PORT", c.APIPort)
	c.LogLevel = mustEnv("LOG_LEVEL", c.LogLevel)
	c.MaxConnections = mustEnvInt("MAX_CONNECTIONS", c.MaxConnections)
	c.MaxInflight = mustEnvInt("MAX_INFLIGHT", c.MaxInflight)
	c.RateLimitRPS = mustEnvFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = mustEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.MaxUploadMB = mustEnvInt("MAX_UPLOAD_MB", c.MaxUploadMB)

	c.IndexBackend = strings.ToLower(mustEnv("INDEX_BACKEND", c.IndexBackend))
	c.IndexSession = mustEnv("INDEX_SESSION", c.IndexSession)
	c.IndexTimeoutSeconds = mustEnvInt("INDEX_TIMEOUT_SECONDS", c.IndexTimeoutSeconds)
	c.PostgresDSN = mustEnv("POSTGRES_DSN", c.PostgresDSN)
	c.QdrantURL = mustEnv("QDRANT_URL", c.QdrantURL)
	c.QdrantCollection = mustEnv("QDRANT_COLLECTION", c.QdrantCollection)

	c.OllamaURL = mustEnv("OLLAMA_URL", c.OllamaURL)
	c.OllamaGenModel = mustEnv("OLLAMA_GEN_MODEL", c.OllamaGenModel)
	c.ModelTimeoutSeconds = mustEnvInt("MODEL_TIMEOUT_SECONDS", c.ModelTimeoutSeconds)
	c.ModelTemperature = mustEnvFloat("MODEL_TEMPERATURE", c.ModelTemperature)

	c.OCRBackend = strings.ToLower(mustEnv("OCR_BACKEND", c.OCRBackend))
	c.OCRURL = mustEnv("OCR_URL", c.OCRURL)
	c.OCRLanguage = mustEnv("OCR_LANGUAGE", c.OCRLanguage)
	c.OCRWorkers = mustEnvInt("OCR_WORKERS", c.OCRWorkers)
	c.OCRTimeoutSeconds = mustEnvInt("OCR_TIMEOUT_SECONDS", c.OCRTimeoutSeconds)
	c.RenderBackend = strings.ToLower(mustEnv("RENDER_BACKEND", c.RenderBackend))
	c.RenderScale = mustEnvFloat("RENDER_SCALE", c.RenderScale)
	c.TextMinChars = mustEnvInt("TEXT_MIN_CHARS", c.TextMinChars)
	c.TextMinCharsPerSqInch = mustEnvFloat("TEXT_MIN_CHARS_PER_SQ_INCH", c.TextMinCharsPerSqInch)
	c.ExtractTimeoutSeconds = mustEnvInt("EXTRACT_TIMEOUT_SECONDS", c.ExtractTimeoutSeconds)

	c.ChunkSize = mustEnvInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = mustEnvInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.ChunkMinLength = mustEnvInt("CHUNK_MIN_LENGTH", c.ChunkMinLength)

	c.RetrievalCandidates = mustEnvInt("RETRIEVAL_CANDIDATES", c.RetrievalCandidates)
	c.RetrievalMinScore = mustEnvFloat("RETRIEVAL_MIN_SCORE", c.RetrievalMinScore)
	c.CrossTopK = mustEnvInt("CROSS_TOP_K", c.CrossTopK)

	c.EventsBackend = strings.ToLower(mustEnv("EVENTS_BACKEND", c.EventsBackend))
	c.NATSURL = mustEnv("NATS_URL", c.NATSURL)
	c.NATSSubjectPrefix = mustEnv("NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)

	c.RetryMaxAttempts = mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.RetryInitialBackoffMS = mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", c.RetryInitialBackoffMS)
	c.RetryMaxBackoffMS = mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", c.RetryMaxBackoffMS)
	c.BreakerEnabled = mustEnvBool("RESILIENCE_BREAKER_ENABLED", c.BreakerEnabled)
	c.BreakerMinRequests = mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", c.BreakerMinRequests)
	c.BreakerFailureRatio = mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", c.BreakerFailureRatio)
	c.BreakerOpenTimeoutSecs = mustEnvInt("RESILIENCE_BREAKER_OPEN_TIMEOUT_SECONDS", c.BreakerOpenTimeoutSecs)
	c.BreakerHalfOpenMaxCalls = mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", c.BreakerHalfOpenMaxCalls)
	return c
}

// Validate rejects settings the process cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OllamaURL) == "" {
		errs = append(errs, errors.New("OLLAMA_URL is required"))
	}
	if strings.TrimSpace(c.OllamaGenModel) == "" {
		errs = append(errs, errors.New("OLLAMA_GEN_MODEL is required"))
	}

	switch c.IndexBackend {
	case IndexBackendMemory:
	case IndexBackendQdrant:
		if c.QdrantURL == "" {
			errs = append(errs, errors.New("QDRANT_URL is required when INDEX_BACKEND=qdrant"))
		}
	case IndexBackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when INDEX_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q", c.IndexBackend))
	}

	switch c.OCRBackend {
	case OCRBackendNone, OCRBackendTesseract:
	case OCRBackendHTTP:
		if c.OCRURL == "" {
			errs = append(errs, errors.New("OCR_URL is required when OCR_BACKEND=http"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OCR_BACKEND %q", c.OCRBackend))
	}

	if c.RenderBackend != RenderBackendXObject && c.RenderBackend != RenderBackendMuPDF {
		errs = append(errs, fmt.Errorf("unknown RENDER_BACKEND %q", c.RenderBackend))
	}
	if c.EventsBackend != EventsBackendNone && c.EventsBackend != EventsBackendNATS {
		errs = append(errs, fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("invalid chunking: size %d overlap %d", c.ChunkSize, c.ChunkOverlap))
	}
	// The floor applies to relevance in [0, 1].
	if c.RetrievalMinScore < 0 || c.RetrievalMinScore >= 1 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_MIN_SCORE must be in [0, 1), got %v", c.RetrievalMinScore))
	}

	if len(errs) > 0 {
		return domain.WrapError(domain.ErrConfig, "validate config", errors.Join(errs...))
	}
	return nil
}

func (c Config) Resilience() resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    c.RetryMaxAttempts,
			InitialBackoff: time.Duration(c.RetryInitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(c.RetryMaxBackoffMS) * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: resilience.BreakerPolicy{
			Enabled:          c.BreakerEnabled,
			MinRequests:      uint32(max(c.BreakerMinRequests, 0)),
			FailureRatio:     c.BreakerFailureRatio,
			OpenTimeout:      time.Duration(c.BreakerOpenTimeoutSecs) * time.Second,
			HalfOpenMaxCalls: uint32(max(c.BreakerHalfOpenMaxCalls, 0)),
		},
	}
}

func (c Config) IndexTimeout() time.Duration {
	return time.Duration(c.IndexTimeoutSeconds) * time.Second
}

func (c Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

func (c Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutSeconds) * time.Second
}

func (c Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSeconds) * time.Second
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
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

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
