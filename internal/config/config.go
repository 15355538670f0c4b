package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	MindmapAPIKey string

	// Completion provider: CLAUDE, OPENAI, or DEEPSEEK.
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	DeepSeekAPIKey  string
	DeepSeekModel   string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Concurrency controller
	MaxConcurrentCalls int
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	JitterFrac         float64

	// Global run budget. MaxCalls <= 0 means unlimited.
	MaxCalls   int
	RunTimeout time.Duration

	// Chunking
	ChunkSize      int
	ChunkOverlap   int
	BoundaryWindow int

	// Deduplication thresholds (fractions in [0,1], per level).
	FuzzyTopic    float64
	FuzzySubtopic float64
	FuzzyDetail   float64
	JaccardCutoff float64

	// Verification
	ConfidenceFloor float64
	VerifyBatchSize int

	// Exploration
	Epsilon  float64
	Patience int

	// Assembly
	MaxTopics     int
	MaxSubtopics  int
	MaxDetails    int
	ReattachFloor float64

	// Memo cache: memory, file, or redis.
	CacheBackend string
	CacheFile    string
	RedisAddr    string
	RedisTTL     time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		MindmapAPIKey: os.Getenv("MINDMAP_API_KEY"),

		Provider:        envOr("API_PROVIDER", "CLAUDE"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     envOr("OPENAI_MODEL", "gpt-4o-mini"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekModel:   envOr("DEEPSEEK_MODEL", "deepseek-chat"),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),

		MaxConcurrentCalls: envInt("MAX_CONCURRENT_CALLS", 5),
		MaxAttempts:        envInt("MAX_ATTEMPTS", 3),
		BackoffBase:        envDuration("BACKOFF_BASE", 1*time.Second),
		BackoffMax:         envDuration("BACKOFF_MAX", 10*time.Second),
		JitterFrac:         envFloat("BACKOFF_JITTER", 0.5),

		MaxCalls:   envInt("MAX_CALLS", 120),
		RunTimeout: envDuration("RUN_TIMEOUT", 15*time.Minute),

		ChunkSize:      envInt("CHUNK_SIZE", 8000),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", 250),
		BoundaryWindow: envInt("BOUNDARY_WINDOW", 200),

		FuzzyTopic:    envFloat("FUZZY_TOPIC", 0.75),
		FuzzySubtopic: envFloat("FUZZY_SUBTOPIC", 0.70),
		FuzzyDetail:   envFloat("FUZZY_DETAIL", 0.65),
		JaccardCutoff: envFloat("JACCARD_CUTOFF", 0.5),

		ConfidenceFloor: envFloat("CONFIDENCE_FLOOR", 0.6),
		VerifyBatchSize: envInt("VERIFY_BATCH_SIZE", 8),

		Epsilon:  envFloat("EXPLORE_EPSILON", 0.5),
		Patience: envInt("EXPLORE_PATIENCE", 2),

		MaxTopics:     envInt("MAX_TOPICS", 6),
		MaxSubtopics:  envInt("MAX_SUBTOPICS", 4),
		MaxDetails:    envInt("MAX_DETAILS", 8),
		ReattachFloor: envFloat("REATTACH_FLOOR", 0.4),

		CacheBackend: envOr("CACHE_BACKEND", "memory"),
		CacheFile:    envOr("CACHE_FILE", "mindmap_cache.json"),
		RedisAddr:    envOr("REDIS_ADDR", "localhost:6379"),
		RedisTTL:     envDuration("REDIS_TTL", 168*time.Hour),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 32
	}
	if cfg.BoundaryWindow < 0 {
		cfg.BoundaryWindow = 200
	}
	if cfg.VerifyBatchSize <= 0 {
		cfg.VerifyBatchSize = 8
	}
	if cfg.Patience <= 0 {
		cfg.Patience = 2
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.MindmapAPIKey == "" {
		return fmt.Errorf("MINDMAP_API_KEY is required")
	}
	switch c.Provider {
	case "CLAUDE":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider CLAUDE")
		}
	case "OPENAI":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider OPENAI")
		}
	case "DEEPSEEK":
		if c.DeepSeekAPIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY is required for provider DEEPSEEK")
		}
	default:
		return fmt.Errorf("unknown API_PROVIDER %q (want CLAUDE, OPENAI, or DEEPSEEK)", c.Provider)
	}
	switch c.CacheBackend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want memory, file, or redis)", c.CacheBackend)
	}
	for name, v := range map[string]float64{
		"FUZZY_TOPIC":      c.FuzzyTopic,
		"FUZZY_SUBTOPIC":   c.FuzzySubtopic,
		"FUZZY_DETAIL":     c.FuzzyDetail,
		"JACCARD_CUTOFF":   c.JaccardCutoff,
		"CONFIDENCE_FLOOR": c.ConfidenceFloor,
		"REATTACH_FLOOR":   c.ReattachFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
