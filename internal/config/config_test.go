package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	c := Load()
	c.MindmapAPIKey = "k"
	c.Provider = "CLAUDE"
	c.AnthropicAPIKey = "a"
	return c
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8090" {
		t.Errorf("Port = %q, want 8090", cfg.Port)
	}
	if cfg.Provider != "CLAUDE" {
		t.Errorf("Provider = %q, want CLAUDE", cfg.Provider)
	}
	if cfg.ChunkSize != 8000 || cfg.ChunkOverlap != 250 || cfg.BoundaryWindow != 200 {
		t.Errorf("chunking defaults = %d/%d/%d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.BoundaryWindow)
	}
	if cfg.FuzzyTopic != 0.75 || cfg.FuzzySubtopic != 0.70 || cfg.FuzzyDetail != 0.65 {
		t.Errorf("fuzzy defaults = %v/%v/%v", cfg.FuzzyTopic, cfg.FuzzySubtopic, cfg.FuzzyDetail)
	}
	if cfg.MaxTopics != 6 || cfg.MaxSubtopics != 4 || cfg.MaxDetails != 8 {
		t.Errorf("level caps = %d/%d/%d, want 6/4/8", cfg.MaxTopics, cfg.MaxSubtopics, cfg.MaxDetails)
	}
	if cfg.MaxAttempts != 3 || cfg.BackoffBase != time.Second || cfg.BackoffMax != 10*time.Second {
		t.Errorf("retry defaults = %d/%v/%v", cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax)
	}
	if cfg.CacheBackend != "memory" {
		t.Errorf("CacheBackend = %q, want memory", cfg.CacheBackend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("API_PROVIDER", "OPENAI")
	t.Setenv("CHUNK_SIZE", "4000")
	t.Setenv("FUZZY_TOPIC", "0.8")
	t.Setenv("RUN_TIMEOUT", "5m")
	t.Setenv("PDF_FALLBACK_PDFTOTEXT", "false")

	cfg := Load()
	if cfg.Port != "9000" || cfg.Provider != "OPENAI" {
		t.Errorf("overrides lost: port %q provider %q", cfg.Port, cfg.Provider)
	}
	if cfg.ChunkSize != 4000 {
		t.Errorf("ChunkSize = %d, want 4000", cfg.ChunkSize)
	}
	if cfg.FuzzyTopic != 0.8 {
		t.Errorf("FuzzyTopic = %v, want 0.8", cfg.FuzzyTopic)
	}
	if cfg.RunTimeout != 5*time.Minute {
		t.Errorf("RunTimeout = %v, want 5m", cfg.RunTimeout)
	}
	if cfg.PDFFallbackPdftotext {
		t.Error("PDF fallback should be disabled")
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("BACKOFF_BASE", "soon")

	cfg := Load()
	if cfg.ChunkSize != 8000 {
		t.Errorf("ChunkSize = %d, want default 8000", cfg.ChunkSize)
	}
	if cfg.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %v, want default 1s", cfg.BackoffBase)
	}
}

func TestLoad_OverlapClampedBelowChunkSize(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "1000")
	t.Setenv("CHUNK_OVERLAP", "5000")

	cfg := Load()
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		t.Errorf("overlap %d not clamped below chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	c := validConfig()
	c.MindmapAPIKey = ""
	if c.Validate() == nil {
		t.Error("missing api key accepted")
	}

	c = validConfig()
	c.Provider = "GEMINI"
	if c.Validate() == nil {
		t.Error("unknown provider accepted")
	}

	c = validConfig()
	c.Provider = "OPENAI"
	c.OpenAIAPIKey = ""
	if c.Validate() == nil {
		t.Error("OPENAI without key accepted")
	}

	c = validConfig()
	c.CacheBackend = "memcached"
	if c.Validate() == nil {
		t.Error("unknown cache backend accepted")
	}

	c = validConfig()
	c.FuzzyTopic = 1.5
	if c.Validate() == nil {
		t.Error("out-of-range threshold accepted")
	}
}
