/**
 * Configuration for the Inscription Recognition Worker
 *
 * Loads configuration from environment variables. Credentials toggle backend
 * availability: a missing API key excludes that backend from the fallback
 * chain instead of causing a runtime failure.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration (Glyph Store)
	DatabaseURL string

	// Qdrant glyph-meaning vector index
	QdrantURL        string
	QdrantCollection string

	// OpenAI-compatible API (vision OCR, meanings, translation, reconstruction)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	VisionModel   string
	SemanticModel string
	// Ordered translation model configurations, first success wins
	TranslationModels   []string
	ReconstructionModel string
	EmbeddingModel      string
	EmbeddingDimensions int

	// Auxiliary vision OCR service (raw HTTP, optional)
	AuxVisionURL    string
	AuxVisionAPIKey string

	// Local Tesseract OCR tier
	TesseractEnabled  bool
	TesseractLanguage string

	// Outbound transport
	ProxyURL      string
	VisionTimeout time.Duration
	TextTimeout   time.Duration

	// Worker configuration
	QueueName         string
	WorkerConcurrency int
	MaxConcurrent     int
	ProcessingTimeout int // milliseconds

	// Pipeline behaviour
	DefaultScript        string
	EnableReconstruction bool
	EnableVerification   bool
	// Development escape hatch: substitute canned sample text when every OCR
	// backend is unreachable. Never enabled in production.
	AllowSampleFallback bool
	SampleText          string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:             getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:            getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:     getEnvOrDefault("QDRANT_COLLECTION", "glyph_meanings"),
		OpenAIAPIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
		VisionModel:          getEnvOrDefault("VISION_MODEL", "gpt-4o"),
		SemanticModel:        getEnvOrDefault("SEMANTIC_MODEL", "gpt-4o-mini"),
		TranslationModels:    splitList(getEnvOrDefault("TRANSLATION_MODELS", "gpt-4o,gpt-4o-mini")),
		ReconstructionModel:  getEnvOrDefault("RECONSTRUCTION_MODEL", "gpt-4o"),
		EmbeddingModel:       getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions:  getEnvAsIntOrDefault("EMBEDDING_DIMENSIONS", 1536),
		AuxVisionURL:         getEnvOrDefault("AUX_VISION_URL", ""),
		AuxVisionAPIKey:      getEnvOrDefault("AUX_VISION_API_KEY", ""),
		TesseractEnabled:     getEnvAsBoolOrDefault("TESSERACT_ENABLED", false),
		TesseractLanguage:    getEnvOrDefault("TESSERACT_LANGUAGE", "chi_sim"),
		ProxyURL:             getEnvOrDefault("OUTBOUND_PROXY_URL", ""),
		VisionTimeout:        getEnvAsDurationOrDefault("VISION_TIMEOUT", 60*time.Second),
		TextTimeout:          getEnvAsDurationOrDefault("TEXT_TIMEOUT", 30*time.Second),
		QueueName:            getEnvOrDefault("QUEUE_NAME", "epigraphy:runs"),
		WorkerConcurrency:    getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxConcurrent:        getEnvAsIntOrDefault("MAX_CONCURRENT", 2),
		ProcessingTimeout:    getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		DefaultScript:        getEnvOrDefault("DEFAULT_SCRIPT", "Seal Script"),
		EnableReconstruction: getEnvAsBoolOrDefault("ENABLE_RECONSTRUCTION", true),
		EnableVerification:   getEnvAsBoolOrDefault("ENABLE_VERIFICATION", true),
		AllowSampleFallback:  getEnvAsBoolOrDefault("ALLOW_SAMPLE_FALLBACK", false),
		SampleText:           getEnvOrDefault("SAMPLE_TEXT", "道法自然"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxConcurrent < 1 || c.MaxConcurrent > 64 {
		return fmt.Errorf("MAX_CONCURRENT must be between 1 and 64, got %d", c.MaxConcurrent)
	}

	if c.VisionTimeout <= 0 || c.TextTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	return nil
}

// HasOpenAI reports whether the OpenAI-compatible backends are configured.
func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasAuxVision reports whether the auxiliary vision service is configured.
func (c *Config) HasAuxVision() bool {
	return c.AuxVisionURL != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault gets environment variable as duration or returns default
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
