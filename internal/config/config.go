// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ScoringWeights holds the discovery scoring constants. The combination
// weights and the per-dimension feature weights are tuning knobs, so they are
// named configuration with defaults rather than literals in the ranker.
type ScoringWeights struct {
	Text    float64 // weight of the embedding cosine term
	Feature float64 // weight of the structured feature overlap term

	// Per-dimension weights inside the feature overlap. Normalized at use.
	Theme       float64
	Catalyst    float64
	Geography   float64
	SupplyChain float64
}

// Channels holds notification channel settings. A channel with no endpoint
// configured is considered disabled.
type Channels struct {
	SMTPHost  string
	SMTPPort  int
	EmailFrom string
	EmailTo   string

	WebhookURL string

	BotAPIURL string
	BotToken  string
	BotChatID string

	SendTimeout time.Duration // per-channel delivery timeout
	MaxRetries  int           // bounded retry attempts per channel
}

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Daily evaluation schedule.
	EvalHour   int
	EvalMinute int
	Timezone   string

	EvalWorkers int // parallelism of rule evaluation within a run

	MarketDataURL string
	EmbeddingURL  string
	ClientTimeout time.Duration

	DiscoveryCacheTTL time.Duration

	Scoring  ScoringWeights
	Channels Channels
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PLAYBOOK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		EvalHour:   getEnvAsInt("EVAL_HOUR", 22),
		EvalMinute: getEnvAsInt("EVAL_MINUTE", 0),
		Timezone:   getEnv("EVAL_TIMEZONE", "America/New_York"),

		EvalWorkers: getEnvAsInt("EVAL_WORKERS", 8),

		MarketDataURL: getEnv("MARKET_DATA_URL", "http://localhost:9100"),
		EmbeddingURL:  getEnv("EMBEDDING_URL", "http://localhost:9200"),
		ClientTimeout: getEnvAsDuration("CLIENT_TIMEOUT", 15*time.Second),

		DiscoveryCacheTTL: getEnvAsDuration("DISCOVERY_CACHE_TTL", 6*time.Hour),

		Scoring: ScoringWeights{
			Text:        getEnvAsFloat("SCORE_W_TEXT", 0.5),
			Feature:     getEnvAsFloat("SCORE_W_FEATURE", 0.5),
			Theme:       getEnvAsFloat("SCORE_W_THEME", 0.4),
			Catalyst:    getEnvAsFloat("SCORE_W_CATALYST", 0.3),
			Geography:   getEnvAsFloat("SCORE_W_GEOGRAPHY", 0.15),
			SupplyChain: getEnvAsFloat("SCORE_W_SUPPLY_CHAIN", 0.15),
		},

		Channels: Channels{
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvAsInt("SMTP_PORT", 587),
			EmailFrom:   getEnv("EMAIL_FROM", ""),
			EmailTo:     getEnv("EMAIL_TO", ""),
			WebhookURL:  getEnv("WEBHOOK_URL", ""),
			BotAPIURL:   getEnv("BOT_API_URL", ""),
			BotToken:    getEnv("BOT_TOKEN", ""),
			BotChatID:   getEnv("BOT_CHAT_ID", ""),
			SendTimeout: getEnvAsDuration("CHANNEL_SEND_TIMEOUT", 10*time.Second),
			MaxRetries:  getEnvAsInt("CHANNEL_MAX_RETRIES", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.EvalHour < 0 || c.EvalHour > 23 {
		return fmt.Errorf("EVAL_HOUR out of range: %d", c.EvalHour)
	}
	if c.EvalMinute < 0 || c.EvalMinute > 59 {
		return fmt.Errorf("EVAL_MINUTE out of range: %d", c.EvalMinute)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid EVAL_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.EvalWorkers < 1 {
		return fmt.Errorf("EVAL_WORKERS must be positive, got %d", c.EvalWorkers)
	}
	if c.Scoring.Text < 0 || c.Scoring.Feature < 0 || c.Scoring.Text+c.Scoring.Feature == 0 {
		return fmt.Errorf("scoring weights must be non-negative and not both zero")
	}
	return nil
}

// Location returns the evaluation timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
