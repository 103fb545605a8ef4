package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the voicepipe server.
type Config struct {
	Server    ServerConfig
	DocStore  DocStoreConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	AI        AIConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	TempDir        string
	MaxUploadBytes int64
}

type DocStoreConfig struct {
	Backend        string
	HealthInterval time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

type AIConfig struct {
	Provider       string
	CallTimeout    time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	MinInterval    time.Duration
	HealthInterval time.Duration
	Gemini         GeminiConfig
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type PipelineConfig struct {
	MaxConcurrent int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

const defaultMaxUploadBytes = 10 * 1024 * 1024

var validProviders = map[string]bool{
	"gemini": true,
	"mock":   true,
}

var validBackends = map[string]bool{
	"postgres": true,
	"mongo":    true,
	"memory":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("VOICEPIPE_PORT", 8080),
			Env:            envString("VOICEPIPE_ENV", "development"),
			TempDir:        envString("VOICEPIPE_TEMP_DIR", os.TempDir()),
			MaxUploadBytes: int64(envInt("VOICEPIPE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		},
		DocStore: DocStoreConfig{
			Backend:        envString("DOCSTORE_BACKEND", "postgres"),
			HealthInterval: envDuration("DOCSTORE_HEALTH_INTERVAL", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGO_URI"),
			Database: envString("MONGO_DATABASE", "voicepipe"),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			StatusTTL: envDuration("STATUS_CACHE_TTL", 30*time.Minute),
		},
		AI: AIConfig{
			Provider:       os.Getenv("AI_PROVIDER"),
			CallTimeout:    envDurationSecs("AI_CALL_TIMEOUT_SECS", 60*time.Second),
			MaxAttempts:    envInt("AI_MAX_ATTEMPTS", 3),
			RetryBaseDelay: envDuration("AI_RETRY_BASE_DELAY", time.Second),
			MinInterval:    envDuration("AI_MIN_INTERVAL", 500*time.Millisecond),
			HealthInterval: envDuration("AI_HEALTH_INTERVAL", time.Minute),
			Gemini: GeminiConfig{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				Model:   envString("GEMINI_MODEL", "gemini-2.0-flash"),
				BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			},
		},
		Pipeline: PipelineConfig{
			MaxConcurrent: envInt("PIPELINE_MAX_CONCURRENT", 3),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("VOICEPIPE_MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}

	if !validBackends[c.DocStore.Backend] {
		return fmt.Errorf("DOCSTORE_BACKEND must be one of postgres, mongo, memory; got %q", c.DocStore.Backend)
	}
	if c.DocStore.Backend == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DOCSTORE_BACKEND is postgres")
	}
	if c.DocStore.Backend == "mongo" {
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required when DOCSTORE_BACKEND is mongo")
		}
		if !strings.HasPrefix(c.Mongo.URI, "mongodb://") && !strings.HasPrefix(c.Mongo.URI, "mongodb+srv://") {
			return fmt.Errorf("MONGO_URI must start with mongodb:// or mongodb+srv://, got %q", c.Mongo.URI)
		}
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of gemini, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if !strings.HasPrefix(c.AI.Gemini.BaseURL, "http://") && !strings.HasPrefix(c.AI.Gemini.BaseURL, "https://") {
		return fmt.Errorf("GEMINI_BASE_URL must start with http:// or https://, got %q", c.AI.Gemini.BaseURL)
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be at least 1, got %d", c.AI.MaxAttempts)
	}

	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("PIPELINE_MAX_CONCURRENT must be at least 1, got %d", c.Pipeline.MaxConcurrent)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
