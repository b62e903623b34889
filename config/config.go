package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Pipeline PipelineConfig
	Lock     LockConfig
	Publish  PublishConfig
	Firebase FirebaseConfig
	App      AppConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

type DatabaseConfig struct {
	DSN         string
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	AutoMigrate bool
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	ArtifactTTL time.Duration
}

type PipelineConfig struct {
	AnthropicAPIKey string
	Model           string
	MaxTokens       int
	Budget          time.Duration
	RequestsPerMin  int
}

type LockConfig struct {
	// FailOpen trades mutual exclusion for availability when the lock
	// store itself errors. Off unless explicitly enabled.
	FailOpen       bool
	StaleAfter     time.Duration
	ReaperEnabled  bool
	ReaperSchedule string
}

type PublishConfig struct {
	Bucket  string
	Region  string
	BaseURL string
}

type FirebaseConfig struct {
	CredentialsPath string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: splitEnv("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			DSN:         getEnv("DB_DSN", ""),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvAsInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Name:        getEnv("DB_NAME", "siteforge"),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			ArtifactTTL: getEnvAsDuration("ARTIFACT_CACHE_TTL", 24*time.Hour),
		},
		Pipeline: PipelineConfig{
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Model:           getEnv("PIPELINE_MODEL", "claude-sonnet-4-5-20250929"),
			MaxTokens:       getEnvAsInt("PIPELINE_MAX_TOKENS", 16384),
			Budget:          getEnvAsDuration("PIPELINE_BUDGET", 60*time.Second),
			RequestsPerMin:  getEnvAsInt("PIPELINE_REQUESTS_PER_MIN", 30),
		},
		Lock: LockConfig{
			FailOpen:       getEnvAsBool("LOCK_FAIL_OPEN", false),
			StaleAfter:     getEnvAsDuration("LOCK_STALE_AFTER", 10*time.Minute),
			ReaperEnabled:  getEnvAsBool("LOCK_REAPER_ENABLED", true),
			ReaperSchedule: getEnv("LOCK_REAPER_SCHEDULE", "0 * * * * *"),
		},
		Publish: PublishConfig{
			Bucket:  getEnv("PUBLISH_BUCKET", ""),
			Region:  getEnv("PUBLISH_REGION", "us-east-1"),
			BaseURL: getEnv("PUBLISH_BASE_URL", ""),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("DB_DSN or DB_HOST is required")
	}

	if c.Pipeline.Budget <= 0 {
		return fmt.Errorf("PIPELINE_BUDGET must be positive")
	}

	if c.Lock.StaleAfter <= 0 {
		return fmt.Errorf("LOCK_STALE_AFTER must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func splitEnv(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
