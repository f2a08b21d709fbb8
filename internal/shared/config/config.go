package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	EventStore  EventStoreConfig
	Auth        AuthConfig
	Engine      EngineConfig
	InsurerSync InsurerSyncConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for the append-only event store
// backing the event bus and the claim audit trail.
type EventStoreConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// EngineConfig holds tunables for the coverage matching engine.
type EngineConfig struct {
	// ExtractionConfidenceThreshold is the minimum per-field confidence a
	// raw extraction field must carry before normalization accepts it.
	ExtractionConfidenceThreshold float64
	// MinMatchScore is the score below which a match is flagged
	// low-confidence. Such matches are kept, not dropped.
	MinMatchScore float64
	// MaxPlanClaims caps how many claims one plan may propose.
	MaxPlanClaims int
}

// InsurerSyncConfig holds configuration for the legacy insurer core adapter.
type InsurerSyncConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	PollInterval time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "claimwise"),
			Password: getEnv("DB_PASSWORD", "claimwise"),
			Database: getEnv("DB_NAME", "claimwise"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Engine: EngineConfig{
			ExtractionConfidenceThreshold: getEnvFloat("ENGINE_EXTRACTION_CONFIDENCE_THRESHOLD", 0.6),
			MinMatchScore:                 getEnvFloat("ENGINE_MIN_MATCH_SCORE", 0.5),
			MaxPlanClaims:                 getEnvInt("ENGINE_MAX_PLAN_CLAIMS", 10),
		},
		InsurerSync: InsurerSyncConfig{
			Enabled:      getEnvBool("INSURER_SYNC_ENABLED", false),
			Host:         getEnv("INSURER_SYNC_HOST", "localhost"),
			Port:         getEnvInt("INSURER_SYNC_PORT", 1433),
			User:         getEnv("INSURER_SYNC_USER", ""),
			Password:     getEnv("INSURER_SYNC_PASSWORD", ""),
			Database:     getEnv("INSURER_SYNC_DB", "claims"),
			SSLMode:      getEnv("INSURER_SYNC_SSLMODE", "disable"),
			PollInterval: getEnvDuration("INSURER_SYNC_POLL_INTERVAL", 30*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
