package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ConfigurationError marks a missing or malformed required setting. It is
// fatal at startup; there is nothing to retry.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// Config holds all service configuration
type Config struct {
	Server    ServerConfig
	Warehouse WarehouseConfig
	Log       LogConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WarehouseConfig carries the connection settings for the SQL warehouse
// holding the pixels table. Token, hostname, HTTP path, and table are all
// required; the warehouse id is derived from the HTTP path.
type WarehouseConfig struct {
	Token           string
	ServerHostname  string
	HTTPPath        string
	PixelsTable     string
	MaxResultChunks int
}

// WarehouseID returns the warehouse id embedded in the HTTP path
// (/sql/1.0/warehouses/<id>).
func (w WarehouseConfig) WarehouseID() string {
	parts := strings.Split(w.HTTPPath, "/")
	if len(parts) < 5 {
		return ""
	}
	return parts[4]
}

type LogConfig struct {
	Level  string
	Format string
}

type CacheConfig struct {
	Enabled bool
	Type    string
	TTL     time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// DatabaseConfig configures the optional audit database. The connector is
// fully functional without it.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from .env (if present) and the environment
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 60*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Warehouse: WarehouseConfig{
			Token:           os.Getenv("DATABRICKS_TOKEN"),
			ServerHostname:  os.Getenv("DATABRICKS_SERVER_HOSTNAME"),
			HTTPPath:        os.Getenv("DATABRICKS_HTTP_PATH"),
			PixelsTable:     os.Getenv("PIXELS_TABLE"),
			MaxResultChunks: getEnvInt("MAX_RESULT_CHUNKS", 1000),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("CACHE_ENABLED", true),
			Type:    getEnv("CACHE_TYPE", "memory"),
			TTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvBool("AUDIT_DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnv("DB_NAME", "pixels_connector"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	return cfg, nil
}

// Validate checks that all required warehouse settings are present
func (c *Config) Validate() error {
	w := c.Warehouse
	switch {
	case w.Token == "":
		return &ConfigurationError{Setting: "DATABRICKS_TOKEN", Reason: "personal access token is required"}
	case w.ServerHostname == "":
		return &ConfigurationError{Setting: "DATABRICKS_SERVER_HOSTNAME", Reason: "server hostname is required"}
	case w.HTTPPath == "":
		return &ConfigurationError{Setting: "DATABRICKS_HTTP_PATH", Reason: "warehouse HTTP path is required"}
	case w.PixelsTable == "":
		return &ConfigurationError{Setting: "PIXELS_TABLE", Reason: "pixels table name is required"}
	case w.WarehouseID() == "":
		return &ConfigurationError{Setting: "DATABRICKS_HTTP_PATH", Reason: "warehouse id not found in HTTP path"}
	}
	if c.Warehouse.MaxResultChunks <= 0 {
		return &ConfigurationError{Setting: "MAX_RESULT_CHUNKS", Reason: "must be positive"}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
