package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage tiers (disk, blob, cache) and write policy
	Storage StorageConfig

	// Database configuration, used by the postgres blob backend
	Database DatabaseConfig

	// Upload limits
	Upload UploadConfig

	// Validation policy for ids and membership lists
	Validation ValidationConfig

	// Background reconciliation
	Sync SyncConfig

	// Rate limiting for mutating routes
	RateLimit RateLimitConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects and configures the storage tiers
type StorageConfig struct {
	// Hosted disables the local disk tier, as in a serverless deployment
	Hosted       bool
	DataDir      string
	DiskBackend  string // "file" or "bolt"
	// WatchDataDir refreshes the cache when collection files change on disk
	WatchDataDir bool
	BlobBackend  string // "memory", "http", "azure", "postgres" or "none"
	CacheBackend string // "memory" or "redis"

	BlobURL          string
	BlobPublicURL    string
	BlobToken        string
	BlobKeepVersions int

	AzureAccountURL       string
	AzureConnectionString string
	AzureContainer        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	RetryAttempts  int
	RetryBackoff   time.Duration
	RetryMaxWait   time.Duration
	VerifyWrites   bool
	RequestTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	MigrationsPath string
}

// UploadConfig holds upload limits
type UploadConfig struct {
	MaxUploadSize  int64 // in bytes
	MaxScreenshots int
}

// ValidationConfig holds validation policies
type ValidationConfig struct {
	IDPolicy string // "lenient" or "strict"
}

// SyncConfig holds the reconciliation schedule
type SyncConfig struct {
	Enabled  bool
	Schedule string // cron spec, e.g. "@every 1m"
	Workers  int
}

// RateLimitConfig holds per-client limits for write routes
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
	File   string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Hosted:       getBoolEnv("HOSTED", false),
			DataDir:      getEnv("DATA_DIR", "./data"),
			DiskBackend:  getEnv("DISK_BACKEND", "file"),
			WatchDataDir: getBoolEnv("WATCH_DATA_DIR", true),
			BlobBackend:  getEnv("BLOB_BACKEND", "memory"),
			CacheBackend: getEnv("CACHE_BACKEND", "memory"),

			BlobURL:          getEnv("BLOB_URL", ""),
			BlobPublicURL:    getEnv("BLOB_PUBLIC_URL", ""),
			BlobToken:        getEnv("BLOB_READ_WRITE_TOKEN", ""),
			BlobKeepVersions: getIntEnv("BLOB_KEEP_VERSIONS", 3),

			AzureAccountURL:       getEnv("AZURE_STORAGE_ACCOUNT_URL", ""),
			AzureConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
			AzureContainer:        getEnv("AZURE_STORAGE_CONTAINER", "appgallery"),

			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getIntEnv("REDIS_DB", 0),
			CacheTTL:      getDurationEnv("CACHE_TTL", 24*time.Hour),

			RetryAttempts:  getIntEnv("STORAGE_RETRY_ATTEMPTS", 3),
			RetryBackoff:   getDurationEnv("STORAGE_RETRY_BACKOFF", 200*time.Millisecond),
			RetryMaxWait:   getDurationEnv("STORAGE_RETRY_MAX_WAIT", 5*time.Second),
			VerifyWrites:   getBoolEnv("STORAGE_VERIFY_WRITES", true),
			RequestTimeout: getDurationEnv("STORAGE_REQUEST_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			Name:           getEnv("DB_NAME", "appgallery"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:    getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Upload: UploadConfig{
			MaxUploadSize:  getInt64Env("MAX_UPLOAD_SIZE", 10*1024*1024), // 10MB
			MaxScreenshots: getIntEnv("MAX_SCREENSHOTS", 10),
		},
		Validation: ValidationConfig{
			IDPolicy: getEnv("ID_VALIDATION", "lenient"),
		},
		Sync: SyncConfig{
			Enabled:  getBoolEnv("SYNC_ENABLED", true),
			Schedule: getEnv("SYNC_SCHEDULE", "@every 1m"),
			Workers:  getIntEnv("SYNC_WORKERS", 4),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getIntEnv("RATE_LIMIT_RPS", 20),
			Burst:             getIntEnv("RATE_LIMIT_BURST", 40),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.DiskBackend {
	case "file", "bolt":
	default:
		return fmt.Errorf("DISK_BACKEND must be one of: file, bolt")
	}
	switch c.Storage.BlobBackend {
	case "memory", "none":
	case "http":
		if c.Storage.BlobURL == "" {
			return fmt.Errorf("BLOB_URL is required for the http blob backend")
		}
	case "azure":
		if c.Storage.AzureAccountURL == "" && c.Storage.AzureConnectionString == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT_URL or AZURE_STORAGE_CONNECTION_STRING is required for the azure blob backend")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres blob backend")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of: memory, http, azure, postgres, none")
	}
	switch c.Storage.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of: memory, redis")
	}
	if c.Storage.Hosted && c.Storage.BlobBackend == "none" {
		return fmt.Errorf("HOSTED mode needs a blob backend")
	}
	if c.Storage.RetryAttempts < 1 {
		return fmt.Errorf("STORAGE_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Validation.IDPolicy != "lenient" && c.Validation.IDPolicy != "strict" {
		return fmt.Errorf("ID_VALIDATION must be one of: lenient, strict")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
