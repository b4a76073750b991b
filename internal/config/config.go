package config

import (
	"os"
	"strconv"
	"strings"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string

	// Storage
	StoreDriver string
	DatabaseURL string
	TablePrefix string
	AutoMigrate bool

	// Authentication: JWKSURL takes precedence over JWTSecret
	JWKSURL   string
	JWTSecret string
	JWTIssuer string

	// Change feed fan-out across instances (optional)
	RedisAddr string
	RedisDB   int

	// Cover image object storage (optional)
	MinIO MinIOConfig

	// Background subtree walks
	PropagationWorkers   int
	PropagationQueueSize int

	// Per-caller token bucket
	RateLimitRPS   float64
	RateLimitBurst int

	LogDir      string
	LogMaxFiles int

	Debug bool
}

// MinIOConfig holds object storage settings for cover images
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // Base URL cover references are built from; defaults to the endpoint
}

// Enabled reports whether cover storage was configured
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	databaseURL := getEnv("DATABASE_URL", "")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),

		StoreDriver: getEnv("STORE_DRIVER", getDefaultStoreDriver(databaseURL)),
		DatabaseURL: databaseURL,
		TablePrefix: getTablePrefix(env),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", env != "prod"),

		JWKSURL:   getEnv("JWKS_URL", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "covers"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			PublicURL: getEnv("MINIO_PUBLIC_URL", ""),
		},

		PropagationWorkers:   getEnvInt("PROPAGATION_WORKERS", 4),
		PropagationQueueSize: getEnvInt("PROPAGATION_QUEUE_SIZE", 1024),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 5),

		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultStoreDriver picks postgres whenever a database URL is configured
func getDefaultStoreDriver(databaseURL string) string {
	if databaseURL != "" {
		return StorePostgres
	}
	return StoreMemory
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix, ok := os.LookupEnv("TABLE_PREFIX"); ok {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
