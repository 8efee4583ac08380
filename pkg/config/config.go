package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docuvault/docuvault/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// RBAC configuration
	RBAC RBACConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	MigrateOnStart  bool
}

// RedisConfig holds Redis configuration for the permission cache
type RedisConfig struct {
	Enabled    bool
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	// Provider selects the token verifier: "oidc" or "static"
	Provider string

	// OIDC settings
	IssuerURL string
	ClientID  string

	// Static settings (development only)
	StaticTokens string
}

// RBACConfig holds authorization settings
type RBACConfig struct {
	// CacheTTL bounds how long a cached permission decision may be served
	CacheTTL time.Duration

	// CatalogPath optionally points at a YAML file overriding the
	// built-in permission catalog seed
	CatalogPath string

	// CatalogCacheSize is the LRU size for permission name validation
	CatalogCacheSize int

	// BootstrapEnabled controls personal organization provisioning on login
	BootstrapEnabled bool

	// ReconcileSchedule is a cron expression for the consistency sweep,
	// empty disables the sweep
	ReconcileSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		RBAC:          loadRBACConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("DOCUVAULT_HOST", "0.0.0.0"),
		Port:            getEnv("DOCUVAULT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DOCUVAULT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DOCUVAULT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DOCUVAULT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DOCUVAULT_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("DOCUVAULT_MAX_BODY_BYTES", 1<<20),
		AllowedOrigins:  splitAndTrim(getEnv("DOCUVAULT_ALLOWED_ORIGINS", "*")),
		HealthPort:      getEnv("DOCUVAULT_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("DOCUVAULT_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("DOCUVAULT_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("DOCUVAULT_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DOCUVAULT_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DOCUVAULT_POSTGRES_TIMEOUT", 10*time.Second),
		MigrateOnStart:  getEnvBool("DOCUVAULT_POSTGRES_MIGRATE", true),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:    getEnvBool("DOCUVAULT_REDIS_ENABLED", true),
		URL:        getEnv("DOCUVAULT_REDIS_URL", "localhost:6379"),
		Password:   getEnv("DOCUVAULT_REDIS_PASSWORD", ""),
		DB:         getEnvInt("DOCUVAULT_REDIS_DB", 0),
		PoolSize:   getEnvInt("DOCUVAULT_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("DOCUVAULT_REDIS_MAX_RETRIES", 3),
	}
}

// loadAuthConfig loads token verification configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Provider:     getEnv("DOCUVAULT_AUTH_PROVIDER", "oidc"),
		IssuerURL:    getEnv("DOCUVAULT_OIDC_ISSUER", ""),
		ClientID:     getEnv("DOCUVAULT_OIDC_CLIENT_ID", ""),
		StaticTokens: getEnv("DOCUVAULT_AUTH_STATIC_TOKENS", ""),
	}
}

// loadRBACConfig loads authorization configuration from environment
func loadRBACConfig() RBACConfig {
	return RBACConfig{
		CacheTTL:          getEnvDuration("DOCUVAULT_RBAC_CACHE_TTL", 30*time.Second),
		CatalogPath:       getEnv("DOCUVAULT_RBAC_CATALOG_PATH", ""),
		CatalogCacheSize:  getEnvInt("DOCUVAULT_RBAC_CATALOG_CACHE_SIZE", 256),
		BootstrapEnabled:  getEnvBool("DOCUVAULT_RBAC_BOOTSTRAP_ENABLED", true),
		ReconcileSchedule: getEnv("DOCUVAULT_RBAC_RECONCILE_SCHEDULE", "@every 1h"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("DOCUVAULT_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("DOCUVAULT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("DOCUVAULT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("DOCUVAULT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("DOCUVAULT_OTEL_SERVICE_NAME", "docuvault-api"),
		OTelServiceVersion: getEnv("DOCUVAULT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("DOCUVAULT_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("postgres max connections must be positive")
	}

	// Validate auth config
	switch c.Auth.Provider {
	case "oidc":
		if c.Auth.IssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required for oidc auth provider")
		}
		if c.Auth.ClientID == "" {
			return fmt.Errorf("OIDC client ID is required for oidc auth provider")
		}
	case "static":
		if c.Auth.StaticTokens == "" {
			return fmt.Errorf("static tokens are required for static auth provider")
		}
	default:
		return fmt.Errorf("invalid auth provider: %s (must be oidc or static)", c.Auth.Provider)
	}

	// Validate RBAC config
	if c.RBAC.CacheTTL < 0 {
		return fmt.Errorf("RBAC cache TTL must not be negative")
	}
	if c.RBAC.CatalogCacheSize <= 0 {
		return fmt.Errorf("RBAC catalog cache size must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// splitAndTrim splits a comma-separated value into trimmed parts
func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
