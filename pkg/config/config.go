package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Auth configuration
	Auth AuthConfig

	// SSO configuration
	SSO SSOConfig

	// Export configuration
	Export ExportConfig

	// Detection configuration
	Detect DetectConfig

	// Notification configuration
	Notify NotifyConfig

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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds session and credential settings
type AuthConfig struct {
	SessionTTL    time.Duration
	CookieName    string
	CookieSecure  bool
	BcryptCost    int
	SignatureLock time.Duration
}

// SSOConfig holds OIDC single sign-on settings
type SSOConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// ExportConfig holds SharePoint export settings
type ExportConfig struct {
	Enabled     bool
	BaseURL     string
	DriveID     string
	FolderPath  string
	AccessToken string
	Timeout     time.Duration

	// Retry sweep for failed exports
	RetrySchedule string
	MaxAttempts   int
}

// DetectConfig holds component-detection model server settings
type DetectConfig struct {
	Enabled  bool
	BaseURL  string
	Timeout  time.Duration
	MinScore float64
}

// NotifyConfig holds push notification dispatch settings
type NotifyConfig struct {
	Provider   string // "webhook", "log", or "noop"
	WebhookURL string
	Timeout    time.Duration
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
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		SSO:           loadSSOConfig(),
		Export:        loadExportConfig(),
		Detect:        loadDetectConfig(),
		Notify:        loadNotifyConfig(),
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
		Host:            getEnv("FIELDSAFE_HOST", "0.0.0.0"),
		Port:            getEnv("FIELDSAFE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FIELDSAFE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FIELDSAFE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FIELDSAFE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FIELDSAFE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FIELDSAFE_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("FIELDSAFE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("FIELDSAFE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if idleConns := getEnvInt("FIELDSAFE_POSTGRES_IDLE_CONNS", 0); idleConns > 0 {
		cfg.PostgresIdleConns = idleConns
	}
	if timeout := getEnvDuration("FIELDSAFE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config (inspection images)
	if s3Endpoint := getEnv("FIELDSAFE_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("FIELDSAFE_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("FIELDSAFE_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("FIELDSAFE_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("FIELDSAFE_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("FIELDSAFE_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	// Redis config (session cache)
	if redisURL := getEnv("FIELDSAFE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("FIELDSAFE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("FIELDSAFE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("FIELDSAFE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	if cacheEnabled := getEnv("FIELDSAFE_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if permCacheSize := getEnvInt("FIELDSAFE_PERMISSION_CACHE_SIZE", 0); permCacheSize > 0 {
		cfg.PermissionCacheSize = permCacheSize
	}

	return cfg
}

// loadAuthConfig loads session configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SessionTTL:    getEnvDuration("FIELDSAFE_SESSION_TTL", 12*time.Hour),
		CookieName:    getEnv("FIELDSAFE_SESSION_COOKIE", "fieldsafe_session"),
		CookieSecure:  getEnvBool("FIELDSAFE_SESSION_SECURE", true),
		BcryptCost:    getEnvInt("FIELDSAFE_BCRYPT_COST", 10),
		SignatureLock: getEnvDuration("FIELDSAFE_SIGNATURE_LOCK", 5*time.Minute),
	}
}

// loadSSOConfig loads OIDC configuration from environment
func loadSSOConfig() SSOConfig {
	return SSOConfig{
		Enabled:      getEnvBool("FIELDSAFE_SSO_ENABLED", false),
		IssuerURL:    getEnv("FIELDSAFE_SSO_ISSUER_URL", ""),
		ClientID:     getEnv("FIELDSAFE_SSO_CLIENT_ID", ""),
		ClientSecret: getEnv("FIELDSAFE_SSO_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("FIELDSAFE_SSO_REDIRECT_URL", ""),
	}
}

// loadExportConfig loads SharePoint export configuration from environment
func loadExportConfig() ExportConfig {
	return ExportConfig{
		Enabled:       getEnvBool("FIELDSAFE_EXPORT_ENABLED", false),
		BaseURL:       getEnv("FIELDSAFE_EXPORT_BASE_URL", ""),
		DriveID:       getEnv("FIELDSAFE_EXPORT_DRIVE_ID", ""),
		FolderPath:    getEnv("FIELDSAFE_EXPORT_FOLDER", "inspections"),
		AccessToken:   getEnv("FIELDSAFE_EXPORT_TOKEN", ""),
		Timeout:       getEnvDuration("FIELDSAFE_EXPORT_TIMEOUT", 30*time.Second),
		RetrySchedule: getEnv("FIELDSAFE_EXPORT_RETRY_SCHEDULE", "@every 15m"),
		MaxAttempts:   getEnvInt("FIELDSAFE_EXPORT_MAX_ATTEMPTS", 5),
	}
}

// loadDetectConfig loads model server configuration from environment
func loadDetectConfig() DetectConfig {
	return DetectConfig{
		Enabled:  getEnvBool("FIELDSAFE_DETECT_ENABLED", false),
		BaseURL:  getEnv("FIELDSAFE_DETECT_URL", ""),
		Timeout:  getEnvDuration("FIELDSAFE_DETECT_TIMEOUT", 20*time.Second),
		MinScore: getEnvFloat("FIELDSAFE_DETECT_MIN_SCORE", 0.25),
	}
}

// loadNotifyConfig loads notification dispatch configuration from environment
func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		Provider:   getEnv("FIELDSAFE_NOTIFY_PROVIDER", "log"),
		WebhookURL: getEnv("FIELDSAFE_NOTIFY_WEBHOOK_URL", ""),
		Timeout:    getEnvDuration("FIELDSAFE_NOTIFY_TIMEOUT", 10*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("FIELDSAFE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FIELDSAFE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FIELDSAFE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FIELDSAFE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FIELDSAFE_OTEL_SERVICE_NAME", "fieldsafe"),
		OTelServiceVersion: getEnv("FIELDSAFE_OTEL_SERVICE_VERSION", observability.Version),
		OTelInsecure:       getEnvBool("FIELDSAFE_OTEL_INSECURE", true),
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

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate auth config
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}

	// Validate SSO config
	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" {
			return fmt.Errorf("SSO issuer URL is required when SSO is enabled")
		}
		if c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("SSO client credentials are required when SSO is enabled")
		}
		if c.SSO.RedirectURL == "" {
			return fmt.Errorf("SSO redirect URL is required when SSO is enabled")
		}
	}

	// Validate export config
	if c.Export.Enabled {
		if c.Export.BaseURL == "" || c.Export.DriveID == "" {
			return fmt.Errorf("export base URL and drive ID are required when export is enabled")
		}
		if c.Export.MaxAttempts < 1 {
			return fmt.Errorf("export max attempts must be at least 1")
		}
	}

	// Validate detection config
	if c.Detect.Enabled && c.Detect.BaseURL == "" {
		return fmt.Errorf("detection base URL is required when detection is enabled")
	}

	// Validate notification config
	switch c.Notify.Provider {
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("webhook URL is required for the webhook notification provider")
		}
	case "log", "noop":
	default:
		return fmt.Errorf("invalid notification provider: %s (must be webhook, log, or noop)", c.Notify.Provider)
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

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
