// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	FIELDSAFE_HOST="0.0.0.0"
//	FIELDSAFE_PORT="8080"
//	FIELDSAFE_HEALTH_PORT="9090"
//	FIELDSAFE_READ_TIMEOUT="30s"
//	FIELDSAFE_WRITE_TIMEOUT="30s"
//
// Storage settings:
//
//	FIELDSAFE_POSTGRES_URL="postgres://localhost/fieldsafe"
//	FIELDSAFE_POSTGRES_MAX_CONNS="20"
//	FIELDSAFE_S3_BUCKET="inspection-images"
//	FIELDSAFE_S3_REGION="us-east-1"
//	FIELDSAFE_REDIS_URL="redis://localhost:6379"
//
// Auth and SSO settings:
//
//	FIELDSAFE_SESSION_TTL="12h"
//	FIELDSAFE_SSO_ENABLED="true"
//	FIELDSAFE_SSO_ISSUER_URL="https://login.microsoftonline.com/<tenant>/v2.0"
//
// Export and detection settings:
//
//	FIELDSAFE_EXPORT_ENABLED="true"
//	FIELDSAFE_EXPORT_RETRY_SCHEDULE="@every 15m"
//	FIELDSAFE_DETECT_URL="http://model-server:8000"
//
// Observability settings:
//
//	FIELDSAFE_LOG_LEVEL="info"  # debug, info, warn, error
//	FIELDSAFE_METRICS_ENABLED="true"
//	FIELDSAFE_OTEL_ENABLED="true"
//	FIELDSAFE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
