package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

var tracer = otel.Tracer("fieldsafe/storage/postgres")

// Store implements storage.Store using PostgreSQL + S3 + Redis
type Store struct {
	db           *sql.DB
	imageClient  *ImageClient
	sessionCache *SessionCache
	config       storage.Config
	metrics      *observability.Metrics
}

// SetMetrics attaches the metrics sink for cache hit/miss counters.
// Optional; a nil sink disables instrumentation.
func (s *Store) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Store must satisfy the full persistence surface.
var _ storage.Store = (*Store)(nil)

// NewStore creates a new PostgreSQL-backed store
func NewStore(config storage.Config) (*Store, error) {
	// Connect to PostgreSQL
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), config.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	var imageClient *ImageClient
	if config.S3Endpoint != "" || config.S3Bucket != "" {
		imageClient, err = NewImageClient(config)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create image client: %w", err)
		}
	}

	var sessionCache *SessionCache
	if config.CacheEnabled && config.RedisURL != "" {
		sessionCache, err = NewSessionCache(config)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create session cache: %w", err)
		}
	}

	return &Store{
		db:           db,
		imageClient:  imageClient,
		sessionCache: sessionCache,
		config:       config,
	}, nil
}

// NewStoreWithDB wraps an existing database handle. Used by tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db, config: storage.DefaultConfig()}
}

// Images returns the S3 image client, or nil when object storage is not
// configured.
func (s *Store) Images() *ImageClient {
	return s.imageClient
}

// Sessions returns the Redis session cache, or nil when caching is disabled.
func (s *Store) Sessions() *SessionCache {
	return s.sessionCache
}

// DB exposes the underlying handle for pool-stats gauges.
func (s *Store) DB() *sql.DB {
	return s.db
}

// HealthCheck verifies connectivity to every configured backend
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unhealthy: %w", err)
	}
	if s.imageClient != nil {
		if err := s.imageClient.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if s.sessionCache != nil {
		if err := s.sessionCache.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

// Close closes all backend connections
func (s *Store) Close() error {
	var errs []error
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("postgres close error: %w", err))
	}
	if s.sessionCache != nil {
		if err := s.sessionCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("store close errors: %v", errs)
	}
	return nil
}

// isUniqueViolation reports whether err is a postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a postgres FK constraint error.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// nullInt64 converts an optional id for query arguments.
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// int64Ptr converts a scanned nullable id back to a pointer.
func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// nullTime converts an optional timestamp for query arguments.
func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

// timePtr converts a scanned nullable timestamp back to a pointer.
func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// notFound is a shorthand for the common scan-miss branch.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(format, args...)
	}
	return err
}
