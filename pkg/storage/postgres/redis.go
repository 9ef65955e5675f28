package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// SessionCache is a Redis read-through cache in front of the sessions table.
// A miss or a Redis outage falls back to postgres; the cache is never the
// source of truth.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a new Redis-backed session cache
func NewSessionCache(config storage.Config) (*SessionCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := config.SessionCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &SessionCache{client: client, ttl: ttl}, nil
}

// NewSessionCacheWithClient wraps an existing client. Used by tests.
func NewSessionCacheWithClient(client *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(tokenHash string) string {
	return fmt.Sprintf("session:%s", tokenHash)
}

// Get returns (nil, nil) on a cache miss.
func (c *SessionCache) Get(ctx context.Context, tokenHash string) (*storage.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session storage.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		// Corrupt entry; drop it and treat as a miss
		c.client.Del(ctx, sessionKey(tokenHash))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.TokenHash = tokenHash
	return &session, nil
}

// Set caches a session. The entry TTL never exceeds the session expiry.
func (c *SessionCache) Set(ctx context.Context, session *storage.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := c.ttl
	if remaining := time.Until(session.ExpiresAt); remaining < ttl {
		if remaining <= 0 {
			return nil
		}
		ttl = remaining
	}
	return c.client.Set(ctx, sessionKey(session.TokenHash), data, ttl).Err()
}

// Invalidate removes a session from the cache.
func (c *SessionCache) Invalidate(ctx context.Context, tokenHash string) error {
	return c.client.Del(ctx, sessionKey(tokenHash)).Err()
}

// Ping checks Redis connectivity
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *SessionCache) Close() error {
	return c.client.Close()
}

// PoolStats returns connection pool statistics
func (c *SessionCache) PoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}
