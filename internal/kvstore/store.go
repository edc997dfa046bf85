// Package kvstore persists small JSON documents for the client: the session
// token and per-customer carts. It plays the role device storage plays on the
// phone.
package kvstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/medcare-vn/medcare-mobile/internal/config"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kvstore: not found")

// Store is a minimal byte-oriented key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Open picks the backend configured by STORE_BACKEND.
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("kvstore: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.StoreBackend {
	case "", "file":
		logger.Debug("using file store", "path", cfg.StoreFile)
		return NewFileStore(cfg.StoreFile)
	case "redis":
		client, err := BuildRedisClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.RedisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", cfg.StoreBackend)
	}
}

// BuildRedisClient connects to REDIS_ADDR and verifies the connection.
func BuildRedisClient(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*redis.Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, errors.New("kvstore: REDIS_ADDR is required for the redis backend")
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("kvstore: redis ping: %w", err)
	}
	return client, nil
}
