package redis

import (
	"context"
	"fmt"

	"card-escrow-ledger/config"
	"card-escrow-ledger/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key prefixes. Every key the service writes lives under keyspace.
const (
	keyspace        = "cel:"
	noncePrefix     = keyspace + "nonce:"
	rateLimitPrefix = keyspace + "ratelimit:"
)

// Options maps cfg onto client options. A zero OpTimeout keeps the go-redis
// defaults.
func Options(cfg config.RedisConfig) *goredis.Options {
	opts := &goredis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: logger.ServiceName,
	}
	if cfg.OpTimeout > 0 {
		opts.DialTimeout = cfg.OpTimeout
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}
	return opts
}

// NewClient connects to the nonce and rate limit store. The client is closed
// again when the first ping fails.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(Options(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Dur("op_timeout", cfg.OpTimeout).
		Str("keyspace", keyspace).
		Msg("Redis connection established")

	return client, nil
}
