package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-escrow-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// NonceStore implements ports.NonceStore using Redis SET NX. A nonce is
// scoped to the identity that signed it.
type NonceStore struct {
	client goredis.Cmdable
}

// NewNonceStore creates a new Redis-backed nonce store.
func NewNonceStore(client goredis.Cmdable) *NonceStore {
	return &NonceStore{client: client}
}

// CheckAndSet records nonce for identity. It returns false when the pair was
// already seen within ttl.
func (s *NonceStore) CheckAndSet(ctx context.Context, identity domain.Identity, nonce string, ttl time.Duration) (bool, error) {
	key := noncePrefix + identity.String() + ":" + nonce
	result, err := s.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis nonce check: %w", err)
	}
	return result == "OK", nil
}
