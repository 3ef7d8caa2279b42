package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker guarda os jti de tokens encerrados por logout até expirarem.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

const revokedKeyPrefix = "revoked_token:"

type RedisRevoker struct {
	client *redis.Client
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client}
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NoopRevoker é usado quando não há Redis: logout fica só no cliente.
type NoopRevoker struct{}

func (NoopRevoker) Revoke(context.Context, string, time.Time) error { return nil }
func (NoopRevoker) IsRevoked(context.Context, string) (bool, error) { return false, nil }
