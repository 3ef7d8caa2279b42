package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectRedis abre o cliente e testa a conexão.
func ConnectRedis(ctx context.Context, addr, password string, db int, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("conexão com o redis falhou: %w", err)
	}

	log.Info("redis connected", zap.String("addr", addr))
	return client, nil
}
