// Package cache хранит в Redis идентификаторы уже обработанных событий
// платежного провайдера, чтобы повторная доставка не доходила до хранилища.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
)

const eventKeyPrefix = "webhook:event:"

// Cache - кэш обработанных событий.
type Cache struct {
	Db  *redis.Client
	ttl time.Duration
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ttl := cfg.EventTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{Db: db, ttl: ttl}, nil
}

// Seen сообщает, было ли событие eventID уже успешно обработано.
func (c *Cache) Seen(ctx context.Context, eventID string) (bool, error) {
	const op = "cache.Seen"
	_, err := c.Db.Get(ctx, eventKeyPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// MarkProcessed запоминает eventID на время TTL.
func (c *Cache) MarkProcessed(ctx context.Context, eventID string) error {
	const op = "cache.MarkProcessed"
	if err := c.Db.Set(ctx, eventKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (c *Cache) Close() error {
	return c.Db.Close()
}
