package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bjbyte/backend/internal/domain"
)

const ratesKey = "bjbyte:exchange:rates:COP"

type RedisRateCache struct {
	client *redis.Client
	key    string
}

func NewRedisRateCache(addr string, password string, db int) *RedisRateCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRateCache{client: client, key: ratesKey}
}

func (c *RedisRateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRateCache) Close() error {
	return c.client.Close()
}

func (c *RedisRateCache) GetRates(ctx context.Context) (*domain.ExchangeRates, bool, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rates, err := decodeRates(val)
	if err != nil {
		return nil, false, err
	}
	return rates, true, nil
}

func (c *RedisRateCache) SetRates(ctx context.Context, rates domain.ExchangeRates, ttl time.Duration) error {
	payload, err := encodeRates(rates)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, ttl).Err()
}

func encodeRates(rates domain.ExchangeRates) ([]byte, error) {
	return json.Marshal(rates)
}

func decodeRates(payload []byte) (*domain.ExchangeRates, error) {
	var rates domain.ExchangeRates
	if err := json.Unmarshal(payload, &rates); err != nil {
		return nil, err
	}
	return &rates, nil
}
