package cache

import (
	"context"
	"maps"
	"sync"
	"time"

	"bjbyte/backend/internal/domain"
)

// RateCache stores the last fetched exchange rates.
type RateCache interface {
	GetRates(ctx context.Context) (*domain.ExchangeRates, bool, error)
	SetRates(ctx context.Context, rates domain.ExchangeRates, ttl time.Duration) error
}

type NoopRateCache struct{}

func (NoopRateCache) GetRates(_ context.Context) (*domain.ExchangeRates, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) SetRates(_ context.Context, _ domain.ExchangeRates, _ time.Duration) error {
	return nil
}

// MemoryRateCache keeps rates in process. Used when Redis is not configured.
type MemoryRateCache struct {
	mu        sync.RWMutex
	rates     *domain.ExchangeRates
	expiresAt time.Time
	now       func() time.Time
}

func NewMemoryRateCache() *MemoryRateCache {
	return &MemoryRateCache{now: time.Now}
}

func (c *MemoryRateCache) GetRates(_ context.Context) (*domain.ExchangeRates, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rates == nil {
		return nil, false, nil
	}
	if !c.expiresAt.IsZero() && c.now().After(c.expiresAt) {
		return nil, false, nil
	}
	snapshot := *c.rates
	snapshot.Rates = maps.Clone(c.rates.Rates)
	return &snapshot, true, nil
}

func (c *MemoryRateCache) SetRates(_ context.Context, rates domain.ExchangeRates, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rates.Rates = maps.Clone(rates.Rates)
	c.rates = &rates
	c.expiresAt = time.Time{}
	if ttl > 0 {
		c.expiresAt = c.now().Add(ttl)
	}
	return nil
}
