// Package exchange converts COP amounts to foreign currencies using rates fetched from a public
// API. Rates are refreshed in the background and shared through a RateCache.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bjbyte/backend/internal/cache"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/logger"
)

const (
	DefaultURL     = "https://open.er-api.com/v6/latest/COP"
	defaultTimeout = 5 * time.Second
	defaultRefresh = time.Hour
)

// Currencies tracked from every response.
var Currencies = []string{"USD", "EUR"}

// DefaultRates apply until the first successful fetch.
var DefaultRates = map[string]domain.Money{
	"USD": decimal.RequireFromString("0.00025"),
	"EUR": decimal.RequireFromString("0.00023"),
}

var ErrUnexpectedResponse = errors.New("unexpected exchange rate response")

type Config struct {
	URL     string
	Timeout time.Duration
	Refresh time.Duration
}

type Status struct {
	Rates         map[string]domain.Money `json:"rates"`
	UpdatedAt     *time.Time              `json:"updated_at,omitempty"`
	UsingDefaults bool                    `json:"using_defaults"`
}

type Service struct {
	url     string
	refresh time.Duration
	client  *http.Client
	cache   cache.RateCache
	log     *logger.Logger
	now     func() time.Time

	mu        sync.RWMutex
	rates     map[string]domain.Money
	updatedAt time.Time
}

func New(cfg Config, rateCache cache.RateCache) *Service {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = defaultRefresh
	}
	if rateCache == nil {
		rateCache = cache.NoopRateCache{}
	}
	return &Service{
		url:     cfg.URL,
		refresh: cfg.Refresh,
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   rateCache,
		log:     logger.Default().WithComponent("exchange"),
		now:     time.Now,
		rates:   maps.Clone(DefaultRates),
	}
}

type apiResponse struct {
	Result string                     `json:"result"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// Refresh fetches the latest rates. On failure the current rates stay in place.
func (s *Service) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if body.Result != "" && body.Result != "success" {
		return fmt.Errorf("%w: result %q", ErrUnexpectedResponse, body.Result)
	}

	fetched := make(map[string]domain.Money, len(Currencies))
	for _, currency := range Currencies {
		rate, ok := body.Rates[currency]
		if !ok || !rate.IsPositive() {
			s.log.Warnw("rate missing from response", "currency", currency)
			continue
		}
		fetched[currency] = rate
	}
	if len(fetched) == 0 {
		return fmt.Errorf("%w: no tracked currency", ErrUnexpectedResponse)
	}

	snapshot := s.apply(fetched, s.now().UTC())
	if err := s.cache.SetRates(ctx, snapshot, 2*s.refresh); err != nil {
		s.log.Warnw("rate cache write failed", "error", err)
	}
	s.log.Infow("exchange rates updated", "rates", snapshot.Rates)
	return nil
}

// LoadCached adopts rates another instance stored in the cache. It reports whether any were found.
func (s *Service) LoadCached(ctx context.Context) bool {
	cached, ok, err := s.cache.GetRates(ctx)
	if err != nil {
		s.log.Warnw("rate cache read failed", "error", err)
		return false
	}
	if !ok || len(cached.Rates) == 0 {
		return false
	}
	s.apply(cached.Rates, cached.UpdatedAt)
	return true
}

// Run refreshes immediately unless the cache already holds rates, then on every tick until ctx
// is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.LoadCached(ctx) {
		if err := s.Refresh(ctx); err != nil {
			s.log.Warnw("initial rate refresh failed", "error", err)
		}
	}

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.log.Warnw("rate refresh failed", "error", err)
			}
		}
	}
}

func (s *Service) apply(fetched map[string]domain.Money, at time.Time) domain.ExchangeRates {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.rates, fetched)
	s.updatedAt = at
	return domain.ExchangeRates{Rates: maps.Clone(s.rates), UpdatedAt: at}
}

// Rate returns the value of one COP in currency.
func (s *Service) Rate(currency string) (domain.Money, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.rates[strings.ToUpper(strings.TrimSpace(currency))]
	return rate, ok
}

// ConvertFromCOP returns zero for an unknown currency.
func (s *Service) ConvertFromCOP(amount domain.Money, currency string) domain.Money {
	rate, ok := s.Rate(currency)
	if !ok {
		return decimal.Zero
	}
	return domain.RoundMoney(amount.Mul(rate))
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := Status{Rates: maps.Clone(s.rates), UsingDefaults: s.updatedAt.IsZero()}
	if !s.updatedAt.IsZero() {
		at := s.updatedAt
		status.UpdatedAt = &at
	}
	return status
}
