package main

import (
	"context"
	"testing"

	"bjbyte/backend/internal/cache"
	"bjbyte/backend/internal/config"
	"bjbyte/backend/internal/logger"
	"bjbyte/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short", AllowedOrigin: "http://127.0.0.1:3000"}); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret}); err == nil {
		t.Fatalf("expected empty allowed origin to be rejected")
	}
	err := validateSecurityConfig(config.Config{
		AuthSecret:    strongSecret,
		AllowedOrigin: "http://127.0.0.1:3000",
		SMTPHost:      "smtp.example.com",
		SMTPFrom:      "taller",
	})
	if err == nil {
		t.Fatalf("expected invalid SMTP_FROM to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, AllowedOrigin: "http://127.0.0.1:3000"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	logger.SetDefault(logger.NewNop())

	repo, closeFn, err := openRepository(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("memory repository should not need closing")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
}

func TestOpenRateCacheWithoutRedis(t *testing.T) {
	logger.SetDefault(logger.NewNop())

	rateCache, closeFn := openRateCache(context.Background(), config.Config{})
	if closeFn != nil {
		t.Fatalf("memory cache should not need closing")
	}
	if _, ok := rateCache.(*cache.MemoryRateCache); !ok {
		t.Fatalf("expected memory rate cache, got %T", rateCache)
	}
}
