package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bjbyte/backend/internal/cache"
	"bjbyte/backend/internal/config"
	"bjbyte/backend/internal/document"
	"bjbyte/backend/internal/exchange"
	"bjbyte/backend/internal/httpapi"
	"bjbyte/backend/internal/logger"
	"bjbyte/backend/internal/mailer"
	"bjbyte/backend/internal/service"
	"bjbyte/backend/internal/store"
	"bjbyte/backend/internal/store/memory"
	pgstore "bjbyte/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalw("invalid security configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]func() error, 0, 3)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalw("repository unavailable", "error", err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	rateCache, closeCache := openRateCache(ctx, cfg)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	rates := exchange.New(exchange.Config{
		URL:     cfg.ExchangeAPIURL,
		Refresh: time.Duration(cfg.ExchangeRefreshMinutes) * time.Minute,
	}, rateCache)
	go rates.Run(ctx)

	pdf := document.NewChromePDF(document.ChromeConfig{
		RemoteURL: cfg.ChromeRemoteURL,
		Timeout:   time.Duration(cfg.PDFTimeoutSeconds) * time.Second,
		NoSandbox: cfg.ChromeNoSandbox,
	})
	closers = append(closers, pdf.Close)

	renderer, err := document.NewRenderer(document.Company{
		Name:    cfg.Company.Name,
		NIT:     cfg.Company.NIT,
		Address: cfg.Company.Address,
		Phone:   cfg.Company.Phone,
	}, pdf)
	if err != nil {
		log.Fatalw("load document templates", "error", err)
	}

	opts := []service.Option{
		service.WithDocuments(renderer),
		service.WithRates(rates),
		service.WithIssuer(cfg.Company.Name),
		service.WithLogger(log),
	}
	if cfg.MailEnabled() {
		m, err := mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.Fatalw("configure smtp", "error", err)
		}
		opts = append(opts, service.WithMailer(m))
		log.Infow("mailer: smtp", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	} else {
		log.Infow("mailer: disabled")
	}

	svc := service.New(repo, opts...)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api, err := httpapi.New(svc, auth, cfg.AllowedOrigin)
	if err != nil {
		log.Fatalw("init http api", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.PDFTimeoutSeconds)*time.Second + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("server listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server error", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warnw("close error", "error", err)
		}
	}

	log.Infow("server stopped")
}

// openRepository connects to PostgreSQL when DATABASE_URL is set and falls back to the seeded
// in-memory store otherwise. A configured but unreachable database is fatal.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	log := logger.Default()
	if cfg.DatabaseURL == "" {
		log.Infow("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	log.Infow("repository: postgres", "auto_migrate", cfg.AutoMigrate)
	return pg, pg.Close, nil
}

// openRateCache prefers Redis and degrades to an in-process cache when it is unreachable.
func openRateCache(ctx context.Context, cfg config.Config) (cache.RateCache, func() error) {
	log := logger.Default()
	if cfg.RedisAddr == "" {
		log.Infow("rate cache: memory")
		return cache.NewMemoryRateCache(), nil
	}

	redisCache := cache.NewRedisRateCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Warnw("redis unavailable, using memory rate cache", "addr", cfg.RedisAddr, "error", err)
		_ = redisCache.Close()
		return cache.NewMemoryRateCache(), nil
	}
	log.Infow("rate cache: redis", "addr", cfg.RedisAddr)
	return redisCache, redisCache.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if strings.TrimSpace(cfg.AllowedOrigin) == "" {
		return fmt.Errorf("ALLOWED_ORIGIN must be set")
	}
	if cfg.MailEnabled() && !strings.Contains(cfg.SMTPFrom, "@") {
		return fmt.Errorf("SMTP_FROM must be an email address")
	}
	return nil
}
