package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	LogDevelopment        bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	ExchangeAPIURL         string
	ExchangeRefreshMinutes int

	ChromeRemoteURL   string
	ChromeNoSandbox   bool
	PDFTimeoutSeconds int

	Company Company
}

// Company is printed on invoices and reports.
type Company struct {
	Name    string
	NIT     string
	Address string
	Phone   string
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EXCHANGE_API_URL", "https://open.er-api.com/v6/latest/COP")
	v.SetDefault("EXCHANGE_REFRESH_MINUTES", 60)
	v.SetDefault("CHROME_NO_SANDBOX", false)
	v.SetDefault("PDF_TIMEOUT_SECONDS", 30)
	v.SetDefault("COMPANY_NAME", "TALLER DE MOTOS BJ-BYTE")
	v.SetDefault("COMPANY_NIT", "")
	v.SetDefault("COMPANY_ADDRESS", "")
	v.SetDefault("COMPANY_PHONE", "")
}

// Load reads configuration. Priority: environment, .env file, config.yaml, defaults.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	ttl := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if ttl < 1 {
		ttl = 480
	}
	refresh := v.GetInt("EXCHANGE_REFRESH_MINUTES")
	if refresh < 1 {
		refresh = 60
	}
	pdfTimeout := v.GetInt("PDF_TIMEOUT_SECONDS")
	if pdfTimeout < 1 {
		pdfTimeout = 30
	}

	return Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		AutoMigrate:            v.GetBool("DB_AUTO_MIGRATE"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  ttl,
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogDevelopment:         v.GetBool("LOG_DEVELOPMENT"),
		SMTPHost:               v.GetString("SMTP_HOST"),
		SMTPPort:               v.GetInt("SMTP_PORT"),
		SMTPUsername:           v.GetString("SMTP_USERNAME"),
		SMTPPassword:           v.GetString("SMTP_PASSWORD"),
		SMTPFrom:               v.GetString("SMTP_FROM"),
		ExchangeAPIURL:         v.GetString("EXCHANGE_API_URL"),
		ExchangeRefreshMinutes: refresh,
		ChromeRemoteURL:        v.GetString("CHROME_REMOTE_URL"),
		ChromeNoSandbox:        v.GetBool("CHROME_NO_SANDBOX"),
		PDFTimeoutSeconds:      pdfTimeout,
		Company: Company{
			Name:    v.GetString("COMPANY_NAME"),
			NIT:     v.GetString("COMPANY_NIT"),
			Address: v.GetString("COMPANY_ADDRESS"),
			Phone:   v.GetString("COMPANY_PHONE"),
		},
	}, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}
