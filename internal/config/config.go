package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every setting the service reads from the environment. It
// is built once at process start and passed down by reference; nothing
// mutates it afterwards.
type Config struct {
	Port    string
	DBPath  string
	BaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, seeding it from a .env
// file when one exists.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getenv("BILLING_PORT", "8090"),
		DBPath:              getenv("BILLING_DB_PATH", "billing.db"),
		BaseURL:             os.Getenv("BILLING_BASE_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		LogLevel:            os.Getenv("BILLING_LOG_LEVEL"),
		LogFormat:           os.Getenv("BILLING_LOG_FORMAT"),
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
