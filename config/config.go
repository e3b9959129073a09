// Package config reads deployment settings from the environment.
package config

import (
	"fmt"
	"os"
)

type Config struct {
	BotToken     string // TELEGRAM_BOT_TOKEN; bot is skipped when empty
	StoreDriver  string // STORE_DRIVER: postgres (default) or sqlite
	StoreDSN     string // STORE_DSN
	ListenAddr   string // LISTEN_ADDR, default :5000
	APITokenHash string // REPORT_TOKEN_HASH; report API disabled when empty
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		BotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		StoreDriver:  getenv("STORE_DRIVER", "postgres"),
		StoreDSN:     os.Getenv("STORE_DSN"),
		ListenAddr:   getenv("LISTEN_ADDR", ":5000"),
		APITokenHash: os.Getenv("REPORT_TOKEN_HASH"),
	}
	if cfg.StoreDSN == "" {
		if cfg.StoreDriver == "sqlite" {
			cfg.StoreDSN = "file:groupledger.db"
		} else {
			return nil, fmt.Errorf("STORE_DSN is required for driver %q", cfg.StoreDriver)
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
