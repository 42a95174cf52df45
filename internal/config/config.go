// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// コンテンツソースの種別。
const (
	ContentSourcePostgres = "postgres"
	ContentSourceMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIURL string `env:"API_URL,required,notEmpty"`

	// Content source
	ContentSource  string `env:"CONTENT_SOURCE" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MemorySeedFile string `env:"MEMORY_SEED_FILE"` // CONTENT_SOURCE=memory の初期データ（JSON）

	// Cache
	ItemCacheSize     int           `env:"ITEM_CACHE_SIZE" envDefault:"10000"`
	ProfileCacheSize  int           `env:"PROFILE_CACHE_SIZE" envDefault:"5000"`
	ProfileCacheTTL   time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"5m"`
	EnrichConcurrency int           `env:"ENRICH_CONCURRENCY" envDefault:"5"`

	// Rate Limit
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	TrustProxy         bool `env:"TRUST_PROXY" envDefault:"false"`

	// Warm-up
	WarmupInterval time.Duration `env:"WARMUP_INTERVAL" envDefault:"0s"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// Cookie
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if !isHTTPURL(c.APIURL) {
		problems = append(problems, "API_URL must start with http:// or https://")
	}

	switch c.ContentSource {
	case ContentSourcePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when CONTENT_SOURCE=postgres")
		}
	case ContentSourceMemory:
	default:
		problems = append(problems, fmt.Sprintf("CONTENT_SOURCE must be %q or %q, got %q",
			ContentSourcePostgres, ContentSourceMemory, c.ContentSource))
	}

	if c.ItemCacheSize <= 0 {
		problems = append(problems, "ITEM_CACHE_SIZE must be positive")
	}
	if c.ProfileCacheSize <= 0 {
		problems = append(problems, "PROFILE_CACHE_SIZE must be positive")
	}
	if c.ProfileCacheTTL <= 0 {
		problems = append(problems, "PROFILE_CACHE_TTL must be positive")
	}
	if c.EnrichConcurrency <= 0 {
		problems = append(problems, "ENRICH_CONCURRENCY must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		problems = append(problems, "RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.WarmupInterval < 0 {
		problems = append(problems, "WARMUP_INTERVAL must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
