package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/uk-weather-gateway/internal/store"
)

type AppConfig struct {
	Port string

	// AdminKey gates key management. Empty disables the admin API.
	AdminKey string
	// SeedKeys are issued at startup from API_KEYS ("key:tier,key:tier").
	SeedKeys []store.APIKey

	CacheTTL      time.Duration
	SweepInterval time.Duration

	RateLimitWindow time.Duration
	FreeQuota       int
	ProQuota        int

	UpstreamURL      string
	UpstreamTimezone string
	UpstreamTimeout  time.Duration
	UpstreamRPS      float64
	UpstreamBurst    int
	UpstreamRetries  int

	// Optional Redis sink for rate-limit statistics.
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisStatsPrefix string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "3000")
	cfg.AdminKey = os.Getenv("ADMIN_KEY")

	if cfg.SeedKeys, err = parseSeedKeys(os.Getenv("API_KEYS")); err != nil {
		return nil, err
	}

	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "15m"); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getenvDuration("CACHE_SWEEP_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getenvDuration("RATE_LIMIT_WINDOW", "1h"); err != nil {
		return nil, err
	}
	cfg.FreeQuota = getenvInt("RATE_LIMIT_FREE", 100)
	cfg.ProQuota = getenvInt("RATE_LIMIT_PRO", 1000)
	if cfg.FreeQuota <= 0 || cfg.ProQuota < cfg.FreeQuota {
		return nil, fmt.Errorf("invalid rate limits: free=%d pro=%d (pro must be >= free > 0)", cfg.FreeQuota, cfg.ProQuota)
	}

	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", "https://api.open-meteo.com/v1/forecast")
	cfg.UpstreamTimezone = getenvDefault("UPSTREAM_TIMEZONE", "Europe/London")
	if cfg.UpstreamTimeout, err = getenvDuration("UPSTREAM_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	cfg.UpstreamRPS = getenvFloat("UPSTREAM_RPS", 10)
	cfg.UpstreamBurst = getenvInt("UPSTREAM_BURST", 5)
	cfg.UpstreamRetries = getenvInt("UPSTREAM_RETRIES", 2)

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)
	cfg.RedisStatsPrefix = getenvDefault("REDIS_STATS_PREFIX", "weather:ratelimit")

	return cfg, nil
}

// Quotas returns the per-tier request allowance for one window.
func (c *AppConfig) Quotas() map[store.Tier]int {
	return map[store.Tier]int{
		store.TierFree: c.FreeQuota,
		store.TierPro:  c.ProQuota,
	}
}

func parseSeedKeys(raw string) ([]store.APIKey, error) {
	var keys []store.APIKey
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, tierStr, _ := strings.Cut(item, ":")
		tier, err := store.ParseTier(tierStr)
		if err != nil {
			return nil, fmt.Errorf("invalid API_KEYS entry %q: %w", store.Redact(key), err)
		}
		keys = append(keys, store.APIKey{Key: key, Name: "static", Tier: tier})
	}
	return keys, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
