package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/i474232898/uk-weather-gateway/internal/api/http"
	"github.com/i474232898/uk-weather-gateway/internal/cache"
	"github.com/i474232898/uk-weather-gateway/internal/config"
	"github.com/i474232898/uk-weather-gateway/internal/ratelimit"
	"github.com/i474232898/uk-weather-gateway/internal/scheduler"
	"github.com/i474232898/uk-weather-gateway/internal/store"
	"github.com/i474232898/uk-weather-gateway/internal/weather"
	"github.com/i474232898/uk-weather-gateway/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Key table, seeded from static configuration.
	keys := store.NewKeyStore(cfg.AdminKey)
	for _, k := range cfg.SeedKeys {
		keys.Seed(k)
	}
	if cfg.AdminKey == "" {
		log.Println("INFO: ADMIN_KEY not set; admin endpoints are disabled")
	}
	log.Printf("INFO: loaded %d static API keys", len(cfg.SeedKeys))

	// Rate-limit statistics: always in memory, optionally mirrored to Redis.
	memStats := ratelimit.NewMemoryStats()
	recorder := ratelimit.MultiRecorder{memStats}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			log.Printf("ERROR: redis stats disabled, ping failed: %v", err)
		} else {
			redisStats := ratelimit.NewAsyncRecorder(ratelimit.NewRedisStats(rdb, cfg.RedisStatsPrefix, 24*time.Hour), 1024)
			defer redisStats.Close()
			recorder = append(recorder, redisStats)
			log.Printf("INFO: mirroring rate-limit stats to redis at %s", cfg.RedisAddr)
		}
	}

	limiter := ratelimit.New(keys, ratelimit.Config{
		Window:   cfg.RateLimitWindow,
		Quotas:   cfg.Quotas(),
		Recorder: recorder,
	})

	responses := cache.New[weather.Payload](cfg.CacheTTL, nil)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.UpstreamTimeout,
	}
	provider := providers.NewOpenMeteoProvider(httpClient, providers.OpenMeteoConfig{
		BaseURL:    cfg.UpstreamURL,
		Timezone:   cfg.UpstreamTimezone,
		RPS:        cfg.UpstreamRPS,
		Burst:      cfg.UpstreamBurst,
		MaxRetries: cfg.UpstreamRetries,
	})

	service := weather.NewService(keys, limiter, responses, provider, weather.Options{
		FetchTimeout: cfg.UpstreamTimeout,
	})

	// Periodic reclamation of expired cache entries and stale windows.
	sched := scheduler.New(cfg.SweepInterval, map[string]scheduler.Sweeper{
		"cache":   scheduler.SweepFunc(responses.Sweep),
		"limiter": scheduler.SweepFunc(limiter.Cleanup),
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "uk-weather-gateway",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.UpstreamTimeout + 5*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "uk-weather-gateway",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:    service,
		Keys:       keys,
		CacheStats: responses.Stats,
		RateStats:  memStats,
	})

	go func() {
		log.Printf("INFO: UK Weather API listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
