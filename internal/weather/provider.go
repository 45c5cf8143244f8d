package weather

import (
	"context"

	"github.com/i474232898/uk-weather-gateway/internal/ratelimit"
	"github.com/i474232898/uk-weather-gateway/internal/store"
)

// MaxForecastDays is the longest horizon the provider supports.
const MaxForecastDays = 7

// Provider abstracts the upstream weather source (e.g. Open-Meteo).
type Provider interface {
	Name() string
	// Fetch returns current conditions and up to days daily entries.
	Fetch(ctx context.Context, coords Coordinates, days int) (Payload, error)
}

// KeyValidator is the part of the key store the gateway needs.
type KeyValidator interface {
	Validate(key string) (store.Tier, bool)
}

// RateChecker counts a request against the caller's quota.
type RateChecker interface {
	Check(ctx context.Context, key string) ratelimit.Decision
}

// PayloadCache is the response cache contract.
type PayloadCache interface {
	GetOrFetch(key string, fetch func() (Payload, error)) (Payload, bool, error)
}
