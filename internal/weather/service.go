package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/uk-weather-gateway/internal/ratelimit"
	"github.com/i474232898/uk-weather-gateway/internal/store"
)

// DefaultFetchTimeout bounds a single upstream fetch.
const DefaultFetchTimeout = 10 * time.Second

var (
	validate = validator.New()

	errMalformedPayload = errors.New("provider payload is missing required fields")
)

// Query is an inbound weather request as received from the transport.
type Query struct {
	APIKey string
	City   string
	Lat    string
	Lon    string
	Days   string
}

// Options tunes a Service.
type Options struct {
	FetchTimeout time.Duration
	Places       Gazetteer
}

// Service gates requests by key and quota, resolves locations and serves
// provider payloads through the response cache.
type Service struct {
	keys     KeyValidator
	limiter  RateChecker
	cache    PayloadCache
	provider Provider

	places       Gazetteer
	fetchTimeout time.Duration
}

// NewService creates a new Service.
func NewService(keys KeyValidator, limiter RateChecker, cache PayloadCache, provider Provider, opts Options) *Service {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Places == nil {
		opts.Places = UKCities
	}
	return &Service{
		keys:         keys,
		limiter:      limiter,
		cache:        cache,
		provider:     provider,
		places:       opts.Places,
		fetchTimeout: opts.FetchTimeout,
	}
}

// Cities lists the supported place names.
func (s *Service) Cities() []string {
	return s.places.Names()
}

// Current returns current conditions for the queried location. The decision
// is always returned, also alongside errors.
func (s *Service) Current(ctx context.Context, q Query) (CurrentReport, ratelimit.Decision, error) {
	payload, loc, dec, err := s.serve(ctx, q)
	if err != nil {
		return CurrentReport{}, dec, err
	}
	return newCurrentReport(loc, payload, dec), dec, nil
}

// Forecast returns the daily forecast clamped to MaxForecastDays.
func (s *Service) Forecast(ctx context.Context, q Query) (ForecastReport, ratelimit.Decision, error) {
	payload, loc, dec, err := s.serve(ctx, q)
	if err != nil {
		return ForecastReport{}, dec, err
	}
	return newForecastReport(loc, payload, ClampDays(q.Days), dec), dec, nil
}

type location struct {
	label  string
	coords Coordinates
}

func (s *Service) serve(ctx context.Context, q Query) (Payload, location, ratelimit.Decision, error) {
	dec := s.limiter.Check(ctx, q.APIKey)

	tier, err := s.authenticate(q.APIKey)
	if err != nil {
		return Payload{}, location{}, dec, err
	}

	if !dec.Allowed {
		return Payload{}, location{}, dec, &Error{
			Kind:       KindRateLimited,
			Message:    "Rate limit exceeded",
			Hint:       fmt.Sprintf("Retry in %d seconds", dec.RetryAfterSeconds()),
			RetryAfter: dec.RetryAfterSeconds(),
		}
	}

	loc, err := s.resolve(q, tier)
	if err != nil {
		return Payload{}, location{}, dec, err
	}

	payload, err := s.fetch(ctx, loc.coords)
	if err != nil {
		return Payload{}, location{}, dec, err
	}
	return payload, loc, dec, nil
}

func (s *Service) authenticate(key string) (store.Tier, error) {
	if key == "" {
		return "", &Error{
			Kind:    KindUnauthenticated,
			Message: "API key required",
			Hint:    "Include api_key query parameter or X-API-Key header",
		}
	}
	tier, ok := s.keys.Validate(key)
	if !ok {
		return "", &Error{Kind: KindUnauthenticated, Message: "Invalid API key"}
	}
	return tier, nil
}

func (s *Service) resolve(q Query, tier store.Tier) (location, error) {
	city := strings.TrimSpace(q.City)
	lat := strings.TrimSpace(q.Lat)
	lon := strings.TrimSpace(q.Lon)

	switch {
	case city != "":
		coords, ok := s.places.Lookup(city)
		if !ok {
			return location{}, &Error{
				Kind:    KindLocationNotFound,
				Message: "City not supported",
				Hint:    "Use /weather/cities to see available cities",
				Cities:  s.places.Names(),
			}
		}
		return location{label: city, coords: coords}, nil

	case lat != "" || lon != "":
		if !tier.AllowsCoordinates() {
			return location{}, &Error{
				Kind:    KindForbidden,
				Message: "Coordinate lookups require a pro plan",
				Hint:    "Upgrade to pro, or query one of the supported cities",
				Cities:  s.places.Names(),
			}
		}
		if lat == "" || lon == "" {
			return location{}, &Error{
				Kind:    KindValidation,
				Message: "Both lat and lon are required",
				Hint:    "Provide lat and lon in decimal degrees",
			}
		}
		coords, err := parseCoordinates(lat, lon)
		if err != nil {
			return location{}, &Error{
				Kind:    KindValidation,
				Message: "Invalid coordinates",
				Hint:    "lat must be within [-90, 90] and lon within [-180, 180]",
				Err:     err,
			}
		}
		return location{label: fmt.Sprintf("%s, %s", lat, lon), coords: coords}, nil

	default:
		return location{}, &Error{
			Kind:    KindValidation,
			Message: "Provide city or lat/lon",
			Hint:    "Supported cities: " + strings.Join(s.places.Names(), ", "),
			Cities:  s.places.Names(),
		}
	}
}

func parseCoordinates(latStr, lonStr string) (Coordinates, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("lon: %w", err)
	}
	if err := validate.Var(lat, "latitude"); err != nil {
		return Coordinates{}, fmt.Errorf("lat: %w", err)
	}
	if err := validate.Var(lon, "longitude"); err != nil {
		return Coordinates{}, fmt.Errorf("lon: %w", err)
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}

func (s *Service) fetch(ctx context.Context, coords Coordinates) (Payload, error) {
	key := coords.Key()

	payload, hit, err := s.cache.GetOrFetch(key, func() (Payload, error) {
		log.Printf("DEBUG: cache miss for %s; fetching from %s", key, s.provider.Name())

		// The fetch is shared by every caller waiting on this key, so it must
		// outlive the request that started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		p, err := s.provider.Fetch(fetchCtx, coords, MaxForecastDays)
		if err != nil {
			return Payload{}, err
		}
		if err := checkPayload(p); err != nil {
			return Payload{}, err
		}
		return p, nil
	})
	if err != nil {
		log.Printf("ERROR: provider %s fetch failed for %s: %v", s.provider.Name(), key, err)
		return Payload{}, &Error{
			Kind:    KindUpstreamUnavailable,
			Message: "Weather service unavailable",
			Hint:    "Try again later",
			Err:     err,
		}
	}
	if hit {
		log.Printf("DEBUG: cache hit for %s", key)
	}
	return payload, nil
}

func checkPayload(p Payload) error {
	if p.Current.Time == "" || len(p.Daily) == 0 {
		return errMalformedPayload
	}
	return nil
}

// ClampDays parses a forecast horizon. Empty or non-numeric input yields
// MaxForecastDays; numbers are clamped into [1, MaxForecastDays].
func ClampDays(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return MaxForecastDays
	}
	if n < 1 {
		return 1
	}
	if n > MaxForecastDays {
		return MaxForecastDays
	}
	return n
}
