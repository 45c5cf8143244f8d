package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/uk-weather-gateway/internal/cache"
	"github.com/i474232898/uk-weather-gateway/internal/ratelimit"
	"github.com/i474232898/uk-weather-gateway/internal/store"
	"github.com/i474232898/uk-weather-gateway/internal/weather"
)

type stubProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(_ context.Context, coords weather.Coordinates, days int) (weather.Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return weather.Payload{}, p.err
	}
	payload := weather.Payload{
		Coordinates:  coords,
		Current:      weather.Current{Time: "2024-05-01T12:00", Temperature: 14.2, Humidity: 71, WeatherCode: 0, WindSpeed: 12.5, WindDirection: 240},
		CurrentUnits: map[string]string{"temperature_2m": "°C"},
	}
	for i := 0; i < days; i++ {
		payload.Daily = append(payload.Daily, weather.Day{Date: fmt.Sprintf("2024-05-%02d", i+1)})
	}
	return payload, nil
}

type testApp struct {
	app      *fiber.App
	provider *stubProvider
	keys     *store.KeyStore
}

func newTestApp(t *testing.T, quotas map[store.Tier]int) *testApp {
	t.Helper()

	keys := store.NewKeyStore("secret")
	keys.Seed(store.APIKey{Key: "free-key", Tier: store.TierFree})
	keys.Seed(store.APIKey{Key: "pro-key", Tier: store.TierPro})

	stats := ratelimit.NewMemoryStats()
	limiter := ratelimit.New(keys, ratelimit.Config{Window: time.Hour, Quotas: quotas, Recorder: stats})
	c := cache.New[weather.Payload](cache.DefaultTTL, nil)
	prov := &stubProvider{}
	svc := weather.NewService(keys, limiter, c, prov, weather.Options{FetchTimeout: time.Second})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{Service: svc, Keys: keys, CacheStats: c.Stats, RateStats: stats})
	return &testApp{app: app, provider: prov, keys: keys}
}

func (a *testApp) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := a.app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("invalid json %q: %v", raw, err)
		}
	}
	return resp, body
}

func (a *testApp) get(t *testing.T, target string) (*http.Response, map[string]any) {
	t.Helper()
	return a.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func TestCurrentWeatherForCity(t *testing.T) {
	a := newTestApp(t, nil)

	resp, body := a.get(t, "/weather/current?city=London&api_key=free-key")
	expectStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "99" {
		t.Fatalf("expected remaining header 99, got %q", got)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "100" {
		t.Fatalf("expected limit header 100, got %q", got)
	}
	current := body["current"].(map[string]any)
	if current["temperature"].(float64) != 14.2 || current["condition"] != "clear" {
		t.Fatalf("unexpected current block %v", current)
	}
	rl := body["rate_limit"].(map[string]any)
	if rl["remaining"].(float64) != 99 {
		t.Fatalf("expected rate_limit.remaining 99, got %v", rl)
	}
}

func TestAPIKeyFromHeaders(t *testing.T) {
	a := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather/current?city=leeds", nil)
	req.Header.Set("X-API-Key", "free-key")
	resp, _ := a.do(t, req)
	expectStatus(t, resp, http.StatusOK)

	req = httptest.NewRequest(http.MethodGet, "/weather/current?city=leeds", nil)
	req.Header.Set("Authorization", "Bearer pro-key")
	resp, _ = a.do(t, req)
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "1000" {
		t.Fatalf("expected pro limit via bearer token, got %q", got)
	}
}

func TestInvalidKeyStillCarriesRateLimitHeaders(t *testing.T) {
	a := newTestApp(t, nil)

	resp, body := a.get(t, "/weather/current?city=London&api_key=nope")
	expectStatus(t, resp, http.StatusUnauthorized)
	if body["error"] != "unauthenticated" || body["message"] != "Invalid API key" {
		t.Fatalf("unexpected body %v", body)
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		t.Fatalf("expected rate-limit headers on rejected request")
	}

	resp, body = a.get(t, "/weather/current?city=London")
	expectStatus(t, resp, http.StatusUnauthorized)
	if body["message"] != "API key required" {
		t.Fatalf("unexpected body %v", body)
	}
	if a.provider.calls != 0 {
		t.Fatalf("provider must not be called for unauthenticated requests")
	}
}

func TestLocationErrorsOverHTTP(t *testing.T) {
	a := newTestApp(t, nil)

	resp, body := a.get(t, "/weather/current?city=Paris&api_key=free-key")
	expectStatus(t, resp, http.StatusBadRequest)
	if body["error"] != "location_not_found" {
		t.Fatalf("unexpected body %v", body)
	}
	if cities, _ := body["cities"].([]any); len(cities) != 15 {
		t.Fatalf("expected supported cities in error, got %v", body["cities"])
	}
	if !strings.Contains(body["hint"].(string), "/weather/cities") {
		t.Fatalf("expected hint naming the cities endpoint, got %v", body["hint"])
	}

	resp, body = a.get(t, "/weather/current?api_key=free-key")
	expectStatus(t, resp, http.StatusBadRequest)
	if body["error"] != "validation_error" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCoordinatesRequirePro(t *testing.T) {
	a := newTestApp(t, nil)

	resp, body := a.get(t, "/weather/current?lat=51.5&lon=-0.12&api_key=free-key")
	expectStatus(t, resp, http.StatusForbidden)
	if body["error"] != "forbidden" {
		t.Fatalf("unexpected body %v", body)
	}

	resp, _ = a.get(t, "/weather/current?lat=51.5&lon=-0.12&api_key=pro-key")
	expectStatus(t, resp, http.StatusOK)

	resp, _ = a.get(t, "/weather/current?lat=abc&lon=-0.12&api_key=pro-key")
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestForecastDaysAreClamped(t *testing.T) {
	a := newTestApp(t, nil)

	resp, body := a.get(t, "/weather/forecast?city=London&days=10&api_key=free-key")
	expectStatus(t, resp, http.StatusOK)
	if daily := body["daily"].([]any); len(daily) != 7 {
		t.Fatalf("expected 7 daily entries, got %d", len(daily))
	}

	resp, body = a.get(t, "/weather/forecast?city=London&days=3&api_key=free-key")
	expectStatus(t, resp, http.StatusOK)
	if daily := body["daily"].([]any); len(daily) != 3 {
		t.Fatalf("expected 3 daily entries, got %d", len(daily))
	}
}

func TestRateLimitExceeded(t *testing.T) {
	a := newTestApp(t, map[store.Tier]int{store.TierFree: 2, store.TierPro: 20})

	for i := 0; i < 2; i++ {
		resp, _ := a.get(t, "/weather/current?city=London&api_key=free-key")
		expectStatus(t, resp, http.StatusOK)
	}
	resp, body := a.get(t, "/weather/current?city=London&api_key=free-key")
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", resp.Header.Get("X-RateLimit-Remaining"))
	}
	if body["error"] != "rate_limited" || body["retry_after"].(float64) <= 0 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestUpstreamFailureIs503(t *testing.T) {
	a := newTestApp(t, nil)
	a.provider.err = errors.New("boom")

	resp, body := a.get(t, "/weather/current?city=London&api_key=free-key")
	expectStatus(t, resp, http.StatusServiceUnavailable)
	if body["error"] != "upstream_unavailable" {
		t.Fatalf("unexpected body %v", body)
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "99" {
		t.Fatalf("expected rate-limit headers on upstream failure")
	}
}

func TestCitiesAndInfo(t *testing.T) {
	a := newTestApp(t, nil)

	resp, body := a.get(t, "/weather/cities")
	expectStatus(t, resp, http.StatusOK)
	if cities := body["cities"].([]any); len(cities) != 15 || cities[0] != "belfast" {
		t.Fatalf("unexpected cities %v", body["cities"])
	}

	resp, body = a.get(t, "/")
	expectStatus(t, resp, http.StatusOK)
	if body["status"] != "operational" {
		t.Fatalf("unexpected info %v", body)
	}
}

func TestAdminKeyLifecycle(t *testing.T) {
	a := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/keys",
		strings.NewReader(`{"admin_key":"secret","name":"Ada","email":"ada@example.com","plan":"pro"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := a.do(t, req)
	expectStatus(t, resp, http.StatusCreated)
	key, _ := body["api_key"].(string)
	if !strings.HasPrefix(key, "ukw_") || body["plan"] != "pro" {
		t.Fatalf("unexpected create response %v", body)
	}

	resp, _ = a.get(t, "/weather/current?lat=1&lon=2&api_key="+key)
	expectStatus(t, resp, http.StatusOK)

	resp, body = a.get(t, "/admin/keys?admin_key=secret")
	expectStatus(t, resp, http.StatusOK)
	listed := body["keys"].([]any)
	if len(listed) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(listed))
	}
	for _, k := range listed {
		if id := k.(map[string]any)["key"].(string); !strings.HasSuffix(id, "...") {
			t.Fatalf("expected redacted identifier, got %q", id)
		}
	}

	req = httptest.NewRequest(http.MethodDelete, "/admin/keys/"+key, nil)
	req.Header.Set("X-Admin-Key", "secret")
	resp, body = a.do(t, req)
	expectStatus(t, resp, http.StatusOK)
	if body["deleted"] != true {
		t.Fatalf("expected deleted=true, got %v", body)
	}

	resp, _ = a.get(t, "/weather/current?city=London&api_key="+key)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestAdminRejectsWrongCredential(t *testing.T) {
	a := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/keys", strings.NewReader(`{"admin_key":"wrong","email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := a.do(t, req)
	expectStatus(t, resp, http.StatusForbidden)
	if body["message"] != "Invalid admin key" {
		t.Fatalf("unexpected body %v", body)
	}

	resp, _ = a.get(t, "/admin/keys?admin_key=wrong")
	expectStatus(t, resp, http.StatusForbidden)

	// Same response whether or not the key exists.
	req = httptest.NewRequest(http.MethodDelete, "/admin/keys/free-key", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	resp, existing := a.do(t, req)
	expectStatus(t, resp, http.StatusForbidden)
	req = httptest.NewRequest(http.MethodDelete, "/admin/keys/missing", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	resp, missing := a.do(t, req)
	expectStatus(t, resp, http.StatusForbidden)
	if fmt.Sprint(existing) != fmt.Sprint(missing) {
		t.Fatalf("forbidden responses differ: %v vs %v", existing, missing)
	}

	resp, _ = a.get(t, "/admin/stats")
	expectStatus(t, resp, http.StatusForbidden)
}

func TestAdminValidatesBody(t *testing.T) {
	a := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/keys", strings.NewReader(`{"email":"not-an-email","plan":"gold"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", "secret")
	resp, body := a.do(t, req)
	expectStatus(t, resp, http.StatusBadRequest)
	if body["error"] != "validation_error" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAdminStats(t *testing.T) {
	a := newTestApp(t, nil)

	a.get(t, "/weather/current?city=London&api_key=free-key")
	a.get(t, "/weather/current?city=London&api_key=free-key")

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("X-Admin-Key", "secret")
	resp, body := a.do(t, req)
	expectStatus(t, resp, http.StatusOK)

	c := body["cache"].(map[string]any)
	if c["fetches"].(float64) != 1 || c["hits"].(float64) != 1 {
		t.Fatalf("unexpected cache stats %v", c)
	}
	rl := body["rate_limit"].(map[string]any)
	if rl["allowed"].(float64) != 2 {
		t.Fatalf("unexpected rate-limit stats %v", rl)
	}
}
