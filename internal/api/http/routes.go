package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/i474232898/uk-weather-gateway/internal/cache"
	"github.com/i474232898/uk-weather-gateway/internal/common"
	"github.com/i474232898/uk-weather-gateway/internal/ratelimit"
	"github.com/i474232898/uk-weather-gateway/internal/store"
	"github.com/i474232898/uk-weather-gateway/internal/weather"
)

var validate = validator.New()

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Service *weather.Service
	Keys    *store.KeyStore
	// Optional sources for /admin/stats.
	CacheStats func() cache.Stats
	RateStats  *ratelimit.MemoryStats
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":    "UK Weather API",
			"version": "1.0.0",
			"status":  "operational",
			"endpoints": fiber.Map{
				"current":  "/weather/current?city={city}",
				"forecast": "/weather/forecast?city={city}&days={1-7}",
				"cities":   "/weather/cities",
			},
		})
	})

	w := app.Group("/weather")

	w.Get("/cities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"cities": d.Service.Cities()})
	})

	w.Get("/current", weatherHandler(func(ctx context.Context, q weather.Query) (any, ratelimit.Decision, error) {
		return d.Service.Current(ctx, q)
	}))

	w.Get("/forecast", weatherHandler(func(ctx context.Context, q weather.Query) (any, ratelimit.Decision, error) {
		return d.Service.Forecast(ctx, q)
	}))

	registerAdminRoutes(app, d)
}

type serveFunc func(ctx context.Context, q weather.Query) (any, ratelimit.Decision, error)

func weatherHandler(serve serveFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, dec, err := serve(c.UserContext(), parseWeatherQuery(c))
		writeRateLimitHeaders(c, dec)
		if err != nil {
			return err
		}
		return c.JSON(report)
	}
}

func parseWeatherQuery(c *fiber.Ctx) weather.Query {
	return weather.Query{
		APIKey: utils.CopyString(common.FirstNonEmpty(
			c.Query("api_key"),
			c.Get("X-API-Key"),
			common.BearerToken(c.Get(fiber.HeaderAuthorization)),
		)),
		City: utils.CopyString(c.Query("city")),
		Lat:  utils.CopyString(c.Query("lat")),
		Lon:  utils.CopyString(c.Query("lon")),
		Days: utils.CopyString(c.Query("days")),
	}
}

func writeRateLimitHeaders(c *fiber.Ctx, dec ratelimit.Decision) {
	if dec.Limit <= 0 {
		return
	}
	c.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
	}
}

type errorBody struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Hint       string   `json:"hint,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
	Cities     []string `json:"cities,omitempty"`
}

// ErrorHandler renders every error as JSON with a machine-readable kind.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var werr *weather.Error
	if errors.As(err, &werr) {
		if werr.Kind == weather.KindRateLimited && werr.RetryAfter > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(werr.RetryAfter))
		}
		return c.Status(statusFor(werr.Kind)).JSON(errorBody{
			Error:      string(werr.Kind),
			Message:    werr.Message,
			Hint:       werr.Hint,
			RetryAfter: werr.RetryAfter,
			Cities:     werr.Cities,
		})
	}

	code := fiber.StatusInternalServerError
	message := "internal server error"
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
		message = ferr.Message
	}
	return c.Status(code).JSON(errorBody{
		Error:   strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_"),
		Message: message,
	})
}

func statusFor(kind weather.ErrorKind) int {
	switch kind {
	case weather.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case weather.KindForbidden:
		return fiber.StatusForbidden
	case weather.KindRateLimited:
		return fiber.StatusTooManyRequests
	case weather.KindValidation, weather.KindLocationNotFound:
		return fiber.StatusBadRequest
	case weather.KindUpstreamUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
