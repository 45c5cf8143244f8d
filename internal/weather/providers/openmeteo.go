package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/uk-weather-gateway/internal/weather"
)

// DefaultOpenMeteoURL is the public forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

const (
	currentVars = "temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m,wind_direction_10m"
	hourlyVars  = "temperature_2m,weather_code,precipitation_probability"
	dailyVars   = "weather_code,temperature_2m_max,temperature_2m_min,sunrise,sunset"
)

// OpenMeteoConfig configures the Open-Meteo provider.
type OpenMeteoConfig struct {
	BaseURL  string
	Timezone string
	// RPS and Burst throttle outbound calls; RPS <= 0 disables the throttle.
	RPS   float64
	Burst int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
}

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
type OpenMeteoProvider struct {
	name     string
	baseURL  string
	timezone string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, cfg OpenMeteoConfig) *OpenMeteoProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenMeteoURL
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/London"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
	})

	var throttle *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		throttle = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &OpenMeteoProvider{
		name:     "openmeteo",
		baseURL:  cfg.BaseURL,
		timezone: cfg.Timezone,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 250 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
			Throttle: throttle,
		},
		circuit: cb,
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`

	Current *struct {
		Time             string   `json:"time"`
		Temperature      *float64 `json:"temperature_2m"`
		RelativeHumidity *float64 `json:"relative_humidity_2m"`
		WeatherCode      *int     `json:"weather_code"`
		WindSpeed        *float64 `json:"wind_speed_10m"`
		WindDirection    *float64 `json:"wind_direction_10m"`
	} `json:"current"`
	CurrentUnits map[string]string `json:"current_units"`

	Hourly *struct {
		Time                     []string   `json:"time"`
		Temperature              []float64  `json:"temperature_2m"`
		WeatherCode              []int      `json:"weather_code"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
	} `json:"hourly"`
	HourlyUnits map[string]string `json:"hourly_units"`

	Daily *struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		Sunrise     []string  `json:"sunrise"`
		Sunset      []string  `json:"sunset"`
	} `json:"daily"`
	DailyUnits map[string]string `json:"daily_units"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, coords weather.Coordinates, days int) (weather.Payload, error) {
	if days <= 0 || days > weather.MaxForecastDays {
		days = weather.MaxForecastDays
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
		values.Set("current", currentVars)
		values.Set("hourly", hourlyVars)
		values.Set("daily", dailyVars)
		values.Set("timezone", p.timezone)
		values.Set("forecast_days", strconv.Itoa(days))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Payload{}, err
	}
	defer resp.Body.Close()

	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return weather.Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return toPayload(coords, body)
}

func toPayload(coords weather.Coordinates, body openMeteoResponse) (weather.Payload, error) {
	cur := body.Current
	if cur == nil || cur.Time == "" || cur.Temperature == nil || cur.RelativeHumidity == nil ||
		cur.WeatherCode == nil || cur.WindSpeed == nil || cur.WindDirection == nil {
		return weather.Payload{}, fmt.Errorf("%w: current conditions incomplete", ErrMalformedPayload)
	}

	d := body.Daily
	if d == nil || len(d.Time) == 0 {
		return weather.Payload{}, fmt.Errorf("%w: daily series missing", ErrMalformedPayload)
	}
	n := len(d.Time)
	if len(d.WeatherCode) != n || len(d.TempMax) != n || len(d.TempMin) != n || len(d.Sunrise) != n || len(d.Sunset) != n {
		return weather.Payload{}, fmt.Errorf("%w: daily series lengths differ", ErrMalformedPayload)
	}

	payload := weather.Payload{
		Coordinates: coords,
		Timezone:    body.Timezone,
		Current: weather.Current{
			Time:          cur.Time,
			Temperature:   *cur.Temperature,
			Humidity:      *cur.RelativeHumidity,
			WeatherCode:   *cur.WeatherCode,
			WindSpeed:     *cur.WindSpeed,
			WindDirection: *cur.WindDirection,
		},
		CurrentUnits: body.CurrentUnits,
		DailyUnits:   body.DailyUnits,
		HourlyUnits:  body.HourlyUnits,
		Daily:        make([]weather.Day, 0, n),
	}

	for i := 0; i < n; i++ {
		payload.Daily = append(payload.Daily, weather.Day{
			Date:        d.Time[i],
			TempMax:     d.TempMax[i],
			TempMin:     d.TempMin[i],
			WeatherCode: d.WeatherCode[i],
			Sunrise:     d.Sunrise[i],
			Sunset:      d.Sunset[i],
		})
	}

	// Hourly data only enriches the forecast view; a short or absent series
	// is tolerated.
	if h := body.Hourly; h != nil {
		for i := range h.Time {
			if i >= len(h.Temperature) {
				break
			}
			hour := weather.Hour{Time: h.Time[i], Temperature: h.Temperature[i]}
			if i < len(h.WeatherCode) {
				hour.WeatherCode = h.WeatherCode[i]
			}
			if i < len(h.PrecipitationProbability) && h.PrecipitationProbability[i] != nil {
				hour.PrecipitationProbability = *h.PrecipitationProbability[i]
			}
			payload.Hourly = append(payload.Hourly, hour)
		}
	}

	return payload, nil
}
