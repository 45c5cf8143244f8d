package weather

import "github.com/i474232898/uk-weather-gateway/internal/ratelimit"

// hoursToday is how many hourly points the forecast view carries.
const hoursToday = 24

// RateLimit is the quota metadata attached to every successful response.
type RateLimit struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// CurrentView is the shaped current-conditions block.
type CurrentView struct {
	Time          string    `json:"time"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	WeatherCode   int       `json:"weather_code"`
	Condition     Condition `json:"condition"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction"`
}

// DayView is one shaped daily forecast entry.
type DayView struct {
	Day
	Condition Condition `json:"condition"`
}

type CurrentReport struct {
	Location    string            `json:"location"`
	Coordinates Coordinates       `json:"coordinates"`
	Current     CurrentView       `json:"current"`
	Units       map[string]string `json:"units,omitempty"`
	RateLimit   RateLimit         `json:"rate_limit"`
}

type ForecastReport struct {
	Location    string            `json:"location"`
	Coordinates Coordinates       `json:"coordinates"`
	Daily       []DayView         `json:"daily"`
	HourlyToday []Hour            `json:"hourly_today"`
	Units       map[string]string `json:"units,omitempty"`
	RateLimit   RateLimit         `json:"rate_limit"`
}

func rateLimitOf(dec ratelimit.Decision) RateLimit {
	return RateLimit{Limit: dec.Limit, Remaining: dec.Remaining}
}

func newCurrentReport(loc location, p Payload, dec ratelimit.Decision) CurrentReport {
	return CurrentReport{
		Location:    loc.label,
		Coordinates: loc.coords,
		Current: CurrentView{
			Time:          p.Current.Time,
			Temperature:   p.Current.Temperature,
			Humidity:      p.Current.Humidity,
			WeatherCode:   p.Current.WeatherCode,
			Condition:     ConditionFromCode(p.Current.WeatherCode),
			WindSpeed:     p.Current.WindSpeed,
			WindDirection: p.Current.WindDirection,
		},
		Units:     p.CurrentUnits,
		RateLimit: rateLimitOf(dec),
	}
}

func newForecastReport(loc location, p Payload, days int, dec ratelimit.Decision) ForecastReport {
	if days > len(p.Daily) {
		days = len(p.Daily)
	}
	daily := make([]DayView, 0, days)
	for _, d := range p.Daily[:days] {
		daily = append(daily, DayView{Day: d, Condition: ConditionFromCode(d.WeatherCode)})
	}

	hours := len(p.Hourly)
	if hours > hoursToday {
		hours = hoursToday
	}
	hourly := make([]Hour, hours)
	copy(hourly, p.Hourly[:hours])

	return ForecastReport{
		Location:    loc.label,
		Coordinates: loc.coords,
		Daily:       daily,
		HourlyToday: hourly,
		Units:       p.DailyUnits,
		RateLimit:   rateLimitOf(dec),
	}
}
