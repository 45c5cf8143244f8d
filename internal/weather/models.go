package weather

import (
	"strconv"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionFog     Condition = "fog"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
)

// ConditionFromCode maps a WMO weather code as used by Open-Meteo.
func ConditionFromCode(code int) Condition {
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionFog
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return ConditionSnow
	case code >= 95:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns the exact canonical cache key. Distinct float values always
// produce distinct keys; no rounding is applied. Negative zero is keyed as 0.
func (c Coordinates) Key() string {
	return formatDegrees(c.Lat) + "," + formatDegrees(c.Lon)
}

func formatDegrees(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Current holds the conditions at observation time.
type Current struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	WeatherCode   int     `json:"weather_code"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection float64 `json:"wind_direction"`
}

// Day is one entry of the daily forecast series.
type Day struct {
	Date        string  `json:"date"`
	TempMax     float64 `json:"temp_max"`
	TempMin     float64 `json:"temp_min"`
	WeatherCode int     `json:"weather_code"`
	Sunrise     string  `json:"sunrise"`
	Sunset      string  `json:"sunset"`
}

// Hour is one entry of the hourly series.
type Hour struct {
	Time                     string  `json:"time"`
	Temperature              float64 `json:"temperature"`
	WeatherCode              int     `json:"weather_code,omitempty"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
}

// Payload is a provider response for one coordinate pair.
type Payload struct {
	Coordinates  Coordinates
	Timezone     string
	Current      Current
	CurrentUnits map[string]string
	Daily        []Day
	DailyUnits   map[string]string
	Hourly       []Hour
	HourlyUnits  map[string]string
}
