package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/llm/tools"
)

// MaxForecastDays is the longest horizon open-meteo serves.
const MaxForecastDays = 16

var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// WeatherDescription maps a WMO weather code to text.
func WeatherDescription(code int) string {
	if d, ok := weatherCodes[code]; ok {
		return d
	}
	return "Unknown"
}

// DayForecast is one day of a forecast.
type DayForecast struct {
	Date                     string `json:"date"`
	Day                      string `json:"day"`
	HighTemp                 string `json:"high_temp"`
	LowTemp                  string `json:"low_temp"`
	Precipitation            string `json:"precipitation"`
	PrecipitationProbability string `json:"precipitation_probability"`
	Conditions               string `json:"conditions"`
}

// Forecast is the get_weather_forecast result.
type Forecast struct {
	LocationCoords string        `json:"location_coords"`
	ForecastDays   int           `json:"forecast_days"`
	Forecasts      []DayForecast `json:"forecasts"`
}

type openMeteoResponse struct {
	Daily struct {
		Time                        []string  `json:"time"`
		Temperature2mMax            []float64 `json:"temperature_2m_max"`
		Temperature2mMin            []float64 `json:"temperature_2m_min"`
		PrecipitationSum            []float64 `json:"precipitation_sum"`
		PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
		WeatherCode                 []int     `json:"weather_code"`
	} `json:"daily"`
}

// WeatherPlugin fetches daily forecasts from open-meteo.
type WeatherPlugin struct {
	baseURL string
	fetch   *fetcher
	logger  *zap.Logger
}

// NewWeatherPlugin creates the weather plugin.
func NewWeatherPlugin(cfg config.WeatherConfig, f *fetcher, logger *zap.Logger) *WeatherPlugin {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.open-meteo.com"
	}
	return &WeatherPlugin{
		baseURL: strings.TrimRight(base, "/"),
		fetch:   f,
		logger:  logger.With(zap.String("plugin", "weather")),
	}
}

func (p *WeatherPlugin) Name() string { return "weather" }

type forecastArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Days      int     `json:"days,omitempty"`
}

func (p *WeatherPlugin) Register(r tools.ToolRegistry) error {
	return register(r, function{
		name:        "get_weather_forecast",
		description: "Get weather forecast for a location up to 16 days in the future",
		params: tools.ObjectSchema(map[string]tools.Property{
			"latitude":  {Type: "number", Description: "Latitude of the location"},
			"longitude": {Type: "number", Description: "Longitude of the location"},
			"days":      {Type: "integer", Description: "Number of days to forecast (up to 16)", Default: MaxForecastDays},
		}, "latitude", "longitude"),
		fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			a := forecastArgs{Days: MaxForecastDays}
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return text(p.ForecastText(ctx, a.Latitude, a.Longitude, a.Days))
		},
	})
}

// ForecastText renders the forecast as indented JSON, or an error sentence.
func (p *WeatherPlugin) ForecastText(ctx context.Context, lat, lon float64, days int) string {
	fc, err := p.Forecast(ctx, lat, lon, days)
	if err != nil {
		p.logger.Warn("forecast failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return fmt.Sprintf("Error fetching forecast weather: %s", err)
	}
	out, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error fetching forecast weather: %s", err)
	}
	return string(out)
}

// Forecast fetches up to days (clamped to 1..16) of daily weather.
func (p *WeatherPlugin) Forecast(ctx context.Context, lat, lon float64, days int) (*Forecast, error) {
	days = min(max(days, 1), MaxForecastDays)

	q := url.Values{}
	q.Set("latitude", formatFloat(lat))
	q.Set("longitude", formatFloat(lon))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max,weather_code")
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("wind_speed_unit", "mph")
	q.Set("precipitation_unit", "inch")
	q.Set("forecast_days", strconv.Itoa(days))
	q.Set("timezone", "auto")

	var resp openMeteoResponse
	if err := p.fetch.getJSON(ctx, p.baseURL+"/v1/forecast?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	d := resp.Daily
	n := len(d.Time)
	if len(d.Temperature2mMax) < n || len(d.Temperature2mMin) < n || len(d.PrecipitationSum) < n ||
		len(d.PrecipitationProbabilityMax) < n || len(d.WeatherCode) < n {
		return nil, fmt.Errorf("malformed daily forecast: series lengths differ")
	}

	fc := &Forecast{
		LocationCoords: formatFloat(lat) + ", " + formatFloat(lon),
		ForecastDays:   n,
		Forecasts:      make([]DayForecast, 0, n),
	}
	for i := 0; i < n; i++ {
		day := d.Time[i]
		if t, err := time.Parse(dateLayout, d.Time[i]); err == nil {
			day = t.Format("Monday, January 02")
		}
		fc.Forecasts = append(fc.Forecasts, DayForecast{
			Date:                     d.Time[i],
			Day:                      day,
			HighTemp:                 formatFloat(d.Temperature2mMax[i]) + "°F",
			LowTemp:                  formatFloat(d.Temperature2mMin[i]) + "°F",
			Precipitation:            formatFloat(d.PrecipitationSum[i]) + " inches",
			PrecipitationProbability: formatFloat(d.PrecipitationProbabilityMax[i]) + "%",
			Conditions:               WeatherDescription(d.WeatherCode[i]),
		})
	}
	return fc, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
