package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/agentcrew/llm/tools"
)

// ErrInvalidDaySpec is returned by ParseDaySpec for unrecognized input.
var ErrInvalidDaySpec = errors.New("invalid day specification")

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDaySpec converts "", "today", "tomorrow", a day count, a weekday name
// or "next <weekday>" into days after today.
func ParseDaySpec(spec string, today time.Time) (int, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return 0, nil
	}

	name, nextWeek := s, false
	if len(s) > 5 && strings.EqualFold(s[:5], "next ") {
		name, nextWeek = strings.TrimSpace(s[5:]), true
	}

	if n, err := strconv.Atoi(name); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDaySpec, spec)
		}
		return n, nil
	}

	switch lower := strings.ToLower(name); lower {
	case "today":
		return 0, nil
	case "tomorrow":
		return 1, nil
	default:
		target, ok := weekdays[lower]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDaySpec, spec)
		}
		days := (int(target) - int(today.Weekday()) + 7) % 7
		if nextWeek {
			days += 7
		}
		return days, nil
	}
}

// ForecastPlugin answers "weather in <place> on <day>" by combining the time,
// geocoding and weather plugins.
type ForecastPlugin struct {
	time    *TimePlugin
	geo     *GeocodingPlugin
	weather *WeatherPlugin
}

// NewForecastPlugin wires the composite forecast function.
func NewForecastPlugin(t *TimePlugin, g *GeocodingPlugin, w *WeatherPlugin) *ForecastPlugin {
	return &ForecastPlugin{time: t, geo: g, weather: w}
}

func (p *ForecastPlugin) Name() string { return "forecast" }

type locationForecastArgs struct {
	Location string `json:"location"`
	DaySpec  string `json:"day_spec,omitempty"`
}

func (p *ForecastPlugin) Register(r tools.ToolRegistry) error {
	return register(r, function{
		name:        "get_forecast_for_location",
		description: "Gets weather forecast for any location by coordinating the time and geocoding functions.",
		params: tools.ObjectSchema(map[string]tools.Property{
			"location": {Type: "string", Description: "The location name (city, address, etc.)"},
			"day_spec": {Type: "string", Description: "The day of the week to get forecast for (e.g. 'Thursday', 'next Tuesday'), number of days in future, or leave empty for today's forecast"},
		}, "location"),
		timeout: 60 * time.Second,
		fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var a locationForecastArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return text(p.ForecastFor(ctx, a.Location, a.DaySpec))
		},
	})
}

// ForecastFor returns the forecast text from today through the requested day.
func (p *ForecastPlugin) ForecastFor(ctx context.Context, location, daySpec string) string {
	today, err := time.Parse(dateLayout, p.time.Today())
	if err != nil {
		return "Could not determine the current date."
	}

	days, err := ParseDaySpec(daySpec, today)
	if err != nil {
		return fmt.Sprintf("Invalid day specification: %s. Please provide a day name (e.g. 'Thursday', 'next Tuesday'), 'today', 'tomorrow', a number of days, or leave empty for today's forecast.", daySpec)
	}

	loc, err := p.geo.Lookup(ctx, location)
	if errors.Is(err, ErrLocationNotFound) {
		return fmt.Sprintf("Could not get location data for: %s", location)
	}
	if err != nil {
		return fmt.Sprintf("Error coordinating weather forecast: %s", err)
	}

	return p.weather.ForecastText(ctx, loc.Latitude, loc.Longitude, days+1)
}
