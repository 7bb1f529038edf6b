package plugins

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/agentcrew/llm/tools"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"

	invalidDateMessage = "Invalid date format. Please use YYYY-MM-DD."
)

// TimePlugin answers date and time questions against an injectable clock.
type TimePlugin struct {
	now func() time.Time
}

// NewTimePlugin creates a TimePlugin; nil now uses time.Now.
func NewTimePlugin(now func() time.Time) *TimePlugin {
	if now == nil {
		now = time.Now
	}
	return &TimePlugin{now: now}
}

func (p *TimePlugin) Name() string { return "time" }

type dateArgs struct {
	Date string `json:"date,omitempty"`
}

var dateParams = tools.ObjectSchema(map[string]tools.Property{
	"date": {Type: "string", Description: "The date string in format YYYY-MM-DD. Defaults to today."},
})

func (p *TimePlugin) Register(r tools.ToolRegistry) error {
	return register(r,
		function{
			name:        "current_time",
			description: "Get the current date and time.",
			params:      tools.ObjectSchema(nil),
			fn: func(context.Context, json.RawMessage) (json.RawMessage, error) {
				return text(p.CurrentTime())
			},
		},
		function{
			name:        "get_date",
			description: "Get today's date in YYYY-MM-DD format.",
			params:      tools.ObjectSchema(nil),
			fn: func(context.Context, json.RawMessage) (json.RawMessage, error) {
				return text(p.Today())
			},
		},
		p.dateFunction("get_year", "Extract the year from a date string.", func(t time.Time) string {
			return strconv.Itoa(t.Year())
		}),
		p.dateFunction("get_month", "Extract the full month name from a date string.", func(t time.Time) string {
			return t.Month().String()
		}),
		p.dateFunction("get_day_of_week", "Get the day of week for a date.", func(t time.Time) string {
			return t.Weekday().String()
		}),
	)
}

func (p *TimePlugin) dateFunction(name, desc string, extract func(time.Time) string) function {
	return function{
		name:        name,
		description: desc,
		params:      dateParams,
		fn: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			var a dateArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			t, ok := p.resolve(a.Date)
			if !ok {
				return text(invalidDateMessage)
			}
			return text(extract(t))
		},
	}
}

// CurrentTime formats the current local time.
func (p *TimePlugin) CurrentTime() string {
	return p.now().Format(dateTimeLayout)
}

// Today formats the current local date.
func (p *TimePlugin) Today() string {
	return p.now().Format(dateLayout)
}

// resolve parses a YYYY-MM-DD date; empty means today.
func (p *TimePlugin) resolve(date string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return p.now(), true
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
