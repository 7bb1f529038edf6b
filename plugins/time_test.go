package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcrew/llm/tools"
)

func TestTimePlugin(t *testing.T) {
	r := tools.NewDefaultRegistry(nil)
	require.NoError(t, NewTimePlugin(fixedClock).Register(r))

	tests := []struct {
		tool string
		args map[string]string
		want string
	}{
		{"current_time", nil, "2024-01-03 14:30:05"},
		{"get_date", nil, "2024-01-03"},
		{"get_year", nil, "2024"},
		{"get_year", map[string]string{"date": "1999-12-31"}, "1999"},
		{"get_month", nil, "January"},
		{"get_month", map[string]string{"date": "2024-07-04"}, "July"},
		{"get_day_of_week", nil, "Wednesday"},
		{"get_day_of_week", map[string]string{"date": "2024-07-04"}, "Thursday"},
		{"get_year", map[string]string{"date": "04/07/2024"}, invalidDateMessage},
		{"get_month", map[string]string{"date": "2024-13-01"}, invalidDateMessage},
		{"get_day_of_week", map[string]string{"date": "tomorrow"}, invalidDateMessage},
	}
	for _, tt := range tests {
		t.Run(tt.tool+"_"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, callTool(t, r, tt.tool, tt.args))
		})
	}
}

func TestNewTimePlugin_DefaultClock(t *testing.T) {
	p := NewTimePlugin(nil)
	assert.Len(t, p.Today(), len("2006-01-02"))
}
