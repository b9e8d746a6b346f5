package services_test

import (
	"testing"

	"github.com/mycogrow/growroom-advisor/internal/application/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithStrategies(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		withRepair   bool
		wantStrategy string
		wantKey      string
		wantOK       bool
	}{
		{
			name:         "plain object",
			text:         `  {"strategy": {"core_objective": "hold"}}  `,
			wantStrategy: "direct_json",
			wantKey:      "strategy",
			wantOK:       true,
		},
		{
			name:         "json fenced block after prose",
			text:         "Here is my decision:\n```json\n{\"device_recommendations\": {}}\n```\nLet me know.",
			wantStrategy: "fenced_block",
			wantKey:      "device_recommendations",
			wantOK:       true,
		},
		{
			name:         "labelled fence wins over an earlier unlabelled one",
			text:         "```\n{\"draft\": 1}\n```\nfinal:\n```JSON\n{\"final\": 2}\n```",
			wantStrategy: "fenced_block",
			wantKey:      "final",
			wantOK:       true,
		},
		{
			name:         "unlabelled fence",
			text:         "```\n{\"monitoring_points\": {}}\n```",
			wantStrategy: "fenced_block",
			wantKey:      "monitoring_points",
			wantOK:       true,
		},
		{
			name:         "object embedded in prose",
			text:         `I recommend {"strategy": {"core_objective": "cool down"}} as the plan.`,
			wantStrategy: "balanced_braces",
			wantKey:      "strategy",
			wantOK:       true,
		},
		{
			name:   "trailing comma without repair",
			text:   `{"mode": 1, "co2_on": 1800,}`,
			wantOK: false,
		},
		{
			name:         "trailing comma with repair",
			text:         `{"mode": 1, "co2_on": 1800,}`,
			withRepair:   true,
			wantStrategy: "json_repair",
			wantKey:      "co2_on",
			wantOK:       true,
		},
		{
			name:   "no json at all",
			text:   "I cannot decide right now.",
			wantOK: false,
		},
		{
			name:   "object inside an array",
			text:   `[{"a": 1}]`,
			wantOK: true, wantStrategy: "balanced_braces", wantKey: "a",
		},
		{
			name:   "empty",
			text:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, strategy, ok := services.ParseWithStrategies(tt.text, services.DefaultParseStrategies(tt.withRepair))
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, obj)
				return
			}
			assert.Equal(t, tt.wantStrategy, strategy)
			assert.Contains(t, obj, tt.wantKey)
		})
	}
}

func TestParseBalancedBraces_LongestSpanFirst(t *testing.T) {
	text := `first {"partial": true} then {"strategy": {"core_objective": "x"}, "device_recommendations": {}} end`

	obj, ok := services.ParseBalancedBraces(text)

	require.True(t, ok)
	assert.Contains(t, obj, "device_recommendations")
	assert.NotContains(t, obj, "partial")
}

func TestBalancedSpans_IgnoresBracesInStrings(t *testing.T) {
	spans := services.BalancedSpans(`note {"text": "use } and { freely", "escaped": "\"}"} tail {`)

	require.NotEmpty(t, spans)
	assert.Equal(t, `{"text": "use } and { freely", "escaped": "\"}"}`, spans[0])
}

func TestParseFencedBlock_SkipsNonJSONFences(t *testing.T) {
	_, ok := services.ParseFencedBlock("```python\nprint({'a': 1})\n```")
	assert.False(t, ok)
}
