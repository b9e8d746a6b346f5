package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeBraces(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"placeholder kept", "room {room_id}", "room {room_id}"},
		{"json literal doubled", `{"min": 0}`, `{{"min": 0}}`},
		{"nested literal around placeholder", `{"schema": {device_schema}}`, `{{"schema": {device_schema}}}`},
		{"digit-leading name is not a placeholder", "{1abc}", "{{1abc}}"},
		{"empty braces", "{}", "{{}}"},
		{"lone closing brace", "a } b", "a }} b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeBraces(tt.in))
		})
	}
}

func TestInterpolate(t *testing.T) {
	slots := map[string]string{"room_id": "611", "device_schema": `{"air_cooler": {}}`, "note": "{not_a_slot}"}

	got, err := interpolate(`Room {room_id}: {"devices": {device_schema}, "note": "{note}"}`, slots)

	require.NoError(t, err)
	assert.Equal(t, `Room 611: {"devices": {"air_cooler": {}}, "note": "{not_a_slot}"}`, got)
}

func TestInterpolate_UnknownSlot(t *testing.T) {
	_, err := interpolate("Room {room_id} weather {weather}", map[string]string{"room_id": "611"})

	var se *SlotError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "weather", se.Slot)
}

func TestSlotNames(t *testing.T) {
	names := SlotNames(`{b} {a} {"x": 1} {a} {c_1}`)
	assert.Equal(t, []string{"a", "b", "c_1"}, names)
}
