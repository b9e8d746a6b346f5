package entities

import "time"

// ChangeType classifies a detected setpoint change.
type ChangeType string

const (
	ChangeEnumState    ChangeType = "enum_state"
	ChangeAnalogValue  ChangeType = "analog_value"
	ChangeDigitalOnOff ChangeType = "digital_on_off"
)

// DeviceChangeRecord is one setpoint change detected on a room device.
type DeviceChangeRecord struct {
	ID               int64      `json:"id"`
	RoomID           string     `json:"room_id"`
	DeviceType       string     `json:"device_type"`
	DeviceName       string     `json:"device_name"`
	PointName        string     `json:"point_name"`
	PointDescription string     `json:"point_description"`
	ChangedAt        time.Time  `json:"change_timestamp"`
	PreviousValue    *float64   `json:"previous_value,omitempty"`
	CurrentValue     *float64   `json:"current_value,omitempty"`
	ChangeMagnitude  *float64   `json:"change_magnitude,omitempty"`
	ChangeType       ChangeType `json:"change_type"`
}

// DeviceChangeFilter selects changes in an inclusive time range.
type DeviceChangeFilter struct {
	RoomID      string
	From        time.Time
	To          time.Time
	DeviceTypes []string
}

// Matches reports whether a change satisfies the filter.
func (f DeviceChangeFilter) Matches(c *DeviceChangeRecord) bool {
	if c == nil || c.RoomID != f.RoomID {
		return false
	}
	if c.ChangedAt.Before(f.From) || c.ChangedAt.After(f.To) {
		return false
	}
	if len(f.DeviceTypes) == 0 {
		return true
	}
	for _, dt := range f.DeviceTypes {
		if dt == c.DeviceType {
			return true
		}
	}
	return false
}
