package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// decodeDeviceConfigs reads the jsonb device snapshot ({"air_cooler": {"tem_set": 18, ...}}).
// Non-numeric points are skipped; booleans become 0/1.
func decodeDeviceConfigs(raw []byte) (map[string]entities.DeviceConfig, error) {
	if len(raw) == 0 {
		return map[string]entities.DeviceConfig{}, nil
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode device_config: %w", err)
	}

	out := make(map[string]entities.DeviceConfig, len(decoded))
	for device, points := range decoded {
		cfg := make(entities.DeviceConfig, len(points))
		for point, v := range points {
			switch t := v.(type) {
			case float64:
				cfg[point] = t
			case bool:
				if t {
					cfg[point] = 1
				} else {
					cfg[point] = 0
				}
			case string:
				if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
					cfg[point] = f
				}
			}
		}
		out[device] = cfg
	}
	return out, nil
}
