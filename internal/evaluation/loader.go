package evaluation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// LoadGoldenDecisions reads and parses a golden decision set from a JSON file.
func LoadGoldenDecisions(path string) ([]GoldenDecision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden decisions file: %w", err)
	}

	var cases []GoldenDecision
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse golden decisions: %w", err)
	}

	return cases, nil
}

// ValidateGoldenDecisions checks that all scenarios have required fields and
// only reference devices and fields present in spec.
func ValidateGoldenDecisions(cases []GoldenDecision, spec *entities.DeviceSpec) error {
	seen := make(map[string]struct{}, len(cases))

	for i, c := range cases {
		if c.ID == "" {
			return fmt.Errorf("case at index %d: missing id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("case at index %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}

		switch c.ExpectedStatus {
		case entities.DecisionSuccess, entities.DecisionFallback, entities.DecisionError:
		default:
			return fmt.Errorf("case %q: invalid expected_status %q", c.ID, c.ExpectedStatus)
		}
		if !c.Difficulty.IsValid() {
			return fmt.Errorf("case %q: invalid difficulty %q (must be easy/medium/hard)", c.ID, c.Difficulty)
		}

		for device, fields := range c.ExpectedValues {
			dev, ok := spec.Device(device)
			if !ok {
				return fmt.Errorf("case %q: unknown device %q", c.ID, device)
			}
			for field := range fields {
				if _, ok := dev.Field(field); !ok {
					return fmt.Errorf("case %q: unknown field %s.%s", c.ID, device, field)
				}
			}
		}
	}

	return nil
}
