// Package devicespec loads the device-capability document into an immutable entities.DeviceSpec.
package devicespec

import (
	"fmt"
	"os"
	"strings"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	apperrors "github.com/mycogrow/growroom-advisor/pkg/errors"
	"gopkg.in/yaml.v3"
)

type document struct {
	Version string           `yaml:"version"`
	Devices []deviceDocument `yaml:"devices"`
}

type deviceDocument struct {
	Type        string               `yaml:"type"`
	Label       string               `yaml:"label"`
	Fields      []fieldDocument      `yaml:"fields"`
	Constraints []constraintDocument `yaml:"constraints,omitempty"`
}

type fieldDocument struct {
	Name     string           `yaml:"name"`
	Label    string           `yaml:"label"`
	Kind     string           `yaml:"kind"`
	Unit     string           `yaml:"unit,omitempty"`
	Min      *float64         `yaml:"min,omitempty"`
	Max      *float64         `yaml:"max,omitempty"`
	Options  []optionDocument `yaml:"options,omitempty"`
	Default  *float64         `yaml:"default,omitempty"`
	Required bool             `yaml:"required,omitempty"`
}

type optionDocument struct {
	Value int    `yaml:"value"`
	Label string `yaml:"label"`
}

type constraintDocument struct {
	Kind        string  `yaml:"kind"`
	Field       string  `yaml:"field"`
	Other       string  `yaml:"other"`
	MinGap      float64 `yaml:"min_gap,omitempty"`
	Description string  `yaml:"description,omitempty"`
}

// Load reads and validates a device-capability document from disk.
func Load(path string) (*entities.DeviceSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.NewConfigError("device spec path is required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("failed to read device spec %s", path), err)
	}
	return Parse(data)
}

// Parse decodes a device-capability document.
func Parse(data []byte) (*entities.DeviceSpec, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewConfigError("failed to decode device spec", err)
	}
	if strings.TrimSpace(doc.Version) == "" {
		return nil, apperrors.NewConfigError("device spec version is required", nil)
	}

	devices := make([]entities.DeviceTypeSpec, 0, len(doc.Devices))
	for _, d := range doc.Devices {
		dev := entities.DeviceTypeSpec{
			Type:  strings.TrimSpace(d.Type),
			Label: d.Label,
		}
		for _, f := range d.Fields {
			field, err := toField(dev.Type, f)
			if err != nil {
				return nil, err
			}
			dev.Fields = append(dev.Fields, field)
		}
		for _, c := range d.Constraints {
			dev.Constraints = append(dev.Constraints, entities.Constraint{
				Kind:        entities.ConstraintKind(c.Kind),
				Field:       c.Field,
				Other:       c.Other,
				MinGap:      c.MinGap,
				Description: c.Description,
			})
		}
		devices = append(devices, dev)
	}

	spec, err := entities.NewDeviceSpec(doc.Version, devices)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid device spec", err)
	}
	return spec, nil
}

func toField(device string, f fieldDocument) (entities.FieldSpec, error) {
	field := entities.FieldSpec{
		Name:     strings.TrimSpace(f.Name),
		Label:    f.Label,
		Kind:     entities.FieldKind(f.Kind),
		Unit:     f.Unit,
		Required: f.Required,
	}
	if field.Label == "" {
		field.Label = field.Name
	}

	switch field.Kind {
	case entities.FieldKindNumeric:
		if f.Min == nil || f.Max == nil {
			return field, apperrors.NewConfigError(fmt.Sprintf("device %q: numeric field %q needs min and max", device, field.Name), nil)
		}
		field.Min, field.Max = *f.Min, *f.Max
		field.Default = field.Min
	case entities.FieldKindEnum:
		for _, opt := range f.Options {
			field.Options = append(field.Options, entities.EnumOption{Value: opt.Value, Label: opt.Label})
		}
		if len(field.Options) > 0 {
			field.Default = float64(field.Options[0].Value)
		}
	}

	if f.Default != nil {
		field.Default = *f.Default
	}
	return field, nil
}
