package entities

import (
	"fmt"
	"math"
)

// FieldKind tags the value domain of a device field.
type FieldKind string

const (
	FieldKindNumeric FieldKind = "numeric"
	FieldKindEnum    FieldKind = "enum"
)

// EnumOption is one allowed code of an enumerated field and its display label.
type EnumOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// FieldSpec describes one configurable point of a device type.
// Numeric fields use Min/Max; enumerated fields use Options.
type FieldSpec struct {
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Kind     FieldKind    `json:"kind"`
	Required bool         `json:"required"`
	Unit     string       `json:"unit,omitempty"`
	Min      float64      `json:"min,omitempty"`
	Max      float64      `json:"max,omitempty"`
	Options  []EnumOption `json:"options,omitempty"`
	Default  float64      `json:"default"`
}

// Contains reports whether v lies in the field's domain.
func (f *FieldSpec) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	switch f.Kind {
	case FieldKindNumeric:
		return v >= f.Min && v <= f.Max
	case FieldKindEnum:
		if v != math.Trunc(v) {
			return false
		}
		for _, opt := range f.Options {
			if float64(opt.Value) == v {
				return true
			}
		}
	}
	return false
}

// Clamp moves v to the nearest bound of a numeric field.
func (f *FieldSpec) Clamp(v float64) float64 {
	if v < f.Min {
		return f.Min
	}
	if v > f.Max {
		return f.Max
	}
	return v
}

// LabelFor returns the display label of an enum code.
func (f *FieldSpec) LabelFor(v float64) (string, bool) {
	for _, opt := range f.Options {
		if float64(opt.Value) == v {
			return opt.Label, true
		}
	}
	return "", false
}

// ValueForLabel maps a display label back to its enum code.
func (f *FieldSpec) ValueForLabel(label string) (int, bool) {
	for _, opt := range f.Options {
		if opt.Label == label {
			return opt.Value, true
		}
	}
	return 0, false
}

// ConstraintKind names a cross-field ordering rule.
type ConstraintKind string

const (
	// ConstraintGreaterThan requires Field > Other.
	ConstraintGreaterThan ConstraintKind = "greater_than"
	// ConstraintLessThan requires Field < Other.
	ConstraintLessThan ConstraintKind = "less_than"
)

// Constraint is a documented ordering between two fields of the same device.
type Constraint struct {
	Kind        ConstraintKind `json:"kind"`
	Field       string         `json:"field"`
	Other       string         `json:"other"`
	MinGap      float64        `json:"min_gap"`
	Description string         `json:"description,omitempty"`
}

// Satisfied reports whether the pair of values honours the ordering and keeps at least MinGap apart.
func (c Constraint) Satisfied(field, other float64) bool {
	var gap float64
	switch c.Kind {
	case ConstraintGreaterThan:
		gap = field - other
	case ConstraintLessThan:
		gap = other - field
	default:
		return true
	}
	return gap > 0 && gap >= c.MinGap
}

// DeviceTypeSpec is the capability description of one device category.
type DeviceTypeSpec struct {
	Type        string       `json:"type"`
	Label       string       `json:"label"`
	Fields      []FieldSpec  `json:"fields"`
	Constraints []Constraint `json:"constraints,omitempty"`

	index map[string]int
}

// Field looks up a field by name.
func (d *DeviceTypeSpec) Field(name string) (*FieldSpec, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return &d.Fields[i], true
}

// DeviceSpec is the immutable device-capability table.
type DeviceSpec struct {
	Version string

	devices []*DeviceTypeSpec
	byType  map[string]*DeviceTypeSpec
}

// NewDeviceSpec validates device definitions and builds the lookup tables.
func NewDeviceSpec(version string, devices []DeviceTypeSpec) (*DeviceSpec, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("device spec %q defines no devices", version)
	}

	spec := &DeviceSpec{
		Version: version,
		byType:  make(map[string]*DeviceTypeSpec, len(devices)),
	}

	for i := range devices {
		d := devices[i]
		if d.Type == "" {
			return nil, fmt.Errorf("device #%d has no type", i)
		}
		if _, dup := spec.byType[d.Type]; dup {
			return nil, fmt.Errorf("device type %q defined twice", d.Type)
		}
		if len(d.Fields) == 0 {
			return nil, fmt.Errorf("device %q defines no fields", d.Type)
		}

		d.Fields = append([]FieldSpec(nil), d.Fields...)
		d.Constraints = append([]Constraint(nil), d.Constraints...)
		d.index = make(map[string]int, len(d.Fields))
		for j := range d.Fields {
			f := &d.Fields[j]
			if err := validateField(d.Type, f); err != nil {
				return nil, err
			}
			if _, dup := d.index[f.Name]; dup {
				return nil, fmt.Errorf("device %q: field %q defined twice", d.Type, f.Name)
			}
			d.index[f.Name] = j
		}

		for _, c := range d.Constraints {
			if err := validateConstraint(&d, c); err != nil {
				return nil, err
			}
		}

		dev := d
		spec.devices = append(spec.devices, &dev)
		spec.byType[d.Type] = &dev
	}

	return spec, nil
}

func validateField(device string, f *FieldSpec) error {
	if f.Name == "" {
		return fmt.Errorf("device %q: field without name", device)
	}
	switch f.Kind {
	case FieldKindNumeric:
		if f.Min > f.Max {
			return fmt.Errorf("device %q: field %q has min %v > max %v", device, f.Name, f.Min, f.Max)
		}
	case FieldKindEnum:
		if len(f.Options) == 0 {
			return fmt.Errorf("device %q: enum field %q has no options", device, f.Name)
		}
	default:
		return fmt.Errorf("device %q: field %q has unknown kind %q", device, f.Name, f.Kind)
	}
	if !f.Contains(f.Default) {
		return fmt.Errorf("device %q: field %q default %v outside its domain", device, f.Name, f.Default)
	}
	return nil
}

func validateConstraint(d *DeviceTypeSpec, c Constraint) error {
	if c.Kind != ConstraintGreaterThan && c.Kind != ConstraintLessThan {
		return fmt.Errorf("device %q: unknown constraint kind %q", d.Type, c.Kind)
	}
	for _, name := range []string{c.Field, c.Other} {
		f, ok := d.Field(name)
		if !ok {
			return fmt.Errorf("device %q: constraint references unknown field %q", d.Type, name)
		}
		if f.Kind != FieldKindNumeric {
			return fmt.Errorf("device %q: constraint field %q must be numeric", d.Type, name)
		}
	}
	if c.MinGap < 0 {
		return fmt.Errorf("device %q: constraint %s/%s has negative min_gap", d.Type, c.Field, c.Other)
	}
	f, _ := d.Field(c.Field)
	o, _ := d.Field(c.Other)
	if !c.Satisfied(f.Default, o.Default) {
		return fmt.Errorf("device %q: defaults of %s/%s violate %s", d.Type, c.Field, c.Other, c.Kind)
	}
	return nil
}

// DeviceTypes returns device types in declaration order.
func (s *DeviceSpec) DeviceTypes() []string {
	out := make([]string, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.Type
	}
	return out
}

// Device looks up a device type.
func (s *DeviceSpec) Device(deviceType string) (*DeviceTypeSpec, bool) {
	d, ok := s.byType[deviceType]
	return d, ok
}

// Devices returns device definitions in declaration order.
func (s *DeviceSpec) Devices() []*DeviceTypeSpec {
	return append([]*DeviceTypeSpec(nil), s.devices...)
}
