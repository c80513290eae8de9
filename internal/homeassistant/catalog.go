// Package homeassistant provides the metric catalog and the MQTT discovery and
// state publishing contract expected by Home Assistant.
package homeassistant

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/resident-x/go-aims/internal/domain"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed layouts/metrics.yaml
var metricsYAML []byte

// Entity component kinds.
const (
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
)

// Value transforms applied to frame fields.
const (
	TransformText    = "text"
	TransformInteger = "integer"
	TransformFloat   = "float"
	TransformBool    = "bool"
)

// MetricConfig represents one metric entry from the layout YAML.
type MetricConfig struct {
	Name              string `yaml:"name"`
	Component         string `yaml:"component"`
	DeviceClass       string `yaml:"device_class,omitempty"`
	UnitOfMeasurement string `yaml:"unit_of_measurement,omitempty"`
	StateClass        string `yaml:"state_class,omitempty"`
	Source            string `yaml:"source"`
	Transform         string `yaml:"transform,omitempty"`
	Invert            bool   `yaml:"invert,omitempty"`
}

// LayoutConfig represents the full metric layout.
type LayoutConfig struct {
	Version     string         `yaml:"version"`
	Description string         `yaml:"description"`
	Metrics     []MetricConfig `yaml:"metrics"`
}

var fieldSources = map[string]func(domain.InverterFrame) string{
	"line_voltage":        func(f domain.InverterFrame) string { return f.LineVoltage },
	"line_voltage_fault":  func(f domain.InverterFrame) string { return f.LineVoltageFault },
	"output_voltage":      func(f domain.InverterFrame) string { return f.OutputVoltage },
	"output_load_percent": func(f domain.InverterFrame) string { return f.OutputLoadPercent },
	"output_frequency":    func(f domain.InverterFrame) string { return f.OutputFrequency },
	"battery_voltage":     func(f domain.InverterFrame) string { return f.BatteryVoltage },
	"temperature":         func(f domain.InverterFrame) string { return f.Temperature },
}

var flagSources = map[string]func(domain.StatusFlags) bool{
	"utility_fail":     func(s domain.StatusFlags) bool { return s.UtilityFail },
	"battery_low":      func(s domain.StatusFlags) bool { return s.BatteryLow },
	"avr_active":       func(s domain.StatusFlags) bool { return s.AVRActive },
	"ups_failed":       func(s domain.StatusFlags) bool { return s.UPSFailed },
	"line_interactive": func(s domain.StatusFlags) bool { return s.LineInteractive },
	"testing":          func(s domain.StatusFlags) bool { return s.Testing },
	"shutdown_active":  func(s domain.StatusFlags) bool { return s.ShutdownActive },
	"beeper_on":        func(s domain.StatusFlags) bool { return s.BeeperOn },
}

// Metric describes one published quantity. Discovery and state messages for a
// metric are both derived from this descriptor.
type Metric struct {
	Name        string
	Component   string
	DeviceClass string
	Unit        string
	StateClass  string
	Source      string

	valueOf func(domain.InverterFrame, domain.StatusFlags) domain.Value
}

// Key returns the normalized metric key used in topics.
func (m Metric) Key() string {
	return Normalize(m.Name)
}

// ValueOf extracts the metric value from a frame and its decoded flags.
func (m Metric) ValueOf(frame domain.InverterFrame, flags domain.StatusFlags) domain.Value {
	return m.valueOf(frame, flags)
}

// Catalog is the ordered, read-only set of published metrics.
type Catalog struct {
	version string
	metrics []Metric
}

// LoadCatalog builds the catalog from the embedded layout.
func LoadCatalog() (*Catalog, error) {
	c, err := ParseCatalog(metricsYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric layout: %w", err)
	}

	log.Debug().
		Str("version", c.version).
		Int("metric_count", len(c.metrics)).
		Msg("Metric catalog loaded from embedded layout")
	return c, nil
}

// ParseCatalog builds a catalog from layout YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var layout LayoutConfig
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metric layout: %w", err)
	}
	if len(layout.Metrics) == 0 {
		return nil, fmt.Errorf("metric layout defines no metrics")
	}

	c := &Catalog{version: layout.Version}
	seen := make(map[string]bool, len(layout.Metrics))
	for i, mc := range layout.Metrics {
		m, err := buildMetric(mc)
		if err != nil {
			return nil, fmt.Errorf("metric %d (%q): %w", i, mc.Name, err)
		}
		if seen[m.Key()] {
			return nil, fmt.Errorf("metric %d (%q): duplicate key %q", i, mc.Name, m.Key())
		}
		seen[m.Key()] = true
		c.metrics = append(c.metrics, m)
	}
	return c, nil
}

func buildMetric(mc MetricConfig) (Metric, error) {
	if mc.Name == "" {
		return Metric{}, fmt.Errorf("name is required")
	}
	m := Metric{
		Name:        mc.Name,
		Component:   mc.Component,
		DeviceClass: mc.DeviceClass,
		Unit:        mc.UnitOfMeasurement,
		StateClass:  mc.StateClass,
		Source:      mc.Source,
	}

	switch mc.Component {
	case ComponentSensor:
		field, ok := fieldSources[mc.Source]
		if !ok {
			return Metric{}, fmt.Errorf("unknown sensor source %q", mc.Source)
		}
		transform, err := fieldTransform(mc.Transform)
		if err != nil {
			return Metric{}, err
		}
		m.valueOf = func(f domain.InverterFrame, _ domain.StatusFlags) domain.Value {
			return transform(field(f))
		}
	case ComponentBinarySensor:
		flag, ok := flagSources[mc.Source]
		if !ok {
			return Metric{}, fmt.Errorf("unknown binary_sensor source %q", mc.Source)
		}
		if mc.Transform != "" && mc.Transform != TransformBool {
			return Metric{}, fmt.Errorf("binary_sensor transform must be %q, got %q", TransformBool, mc.Transform)
		}
		invert := mc.Invert
		m.valueOf = func(_ domain.InverterFrame, s domain.StatusFlags) domain.Value {
			return domain.BoolValue(flag(s) != invert)
		}
	default:
		return Metric{}, fmt.Errorf("unknown component %q", mc.Component)
	}

	return m, nil
}

// fieldTransform returns the conversion for a frame field. Parse validates the
// field grammar, so the fallbacks to text only trigger on frames built by hand.
func fieldTransform(name string) (func(string) domain.Value, error) {
	switch name {
	case "", TransformText:
		return domain.TextValue, nil
	case TransformInteger:
		return func(s string) domain.Value {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return domain.TextValue(s)
			}
			return domain.IntegerValue(i)
		}, nil
	case TransformFloat:
		return func(s string) domain.Value {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return domain.TextValue(s)
			}
			return domain.FloatValue(f)
		}, nil
	default:
		return nil, fmt.Errorf("unknown transform %q", name)
	}
}

// Metrics returns the metrics in publish order.
func (c *Catalog) Metrics() []Metric {
	out := make([]Metric, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Len returns the number of metrics.
func (c *Catalog) Len() int {
	return len(c.metrics)
}

// Version returns the layout version.
func (c *Catalog) Version() string {
	return c.version
}

// Lookup finds a metric by display name or normalized key.
func (c *Catalog) Lookup(name string) (Metric, bool) {
	key := Normalize(name)
	for _, m := range c.metrics {
		if m.Key() == key {
			return m, true
		}
	}
	return Metric{}, false
}
