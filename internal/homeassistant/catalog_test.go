package homeassistant

import (
	"testing"

	"github.com/resident-x/go-aims/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	assert.Equal(t, "1.0", c.Version())
	require.Equal(t, 15, c.Len())

	names := make([]string, 0, c.Len())
	for _, m := range c.Metrics() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{
		"Utility Line Voltage",
		"Utility Line Voltage Fault",
		"Inverter Output Voltage",
		"Battery Voltage",
		"Inverter Load Percentage",
		"Inverter Output Frequency",
		"Inverter Temperature",
		"Utility Line Power",
		"Battery Status",
		"Inverter AVR Active",
		"Inverter UPS Failed",
		"Inverter UPS Line Interactive",
		"Inverter UPS Testing",
		"Inverter UPS Shutdown Trigger",
		"Inverter UPS Beep Enabled",
	}, names)
}

func TestCatalog_Metadata(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	tests := []struct {
		name        string
		component   string
		deviceClass string
		unit        string
		stateClass  string
	}{
		{"Utility Line Voltage", ComponentSensor, "voltage", "V", "measurement"},
		{"Inverter Load Percentage", ComponentSensor, "power_factor", "%", "measurement"},
		{"Inverter Output Frequency", ComponentSensor, "frequency", "Hz", "measurement"},
		{"Inverter Temperature", ComponentSensor, "temperature", "°C", "measurement"},
		{"Utility Line Power", ComponentBinarySensor, "power", "", ""},
		{"Battery Status", ComponentBinarySensor, "battery", "", ""},
		{"Inverter UPS Beep Enabled", ComponentBinarySensor, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := c.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.component, m.Component)
			assert.Equal(t, tt.deviceClass, m.DeviceClass)
			assert.Equal(t, tt.unit, m.Unit)
			assert.Equal(t, tt.stateClass, m.StateClass)
		})
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	m, ok := c.Lookup("utilitylinevoltage")
	require.True(t, ok)
	assert.Equal(t, "Utility Line Voltage", m.Name)

	_, ok = c.Lookup("Grid Frequency")
	assert.False(t, ok)
}

func TestCatalog_MetricsReturnsCopy(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	metrics := c.Metrics()
	metrics[0].Name = "changed"
	assert.Equal(t, "Utility Line Voltage", c.Metrics()[0].Name)
}

func TestMetric_ValueOf(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	frame := domain.InverterFrame{
		LineVoltage:       "208.4",
		LineVoltageFault:  "140.0",
		OutputVoltage:     "208.4",
		OutputLoadPercent: "034",
		OutputFrequency:   "59.9",
		BatteryVoltage:    "2.05",
		Temperature:       "35.0",
		StatusBits:        "00001001",
	}
	flags := domain.StatusFlags{LineInteractive: true, BeeperOn: true}

	tests := []struct {
		name     string
		expected string
	}{
		{"Utility Line Voltage", "208.4"},
		{"Utility Line Voltage Fault", "140.0"},
		{"Battery Voltage", "2.05"},
		{"Inverter Load Percentage", "34"},
		{"Inverter Output Frequency", "59.9"},
		{"Inverter Temperature", "35.0"},
		{"Utility Line Power", "ON"},
		{"Battery Status", "OFF"},
		{"Inverter AVR Active", "OFF"},
		{"Inverter UPS Line Interactive", "ON"},
		{"Inverter UPS Beep Enabled", "ON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := c.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.expected, m.ValueOf(frame, flags).Render())
		})
	}
}

func TestMetric_UtilityLinePowerIsInverted(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	m, ok := c.Lookup("Utility Line Power")
	require.True(t, ok)

	assert.Equal(t, "OFF", m.ValueOf(domain.InverterFrame{}, domain.StatusFlags{UtilityFail: true}).Render())
	assert.Equal(t, "ON", m.ValueOf(domain.InverterFrame{}, domain.StatusFlags{}).Render())
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "invalid yaml",
			yaml: "metrics: [",
		},
		{
			name: "no metrics",
			yaml: "version: \"1.0\"\nmetrics: []\n",
		},
		{
			name: "unknown component",
			yaml: "metrics:\n  - name: A\n    component: switch\n    source: line_voltage\n",
		},
		{
			name: "unknown sensor source",
			yaml: "metrics:\n  - name: A\n    component: sensor\n    source: grid_power\n",
		},
		{
			name: "unknown flag source",
			yaml: "metrics:\n  - name: A\n    component: binary_sensor\n    source: line_voltage\n",
		},
		{
			name: "unknown transform",
			yaml: "metrics:\n  - name: A\n    component: sensor\n    source: line_voltage\n    transform: hex\n",
		},
		{
			name: "binary sensor with numeric transform",
			yaml: "metrics:\n  - name: A\n    component: binary_sensor\n    source: testing\n    transform: integer\n",
		},
		{
			name: "missing name",
			yaml: "metrics:\n  - component: sensor\n    source: line_voltage\n",
		},
		{
			name: "duplicate key",
			yaml: "metrics:\n  - name: Line Voltage\n    component: sensor\n    source: line_voltage\n  - name: line voltage\n    component: sensor\n    source: output_voltage\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseCatalog_NumericTransformFallsBackToText(t *testing.T) {
	c, err := ParseCatalog([]byte("metrics:\n  - name: Load\n    component: sensor\n    source: output_load_percent\n    transform: integer\n"))
	require.NoError(t, err)

	m := c.Metrics()[0]
	v := m.ValueOf(domain.InverterFrame{OutputLoadPercent: "n/a"}, domain.StatusFlags{})
	assert.Equal(t, domain.ValueText, v.Kind())
	assert.Equal(t, "n/a", v.Render())
}
