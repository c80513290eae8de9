// Package domain provides core domain models and interfaces for the go-aims application
package domain

import (
	"context"
	"time"
)

// InverterFrame represents one decoded Q1 status response.
//
// Numeric fields are kept as the text the inverter sent. Battery voltage in
// particular is S.SS on online units and SS.S on standby units, so rounding
// here would lose information that only the consumer can interpret.
type InverterFrame struct {
	LineVoltage       string `json:"line_voltage"`
	LineVoltageFault  string `json:"line_voltage_fault"`
	OutputVoltage     string `json:"output_voltage"`
	OutputLoadPercent string `json:"output_load_percent"`
	OutputFrequency   string `json:"output_frequency"`
	BatteryVoltage    string `json:"battery_voltage"`
	Temperature       string `json:"temperature"`
	StatusBits        string `json:"status_bits"`
}

// StatusFlags holds the eight UPS status bits of a frame.
type StatusFlags struct {
	UtilityFail     bool `json:"utility_fail"`
	BatteryLow      bool `json:"battery_low"`
	AVRActive       bool `json:"avr_active"`
	UPSFailed       bool `json:"ups_failed"`
	LineInteractive bool `json:"line_interactive"`
	Testing         bool `json:"testing"`
	ShutdownActive  bool `json:"shutdown_active"`
	BeeperOn        bool `json:"beeper_on"`
}

// Message is a single message handed to the bus.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Transport is a line-oriented serial link to the inverter.
type Transport interface {
	// Write sends raw bytes to the device
	Write(p []byte) error

	// ReadLine returns one response line, waiting at most timeout
	ReadLine(timeout time.Duration) ([]byte, error)

	// Close releases the underlying port
	Close() error
}

// TransportOpener opens a fresh transport for one exchange.
type TransportOpener func() (Transport, error)

// MessagePublisher defines the interface for publishing messages to the bus.
type MessagePublisher interface {
	// Connect establishes a connection to the messaging system
	Connect(ctx context.Context) error

	// Publish sends payload to topic with at-most-once delivery
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error

	// Close terminates the connection to the messaging system
	Close() error
}
