// Package parser decodes Q1 status responses into inverter frames.
package parser

import (
	"fmt"
	"strings"

	"github.com/resident-x/go-aims/internal/domain"
	"github.com/resident-x/go-aims/internal/protocol"
	"github.com/resident-x/go-aims/internal/validation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorKind classifies a parse failure.
type ErrorKind int

const (
	// MalformedFrame means the text does not follow the Q1 frame grammar.
	MalformedFrame ErrorKind = iota
	// EncodingError means the bytes are not 7-bit ASCII.
	EncodingError
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case MalformedFrame:
		return "malformed frame"
	case EncodingError:
		return "encoding error"
	default:
		return "unknown"
	}
}

// ParseError is returned by Parse. It matches domain.ErrProtocol or
// domain.ErrEncoding under errors.Is, depending on Kind.
type ParseError struct {
	Kind   ErrorKind
	Raw    string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (raw %q)", e.Kind, e.Reason, e.Raw)
}

// Unwrap exposes the failure class and the underlying validation finding.
func (e *ParseError) Unwrap() []error {
	errs := []error{domain.ErrProtocol}
	if e.Kind == EncodingError {
		errs[0] = domain.ErrEncoding
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Parser turns raw Q1 responses into frames.
type Parser struct {
	validator *validation.FrameValidator
	logger    zerolog.Logger
}

// NewParser creates a new parser.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{
		validator: validation.NewFrameValidator(logger),
		logger:    logger.With().Str("component", "parser").Logger(),
	}
}

// Parse decodes one response line using the global logger.
func Parse(raw []byte) (domain.InverterFrame, error) {
	return NewParser(log.Logger).Parse(raw)
}

// Parse decodes one response line. The frame is either complete and valid or
// the zero value is returned together with a *ParseError.
func (p *Parser) Parse(raw []byte) (domain.InverterFrame, error) {
	for _, b := range raw {
		if b > 0x7f {
			return domain.InverterFrame{}, &ParseError{
				Kind:   EncodingError,
				Raw:    string(raw),
				Reason: fmt.Sprintf("non-ASCII byte 0x%02x", b),
			}
		}
	}

	text := strings.TrimSpace(string(raw))
	// The start byte is optional; only a leading '(' is dropped.
	text = strings.TrimPrefix(text, string(protocol.StartByte))

	tokens := strings.Fields(text)
	if len(tokens) != protocol.FieldCount {
		return domain.InverterFrame{}, &ParseError{
			Kind:   MalformedFrame,
			Raw:    string(raw),
			Reason: fmt.Sprintf("expected %d fields, got %d", protocol.FieldCount, len(tokens)),
		}
	}

	result := p.validator.ValidateTokens(tokens)
	if err := result.Err(); err != nil {
		return domain.InverterFrame{}, &ParseError{
			Kind:   MalformedFrame,
			Raw:    string(raw),
			Reason: err.Error(),
			Err:    err,
		}
	}
	for _, w := range result.Warnings {
		p.logger.Warn().Str("field", w.Field).Str("value", w.Value).Msg(w.Message)
	}

	frame := domain.InverterFrame{
		LineVoltage:       tokens[protocol.FieldLineVoltage],
		LineVoltageFault:  tokens[protocol.FieldLineVoltageFault],
		OutputVoltage:     tokens[protocol.FieldOutputVoltage],
		OutputLoadPercent: tokens[protocol.FieldOutputLoadPercent],
		OutputFrequency:   tokens[protocol.FieldOutputFrequency],
		BatteryVoltage:    tokens[protocol.FieldBatteryVoltage],
		Temperature:       tokens[protocol.FieldTemperature],
		StatusBits:        tokens[protocol.FieldStatusBits],
	}

	p.logger.Debug().Interface("frame", frame).Msg("Frame parsed")
	return frame, nil
}

// GetValidationStatistics returns the validator counters.
func (p *Parser) GetValidationStatistics() map[string]interface{} {
	return p.validator.GetStatistics()
}
