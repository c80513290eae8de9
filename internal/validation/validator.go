// Package validation provides field-level checks for Q1 status frames.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/resident-x/go-aims/internal/protocol"
	"github.com/rs/zerolog"
)

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

var (
	decimalPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)
	integerPattern = regexp.MustCompile(`^[0-9]+$`)
	statusPattern  = regexp.MustCompile(`^[01]{8}$`)
)

// ValidationError represents a single finding against one frame token.
type ValidationError struct {
	Severity Severity
	Field    string
	Message  string
	Value    string
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("%s validation error in %s: %s (%q)", ve.Severity, ve.Field, ve.Message, ve.Value)
}

// ValidationResult contains the result of a validation check.
type ValidationResult struct {
	Valid    bool
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasWarnings returns true if there are any validation warnings.
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Err returns the first error finding, or nil if the frame is valid.
func (vr *ValidationResult) Err() error {
	if len(vr.Errors) == 0 {
		return nil
	}
	return vr.Errors[0]
}

// Summary returns a summary of the validation result.
func (vr *ValidationResult) Summary() string {
	if vr.Valid && !vr.HasWarnings() {
		return "valid"
	}

	var parts []string
	if !vr.Valid {
		parts = append(parts, fmt.Sprintf("%d errors", len(vr.Errors)))
	}
	if vr.HasWarnings() {
		parts = append(parts, fmt.Sprintf("%d warnings", len(vr.Warnings)))
	}
	return strings.Join(parts, ", ")
}

// FieldRule defines a check applied to one token position.
type FieldRule struct {
	Name  string
	Field int
	Check func(token string) *ValidationError
}

// FrameValidator applies field rules to the tokens of a frame.
type FrameValidator struct {
	rules  []*FieldRule
	logger zerolog.Logger

	validationsPerformed atomic.Int64
	errorsFound          atomic.Int64
	warningsFound        atomic.Int64
}

// NewFrameValidator creates a validator with the default Q1 rules.
func NewFrameValidator(logger zerolog.Logger) *FrameValidator {
	fv := &FrameValidator{
		logger: logger.With().Str("component", "validator").Logger(),
	}
	fv.registerDefaultRules()
	return fv
}

// ValidateTokens checks the tokens of a frame. The caller guarantees
// len(tokens) == protocol.FieldCount.
func (fv *FrameValidator) ValidateTokens(tokens []string) *ValidationResult {
	fv.validationsPerformed.Add(1)

	result := &ValidationResult{Valid: true}
	for _, rule := range fv.rules {
		if rule.Field >= len(tokens) {
			continue
		}
		if finding := rule.Check(tokens[rule.Field]); finding != nil {
			fv.add(result, finding)
		}
	}

	if !result.Valid || result.HasWarnings() {
		fv.logger.Debug().
			Strs("tokens", tokens).
			Str("summary", result.Summary()).
			Msg("Frame validation findings")
	}

	return result
}

// AddRule appends a custom field rule.
func (fv *FrameValidator) AddRule(rule *FieldRule) {
	fv.rules = append(fv.rules, rule)
}

// GetStatistics returns validation counters.
func (fv *FrameValidator) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"validations_performed": fv.validationsPerformed.Load(),
		"errors_found":          fv.errorsFound.Load(),
		"warnings_found":        fv.warningsFound.Load(),
	}
}

func (fv *FrameValidator) add(result *ValidationResult, finding *ValidationError) {
	if finding.Severity == SeverityWarning {
		result.Warnings = append(result.Warnings, finding)
		fv.warningsFound.Add(1)
		return
	}
	result.Errors = append(result.Errors, finding)
	result.Valid = false
	fv.errorsFound.Add(1)
}

// registerDefaultRules installs the Q1 rules. Measurement tokens are passed
// through verbatim, so their grammar checks only warn; the status token is the
// one field a frame cannot be decoded without.
func (fv *FrameValidator) registerDefaultRules() {
	for _, field := range []int{
		protocol.FieldLineVoltage,
		protocol.FieldLineVoltageFault,
		protocol.FieldOutputVoltage,
		protocol.FieldOutputFrequency,
		protocol.FieldBatteryVoltage,
		protocol.FieldTemperature,
	} {
		fv.rules = append(fv.rules, decimalRule(field))
	}

	fv.rules = append(fv.rules,
		&FieldRule{
			Name:  "load_percent_integer",
			Field: protocol.FieldOutputLoadPercent,
			Check: func(token string) *ValidationError {
				if !integerPattern.MatchString(token) {
					return newWarning(protocol.FieldOutputLoadPercent, "not an integer", token)
				}
				return nil
			},
		},
		// Load is a percentage of maximum current and may exceed 100 on overload.
		&FieldRule{
			Name:  "load_percent_range",
			Field: protocol.FieldOutputLoadPercent,
			Check: func(token string) *ValidationError {
				v, err := strconv.Atoi(token)
				if err != nil || v <= 100 {
					return nil
				}
				return newWarning(protocol.FieldOutputLoadPercent, "load above 100%", token)
			},
		},
		&FieldRule{
			Name:  "output_frequency_range",
			Field: protocol.FieldOutputFrequency,
			Check: func(token string) *ValidationError {
				v, err := strconv.ParseFloat(token, 64)
				if err != nil || v == 0 || (v >= 40 && v <= 70) {
					return nil
				}
				return newWarning(protocol.FieldOutputFrequency, "frequency outside 40-70 Hz", token)
			},
		},
		&FieldRule{
			Name:  "status_bits_format",
			Field: protocol.FieldStatusBits,
			Check: func(token string) *ValidationError {
				if !statusPattern.MatchString(token) {
					return newError(protocol.FieldStatusBits, "status must be 8 binary digits", token)
				}
				return nil
			},
		},
	)
}

func decimalRule(field int) *FieldRule {
	return &FieldRule{
		Name:  protocol.FieldName(field) + "_decimal",
		Field: field,
		Check: func(token string) *ValidationError {
			if !decimalPattern.MatchString(token) {
				return newWarning(field, "not a decimal number", token)
			}
			return nil
		},
	}
}

func newError(field int, message, value string) *ValidationError {
	return &ValidationError{Severity: SeverityError, Field: protocol.FieldName(field), Message: message, Value: value}
}

func newWarning(field int, message, value string) *ValidationError {
	return &ValidationError{Severity: SeverityWarning, Field: protocol.FieldName(field), Message: message, Value: value}
}
