package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ValueKind tags the representation carried by a Value.
type ValueKind int

const (
	ValueText ValueKind = iota
	ValueInteger
	ValueFloat
	ValueBool
)

// String returns the string representation of the value kind.
func (k ValueKind) String() string {
	switch k {
	case ValueText:
		return "text"
	case ValueInteger:
		return "integer"
	case ValueFloat:
		return "float"
	case ValueBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Payloads Home Assistant expects for binary sensors. Case sensitive.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Value is a metric reading together with the rule used to render it as a
// state payload.
type Value struct {
	kind ValueKind
	text string
	i    int64
	f    float64
	b    bool
}

// TextValue returns a value rendered verbatim.
func TextValue(s string) Value {
	return Value{kind: ValueText, text: s}
}

// IntegerValue returns a value rendered as canonical decimal.
func IntegerValue(i int64) Value {
	return Value{kind: ValueInteger, i: i}
}

// FloatValue returns a value rendered in shortest decimal form.
func FloatValue(f float64) Value {
	return Value{kind: ValueFloat, f: f}
}

// BoolValue returns a value rendered as ON or OFF.
func BoolValue(b bool) Value {
	return Value{kind: ValueBool, b: b}
}

// Kind reports how the value is represented.
func (v Value) Kind() ValueKind {
	return v.kind
}

// Render returns the state payload text for the value.
func (v Value) Render() string {
	switch v.kind {
	case ValueInteger:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return formatFloat(v.f)
	case ValueBool:
		if v.b {
			return PayloadOn
		}
		return PayloadOff
	default:
		return v.text
	}
}

// MarshalJSON encodes the value as its native JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueInteger:
		return json.Marshal(v.i)
	case ValueFloat:
		return []byte(formatFloat(v.f)), nil
	case ValueBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.text)
	}
}

// formatFloat keeps one fractional digit on integral values, so 60 renders as 60.0.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.ContainsAny(s, ".IN") {
		return s
	}
	return s + ".0"
}
