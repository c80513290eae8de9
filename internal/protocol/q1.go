// Package protocol describes the Megatec Q1 status exchange spoken by AIMS power inverters.
//
// The host sends "Q1\n" and the inverter answers with a single line:
//
//	(MMM.M NNN.N PPP.P QQQ RR.R S.SS TT.T b7b6b5b4b3b2b1b0<cr>
//
// MMM.M is the input voltage, NNN.N the input fault voltage, PPP.P the output
// voltage, QQQ the load as a percentage of maximum current, RR.R the output
// frequency, S.SS or SS.S the battery voltage (per cell on online units, total
// on standby units), TT.T the temperature and the final token the UPS status byte
// written as eight ASCII '0'/'1' characters.
package protocol

// QueryStatus is the only command the bridge sends.
const QueryStatus = "Q1\n"

// StartByte opens every Q1 response.
const StartByte = '('

// FieldCount is the number of whitespace separated tokens after the start byte.
const FieldCount = 8

// StatusBitsLen is the width of the status byte token.
const StatusBitsLen = 8

// Token positions within a response.
const (
	FieldLineVoltage = iota
	FieldLineVoltageFault
	FieldOutputVoltage
	FieldOutputLoadPercent
	FieldOutputFrequency
	FieldBatteryVoltage
	FieldTemperature
	FieldStatusBits
)

// Status bit positions within the status token. Index 0 carries b7.
const (
	BitUtilityFail = iota
	BitBatteryLow
	BitAVRActive
	BitUPSFailed
	BitLineInteractive
	BitTesting
	BitShutdownActive
	BitBeeperOn
)

// FieldName returns a stable name for a token position, used in diagnostics.
func FieldName(index int) string {
	switch index {
	case FieldLineVoltage:
		return "line_voltage"
	case FieldLineVoltageFault:
		return "line_voltage_fault"
	case FieldOutputVoltage:
		return "output_voltage"
	case FieldOutputLoadPercent:
		return "output_load_percent"
	case FieldOutputFrequency:
		return "output_frequency"
	case FieldBatteryVoltage:
		return "battery_voltage"
	case FieldTemperature:
		return "temperature"
	case FieldStatusBits:
		return "status_bits"
	default:
		return "unknown"
	}
}
