package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryStatus(t *testing.T) {
	assert.Equal(t, []byte{'Q', '1', '\n'}, []byte(QueryStatus))
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "line_voltage", FieldName(FieldLineVoltage))
	assert.Equal(t, "output_load_percent", FieldName(FieldOutputLoadPercent))
	assert.Equal(t, "status_bits", FieldName(FieldStatusBits))
	assert.Equal(t, "unknown", FieldName(FieldCount))
}

func TestStatusBitLayout(t *testing.T) {
	// b7 is the first character of the token, b0 the last
	assert.Equal(t, 0, BitUtilityFail)
	assert.Equal(t, StatusBitsLen-1, BitBeeperOn)
}
