package parser

import (
	"fmt"

	"github.com/resident-x/go-aims/internal/domain"
	"github.com/resident-x/go-aims/internal/protocol"
)

// DecodeStatus expands the status token of a parsed frame into named flags.
//
// bits must be exactly eight '0'/'1' characters, which Parse guarantees for
// every frame it returns. Anything else is a programming error and panics.
func DecodeStatus(bits string) domain.StatusFlags {
	if len(bits) != protocol.StatusBitsLen {
		panic(fmt.Sprintf("parser: DecodeStatus called with %d characters, want %d", len(bits), protocol.StatusBitsLen))
	}
	bit := func(i int) bool {
		switch bits[i] {
		case '1':
			return true
		case '0':
			return false
		default:
			panic(fmt.Sprintf("parser: DecodeStatus called with non-binary status %q", bits))
		}
	}

	return domain.StatusFlags{
		UtilityFail:     bit(protocol.BitUtilityFail),
		BatteryLow:      bit(protocol.BitBatteryLow),
		AVRActive:       bit(protocol.BitAVRActive),
		UPSFailed:       bit(protocol.BitUPSFailed),
		LineInteractive: bit(protocol.BitLineInteractive),
		Testing:         bit(protocol.BitTesting),
		ShutdownActive:  bit(protocol.BitShutdownActive),
		BeeperOn:        bit(protocol.BitBeeperOn),
	}
}
