// internal/poller/scratchpad.go
package poller

import (
	"fmt"
	"time"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

const (
	MinResolution = 9
	MaxResolution = 12

	maxConversionTime = 750 * time.Millisecond

	// power-on reset value of the temperature register, 85 °C in 1/16 °C.
	powerOnRaw int16 = 0x0550

	// factory alarm thresholds, rewritten unchanged with the config byte.
	defaultTH byte = 0x4B
	defaultTL byte = 0x46
)

// ValidResolution reports whether bits is in 9..12.
func ValidResolution(bits int) bool {
	return bits >= MinResolution && bits <= MaxResolution
}

// ConversionTime is the minimum dwell between Convert T and a read:
// 93.75ms, 187.5ms, 375ms, 750ms for 9..12 bits. Out-of-range values get the maximum.
func ConversionTime(bits int) time.Duration {
	if !ValidResolution(bits) {
		return maxConversionTime
	}
	return maxConversionTime >> uint(MaxResolution-bits)
}

// Granularity is the temperature step in °C at the given resolution.
func Granularity(bits int) float64 {
	return 0.5 / float64(int(1)<<uint(bits-MinResolution))
}

// rawMask clears the bits that are undefined at reduced resolution.
func rawMask(bits int) int16 {
	switch bits {
	case 9:
		return ^int16(7)
	case 10:
		return ^int16(3)
	case 11:
		return ^int16(1)
	default:
		return ^int16(0)
	}
}

// configByte is the DS18B20 configuration register for a resolution.
func configByte(bits int) byte {
	return byte((bits-MinResolution)<<5) | 0x1F
}

// configResolution is the inverse of configByte.
func configResolution(b byte) int {
	return int(b>>5&0x03) + MinResolution
}

// Decode validates a 9-byte scratchpad and converts it to °C at the given resolution.
func Decode(family byte, spad []byte, bits int) (float64, error) {
	if len(spad) != bus.ScratchpadSize {
		return 0, fmt.Errorf("poller: scratchpad length %d, want %d", len(spad), bus.ScratchpadSize)
	}

	silent := true
	for _, b := range spad {
		if b != 0xFF {
			silent = false
			break
		}
	}
	if silent {
		return 0, protocol.ErrNoResponse
	}

	if bus.CRC8(spad[:8]) != spad[8] {
		return 0, protocol.ErrCRC
	}

	raw := int16(uint16(spad[1])<<8 | uint16(spad[0]))

	// DS18S20 reports half degrees; extend with COUNT_REMAIN/COUNT_PER_C.
	if family == bus.FamilyDS18S20 {
		if spad[7] != 0 {
			raw = ((raw &^ 1) << 3) + 12 - int16(spad[6])
		} else {
			raw <<= 3
		}
	}

	if raw == powerOnRaw {
		return 0, protocol.ErrPowerOnValue
	}

	raw &= rawMask(bits)
	return float64(raw) / 16.0, nil
}
