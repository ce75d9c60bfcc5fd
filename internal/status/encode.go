// internal/status/encode.go
package status

import (
	"math"

	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

// Encode converts a Snapshot into the live slots of the status block.
// Layout is register-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, LiveSlots)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotSensorCount] = s.SensorCount
	regs[SlotResolution] = s.Resolution
	regs[SlotFailedSamples] = s.FailedSamples
	regs[SlotCycles] = s.Cycles

	return regs
}

// EncodeBlock renders the full status block, name included.
func EncodeBlock(s Snapshot, name string) []uint16 {
	regs := make([]uint16, SlotsPerBlock)
	copy(regs, Encode(s))
	copy(regs[SlotNameStart:], EncodeName(name))
	return regs
}

// EncodeName packs up to 16 ASCII characters into 8 registers,
// two bytes per register, big-endian. Non-printable bytes become '?'.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotNameSlots)

	b := []byte(name)
	if len(b) > NameMaxChars {
		b = b[:NameMaxChars]
	}
	for i := range b {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < NameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}
	return out
}

// EncodeTemperature renders a sample as int16 centi-degrees.
// Failed samples become NoReading.
func EncodeTemperature(s protocol.Sample) uint16 {
	if !s.OK() {
		return NoReading
	}
	v := math.Round(s.Celsius * 100)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	// MinInt16 is NoReading; keep it unambiguous
	if v < math.MinInt16+1 {
		v = math.MinInt16 + 1
	}
	return uint16(int16(v))
}

// EncodeReadings fills one register per sensor index up to capacity.
// Indices without a reading hold NoReading.
func EncodeReadings(rs []protocol.Reading, capacity int) []uint16 {
	regs := make([]uint16, capacity)
	for i := range regs {
		regs[i] = NoReading
	}
	for _, r := range rs {
		if r.Index < 0 || r.Index >= capacity {
			continue
		}
		regs[r.Index] = EncodeTemperature(r.Sample)
	}
	return regs
}
