// internal/protocol/reading.go
package protocol

import (
	"errors"

	"github.com/tamzrod/onewire-reporter/internal/bus"
)

// Per-sensor failure reasons.
var (
	ErrCRC          = errors.New("scratchpad crc mismatch")
	ErrNoResponse   = errors.New("device did not respond")
	ErrPowerOnValue = errors.New("power-on value, no conversion performed")
)

// Sample is the outcome of reading one scratchpad: a temperature or a failure.
type Sample struct {
	Celsius float64
	Err     error
}

func (s Sample) OK() bool { return s.Err == nil }

// Reading pairs a sample with the sensor it came from.
// Index is the registry position (0-based) at conversion start.
type Reading struct {
	Index   int
	Address bus.Address
	Sample  Sample
}
