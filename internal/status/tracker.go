// internal/status/tracker.go
package status

import (
	"errors"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

// Tracker owns the station status state between cycles.
// Every method reports whether the snapshot changed.
type Tracker struct {
	snap Snapshot
}

// NewTracker starts in HealthUnknown.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe folds a completed cycle into the snapshot.
func (t *Tracker) Observe(rs []protocol.Reading, sensorCount, resolution int) bool {
	prev := t.snap

	failed := 0
	var lastErr error
	for _, r := range rs {
		if !r.Sample.OK() {
			failed++
			lastErr = r.Sample.Err
		}
	}

	switch {
	case len(rs) == 0:
		t.snap.Health = HealthNoSensors
	case failed == 0:
		t.snap.Health = HealthOK
	case failed == len(rs):
		t.snap.Health = HealthError
	default:
		t.snap.Health = HealthPartial
	}

	// Reset last error code and seconds-in-error when healthy.
	if t.snap.Health == HealthOK {
		t.snap.LastErrorCode = CodeNone
		t.snap.SecondsInError = 0
	} else if lastErr != nil {
		t.snap.LastErrorCode = ErrorCode(lastErr)
	}

	t.snap.SensorCount = clamp(sensorCount)
	t.snap.Resolution = clamp(resolution)
	t.snap.FailedSamples = clamp(failed)
	t.snap.Cycles++

	return t.snap != prev
}

// NoSensors records an empty registry.
func (t *Tracker) NoSensors() bool {
	prev := t.snap
	t.snap.Health = HealthNoSensors
	t.snap.LastErrorCode = CodeNoSensors
	t.snap.SensorCount = 0
	t.snap.FailedSamples = 0
	return t.snap != prev
}

// Second ticks seconds-in-error while not OK. It saturates at 65535.
func (t *Tracker) Second() bool {
	if t.snap.Health == HealthOK || t.snap.Health == HealthUnknown {
		return false
	}
	if t.snap.SecondsInError == 0xFFFF {
		return false
	}
	t.snap.SecondsInError++
	return true
}

// ErrorCode maps a failure to its register code.
// Errors exposing Code() uint16 pass through; unknown errors are CodeGeneric.
func ErrorCode(err error) uint16 {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, protocol.ErrCRC):
		return CodeCRC
	case errors.Is(err, protocol.ErrNoResponse):
		return CodeNoResponse
	case errors.Is(err, protocol.ErrPowerOnValue):
		return CodePowerOn
	case errors.Is(err, bus.ErrNoPresence):
		return CodeBus
	}

	type coder interface{ Code() uint16 }
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeGeneric
}

func clamp(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFF:
		return 0xFFFF
	default:
		return uint16(v)
	}
}
