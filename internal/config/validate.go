// internal/config/validate.go
package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	p := cfg.Poll
	if p.Resolution < 9 || p.Resolution > 12 {
		return fmt.Errorf("poll.resolution must be 9-12, got %d", p.Resolution)
	}
	if p.IntervalMs <= 0 {
		return fmt.Errorf("poll.interval_ms must be > 0, got %d", p.IntervalMs)
	}
	if p.Capacity < 1 {
		return fmt.Errorf("poll.capacity must be >= 1, got %d", p.Capacity)
	}
	if p.TickMs <= 0 {
		return fmt.Errorf("poll.tick_ms must be > 0, got %d", p.TickMs)
	}
	if p.NoSensorReportMs < 0 {
		return fmt.Errorf("poll.no_sensor_report_ms must be >= 0, got %d", p.NoSensorReportMs)
	}

	// ------------------------------------------------------------
	// HOST LINK
	// ------------------------------------------------------------

	if cfg.Link.BaudRate <= 0 {
		return fmt.Errorf("link.baud_rate must be > 0, got %d", cfg.Link.BaudRate)
	}
	if cfg.Link.TimeoutMs < 0 {
		return fmt.Errorf("link.timeout_ms must be >= 0, got %d", cfg.Link.TimeoutMs)
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if m := cfg.Mirror; m != nil {
		if m.Endpoint == "" {
			return fmt.Errorf("mirror.endpoint is required when mirror is set")
		}
		// name sanity (ASCII only)
		for i := 0; i < len(m.Name); i++ {
			if m.Name[i] > 0x7F {
				return fmt.Errorf("mirror.name must contain ASCII characters only")
			}
		}
		if m.TimeoutMs < 0 {
			return fmt.Errorf("mirror.timeout_ms must be >= 0, got %d", m.TimeoutMs)
		}
		// status block + one register per sensor must fit the 16-bit space
		last := int(m.BaseAddress) + status.SlotsPerBlock + p.Capacity - 1
		if last > 0xFFFF {
			return fmt.Errorf(
				"mirror: base_address=%d with capacity=%d exceeds register space",
				m.BaseAddress,
				p.Capacity,
			)
		}
	}

	// ------------------------------------------------------------
	// SIMULATED SENSORS
	// ------------------------------------------------------------

	// generated addresses take part in the duplicate check
	seen := make(map[bus.Address]int)
	for i := range cfg.Bus.Sensors {
		a, err := cfg.Bus.SimulatedAddress(i)
		if err != nil {
			return fmt.Errorf("bus.sensors[%d]: %w", i, err)
		}
		if !a.Valid() {
			return fmt.Errorf("bus.sensors[%d]: address %s fails ROM CRC", i, a)
		}
		if !a.IsTemperatureSensor() {
			return fmt.Errorf("bus.sensors[%d]: family 0x%02x is not a temperature sensor", i, a.Family())
		}
		if prev, dup := seen[a]; dup {
			return fmt.Errorf("bus.sensors[%d]: address %s duplicates bus.sensors[%d]", i, a, prev)
		}
		seen[a] = i
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}
