// internal/config/normalize.go
package config

import "strings"

const (
	DefaultIntervalMs       = 1000
	DefaultResolution       = 12
	DefaultCapacity         = 10
	DefaultTickMs           = 10
	DefaultNoSensorReportMs = 10000
	DefaultBaudRate         = 9600
	DefaultLinkTimeoutMs    = 500
	DefaultMirrorTimeoutMs  = 1000
	DefaultMirrorUnitID     = 1
	DefaultLogLevel         = "info"
)

// Normalize fills defaults for absent (zero) fields.
// It is allowed to mutate configuration.
// It MUST be called before Validate(), which checks the effective values.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	p := &cfg.Poll
	if p.IntervalMs == 0 {
		p.IntervalMs = DefaultIntervalMs
	}
	if p.Resolution == 0 {
		p.Resolution = DefaultResolution
	}
	if p.Capacity == 0 {
		p.Capacity = DefaultCapacity
	}
	if p.TickMs == 0 {
		p.TickMs = DefaultTickMs
	}
	if p.NoSensorReportMs == 0 {
		p.NoSensorReportMs = DefaultNoSensorReportMs
	}

	// ------------------------------------------------------------
	// HOST LINK
	// ------------------------------------------------------------

	if cfg.Link.BaudRate == 0 {
		cfg.Link.BaudRate = DefaultBaudRate
	}
	if cfg.Link.TimeoutMs == 0 {
		cfg.Link.TimeoutMs = DefaultLinkTimeoutMs
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if m := cfg.Mirror; m != nil {
		m.Endpoint = strings.TrimSpace(m.Endpoint)
		if m.UnitID == 0 {
			m.UnitID = DefaultMirrorUnitID
		}
		if m.TimeoutMs == 0 {
			m.TimeoutMs = DefaultMirrorTimeoutMs
		}
		// Truncate to the 16 characters the status block can hold.
		// Non-ASCII names are left for Validate to reject.
		if len(m.Name) > 16 {
			m.Name = m.Name[:16]
		}
	}

	// ------------------------------------------------------------
	// SIMULATED SENSORS
	// ------------------------------------------------------------

	for i := range cfg.Bus.Sensors {
		s := &cfg.Bus.Sensors[i]
		s.Address = strings.ToLower(strings.TrimSpace(s.Address))
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}
