// internal/writer/builder.go
package writer

import (
	"time"

	"go.uber.org/zap"

	cfg "github.com/tamzrod/onewire-reporter/internal/config"
	wmodbus "github.com/tamzrod/onewire-reporter/internal/writer/modbus"
)

// BuildPlan converts the mirror config into a Plan.
// Assumes config has already passed validation.
func BuildPlan(m cfg.MirrorConfig, capacity int) Plan {
	return Plan{
		Endpoint:    m.Endpoint,
		UnitID:      m.UnitID,
		BaseAddress: m.BaseAddress,
		Capacity:    capacity,
		Name:        m.Name,
	}
}

// Build wires the Modbus TCP client and a queued mirror.
// A nil config disables mirroring: it returns a nil Mirror and a no-op closer.
// The closer drains pending writes before closing the client.
func Build(m *cfg.MirrorConfig, capacity int, log *zap.Logger) (Mirror, func() error, error) {
	noop := func() error { return nil }
	if m == nil {
		return nil, noop, nil
	}

	if log == nil {
		log = zap.NewNop()
	}
	plan := BuildPlan(*m, capacity)

	c, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: plan.Endpoint,
		UnitID:   plan.UnitID,
		Timeout:  time.Duration(m.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, noop, err
	}

	mirror, stop, err := NewQueued(plan, c, log.With(zap.String("mirror", plan.Endpoint)))
	if err != nil {
		_ = c.Close()
		return nil, noop, err
	}
	return mirror, func() error {
		stop()
		return c.Close()
	}, nil
}
