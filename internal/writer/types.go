// internal/writer/types.go
package writer

import (
	"time"

	"github.com/tamzrod/onewire-reporter/internal/protocol"
	"github.com/tamzrod/onewire-reporter/internal/status"
)

// Plan is the fully-built register map for one mirror endpoint.
//
//	BaseAddress                      status block (status.SlotsPerBlock)
//	BaseAddress+SlotsPerBlock+i      sensor i, int16 centi-°C
type Plan struct {
	Endpoint    string
	UnitID      uint8
	BaseAddress uint16
	Capacity    int
	Name        string
}

// TemperatureAddr is the first temperature register.
func (p Plan) TemperatureAddr() uint16 {
	return p.BaseAddress + status.SlotsPerBlock
}

// Mirror publishes cycle outcomes to a register endpoint.
// Calls never block on the endpoint; write failures are logged.
type Mirror interface {
	// Start asserts the full status block once at boot.
	Start()

	// Cycle delivers a completed cycle.
	Cycle(rs []protocol.Reading, sensorCount, resolution int)

	// Tick advances time-based status (seconds in error, empty registry).
	Tick(now time.Time, sensorCount int)
}
