// internal/poller/builder.go
package poller

import (
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	cfg "github.com/tamzrod/onewire-reporter/internal/config"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

// Build constructs an Engine from the poll section.
// The bus handle is owned by the caller and outlives the engine.
func Build(p cfg.PollConfig, b bus.Bus, sensors Sensors, out protocol.Emitter, log *zap.Logger) (*Engine, error) {
	return New(
		Config{
			Interval:       time.Duration(p.IntervalMs) * time.Millisecond,
			Resolution:     p.Resolution,
			NoSensorReport: time.Duration(p.NoSensorReportMs) * time.Millisecond,
		},
		b,
		sensors,
		out,
		log,
	)
}
