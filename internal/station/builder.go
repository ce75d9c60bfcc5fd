// internal/station/builder.go
package station

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/command"
	cfg "github.com/tamzrod/onewire-reporter/internal/config"
	"github.com/tamzrod/onewire-reporter/internal/poller"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
	"github.com/tamzrod/onewire-reporter/internal/registry"
	"github.com/tamzrod/onewire-reporter/internal/writer"
)

// Build wires registry, engine and processor over b.
// Assumes c has been normalized and validated. mirror may be nil.
func Build(c *cfg.Config, b bus.Bus, out protocol.Emitter, mirror writer.Mirror, log *zap.Logger) (*Station, error) {
	if log == nil {
		log = zap.NewNop()
	}

	reg, err := registry.New(b, c.Poll.Capacity, out, log.Named("registry"))
	if err != nil {
		return nil, fmt.Errorf("station: %w", err)
	}

	eng, err := poller.Build(c.Poll, b, reg, out, log.Named("poller"))
	if err != nil {
		return nil, fmt.Errorf("station: %w", err)
	}

	proc, err := command.New(reg, eng, out, log.Named("command"))
	if err != nil {
		return nil, fmt.Errorf("station: %w", err)
	}

	return New(
		Config{Tick: time.Duration(c.Poll.TickMs) * time.Millisecond},
		reg, eng, proc, out, mirror, log,
	)
}
