// cmd/reporter/bus.go
package main

import (
	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/bus/bussim"
	"github.com/tamzrod/onewire-reporter/internal/config"
)

// openBus returns the hardware bus, or the simulated one in simulate mode.
func openBus(c config.BusConfig, log *zap.Logger) (bus.Bus, func() error, error) {
	if !c.Simulate {
		p, err := bus.OpenPeriph(c.Name)
		if err != nil {
			return nil, nil, err
		}
		log.Info("1-wire bus open", zap.Stringer("bus", p))
		return p, p.Close, nil
	}

	sim := bussim.New()
	for i, s := range c.Sensors {
		// validated by config.Validate
		addr, err := c.SimulatedAddress(i)
		if err != nil {
			return nil, nil, err
		}
		sim.Add(&bussim.Device{Address: addr, Celsius: s.Celsius})
	}
	log.Info("simulated 1-wire bus", zap.Int("devices", len(c.Sensors)))
	return sim, func() error { return nil }, nil
}
