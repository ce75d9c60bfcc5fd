// internal/registry/registry.go

// Package registry owns the set of discovered sensor addresses.
//
// The list is replaced wholesale on every discovery and never mutated in
// place, so readers always see either the previous or the new list.
package registry

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

// ErrOutOfRange is returned by AddressAt for index >= Count().
var ErrOutOfRange = errors.New("registry: index out of range")

// Registry is the ordered, capacity-bounded sensor list.
type Registry struct {
	bus      bus.Bus
	capacity int
	out      protocol.Emitter
	log      *zap.Logger

	list atomic.Pointer[[]bus.Address]
}

// New creates an empty registry. capacity must be > 0.
func New(b bus.Bus, capacity int, out protocol.Emitter, log *zap.Logger) (*Registry, error) {
	if b == nil {
		return nil, errors.New("registry: bus required")
	}
	if capacity <= 0 {
		return nil, errors.New("registry: capacity must be > 0")
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{bus: b, capacity: capacity, out: out, log: log}
	empty := []bus.Address{}
	r.list.Store(&empty)
	return r, nil
}

// Capacity returns the configured bound.
func (r *Registry) Capacity() int { return r.capacity }

// Discover walks the bus from the start and rebuilds the list.
// Unknown families and corrupt ROM codes are reported and skipped.
// Walking stops at the capacity bound.
func (r *Registry) Discover() (int, []bus.Address) {
	r.emit(protocol.Info("Starting sensor rescan..."))

	found := make([]bus.Address, 0, r.capacity)
	r.bus.ResetSearch()

	for {
		addr, ok, err := r.bus.Search()
		if err != nil {
			r.emit(protocol.Error("Bus search failed: %v", err))
			r.log.Error("bus search failed", zap.Error(err), zap.Int("found", len(found)))
			break
		}
		if !ok {
			break
		}

		if len(found) >= r.capacity {
			r.emit(protocol.Warn("Maximum sensor limit reached (%d), ignoring additional sensors", r.capacity))
			r.log.Warn("sensor capacity reached", zap.Int("capacity", r.capacity))
			break
		}

		if !addr.Valid() {
			r.emit(protocol.Warn("Invalid ROM CRC for device %s", addr))
			continue
		}
		if !addr.IsTemperatureSensor() {
			r.emit(protocol.Warn("Unknown device type 0x%02X (%s)", addr.Family(), addr))
			continue
		}

		found = append(found, addr)
		r.emit(protocol.Info("Found sensor %d: %s", len(found), addr))
	}

	r.list.Store(&found)

	n := len(found)
	r.emit(protocol.Info("RESCAN_COMPLETE:%d_SENSORS_FOUND", n))
	if n == 0 {
		r.emit(protocol.Error("No temperature sensors found on OneWire bus!"))
	}
	r.log.Info("discovery complete", zap.Int("sensors", n))

	return n, r.Snapshot()
}

// Count returns the number of registered sensors.
func (r *Registry) Count() int {
	return len(*r.list.Load())
}

// AddressAt returns the address at index i in discovery order.
func (r *Registry) AddressAt(i int) (bus.Address, error) {
	list := *r.list.Load()
	if i < 0 || i >= len(list) {
		return bus.Address{}, fmt.Errorf("%w: %d (count %d)", ErrOutOfRange, i, len(list))
	}
	return list[i], nil
}

// Snapshot returns a copy of the current list.
func (r *Registry) Snapshot() []bus.Address {
	list := *r.list.Load()
	return append([]bus.Address(nil), list...)
}

func (r *Registry) emit(l protocol.Line) {
	if r.out != nil {
		r.out.Emit(l)
	}
}
