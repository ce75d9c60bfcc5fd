// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

// Engine is the non-blocking two-phase poll state machine.
// It never sleeps: every call checks elapsed time against the tick's clock
// and either advances or returns.
//
// Not safe for concurrent use; drive it from a single loop.
type Engine struct {
	cfg     Config
	bus     bus.Bus
	sensors Sensors
	out     protocol.Emitter
	log     *zap.Logger

	// resolution applies to the next conversion.
	resolution int
	// programmed tracks the resolution last written to each DS18B20.
	// It is cleared whenever the batch membership changes.
	programmed map[bus.Address]int
	members    []bus.Address

	phase      Phase
	phaseStart time.Time
	lastPoll   time.Time
	polled     bool

	// latched at conversion start
	batch    []bus.Address
	cycleRes int

	lastNoSensors time.Time
	noSensorsSent bool
}

// New creates an engine with immutable interval and an initial resolution.
func New(cfg Config, b bus.Bus, sensors Sensors, out protocol.Emitter, log *zap.Logger) (*Engine, error) {
	if b == nil {
		return nil, errors.New("poller: bus required")
	}
	if sensors == nil {
		return nil, errors.New("poller: sensors required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if !ValidResolution(cfg.Resolution) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResolution, cfg.Resolution)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = protocol.EmitterFunc(func(protocol.Line) {})
	}

	return &Engine{
		cfg:        cfg,
		bus:        b,
		sensors:    sensors,
		out:        out,
		log:        log,
		resolution: cfg.Resolution,
		programmed: make(map[bus.Address]int),
		phase:      PhaseIdle,
	}, nil
}

func (e *Engine) Phase() Phase { return e.phase }

// Resolution is the resolution the next conversion will use.
func (e *Engine) Resolution() int { return e.resolution }

func (e *Engine) Interval() time.Duration { return e.cfg.Interval }

// CycleResolution is the resolution latched by the last conversion start.
func (e *Engine) CycleResolution() int { return e.cycleRes }

// SetResolution changes the resolution used by subsequent conversions.
// A conversion already in flight keeps the resolution it started with.
func (e *Engine) SetResolution(bits int) error {
	if !ValidResolution(bits) {
		return fmt.Errorf("%w: %d", ErrInvalidResolution, bits)
	}
	if bits != e.resolution {
		e.log.Info("resolution changed", zap.Int("from", e.resolution), zap.Int("to", bits))
	}
	e.resolution = bits
	return nil
}

// Tick advances the cycle. It returns the readings of a completed cycle,
// with done=true, exactly once per cycle.
func (e *Engine) Tick(now time.Time) (readings []protocol.Reading, done bool) {
	switch e.phase {
	case PhaseIdle:
		if e.polled && now.Sub(e.lastPoll) < e.cfg.Interval {
			return nil, false
		}

		batch := e.sensors.Snapshot()
		if len(batch) == 0 {
			e.lastPoll = now
			e.polled = true
			e.reportNoSensors(now)
			return nil, false
		}

		e.begin(now, batch)
		return nil, false

	default:
		rs, err := e.CollectReadings(now)
		if err != nil {
			return nil, false
		}
		return rs, true
	}
}

// BeginConversion issues Convert T to every registered sensor.
// A sensor that cannot be addressed is reported and skipped; the batch continues.
// It returns how many sensors accepted the command.
func (e *Engine) BeginConversion(now time.Time) (int, error) {
	if e.phase != PhaseIdle {
		return 0, ErrCycleInProgress
	}
	return e.begin(now, e.sensors.Snapshot()), nil
}

func (e *Engine) begin(now time.Time, batch []bus.Address) int {
	e.batch = batch
	e.cycleRes = e.resolution
	e.lastPoll = now
	e.polled = true
	e.phase = PhaseConversionStarted
	e.phaseStart = now
	e.noSensorsSent = false

	if !sameAddresses(e.members, batch) {
		clear(e.programmed)
		e.members = batch
	}

	started := 0
	for i, addr := range batch {
		if err := e.program(addr); err != nil {
			e.out.Emit(protocol.Error("Failed to set resolution for sensor %d (%s): %v", i+1, addr, err))
			e.log.Warn("resolution write failed", zap.Int("sensor", i+1), zap.Stringer("addr", addr), zap.Error(err))
		}

		if err := e.startConversion(addr); err != nil {
			e.out.Emit(protocol.Error("Failed to start conversion for sensor %d (%s)", i+1, addr))
			e.log.Warn("convert failed", zap.Int("sensor", i+1), zap.Stringer("addr", addr), zap.Error(err))
			continue
		}
		started++
	}

	e.log.Debug("conversion started",
		zap.Int("sensors", len(batch)),
		zap.Int("started", started),
		zap.Int("resolution", e.cycleRes),
		zap.Duration("dwell", ConversionTime(e.cycleRes)))

	return started
}

// Ready reports whether the minimum conversion time has elapsed.
func (e *Engine) Ready(now time.Time) bool {
	switch e.phase {
	case PhaseReadyToRead:
		return true
	case PhaseConversionStarted:
		return now.Sub(e.phaseStart) >= ConversionTime(e.cycleRes)
	default:
		return false
	}
}

// CollectReadings reads every sensor of the current batch.
// It refuses to read before the dwell time for the cycle's resolution has elapsed.
// Per-sensor failures are reported and carried in the Sample; the pass always
// covers the whole batch and leaves the engine Idle.
func (e *Engine) CollectReadings(now time.Time) ([]protocol.Reading, error) {
	switch e.phase {
	case PhaseIdle:
		return nil, ErrNoConversion
	case PhaseConversionStarted:
		if !e.Ready(now) {
			return nil, ErrNotReady
		}
		e.phase = PhaseReadyToRead
		e.phaseStart = now
	}

	readings := make([]protocol.Reading, 0, len(e.batch))
	failed := 0
	for i, addr := range e.batch {
		s := e.readSensor(addr)
		if !s.OK() {
			failed++
			e.reportFailure(i, addr, s.Err)
		}
		readings = append(readings, protocol.Reading{Index: i, Address: addr, Sample: s})
	}

	e.log.Debug("cycle read",
		zap.Int("sensors", len(e.batch)),
		zap.Int("failed", failed),
		zap.Duration("since_convert", now.Sub(e.lastPoll)))

	e.batch = nil
	e.phase = PhaseIdle
	e.phaseStart = now
	return readings, nil
}

func (e *Engine) startConversion(addr bus.Address) error {
	if err := e.bus.Reset(); err != nil {
		return err
	}
	if err := e.bus.Select(addr); err != nil {
		return err
	}
	return e.bus.Write([]byte{bus.CmdConvertT}, true)
}

// program writes the configuration register when the sensor's resolution
// differs from the cycle's. DS18S20 has a fixed resolution.
func (e *Engine) program(addr bus.Address) error {
	if addr.Family() != bus.FamilyDS18B20 {
		return nil
	}
	if e.programmed[addr] == e.cycleRes {
		return nil
	}

	delete(e.programmed, addr)
	if err := e.bus.Reset(); err != nil {
		return err
	}
	if err := e.bus.Select(addr); err != nil {
		return err
	}
	cmd := []byte{bus.CmdWriteScratchpad, defaultTH, defaultTL, configByte(e.cycleRes)}
	if err := e.bus.Write(cmd, false); err != nil {
		return err
	}
	// the write is only committed once the transaction ends
	if err := e.bus.Reset(); err != nil {
		return err
	}
	e.programmed[addr] = e.cycleRes
	return nil
}

func (e *Engine) readSensor(addr bus.Address) protocol.Sample {
	var spad [bus.ScratchpadSize]byte

	if err := e.bus.Reset(); err != nil {
		return protocol.Sample{Err: err}
	}
	if err := e.bus.Select(addr); err != nil {
		return protocol.Sample{Err: err}
	}
	if err := e.bus.Write([]byte{bus.CmdReadScratchpad}, false); err != nil {
		return protocol.Sample{Err: err}
	}
	if err := e.bus.Read(spad[:]); err != nil {
		delete(e.programmed, addr)
		return protocol.Sample{Err: err}
	}

	c, err := Decode(addr.Family(), spad[:], e.cycleRes)
	if err != nil {
		// power-on value or garbage: the sensor may have lost its configuration
		delete(e.programmed, addr)
		return protocol.Sample{Err: err}
	}

	if addr.Family() == bus.FamilyDS18B20 {
		if got := configResolution(spad[4]); got != e.cycleRes {
			delete(e.programmed, addr)
			return protocol.Sample{Err: fmt.Errorf("%w: sensor %d bits, cycle %d bits", ErrResolutionMismatch, got, e.cycleRes)}
		}
	}
	return protocol.Sample{Celsius: c}
}

func (e *Engine) reportFailure(i int, addr bus.Address, err error) {
	switch {
	case errors.Is(err, protocol.ErrCRC):
		e.out.Emit(protocol.Error("CRC_FAILED for sensor %d (%s)", i+1, addr))
	case errors.Is(err, protocol.ErrNoResponse):
		e.out.Emit(protocol.Error("No response from sensor %d (%s)", i+1, addr))
	case errors.Is(err, protocol.ErrPowerOnValue):
		e.out.Emit(protocol.Error("Sensor %d (%s) returned power-on value, conversion not performed", i+1, addr))
	case errors.Is(err, ErrResolutionMismatch):
		e.out.Emit(protocol.Error("Sensor %d (%s) resolution mismatch, reprogramming", i+1, addr))
	default:
		e.out.Emit(protocol.Error("Read failed for sensor %d (%s): %v", i+1, addr, err))
	}
	e.log.Warn("sensor read failed", zap.Int("sensor", i+1), zap.Stringer("addr", addr), zap.Error(err))
}

func (e *Engine) reportNoSensors(now time.Time) {
	if e.noSensorsSent && now.Sub(e.lastNoSensors) < e.cfg.NoSensorReport {
		return
	}
	e.out.Emit(protocol.Error("No sensors available to read"))
	e.lastNoSensors = now
	e.noSensorsSent = true
}

func sameAddresses(a, b []bus.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
