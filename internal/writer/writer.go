// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/protocol"
	"github.com/tamzrod/onewire-reporter/internal/status"
)

// registerClient is the exact contract the mirror uses.
type registerClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// image is the full register state the endpoint should hold.
// temps is nil until the first cycle completes.
type image struct {
	temps []uint16
	snap  status.Snapshot
}

// registerMirror owns the status tracker and the latest register image.
// It runs on the station loop and never touches the network itself:
// every change is handed to publish.
type registerMirror struct {
	plan    Plan
	track   *status.Tracker
	publish func(image)

	temps      []uint16
	lastSecond time.Time
}

// New builds a mirror whose writes run on the caller's goroutine.
func New(plan Plan, cli registerClient, log *zap.Logger) (Mirror, error) {
	d, err := newDelivery(plan, cli, log)
	if err != nil {
		return nil, err
	}
	return newRegisterMirror(plan, func(img image) {
		if err := d.deliver(img); err != nil {
			d.log.Warn("mirror write failed", zap.Error(err))
		}
	}), nil
}

// NewQueued builds a mirror whose writes run on a dedicated goroutine.
// The returned stop function drains the queue and must be called once
// the mirror is no longer driven.
func NewQueued(plan Plan, cli registerClient, log *zap.Logger) (Mirror, func(), error) {
	d, err := newDelivery(plan, cli, log)
	if err != nil {
		return nil, nil, err
	}
	q := newQueue(d)
	return newRegisterMirror(plan, q.publish), q.close, nil
}

func newRegisterMirror(plan Plan, publish func(image)) *registerMirror {
	return &registerMirror{
		plan:    plan,
		track:   status.NewTracker(),
		publish: publish,
	}
}

func (m *registerMirror) Start() {
	m.push()
}

// Cycle records a completed cycle and publishes the new image.
func (m *registerMirror) Cycle(rs []protocol.Reading, sensorCount, resolution int) {
	m.temps = status.EncodeReadings(rs, m.plan.Capacity)
	m.track.Observe(rs, sensorCount, resolution)
	m.push()
}

// Tick runs at loop rate. It flags an empty registry and counts
// seconds-in-error at 1 Hz.
func (m *registerMirror) Tick(now time.Time, sensorCount int) {
	changed := false
	if sensorCount == 0 && m.track.NoSensors() {
		changed = true
	}

	if m.lastSecond.IsZero() {
		m.lastSecond = now
	}
	if now.Sub(m.lastSecond) >= time.Second {
		m.lastSecond = m.lastSecond.Add(now.Sub(m.lastSecond).Truncate(time.Second))
		if m.track.Second() {
			changed = true
		}
	}

	if changed {
		m.push()
	}
}

func (m *registerMirror) push() {
	m.publish(image{temps: m.temps, snap: m.track.Snapshot()})
}

// delivery writes images to the endpoint. Only one goroutine may use it.
type delivery struct {
	plan   Plan
	cli    registerClient
	status *statusWriter
	log    *zap.Logger

	// temperature registers as last delivered
	temps     []uint16
	tempsFull bool
}

func newDelivery(plan Plan, cli registerClient, log *zap.Logger) (*delivery, error) {
	if cli == nil {
		return nil, errors.New("writer: client required")
	}
	if plan.Capacity <= 0 {
		return nil, errors.New("writer: capacity must be > 0")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &delivery{
		plan:      plan,
		cli:       cli,
		status:    newStatusWriter(plan, cli),
		log:       log,
		tempsFull: true,
	}, nil
}

// deliver writes temperatures first, then status.
// Temperatures: full block on first write and after any failure,
// otherwise only the runs of registers that changed.
func (d *delivery) deliver(img image) error {
	var errs []string

	if img.temps != nil {
		if err := d.writeTemperatures(img.temps); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := d.status.WriteStatus(img.snap); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

func (d *delivery) writeTemperatures(regs []uint16) error {
	base := d.plan.TemperatureAddr()

	if d.tempsFull {
		if err := d.cli.WriteRegisters(d.plan.UnitID, base, regs); err != nil {
			return fmt.Errorf("writer: temperature block write failed ep=%s addr=%d: %w", d.plan.Endpoint, base, err)
		}
		d.temps = regs
		d.tempsFull = false
		d.log.Debug("temperature block asserted",
			zap.String("endpoint", d.plan.Endpoint),
			zap.Uint16("addr", base),
			zap.Int("qty", len(regs)))
		return nil
	}

	var errs []string
	for _, r := range changedRuns(d.temps, regs) {
		addr := base + uint16(r.start)
		if err := d.cli.WriteRegisters(d.plan.UnitID, addr, regs[r.start:r.end]); err != nil {
			errs = append(errs, fmt.Sprintf("addr=%d qty=%d err=%v", addr, r.end-r.start, err))
		}
	}
	if len(errs) > 0 {
		d.tempsFull = true
		return errors.New("writer: temperature write failed ep=" + d.plan.Endpoint + ": " + strings.Join(errs, " | "))
	}

	d.temps = regs
	return nil
}

type run struct{ start, end int }

// changedRuns returns contiguous [start,end) ranges where next differs from prev.
func changedRuns(prev, next []uint16) []run {
	var out []run
	start := -1
	for i := range next {
		diff := i >= len(prev) || prev[i] != next[i]
		switch {
		case diff && start < 0:
			start = i
		case !diff && start >= 0:
			out = append(out, run{start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, run{start, len(next)})
	}
	return out
}
