// internal/poller/poller_test.go
package poller

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3/onewire"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/bus/bussim"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

type staticSensors []bus.Address

func (s staticSensors) Snapshot() []bus.Address {
	return append([]bus.Address(nil), s...)
}

func addrsOf(devs []*bussim.Device) staticSensors {
	out := make(staticSensors, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.Address)
	}
	return out
}

func newEngine(t *testing.T, res int, devs ...*bussim.Device) (*Engine, *bussim.Bus, *protocol.Recorder) {
	t.Helper()
	b := bussim.New(devs...)
	rec := &protocol.Recorder{}
	e, err := New(
		Config{Interval: time.Second, Resolution: res, NoSensorReport: 10 * time.Second},
		b, addrsOf(devs), rec, zaptest.NewLogger(t),
	)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return e, b, rec
}

// runCycle starts a conversion at t0 and collects once the dwell has elapsed.
func runCycle(t *testing.T, e *Engine, t0 time.Time) []protocol.Reading {
	t.Helper()
	if _, err := e.BeginConversion(t0); err != nil {
		t.Fatalf("BeginConversion err=%v", err)
	}
	rs, err := e.CollectReadings(t0.Add(ConversionTime(e.CycleResolution())))
	if err != nil {
		t.Fatalf("CollectReadings err=%v", err)
	}
	return rs
}

func TestNew_Validation(t *testing.T) {
	b := bussim.New()
	s := staticSensors{}

	if _, err := New(Config{Interval: time.Second, Resolution: 12}, nil, s, nil, nil); err == nil {
		t.Fatalf("expected error for nil bus")
	}
	if _, err := New(Config{Interval: 0, Resolution: 12}, b, s, nil, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	for _, r := range []int{8, 13, 0} {
		_, err := New(Config{Interval: time.Second, Resolution: r}, b, s, nil, nil)
		if !errors.Is(err, ErrInvalidResolution) {
			t.Fatalf("resolution %d: err=%v, want ErrInvalidResolution", r, err)
		}
	}
}

func TestConversionTime_Monotonic(t *testing.T) {
	want := map[int]time.Duration{
		9:  93750 * time.Microsecond,
		10: 187500 * time.Microsecond,
		11: 375 * time.Millisecond,
		12: 750 * time.Millisecond,
	}
	prev := time.Duration(0)
	for r := MinResolution; r <= MaxResolution; r++ {
		d := ConversionTime(r)
		if d != want[r] {
			t.Fatalf("resolution %d: got %v want %v", r, d, want[r])
		}
		if d <= prev {
			t.Fatalf("dwell not increasing at %d bits", r)
		}
		prev = d
	}
}

func TestGranularity(t *testing.T) {
	want := map[int]float64{9: 0.5, 10: 0.25, 11: 0.125, 12: 0.0625}
	for r, g := range want {
		if Granularity(r) != g {
			t.Fatalf("resolution %d: got %v want %v", r, Granularity(r), g)
		}
	}
}

func TestCycle_ReadsAtResolution(t *testing.T) {
	for _, res := range []int{9, 10, 11, 12} {
		dev := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 21.4375}
		e, _, _ := newEngine(t, res, dev)

		rs := runCycle(t, e, time.Unix(0, 0))
		if len(rs) != 1 || !rs[0].Sample.OK() {
			t.Fatalf("resolution %d: unexpected readings %+v", res, rs)
		}

		c := rs[0].Sample.Celsius
		steps := c / Granularity(res)
		if steps != math.Trunc(steps) {
			t.Fatalf("resolution %d: %v is not a multiple of %v", res, c, Granularity(res))
		}
		if math.Abs(c-21.4375) >= Granularity(res) {
			t.Fatalf("resolution %d: %v too far from 21.4375", res, c)
		}
	}
}

func TestCollect_RefusesBeforeDwell(t *testing.T) {
	dev := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 20}
	e, b, _ := newEngine(t, 12, dev)
	t0 := time.Unix(100, 0)

	if _, err := e.CollectReadings(t0); !errors.Is(err, ErrNoConversion) {
		t.Fatalf("expected ErrNoConversion when idle, got %v", err)
	}

	if _, err := e.BeginConversion(t0); err != nil {
		t.Fatalf("BeginConversion err=%v", err)
	}
	if _, err := e.BeginConversion(t0); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}

	if _, err := e.CollectReadings(t0.Add(749 * time.Millisecond)); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	for _, op := range b.Operations() {
		if strings.HasPrefix(op, "read ") {
			t.Fatalf("scratchpad read before dwell elapsed: %v", b.Operations())
		}
	}

	rs, err := e.CollectReadings(t0.Add(750 * time.Millisecond))
	if err != nil {
		t.Fatalf("CollectReadings err=%v", err)
	}
	if len(rs) != 1 || rs[0].Sample.Celsius != 20 {
		t.Fatalf("unexpected readings %+v", rs)
	}
	if e.Phase() != PhaseIdle {
		t.Fatalf("expected idle after collect, got %s", e.Phase())
	}
}

func TestCycle_AllConversionsBeforeReads(t *testing.T) {
	devs := []*bussim.Device{
		{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 20},
		{Address: bus.NewAddress(bus.FamilyDS18B20, 2), Celsius: 21},
		{Address: bus.NewAddress(bus.FamilyDS18S20, 3), Celsius: 22},
	}
	e, b, _ := newEngine(t, 12, devs...)
	runCycle(t, e, time.Unix(0, 0))

	lastConvert, firstRead := -1, -1
	converts, reads := 0, 0
	for i, op := range b.Operations() {
		switch {
		case strings.HasPrefix(op, "convert "):
			lastConvert = i
			converts++
		case strings.HasPrefix(op, "read "):
			if firstRead < 0 {
				firstRead = i
			}
			reads++
		}
	}
	if converts != 3 || reads != 3 {
		t.Fatalf("expected 3 converts and 3 reads, got %d/%d: %v", converts, reads, b.Operations())
	}
	if lastConvert > firstRead {
		t.Fatalf("read interleaved with conversions: %v", b.Operations())
	}
}

func TestResolutionChange_AppliesNextCycle(t *testing.T) {
	dev := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 21.4375}
	e, _, _ := newEngine(t, 12, dev)
	t0 := time.Unix(0, 0)

	if _, done := e.Tick(t0); done {
		t.Fatalf("first tick must only start a conversion")
	}
	if err := e.SetResolution(10); err != nil {
		t.Fatalf("SetResolution err=%v", err)
	}
	if e.CycleResolution() != 12 {
		t.Fatalf("in-flight cycle must keep 12 bits, got %d", e.CycleResolution())
	}

	// 10-bit dwell has elapsed but the cycle started at 12 bits.
	if _, done := e.Tick(t0.Add(200 * time.Millisecond)); done {
		t.Fatalf("cycle completed before its own dwell")
	}
	rs, done := e.Tick(t0.Add(750 * time.Millisecond))
	if !done || rs[0].Sample.Celsius != 21.4375 {
		t.Fatalf("expected 12-bit reading, got done=%v %+v", done, rs)
	}

	t1 := t0.Add(time.Second)
	if _, done := e.Tick(t1); done {
		t.Fatalf("second cycle must only start a conversion")
	}
	if e.CycleResolution() != 10 {
		t.Fatalf("expected 10 bits on the next cycle, got %d", e.CycleResolution())
	}
	rs, done = e.Tick(t1.Add(ConversionTime(10)))
	if !done || rs[0].Sample.Celsius != 21.25 {
		t.Fatalf("expected 10-bit reading 21.25, got done=%v %+v", done, rs)
	}
	if dev.Resolution != 10 {
		t.Fatalf("device not reprogrammed, resolution=%d", dev.Resolution)
	}
}

func TestSetResolution_RejectsOutOfRange(t *testing.T) {
	e, _, _ := newEngine(t, 12)
	for _, r := range []int{8, 13, -1} {
		if err := e.SetResolution(r); !errors.Is(err, ErrInvalidResolution) {
			t.Fatalf("SetResolution(%d) err=%v", r, err)
		}
	}
	if e.Resolution() != 12 {
		t.Fatalf("rejected value must not change the resolution, got %d", e.Resolution())
	}
}

func TestTick_RespectsInterval(t *testing.T) {
	dev := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 19}
	e, _, _ := newEngine(t, 9, dev)
	t0 := time.Unix(0, 0)

	e.Tick(t0)
	if _, done := e.Tick(t0.Add(ConversionTime(9))); !done {
		t.Fatalf("expected cycle to complete")
	}
	e.Tick(t0.Add(900 * time.Millisecond))
	if e.Phase() != PhaseIdle {
		t.Fatalf("new cycle started before the interval elapsed")
	}
	e.Tick(t0.Add(time.Second))
	if e.Phase() != PhaseConversionStarted {
		t.Fatalf("expected new cycle at interval, phase=%s", e.Phase())
	}
}

func TestCycle_PerSensorFailuresDoNotAbort(t *testing.T) {
	devs := []*bussim.Device{
		{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 20},
		{Address: bus.NewAddress(bus.FamilyDS18B20, 2), Corrupt: true},
		{Address: bus.NewAddress(bus.FamilyDS18B20, 3), Silent: true},
		{Address: bus.NewAddress(bus.FamilyDS18B20, 4), SkipConvert: true},
		{Address: bus.NewAddress(bus.FamilyDS18B20, 5), FailSelect: true},
		{Address: bus.NewAddress(bus.FamilyDS18B20, 6), Celsius: -5.5},
	}
	e, _, rec := newEngine(t, 12, devs...)
	rs := runCycle(t, e, time.Unix(0, 0))

	if len(rs) != len(devs) {
		t.Fatalf("expected %d readings, got %d", len(devs), len(rs))
	}
	wantErr := []error{nil, protocol.ErrCRC, protocol.ErrNoResponse, protocol.ErrPowerOnValue, bus.ErrNoPresence, nil}
	for i, want := range wantErr {
		got := rs[i].Sample.Err
		if want == nil && got != nil {
			t.Fatalf("sensor %d: unexpected err=%v", i+1, got)
		}
		if want != nil && !errors.Is(got, want) {
			t.Fatalf("sensor %d: err=%v want %v", i+1, got, want)
		}
	}

	if got := protocol.Format(rs); got != devs[0].Address.String()+":20.00,"+devs[5].Address.String()+":-5.50" {
		t.Fatalf("unexpected data line %q", got)
	}

	var crc, start bool
	for _, l := range rec.Kinds(protocol.KindError) {
		if strings.HasPrefix(l.Text, "CRC_FAILED for sensor 2") {
			crc = true
		}
		if strings.HasPrefix(l.Text, "Failed to start conversion for sensor 5") {
			start = true
		}
	}
	if !crc || !start {
		t.Fatalf("missing per-sensor error lines: %v", rec.Lines)
	}
}

func TestTick_NoSensorsThrottled(t *testing.T) {
	e, _, rec := newEngine(t, 12)
	t0 := time.Unix(0, 0)

	e.Tick(t0)
	e.Tick(t0.Add(time.Second))
	e.Tick(t0.Add(5 * time.Second))
	if n := len(rec.Kinds(protocol.KindError)); n != 1 {
		t.Fatalf("expected one no-sensors error inside the throttle window, got %d", n)
	}

	e.Tick(t0.Add(10 * time.Second))
	errs := rec.Kinds(protocol.KindError)
	if len(errs) != 2 || errs[1].Text != "No sensors available to read" {
		t.Fatalf("expected repeated no-sensors error, got %v", errs)
	}
	if e.Phase() != PhaseIdle {
		t.Fatalf("engine must stay idle without sensors")
	}
}

func TestDecode_DS18S20Extended(t *testing.T) {
	for _, c := range []float64{21.5, -10.25, 0.0625, 25} {
		dev := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18S20, 7), Celsius: c}
		e, _, _ := newEngine(t, 12, dev)
		rs := runCycle(t, e, time.Unix(0, 0))
		if !rs[0].Sample.OK() || rs[0].Sample.Celsius != c {
			t.Fatalf("DS18S20 %v: got %+v", c, rs[0].Sample)
		}
	}

	// COUNT_PER_C of zero: plain half-degree reading
	for raw, want := range map[uint16]float64{0x0032: 25, 0xFFCE: -25, 0x0001: 0.5} {
		spad := []byte{byte(raw), byte(raw >> 8), 0x4B, 0x46, 0xFF, 0xFF, 0x0C, 0x00, 0}
		spad[8] = bus.CRC8(spad[:8])
		c, err := Decode(bus.FamilyDS18S20, spad, 12)
		if err != nil || c != want {
			t.Fatalf("raw %#04x: got %v err=%v, want %v", raw, c, err, want)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(bus.FamilyDS18B20, make([]byte, 8), 12); err == nil {
		t.Fatalf("expected length error")
	}

	spad := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := Decode(bus.FamilyDS18B20, spad, 12); !errors.Is(err, protocol.ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}

	// 25.0625 °C
	spad = []byte{0x91, 0x01, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10, 0}
	spad[8] = bus.CRC8(spad[:8])
	c, err := Decode(bus.FamilyDS18B20, spad, 12)
	if err != nil || c != 25.0625 {
		t.Fatalf("got %v err=%v, want 25.0625", c, err)
	}

	spad[8] ^= 0x01
	if _, err := Decode(bus.FamilyDS18B20, spad, 12); !errors.Is(err, protocol.ErrCRC) {
		t.Fatalf("expected ErrCRC, got %v", err)
	}
}

// ---- resolution programming ----

// fakeWire is a single DS18B20 behind a periph bus. Write Scratchpad
// transactions can be made to fail.
type fakeWire struct {
	res        int
	raw        int16
	failWrites int
	writes     int
}

func (f *fakeWire) String() string { return "fakewire" }

func (f *fakeWire) Halt() error { return nil }

func (f *fakeWire) Search(alarmOnly bool) ([]onewire.Address, error) { return nil, nil }

func (f *fakeWire) Tx(w, r []byte, power onewire.Pullup) error {
	// match rom (9 bytes) then the function command
	if len(w) < 10 {
		return nil
	}
	switch w[9] {
	case bus.CmdWriteScratchpad:
		f.writes++
		if f.failWrites > 0 {
			f.failWrites--
			return errors.New("no presence")
		}
		f.res = configResolution(w[12])
	case bus.CmdReadScratchpad:
		spad := []byte{byte(f.raw), byte(uint16(f.raw) >> 8), 0x4B, 0x46, configByte(f.res), 0xFF, 0x0C, 0x10, 0}
		spad[8] = bus.CRC8(spad[:8])
		copy(r, spad)
	}
	return nil
}

func TestProgram_FailedWriteReportedAndRetried(t *testing.T) {
	wire := &fakeWire{res: 12, raw: 344, failWrites: 1} // 21.5 °C
	addr := bus.NewAddress(bus.FamilyDS18B20, 1)
	rec := &protocol.Recorder{}
	e, err := New(
		Config{Interval: time.Second, Resolution: 9, NoSensorReport: 10 * time.Second},
		bus.NewPeriph(wire), staticSensors{addr}, rec, zaptest.NewLogger(t),
	)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	t0 := time.Unix(0, 0)

	rs := runCycle(t, e, t0)
	if !errors.Is(rs[0].Sample.Err, ErrResolutionMismatch) {
		t.Fatalf("sensor still at 12 bits must not be read at 9, got %+v", rs[0].Sample)
	}
	var reported bool
	for _, l := range rec.Kinds(protocol.KindError) {
		if strings.HasPrefix(l.Text, "Failed to set resolution for sensor 1") {
			reported = true
		}
		if strings.HasPrefix(l.Text, "Failed to start conversion") {
			t.Fatalf("write failure attributed to conversion: %q", l.Text)
		}
	}
	if !reported {
		t.Fatalf("missing resolution failure line: %v", rec.Lines)
	}

	rs = runCycle(t, e, t0.Add(time.Second))
	if wire.writes != 2 {
		t.Fatalf("expected the failed write to be retried, got %d writes", wire.writes)
	}
	if wire.res != 9 || !rs[0].Sample.OK() || rs[0].Sample.Celsius != 21.5 {
		t.Fatalf("expected 9-bit reading after retry, res=%d %+v", wire.res, rs[0].Sample)
	}

	runCycle(t, e, t0.Add(2*time.Second))
	if wire.writes != 2 {
		t.Fatalf("programmed sensor must not be rewritten, got %d writes", wire.writes)
	}
}

func countOps(b *bussim.Bus, op string) int {
	n := 0
	for _, o := range b.Operations() {
		if o == op {
			n++
		}
	}
	return n
}

func TestProgram_ReprogramsSensorThatLostConfig(t *testing.T) {
	dev := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 21.4375}
	e, b, rec := newEngine(t, 9, dev)
	t0 := time.Unix(0, 0)
	config := "config " + dev.Address.String()

	if rs := runCycle(t, e, t0); !rs[0].Sample.OK() || dev.Resolution != 9 {
		t.Fatalf("first cycle: res=%d %+v", dev.Resolution, rs[0].Sample)
	}

	// power cycle: the sensor comes back at its EEPROM resolution
	dev.Resolution = 12

	rs := runCycle(t, e, t0.Add(time.Second))
	if !errors.Is(rs[0].Sample.Err, ErrResolutionMismatch) {
		t.Fatalf("expected mismatch after power cycle, got %+v", rs[0].Sample)
	}
	if protocol.Format(rs) != "" {
		t.Fatalf("sample read before its dwell must not be reported")
	}
	var mismatch bool
	for _, l := range rec.Kinds(protocol.KindError) {
		if strings.HasPrefix(l.Text, "Sensor 1 ("+dev.Address.String()+") resolution mismatch") {
			mismatch = true
		}
	}
	if !mismatch {
		t.Fatalf("missing mismatch line: %v", rec.Lines)
	}

	rs = runCycle(t, e, t0.Add(2*time.Second))
	if countOps(b, config) != 2 || dev.Resolution != 9 {
		t.Fatalf("expected reprogramming, config ops=%d res=%d", countOps(b, config), dev.Resolution)
	}
	if !rs[0].Sample.OK() || rs[0].Sample.Celsius != 21 {
		t.Fatalf("expected 9-bit reading 21.00, got %+v", rs[0].Sample)
	}
}

func TestProgram_PowerOnValueDropsCache(t *testing.T) {
	dev := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 20, SkipConvert: true}
	e, b, _ := newEngine(t, 10, dev)
	t0 := time.Unix(0, 0)

	rs := runCycle(t, e, t0)
	if !errors.Is(rs[0].Sample.Err, protocol.ErrPowerOnValue) {
		t.Fatalf("expected power-on value, got %+v", rs[0].Sample)
	}
	runCycle(t, e, t0.Add(time.Second))
	if n := countOps(b, "config "+dev.Address.String()); n != 2 {
		t.Fatalf("expected a config write every cycle while unconverted, got %d", n)
	}
}

type listSensors struct{ addrs []bus.Address }

func (l *listSensors) Snapshot() []bus.Address {
	return append([]bus.Address(nil), l.addrs...)
}

func TestProgram_BatchChangeClearsCache(t *testing.T) {
	d1 := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 1), Celsius: 20}
	d2 := &bussim.Device{Address: bus.NewAddress(bus.FamilyDS18B20, 2), Celsius: 21}
	b := bussim.New(d1, d2)
	sensors := &listSensors{addrs: []bus.Address{d1.Address}}
	e, err := New(Config{Interval: time.Second, Resolution: 11}, b, sensors, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	t0 := time.Unix(0, 0)

	runCycle(t, e, t0)
	runCycle(t, e, t0.Add(time.Second))
	if n := countOps(b, "config "+d1.Address.String()); n != 1 {
		t.Fatalf("stable batch must program once, got %d", n)
	}

	sensors.addrs = []bus.Address{d1.Address, d2.Address}
	rs := runCycle(t, e, t0.Add(2*time.Second))
	if n := countOps(b, "config "+d1.Address.String()); n != 2 {
		t.Fatalf("batch change must reprogram known sensors, got %d", n)
	}
	if n := countOps(b, "config "+d2.Address.String()); n != 1 {
		t.Fatalf("new sensor not programmed, got %d", n)
	}
	if len(rs) != 2 || !rs[0].Sample.OK() || !rs[1].Sample.OK() {
		t.Fatalf("unexpected readings %+v", rs)
	}
}
