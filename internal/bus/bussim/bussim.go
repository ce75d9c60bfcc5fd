// internal/bus/bussim/bussim.go

// Package bussim is an in-memory 1-wire bus populated with simulated
// DS18B20/DS18S20 devices. It backs the tests and the simulate mode.
package bussim

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tamzrod/onewire-reporter/internal/bus"
)

// Device is one simulated sensor.
type Device struct {
	Address bus.Address
	Celsius float64

	// Resolution is the configured resolution (9..12). Zero means 12.
	// DS18S20 devices ignore it.
	Resolution int

	Corrupt     bool // flip the scratchpad CRC byte
	Silent      bool // answer every read with 0xFF
	SkipConvert bool // ignore Convert T; scratchpad keeps the power-on value
	FailSelect  bool // Select returns an error

	converted bool
}

// Bus implements bus.Bus.
type Bus struct {
	mu sync.Mutex

	Devices   []*Device
	SearchErr error

	// Ops records convert/read/config operations in order, e.g. "convert 28ab...".
	Ops []string

	selected  *Device
	readBuf   []byte
	searchPos int
}

// New returns a bus with the given devices.
func New(devs ...*Device) *Bus {
	return &Bus{Devices: devs}
}

// Add appends a device.
func (b *Bus) Add(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Devices = append(b.Devices, d)
}

// SetDevices replaces the bus population.
func (b *Bus) SetDevices(devs ...*Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Devices = devs
}

// Operations returns a copy of the recorded operations.
func (b *Bus) Operations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Ops...)
}

func (b *Bus) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.selected = nil
	b.readBuf = nil
	if len(b.Devices) == 0 {
		return bus.ErrNoPresence
	}
	return nil
}

func (b *Bus) Select(addr bus.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.selected = nil
	for _, d := range b.Devices {
		if d.Address != addr {
			continue
		}
		if d.FailSelect {
			return fmt.Errorf("bussim: select %s: %w", addr, bus.ErrNoPresence)
		}
		b.selected = d
		return nil
	}
	// Nobody matches: the bus floats high on reads.
	return nil
}

func (b *Bus) Write(p []byte, power bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) == 0 {
		return nil
	}
	d := b.selected
	if d == nil {
		return nil
	}

	switch p[0] {
	case bus.CmdConvertT:
		b.Ops = append(b.Ops, "convert "+d.Address.String())
		if !d.SkipConvert {
			d.converted = true
		}
	case bus.CmdReadScratchpad:
		b.Ops = append(b.Ops, "read "+d.Address.String())
		b.readBuf = d.scratchpad()
	case bus.CmdWriteScratchpad:
		if len(p) < 4 {
			return errors.New("bussim: short write scratchpad")
		}
		b.Ops = append(b.Ops, "config "+d.Address.String())
		if d.Address.Family() == bus.FamilyDS18B20 {
			d.Resolution = int((p[3]>>5)&0x03) + 9
		}
	default:
		return fmt.Errorf("bussim: unsupported command 0x%02x", p[0])
	}
	return nil
}

func (b *Bus) Read(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range p {
		if i < len(b.readBuf) {
			p[i] = b.readBuf[i]
		} else {
			p[i] = 0xFF
		}
	}
	if len(b.readBuf) > len(p) {
		b.readBuf = b.readBuf[len(p):]
	} else {
		b.readBuf = nil
	}
	return nil
}

func (b *Bus) ResetSearch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.searchPos = 0
}

func (b *Bus) Search() (bus.Address, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.SearchErr != nil {
		return bus.Address{}, false, b.SearchErr
	}
	if b.searchPos >= len(b.Devices) {
		return bus.Address{}, false, nil
	}
	a := b.Devices[b.searchPos].Address
	b.searchPos++
	return a, true, nil
}

func (d *Device) resolution() int {
	if d.Resolution < 9 || d.Resolution > 12 {
		return 12
	}
	return d.Resolution
}

// scratchpad renders the 9-byte scratchpad, CRC included.
func (d *Device) scratchpad() []byte {
	spad := make([]byte, bus.ScratchpadSize)
	if d.Silent {
		for i := range spad {
			spad[i] = 0xFF
		}
		return spad
	}

	spad[2] = 0x4B // TH
	spad[3] = 0x46 // TL
	spad[5] = 0xFF

	if d.Address.Family() == bus.FamilyDS18S20 {
		d.ds18s20(spad)
	} else {
		d.ds18b20(spad)
	}

	spad[8] = bus.CRC8(spad[:8])
	if d.Corrupt {
		spad[8] ^= 0xFF
	}
	return spad
}

func (d *Device) ds18b20(spad []byte) {
	res := d.resolution()
	raw := int16(0x0550) // power-on 85 °C
	if d.converted {
		raw = int16(math.Round(d.Celsius * 16))
		// Undefined low bits at reduced resolution read back as ones.
		undefined := int16(1)<<(12-res) - 1
		raw = raw&^undefined | undefined
	}
	spad[0] = byte(raw)
	spad[1] = byte(uint16(raw) >> 8)
	spad[4] = byte((res-9)<<5) | 0x1F
	spad[6] = 0x0C
	spad[7] = 0x10
}

// ds18s20 encodes half-degree TEMP_READ plus COUNT_REMAIN/COUNT_PER_C.
func (d *Device) ds18s20(spad []byte) {
	raw := int16(0x00AA) // power-on 85 °C
	remain := byte(0x0C)
	if d.converted {
		t16 := int(math.Round(d.Celsius * 16))
		k := int(math.Floor(float64(t16+4) / 16))
		raw = int16(2 * k)
		if t16-16*k >= 8 {
			raw |= 1
		}
		remain = byte(16*k + 12 - t16)
	}
	spad[0] = byte(raw)
	spad[1] = byte(uint16(raw) >> 8)
	spad[4] = 0xFF
	spad[6] = remain
	spad[7] = 0x10
}

var _ bus.Bus = (*Bus)(nil)
