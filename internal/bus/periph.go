// internal/bus/periph.go
package bus

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"
)

const cmdMatchROM byte = 0x55

// Periph adapts a periph.io 1-wire bus to Bus.
//
// periph buses work in whole transactions (reset + write + read), so writes are
// buffered until the transaction is completed by Read, a powered Write, or the
// next Reset.
type Periph struct {
	bus     onewire.Bus
	closer  func() error
	pending []byte

	found    []Address
	next     int
	searched bool
}

// NewPeriph wraps an already opened periph bus.
func NewPeriph(b onewire.Bus) *Periph {
	return &Periph{bus: b}
}

// OpenPeriph initialises the host drivers and opens the named 1-wire bus.
// An empty name opens the first registered bus.
func OpenPeriph(name string) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bus: host init: %w", err)
	}

	bc, err := onewirereg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bus: open %q: %w", name, err)
	}

	p := NewPeriph(bc)
	p.closer = bc.Close
	return p, nil
}

// Close releases the underlying bus.
func (p *Periph) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

func (p *Periph) String() string {
	return p.bus.String()
}

func (p *Periph) Reset() error {
	err := p.flush(nil, onewire.WeakPullup)
	p.pending = p.pending[:0]
	return err
}

func (p *Periph) Select(addr Address) error {
	var rom [9]byte
	rom[0] = cmdMatchROM
	binary.LittleEndian.PutUint64(rom[1:], addr.Uint64())
	p.pending = append(p.pending, rom[:]...)
	return nil
}

func (p *Periph) Write(b []byte, power bool) error {
	p.pending = append(p.pending, b...)
	if !power {
		return nil
	}
	return p.flush(nil, onewire.StrongPullup)
}

func (p *Periph) Read(b []byte) error {
	return p.flush(b, onewire.WeakPullup)
}

func (p *Periph) ResetSearch() {
	p.found = nil
	p.next = 0
	p.searched = false
}

func (p *Periph) Search() (Address, bool, error) {
	if !p.searched {
		addrs, err := p.bus.Search(false)
		if err != nil {
			return Address{}, false, fmt.Errorf("bus: search: %w", err)
		}
		p.found = make([]Address, 0, len(addrs))
		for _, a := range addrs {
			p.found = append(p.found, AddressFromUint64(uint64(a)))
		}
		p.searched = true
	}

	if p.next >= len(p.found) {
		return Address{}, false, nil
	}
	a := p.found[p.next]
	p.next++
	return a, true, nil
}

// flush sends the buffered bytes as one transaction and reads into r.
func (p *Periph) flush(r []byte, power onewire.Pullup) error {
	if len(p.pending) == 0 && len(r) == 0 {
		return nil
	}
	w := p.pending
	p.pending = nil
	if err := p.bus.Tx(w, r, power); err != nil {
		return fmt.Errorf("bus: tx: %w", err)
	}
	return nil
}

var _ Bus = (*Periph)(nil)
