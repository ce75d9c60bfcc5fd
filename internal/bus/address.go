// internal/bus/address.go
package bus

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Family codes accepted as temperature sensors.
const (
	FamilyDS18S20 byte = 0x10
	FamilyDS18B20 byte = 0x28
)

// Address is the 64-bit ROM code of a device, in bus order:
// byte 0 = family, bytes 1..6 = serial, byte 7 = CRC-8 of bytes 0..6.
type Address [8]byte

// String renders the address as 16 lowercase hex characters.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Family returns the device family byte.
func (a Address) Family() byte {
	return a[0]
}

// Valid reports whether the ROM CRC byte matches.
func (a Address) Valid() bool {
	return CRC8(a[:7]) == a[7]
}

// IsTemperatureSensor reports whether the family byte is one we poll.
func (a Address) IsTemperatureSensor() bool {
	switch a.Family() {
	case FamilyDS18S20, FamilyDS18B20:
		return true
	default:
		return false
	}
}

// Uint64 packs the address little-endian (family in the low byte),
// which is the layout periph uses for onewire.Address.
func (a Address) Uint64() uint64 {
	return binary.LittleEndian.Uint64(a[:])
}

// AddressFromUint64 is the inverse of Uint64.
func AddressFromUint64(v uint64) Address {
	var a Address
	binary.LittleEndian.PutUint64(a[:], v)
	return a
}

// ParseAddress parses the 16-hex-character form produced by String.
// Upper and lower case are both accepted.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 2*len(a) {
		return a, fmt.Errorf("%w: %q: want %d hex characters", ErrInvalidAddress, s, 2*len(a))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return a, nil
}

// NewAddress builds an address from a family and 48-bit serial and fills in the CRC.
func NewAddress(family byte, serial uint64) Address {
	var a Address
	a[0] = family
	for i := 0; i < 6; i++ {
		a[1+i] = byte(serial >> (8 * i))
	}
	a[7] = CRC8(a[:7])
	return a
}
