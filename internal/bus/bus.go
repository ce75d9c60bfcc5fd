// internal/bus/bus.go
package bus

import "errors"

// Function commands understood by DS18x20 devices.
const (
	CmdConvertT        byte = 0x44
	CmdReadScratchpad  byte = 0xBE
	CmdWriteScratchpad byte = 0x4E
)

// ScratchpadSize is the scratchpad length including the trailing CRC byte.
const ScratchpadSize = 9

var (
	// ErrNoPresence means no device answered the reset pulse.
	ErrNoPresence = errors.New("bus: no presence pulse")

	// ErrInvalidAddress is returned by ParseAddress.
	ErrInvalidAddress = errors.New("bus: invalid address")
)

// Bus is the raw 1-wire capability the core consumes.
// Implementations own bus timing; callers never sleep.
//
// A transaction is Reset, Select, then any number of Write/Read calls.
type Bus interface {
	// Reset issues a reset pulse and starts a new transaction.
	Reset() error

	// Select addresses one device (Match ROM).
	Select(addr Address) error

	// Write sends bytes. power keeps the strong pull-up on afterwards
	// so parasite-powered devices can convert.
	Write(p []byte, power bool) error

	// Read fills p from the bus.
	Read(p []byte) error

	// ResetSearch restarts enumeration from the beginning.
	ResetSearch()

	// Search returns the next device. ok is false once the walk is exhausted.
	Search() (addr Address, ok bool, err error)
}
