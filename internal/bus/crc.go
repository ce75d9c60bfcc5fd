// internal/bus/crc.go
package bus

import "periph.io/x/conn/v3/onewire"

// CRC8 computes the Dallas/Maxim CRC-8 used for ROM codes and scratchpads.
func CRC8(p []byte) byte {
	return onewire.CalcCRC(p)
}
