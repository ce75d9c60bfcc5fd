// internal/protocol/format.go
package protocol

import (
	"strconv"
	"strings"
)

// Format builds the data line: "<addr>:<temp>,<addr>:<temp>,...".
// Failed samples are left out. When nothing succeeded the result is "".
func Format(readings []Reading) string {
	var b strings.Builder
	for _, r := range readings {
		if !r.Sample.OK() {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(r.Address.String())
		b.WriteByte(':')
		b.WriteString(FormatCelsius(r.Sample.Celsius))
	}
	return b.String()
}

// FormatCelsius renders a temperature with exactly two decimals.
func FormatCelsius(c float64) string {
	s := strconv.FormatFloat(c, 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}
