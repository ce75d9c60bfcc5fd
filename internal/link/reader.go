// internal/link/reader.go
package link

import (
	"context"
	"errors"
	"io"

	"github.com/goburrow/serial"
	"go.uber.org/zap"
)

// MaxLineLength bounds one inbound command. Longer input is truncated.
const MaxLineLength = 256

// ReadLines splits r into lines and delivers them on the returned channel.
// Line endings are "\n" with an optional preceding "\r". Serial read timeouts
// are not errors. The channel closes on EOF, on a read error, or when ctx is done.
func ReadLines(ctx context.Context, r io.Reader, log *zap.Logger) <-chan string {
	if log == nil {
		log = zap.NewNop()
	}
	out := make(chan string, 8)

	go func() {
		defer close(out)

		buf := make([]byte, 64)
		line := make([]byte, 0, MaxLineLength)
		truncated := false

		deliver := func() bool {
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			if truncated {
				log.Warn("inbound line truncated", zap.Int("max", MaxLineLength))
			}
			select {
			case out <- string(line):
			case <-ctx.Done():
				return false
			}
			line = line[:0]
			truncated = false
			return true
		}

		for {
			if ctx.Err() != nil {
				return
			}

			n, err := r.Read(buf)
			for _, b := range buf[:n] {
				if b == '\n' {
					if !deliver() {
						return
					}
					continue
				}
				if len(line) >= MaxLineLength {
					truncated = true
					continue
				}
				line = append(line, b)
			}

			switch {
			case err == nil:
			case errors.Is(err, serial.ErrTimeout):
			case errors.Is(err, io.EOF):
				if len(line) > 0 {
					deliver()
				}
				log.Debug("host link closed")
				return
			default:
				if ctx.Err() == nil {
					log.Warn("host link read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	return out
}
