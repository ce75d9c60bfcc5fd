// internal/protocol/writer.go
package protocol

import (
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Writer emits newline-terminated ASCII lines to the host link.
// A failed write is logged and dropped; the caller keeps running.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	log *zap.Logger
}

func NewWriter(w io.Writer, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{w: w, log: log}
}

func (w *Writer) Emit(l Line) {
	s := sanitize(l.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := io.WriteString(w.w, s+"\n"); err != nil {
		w.log.Warn("host link write failed", zap.String("kind", l.Kind.String()), zap.Error(err))
		return
	}
	w.log.Debug("line sent", zap.String("kind", l.Kind.String()), zap.String("line", s))
}

// sanitize keeps one event on one line.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\r' || r == '\n':
			return ' '
		case r > 0x7E || (r < 0x20 && r != '\t'):
			return '?'
		default:
			return r
		}
	}, s)
}

var _ Emitter = (*Writer)(nil)
