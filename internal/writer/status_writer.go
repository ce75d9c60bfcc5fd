// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/onewire-reporter/internal/status"
)

// StatusWriter is the delivery-only contract for station status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// statusWriter writes the status block, full then incremental.
type statusWriter struct {
	plan Plan
	cli  registerClient

	needFull bool
	last     status.Snapshot
}

func newStatusWriter(plan Plan, cli registerClient) *statusWriter {
	return &statusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{Health: status.HealthUnknown},
	}
}

// WriteStatus delivers a snapshot into the status block.
// On any write failure, the next successful call re-asserts the full block.
func (sw *statusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.cli == nil {
		return errors.New("status writer: disabled")
	}

	// ------------------------------------------------------------
	// Full block write (identity re-assert, name included)
	// ------------------------------------------------------------
	if sw.needFull {
		regs := status.EncodeBlock(s, sw.plan.Name)

		if err := sw.cli.WriteRegisters(sw.plan.UnitID, sw.plan.BaseAddress, regs); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = s
		return nil
	}

	// ------------------------------------------------------------
	// Incremental: one write per changed live slot
	// ------------------------------------------------------------
	prev := status.Encode(sw.last)
	next := status.Encode(s)

	var errs []string
	for slot := range next {
		if prev[slot] == next[slot] {
			continue
		}
		addr := sw.plan.BaseAddress + uint16(slot)
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, addr, next[slot:slot+1]); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d write failed: %v", slot, err))
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt; re-assert on next success.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	sw.last = s
	return nil
}
