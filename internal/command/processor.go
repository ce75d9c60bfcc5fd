// internal/command/processor.go

// Package command parses host commands and dispatches them to the
// registry and the poll engine.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/bus"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
)

const (
	CmdRescan        = "RESCAN"
	CmdStatus        = "STATUS"
	CmdTest          = "TEST"
	CmdList          = "LIST"
	PrefixResolution = "RESOLUTION:"
)

var (
	ErrUnknownCommand  = errors.New("command: unknown command")
	ErrInvalidArgument = errors.New("command: invalid argument")
)

// Registry is the part of the sensor registry commands touch.
type Registry interface {
	Discover() (int, []bus.Address)
	Count() int
	Snapshot() []bus.Address
}

// Engine is the part of the poll engine commands touch.
type Engine interface {
	SetResolution(bits int) error
	Resolution() int
	Interval() time.Duration
}

type Processor struct {
	reg Registry
	eng Engine
	out protocol.Emitter
	log *zap.Logger
}

func New(reg Registry, eng Engine, out protocol.Emitter, log *zap.Logger) (*Processor, error) {
	if reg == nil {
		return nil, errors.New("command: registry required")
	}
	if eng == nil {
		return nil, errors.New("command: engine required")
	}
	if out == nil {
		return nil, errors.New("command: emitter required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{reg: reg, eng: eng, out: out, log: log}, nil
}

// Handle processes one inbound line. Blank lines are ignored silently.
// Every other line is echoed before dispatch. The returned error mirrors
// the reported error or warning line; polling state is never affected by it.
func (p *Processor) Handle(line string) error {
	cmd := strings.TrimSpace(line)
	if cmd == "" {
		return nil
	}

	p.out.Emit(protocol.Info("Received command: %s", cmd))
	p.log.Debug("command received", zap.String("command", cmd))

	switch {
	case cmd == CmdRescan:
		p.reg.Discover()

	case cmd == CmdStatus:
		p.out.Emit(protocol.Info(
			"Found %d temperature sensor(s), resolution %d bits, poll interval %d ms",
			p.reg.Count(),
			p.eng.Resolution(),
			p.eng.Interval().Milliseconds(),
		))

	case cmd == CmdTest:
		p.out.Emit(protocol.Info("Test message - System is responding"))

	case cmd == CmdList:
		list := p.reg.Snapshot()
		if len(list) == 0 {
			p.out.Emit(protocol.Info("No sensors registered"))
		}
		for i, a := range list {
			p.out.Emit(protocol.Info("Sensor %d: %s", i+1, a))
		}

	case strings.HasPrefix(cmd, PrefixResolution):
		return p.resolution(strings.TrimSpace(strings.TrimPrefix(cmd, PrefixResolution)))

	default:
		p.out.Emit(protocol.Warn("Unknown command: %s", cmd))
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	return nil
}

func (p *Processor) resolution(arg string) error {
	bits, err := strconv.Atoi(arg)
	if err == nil {
		err = p.eng.SetResolution(bits)
	}
	if err != nil {
		p.out.Emit(protocol.Error("resolution must be 9-12"))
		p.log.Info("resolution rejected", zap.String("arg", arg), zap.Error(err))
		return fmt.Errorf("%w: resolution %q", ErrInvalidArgument, arg)
	}

	p.out.Emit(protocol.Info("Resolution set to %d bits", bits))
	return nil
}
