// internal/station/station.go

// Package station is the single cooperative loop that owns the bus,
// the registry, the poll engine and the command processor.
package station

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/onewire-reporter/internal/command"
	"github.com/tamzrod/onewire-reporter/internal/poller"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
	"github.com/tamzrod/onewire-reporter/internal/registry"
	"github.com/tamzrod/onewire-reporter/internal/writer"
)

const Banner = "Temperature Monitoring System Started"

type Config struct {
	Tick time.Duration
}

// Station is the process-scoped context: every component it holds is
// constructed once at startup and driven only from Run (or Start/Tick/HandleLine
// in tests). Not safe for concurrent use.
type Station struct {
	cfg    Config
	reg    *registry.Registry
	eng    *poller.Engine
	cmd    *command.Processor
	out    protocol.Emitter
	mirror writer.Mirror // nil = disabled
	log    *zap.Logger

	cycles int
}

func New(cfg Config, reg *registry.Registry, eng *poller.Engine, cmd *command.Processor, out protocol.Emitter, mirror writer.Mirror, log *zap.Logger) (*Station, error) {
	if cfg.Tick <= 0 {
		return nil, errors.New("station: tick must be > 0")
	}
	if reg == nil || eng == nil || cmd == nil || out == nil {
		return nil, errors.New("station: registry, engine, processor and emitter required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Station{
		cfg:    cfg,
		reg:    reg,
		eng:    eng,
		cmd:    cmd,
		out:    out,
		mirror: mirror,
		log:    log,
	}, nil
}

// Start announces the station and runs the boot discovery.
func (s *Station) Start(now time.Time) {
	s.out.Emit(protocol.Info(Banner))
	s.reg.Discover()

	if s.mirror != nil {
		s.mirror.Start()
	}

	s.log.Info("station started",
		zap.Int("sensors", s.reg.Count()),
		zap.Int("resolution", s.eng.Resolution()),
		zap.Duration("interval", s.eng.Interval()),
		zap.Time("at", now))
}

// Tick advances the poll engine and reports a completed cycle.
func (s *Station) Tick(now time.Time) {
	if rs, done := s.eng.Tick(now); done {
		s.report(rs)
	}

	if s.mirror != nil {
		s.mirror.Tick(now, s.reg.Count())
	}
}

// HandleLine dispatches one inbound host line.
func (s *Station) HandleLine(line string) {
	if err := s.cmd.Handle(line); err != nil {
		s.log.Debug("command rejected", zap.Error(err))
	}
}

// Cycles returns the number of completed poll cycles.
func (s *Station) Cycles() int { return s.cycles }

// Run is the only loop. It ticks at cfg.Tick and handles inbound lines
// between ticks. A closed lines channel stops command handling, not polling.
// Run returns when ctx is done.
func (s *Station) Run(ctx context.Context, lines <-chan string) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("station stopped", zap.Int("cycles", s.cycles))
			return nil

		case now := <-ticker.C:
			s.Tick(now)

		case line, ok := <-lines:
			if !ok {
				s.log.Info("host link input closed; polling continues")
				lines = nil
				continue
			}
			s.HandleLine(line)
		}
	}
}

func (s *Station) report(rs []protocol.Reading) {
	s.cycles++

	if line := protocol.Format(rs); line != "" {
		s.out.Emit(protocol.Data(line))
	} else {
		s.out.Emit(protocol.Error("Failed to read any sensor temperatures"))
	}

	if s.mirror != nil {
		s.mirror.Cycle(rs, s.reg.Count(), s.eng.CycleResolution())
	}
}
