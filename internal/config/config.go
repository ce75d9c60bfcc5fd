// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tamzrod/onewire-reporter/internal/bus"
)

type Config struct {
	Bus    BusConfig     `yaml:"bus"`
	Poll   PollConfig    `yaml:"poll"`
	Link   LinkConfig    `yaml:"link"`
	Mirror *MirrorConfig `yaml:"mirror"` // optional, opt-in
	Log    LogConfig     `yaml:"log"`
}

// ---- BUS ----

type BusConfig struct {
	Name     string            `yaml:"name"` // "" = first registered 1-wire bus
	Simulate bool              `yaml:"simulate"`
	Sensors  []SimSensorConfig `yaml:"sensors"` // simulate mode only
}

type SimSensorConfig struct {
	Address string  `yaml:"address"` // 16 hex chars; generated when empty
	Celsius float64 `yaml:"celsius"`
}

// SimulatedAddress is the ROM address of simulated sensor i.
// Sensors without an address get a DS18B20 address with serial i+1.
func (c BusConfig) SimulatedAddress(i int) (bus.Address, error) {
	if c.Sensors[i].Address == "" {
		return bus.NewAddress(bus.FamilyDS18B20, uint64(i+1)), nil
	}
	return bus.ParseAddress(c.Sensors[i].Address)
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	Resolution       int `yaml:"resolution"`
	Capacity         int `yaml:"capacity"`
	TickMs           int `yaml:"tick_ms"`
	NoSensorReportMs int `yaml:"no_sensor_report_ms"`
}

// ---- HOST LINK ----

type LinkConfig struct {
	Port      string `yaml:"port"` // "" = stdin/stdout
	BaudRate  int    `yaml:"baud_rate"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- REGISTER MIRROR ----

type MirrorConfig struct {
	Endpoint    string `yaml:"endpoint"`
	UnitID      uint8  `yaml:"unit_id"`
	BaseAddress uint16 `yaml:"base_address"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	Name        string `yaml:"name"` // station name, ASCII, max 16 chars
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and decodes a YAML file. Unknown keys are rejected and an
// empty file yields the zero Config.
// The result is not normalized or validated.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a normalized configuration with no file behind it.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}
