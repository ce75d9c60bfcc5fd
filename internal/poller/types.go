// internal/poller/types.go
package poller

import (
	"errors"
	"time"

	"github.com/tamzrod/onewire-reporter/internal/bus"
)

// Phase is the poll-cycle state. The cycle covers the whole sensor set.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConversionStarted
	PhaseReadyToRead
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConversionStarted:
		return "conversion_started"
	case PhaseReadyToRead:
		return "ready_to_read"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidResolution = errors.New("poller: resolution must be 9-12")
	ErrNotReady          = errors.New("poller: conversion still in progress")
	ErrNoConversion      = errors.New("poller: no conversion started")
	ErrCycleInProgress   = errors.New("poller: cycle already in progress")

	// ErrResolutionMismatch means the sensor converted at a resolution other
	// than the cycle's, so the dwell or the mask does not fit the sample.
	ErrResolutionMismatch = errors.New("poller: sensor resolution differs from cycle")
)

// Sensors is the read side of the registry.
type Sensors interface {
	Snapshot() []bus.Address
}

// Config is the minimal runtime config the engine needs.
type Config struct {
	Interval   time.Duration
	Resolution int

	// NoSensorReport throttles the "no sensors" error line.
	NoSensorReport time.Duration
}
