// internal/link/link.go

// Package link is the host-facing byte stream: a serial port, or the
// process's stdin/stdout when no port is configured.
package link

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/goburrow/serial"
)

type Config struct {
	Port     string // "" = stdio
	BaudRate int
	Timeout  time.Duration
}

// Link is an open host connection.
type Link struct {
	name string
	r    io.Reader
	w    io.Writer
	c    io.Closer
}

// Open opens the serial port at 8N1, or wraps stdio when cfg.Port is empty.
func Open(cfg Config) (*Link, error) {
	if cfg.Port == "" {
		return NewStream("stdio", os.Stdin, os.Stdout, nil), nil
	}
	if cfg.BaudRate <= 0 {
		return nil, errors.New("link: baud rate must be > 0")
	}

	p, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewStream(cfg.Port, p, p, p), nil
}

// NewStream wraps an arbitrary reader/writer pair. c may be nil.
func NewStream(name string, r io.Reader, w io.Writer, c io.Closer) *Link {
	return &Link{name: name, r: r, w: w, c: c}
}

func (l *Link) Name() string { return l.name }

func (l *Link) Reader() io.Reader { return l.r }

func (l *Link) Writer() io.Writer { return l.w }

func (l *Link) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
