// Package source opens the byte stream a sensor is reachable through.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	KindSerial   = "serial"
	KindTCP      = "tcp"
	KindFile     = "file"
	KindSimulate = "simulate"
)

// ErrUnknownKind is returned for a kind Open does not handle.
var ErrUnknownKind = errors.New("source: unknown kind")

type Config struct {
	Kind string
	// Device is the serial port path, e.g. /dev/ttyUSB0.
	Device   string
	BaudRate int
	// Address is host:port for tcp and a file path for file.
	Address     string
	DialTimeout time.Duration
}

// openSerial is replaced in tests.
var openSerial = func(device string, mode *serial.Mode) (io.ReadCloser, error) {
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Open connects to the configured source. KindSimulate is not handled here;
// the caller owns the simulator.
func Open(ctx context.Context, cfg Config) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindSerial, "":
		return openSerialPort(cfg)
	case KindTCP:
		return dialTCP(ctx, cfg)
	case KindFile:
		return openFile(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// SerialMode is the sensor's fixed line setting: 8N1 at the given rate.
func SerialMode(baud int) *serial.Mode {
	if baud <= 0 {
		baud = 9600
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func openSerialPort(cfg Config) (io.ReadCloser, error) {
	if cfg.Device == "" {
		return nil, errors.New("source: serial device is required")
	}
	port, err := openSerial(cfg.Device, SerialMode(cfg.BaudRate))
	if err != nil {
		return nil, fmt.Errorf("source: open serial %s: %w", cfg.Device, err)
	}
	return port, nil
}

func dialTCP(ctx context.Context, cfg Config) (io.ReadCloser, error) {
	if cfg.Address == "" {
		return nil, errors.New("source: tcp address is required")
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("source: dial %s: %w", cfg.Address, err)
	}
	return conn, nil
}

func openFile(cfg Config) (io.ReadCloser, error) {
	if cfg.Address == "" {
		return nil, errors.New("source: file path is required")
	}
	f, err := os.Open(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("source: open file: %w", err)
	}
	return f, nil
}
