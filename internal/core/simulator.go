package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/pms5003"
)

type SimulatorConfig struct {
	Interval time.Duration
	// NoiseBytes is the upper bound of garbage written before each frame.
	// Noise never contains the first marker byte.
	NoiseBytes int
	// CorruptEvery breaks the checksum of every Nth frame. Zero disables it.
	CorruptEvery int
	RandSource   rand.Source
}

// Simulator emits plausible sensor traffic for running without hardware.
type Simulator struct {
	cfg    SimulatorConfig
	logger Logger
	rnd    *rand.Rand
	sent   int
}

func NewSimulator(cfg SimulatorConfig, logger Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.NoiseBytes < 0 {
		cfg.NoiseBytes = 0
	}
	if cfg.CorruptEvery < 0 {
		cfg.CorruptEvery = 0
	}

	source := cfg.RandSource
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	cfg.RandSource = source

	return &Simulator{
		cfg:    cfg,
		logger: logger,
		rnd:    rand.New(source),
	}
}

// Run writes one frame per interval until ctx ends or w fails.
func (s *Simulator) Run(ctx context.Context, w io.Writer) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log(ctx, "simulator: остановлен (context cancelled): %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := w.Write(s.nextChunk()); err != nil {
			return fmt.Errorf("simulator: write: %w", err)
		}
	}
}

// Open runs the simulator behind a pipe. Closing the reader stops it; ctx
// cancellation surfaces on the reader as ctx.Err().
func (s *Simulator) Open(ctx context.Context) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := s.Run(ctx, pw)
		if errors.Is(err, io.ErrClosedPipe) {
			err = nil
		}
		_ = pw.CloseWithError(err)
	}()
	return pr
}

func (s *Simulator) nextChunk() []byte {
	s.sent++

	var chunk []byte
	if s.cfg.NoiseBytes > 0 {
		noise := make([]byte, s.rnd.Intn(s.cfg.NoiseBytes+1))
		for i := range noise {
			noise[i] = byte(s.rnd.Intn(int(pms5003.Marker[0])))
		}
		chunk = append(chunk, noise...)
	}

	raw := pms5003.Encode(s.nextFrame())
	if s.cfg.CorruptEvery > 0 && s.sent%s.cfg.CorruptEvery == 0 {
		raw[pms5003.FrameLen-1] ^= 0xFF
	}
	return append(chunk, raw[:]...)
}

func (s *Simulator) nextFrame() domain.Frame {
	pm10 := uint16(s.rnd.Intn(40))
	pm25 := pm10 + uint16(s.rnd.Intn(30))
	pm100 := pm25 + uint16(s.rnd.Intn(30))

	count03 := uint16(300 + s.rnd.Intn(3000))
	count05 := count03 / uint16(2+s.rnd.Intn(3))
	count10 := count05 / uint16(2+s.rnd.Intn(3))
	count25 := count10 / uint16(2+s.rnd.Intn(4))
	count50 := count25 / uint16(2+s.rnd.Intn(4))
	count100 := count50 / uint16(2+s.rnd.Intn(4))

	return domain.Frame{
		PM10: pm10, PM25: pm25, PM100: pm100,
		PM10Atmos: pm10, PM25Atmos: pm25, PM100Atmos: pm100,
		Count03: count03, Count05: count05, Count10: count10,
		Count25: count25, Count50: count50, Count100: count100,
	}
}

func (s *Simulator) log(ctx context.Context, format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(ctx, format, v...)
	}
}
