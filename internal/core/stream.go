package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/pms5003"

	"github.com/google/uuid"
)

type StreamConfig struct {
	// ReadBufferSize is the size of a single read from the source.
	ReadBufferSize int
	// MaxBuffered bounds the bytes kept while no marker is in sight.
	MaxBuffered int
	// SkipStartupArtifacts drops the first two markers of every session.
	SkipStartupArtifacts bool
	// Now stamps readings. Defaults to time.Now.
	Now func() time.Time
}

// Stream drives a pms5003.Decoder over an io.Reader. Every Run is a new
// session with its own decoder.
type Stream struct {
	cfg    StreamConfig
	logger Logger
}

func NewStream(cfg StreamConfig, logger Logger) *Stream {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 256
	}
	if cfg.MaxBuffered < 2*pms5003.FrameLen {
		cfg.MaxBuffered = 2 * pms5003.FrameLen
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Stream{cfg: cfg, logger: logger}
}

// Run reads r until EOF, a read error or ctx cancellation, sending one
// reading per valid frame. Invalid frames are logged and skipped. out is
// closed when Run returns. EOF yields a nil error.
func (s *Stream) Run(ctx context.Context, r io.Reader, out chan<- domain.Reading) error {
	defer close(out)

	ctx = infra.WithCorrelationID(ctx, uuid.NewString())
	infra.IncStreamSessions()
	s.log(ctx, "stream: сессия открыта (skip_startup=%t)", s.cfg.SkipStartupArtifacts)

	decoder := pms5003.NewDecoder(pms5003.WithStartupSkip(s.cfg.SkipStartupArtifacts))
	var buf bytes.Buffer
	chunk := make([]byte, s.cfg.ReadBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			s.log(ctx, "stream: остановлен (context cancelled): %v", err)
			return err
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			infra.AddBytesRead(n)
			buf.Write(chunk[:n])
			if !s.drain(ctx, decoder, &buf, out) {
				return ctx.Err()
			}
			s.trimNoise(ctx, &buf)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.log(ctx, "stream: источник закрыт, в буфере осталось %d байт", buf.Len())
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("stream: read: %w", readErr)
		}
	}
}

// drain decodes until the decoder asks for more data. It returns false when
// ctx ended while a reading was waiting to be sent.
func (s *Stream) drain(ctx context.Context, decoder *pms5003.Decoder, buf *bytes.Buffer, out chan<- domain.Reading) bool {
	skippedBefore := decoder.StartupSkipped()
	defer func() {
		if skipped := decoder.StartupSkipped() - skippedBefore; skipped > 0 {
			infra.AddStartupMarkersSkipped(skipped)
			s.debug(ctx, "stream: пропущено стартовых маркеров: %d", skipped)
		}
	}()

	for {
		before := buf.Len()
		frame, err := decoder.Decode(buf)
		switch {
		case err != nil:
			s.reportFrameError(ctx, err)
			continue
		case frame != nil:
			infra.IncFramesDecoded()
			reading := domain.Reading{Frame: *frame, Timestamp: s.cfg.Now().UTC()}
			if !s.send(ctx, out, reading) {
				return false
			}
			continue
		}

		// Startup skips and leading noise shrink the buffer without a
		// frame; only an untouched buffer means the decoder is starved.
		if buf.Len() == before {
			return true
		}
	}
}

// trimNoise drops the front of a buffer that grew past MaxBuffered. After a
// drain such a buffer holds no marker, so only its last byte can still
// start one.
func (s *Stream) trimNoise(ctx context.Context, buf *bytes.Buffer) {
	if buf.Len() <= s.cfg.MaxBuffered {
		return
	}
	dropped := buf.Len() - 1
	buf.Next(dropped)
	infra.AddNoiseBytes(dropped)
	s.debug(ctx, "stream: отброшено %d байт шума без маркера", dropped)
}

func (s *Stream) reportFrameError(ctx context.Context, err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, pms5003.ErrChecksum):
		reason = "checksum"
	case errors.Is(err, pms5003.ErrHeader):
		reason = "header"
	}
	infra.IncFrameError(reason)
	if s.logger != nil {
		s.logger.Warnf(ctx, "stream: кадр отклонён: %v", err)
	}
}

func (s *Stream) send(ctx context.Context, out chan<- domain.Reading, reading domain.Reading) bool {
	select {
	case <-ctx.Done():
		s.log(ctx, "stream: остановка перед отправкой показаний: %v", ctx.Err())
		return false
	case out <- reading:
		return true
	}
}

func (s *Stream) log(ctx context.Context, format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(ctx, format, v...)
	}
}

func (s *Stream) debug(ctx context.Context, format string, v ...any) {
	if s.logger != nil {
		s.logger.Debugf(ctx, format, v...)
	}
}

var _ domain.FrameStream = (*Stream)(nil)
