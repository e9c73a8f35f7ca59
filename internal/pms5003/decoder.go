package pms5003

import (
	"bytes"

	"pms-exporter/internal/domain"
)

// startupArtifacts is how many markers are dropped when startup skipping is on.
const startupArtifacts = 2

// Option configures a Decoder.
type Option func(*Decoder)

// WithStartupSkip drops the first two markers seen by the decoder. Enable it
// on hosts whose serial driver replays stale bytes when the port opens.
func WithStartupSkip(enabled bool) Option {
	return func(d *Decoder) {
		d.skipStartup = enabled
	}
}

// Decoder locates and validates frames in a growing byte buffer.
//
// A Decoder belongs to a single stream and is not safe for concurrent use.
// Create a new one when the stream is reopened; its state must not be reset
// between frames.
type Decoder struct {
	search      *searcher
	skipStartup bool
	skipped     int
}

// NewDecoder returns a decoder ready for a fresh stream.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{search: newSearcher(Marker[:])}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode consumes at most one frame from the front of buf.
//
// It returns (nil, nil) when more data is needed, the frame on success, or
// an error wrapping ErrInvalidFrame when the candidate frame fails
// validation. On error the 32 offending bytes have already been consumed,
// so the caller may log and call Decode again.
func (d *Decoder) Decode(buf *bytes.Buffer) (*domain.Frame, error) {
	if buf == nil {
		return nil, nil
	}

	idx := d.search.index(buf.Bytes())
	if idx < 0 {
		return nil, nil
	}
	if idx > 0 {
		buf.Next(idx)
	}

	if d.skipStartup && d.skipped < startupArtifacts {
		buf.Next(len(Marker))
		d.skipped++
		return nil, nil
	}

	if buf.Len() < FrameLen {
		return nil, nil
	}

	var raw [FrameLen]byte
	copy(raw[:], buf.Next(FrameLen))

	frame, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &frame, nil
}

// StartupSkipped reports how many startup markers have been dropped so far.
func (d *Decoder) StartupSkipped() int {
	return d.skipped
}

// searcher finds a fixed needle in successive buffers. It keeps no position
// between calls, so the same searcher is reused for the life of a stream and
// a marker split across two reads is found once the second read lands.
type searcher struct {
	needle []byte
}

func newSearcher(needle []byte) *searcher {
	s := &searcher{}
	s.init(needle)
	return s
}

func (s *searcher) init(needle []byte) {
	s.needle = append(s.needle[:0], needle...)
}

func (s *searcher) index(haystack []byte) int {
	if len(s.needle) == 0 {
		return -1
	}
	return bytes.Index(haystack, s.needle)
}
