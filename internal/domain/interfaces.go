package domain

import (
	"context"
	"io"
	"time"
)

// FrameSink accepts decoded frames and exposes them to scrapers.
type FrameSink interface {
	Update(frame Frame)
}

// Freshness reports when the sink was last fed.
type Freshness interface {
	LastUpdate() time.Time
	Stale(now time.Time) bool
}

// ReadingWriter persists readings produced by the recorder.
type ReadingWriter interface {
	Add(ctx context.Context, reading Reading) error
}

// ReadingReader exposes the reading history to transport layers.
type ReadingReader interface {
	Latest(ctx context.Context) (Reading, error)
	InRange(ctx context.Context, from, to time.Time) ([]Reading, error)
}

// ReadingRepository aggregates the write and read capabilities of a history store.
type ReadingRepository interface {
	ReadingWriter
	ReadingReader
}

// FrameStream turns a raw byte stream into readings.
type FrameStream interface {
	Run(ctx context.Context, r io.Reader, out chan<- Reading) error
}

// ReadingRecorder consumes readings and feeds the sink and the history store.
type ReadingRecorder interface {
	Run(ctx context.Context, readings <-chan Reading)
}
