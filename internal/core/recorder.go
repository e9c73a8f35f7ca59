package core

import (
	"context"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
)

// Recorder is the single writer of the sink. Each reading updates the sink
// first and is then handed to the history store; a history failure never
// rolls back the sink.
type Recorder struct {
	sink    domain.FrameSink
	history domain.ReadingWriter
	logger  Logger
}

// NewRecorder accepts a nil history to run without persistence.
func NewRecorder(sink domain.FrameSink, history domain.ReadingWriter, logger Logger) *Recorder {
	return &Recorder{sink: sink, history: history, logger: logger}
}

func (r *Recorder) Run(ctx context.Context, readings <-chan domain.Reading) {
	infra.RecorderStarted()
	defer infra.RecorderFinished()

	for {
		select {
		case <-ctx.Done():
			r.log(ctx, "recorder: context cancelled: %v", ctx.Err())
			return
		case reading, ok := <-readings:
			if !ok {
				return
			}
			r.record(ctx, reading)
		}
	}
}

func (r *Recorder) record(ctx context.Context, reading domain.Reading) {
	if r.sink != nil {
		r.sink.Update(reading.Frame)
		infra.IncReadingsRecorded()
	}

	if r.history == nil {
		return
	}
	if err := r.history.Add(ctx, reading); err != nil {
		r.log(ctx, "recorder: failed to store reading ts=%s: %v", reading.Timestamp.Format("15:04:05.000"), err)
		return
	}
	if r.logger != nil {
		r.logger.Debugf(ctx, "recorder: stored reading pm25=%d", reading.Frame.PM25)
	}
}

func (r *Recorder) log(ctx context.Context, format string, v ...any) {
	if r.logger != nil {
		r.logger.Printf(ctx, format, v...)
	}
}

var _ domain.ReadingRecorder = (*Recorder)(nil)
