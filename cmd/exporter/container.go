package main

import (
	"pms-exporter/internal/core"
	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/metrics"
	"pms-exporter/internal/source"
)

type application struct {
	Config    infra.Config
	Logger    *infra.Logger
	Sink      *metrics.Sink
	History   domain.ReadingRepository
	Stream    domain.FrameStream
	Recorder  domain.ReadingRecorder
	Simulator *core.Simulator
	Source    source.Config
}

func newApplication(cfg infra.Config, logger *infra.Logger, sink *metrics.Sink, history domain.ReadingRepository,
	stream domain.FrameStream, recorder domain.ReadingRecorder, simulator *core.Simulator, src source.Config) *application {
	return &application{
		Config:    cfg,
		Logger:    logger,
		Sink:      sink,
		History:   history,
		Stream:    stream,
		Recorder:  recorder,
		Simulator: simulator,
		Source:    src,
	}
}

func assembleApplication(app *application, cleanup func()) (*application, func(), error) {
	if cleanup == nil {
		cleanup = func() {}
	}
	return app, cleanup, nil
}
