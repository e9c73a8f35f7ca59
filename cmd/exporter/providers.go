package main

import (
	"context"
	"io"
	"time"

	"pms-exporter/internal/core"
	"pms-exporter/internal/database"
	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/metrics"
	"pms-exporter/internal/repository/memory"
	"pms-exporter/internal/shared/constants"
	"pms-exporter/internal/source"
)

func provideConfig(flags cli) (infra.Config, error) {
	return flags.apply(infra.LoadConfig())
}

func provideServiceName() string {
	return constants.ServiceName
}

func provideLogger(out io.Writer, serviceName string, cfg infra.Config) (*infra.Logger, error) {
	logger := infra.NewLogger(out, serviceName)
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return logger, nil
}

func provideSink() *metrics.Sink {
	return metrics.NewSink()
}

func provideStreamConfig(cfg infra.Config) core.StreamConfig {
	return core.StreamConfig{
		ReadBufferSize:       cfg.ReadBufferSize,
		MaxBuffered:          cfg.MaxBufferedBytes,
		SkipStartupArtifacts: cfg.SkipStartupArtifacts,
	}
}

func provideStream(cfg core.StreamConfig, logger *infra.Logger) domain.FrameStream {
	return core.NewStream(cfg, logger)
}

func provideRecorder(sink *metrics.Sink, history domain.ReadingRepository, logger *infra.Logger) domain.ReadingRecorder {
	return core.NewRecorder(sink, history, logger)
}

func provideSimulatorConfig(cfg infra.Config) core.SimulatorConfig {
	return core.SimulatorConfig{
		Interval:     time.Duration(cfg.SimulatorIntervalMillis) * time.Millisecond,
		NoiseBytes:   cfg.SimulatorNoiseBytes,
		CorruptEvery: cfg.SimulatorCorruptEvery,
	}
}

func provideSimulator(cfg core.SimulatorConfig, logger *infra.Logger) *core.Simulator {
	return core.NewSimulator(cfg, logger)
}

func provideSourceConfig(cfg infra.Config) source.Config {
	return source.Config{
		Kind:        cfg.Source,
		Device:      cfg.SerialDevice,
		BaudRate:    cfg.SerialBaud,
		Address:     cfg.SourceAddress,
		DialTimeout: 5 * time.Second,
	}
}

// provideRepository selects Postgres when a database is configured and the
// in-memory ring otherwise.
func provideRepository(ctx context.Context, cfg infra.Config, logger *infra.Logger) (domain.ReadingRepository, func(), error) {
	if !database.ShouldCheckDatabase(cfg) {
		logger.Printf(ctx, "database not configured, keeping the last %d readings in memory", cfg.MemoryHistorySize)
		return memory.New(cfg.MemoryHistorySize), func() {}, nil
	}

	if err := database.WaitForDatabase(ctx, cfg, logger); err != nil {
		logger.Printf(ctx, "database connectivity check failed: %v", err)
	} else {
		logger.Println(ctx, "database connectivity check succeeded")
	}

	return database.SetupRepository(ctx, cfg, logger)
}
