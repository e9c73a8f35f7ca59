package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/repository/memory"
	"pms-exporter/internal/source"
)

func TestProvideRepositoryFallsBackToMemory(t *testing.T) {
	var out bytes.Buffer
	logger := infra.NewLogger(&out, "test")

	repo, cleanup, err := provideRepository(context.Background(), infra.Config{MemoryHistorySize: 8}, logger)
	require.NoError(t, err)
	defer cleanup()

	_, ok := repo.(*memory.Repository)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "in memory")
}

func TestProvideLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := provideLogger(&bytes.Buffer{}, "test", infra.Config{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestProvideSourceConfig(t *testing.T) {
	src := provideSourceConfig(infra.Config{
		Source:        source.KindTCP,
		SerialDevice:  "/dev/ttyUSB1",
		SerialBaud:    9600,
		SourceAddress: "sensor:4001",
	})

	assert.Equal(t, source.KindTCP, src.Kind)
	assert.Equal(t, "/dev/ttyUSB1", src.Device)
	assert.Equal(t, 9600, src.BaudRate)
	assert.Equal(t, "sensor:4001", src.Address)
	assert.Positive(t, src.DialTimeout)
}

func TestProvideSimulatorConfig(t *testing.T) {
	sim := provideSimulatorConfig(infra.Config{
		SimulatorIntervalMillis: 50,
		SimulatorNoiseBytes:     6,
		SimulatorCorruptEvery:   4,
	})

	assert.Equal(t, 50*time.Millisecond, sim.Interval)
	assert.Equal(t, 6, sim.NoiseBytes)
	assert.Equal(t, 4, sim.CorruptEvery)
}

func TestInitApplicationWithSimulator(t *testing.T) {
	t.Log("Шаг 1: собираем приложение без базы данных на симуляторе")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("SIMULATOR_INTERVAL_MS", "5")
	t.Setenv("SIMULATOR_NOISE_BYTES", "4")
	t.Setenv("SIMULATOR_CORRUPT_EVERY", "3")

	var out bytes.Buffer
	app, cleanup, err := initApplication(context.Background(), &out, cli{Source: "simulate"})
	require.NoError(t, err)
	defer cleanup()

	t.Log("Шаг 2: прогоняем поток симулятора через стрим и рекордер")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, err := openSource(ctx, app)
	require.NoError(t, err)
	defer reader.Close()

	readings := make(chan domain.Reading, 4)
	go func() { _ = app.Stream.Run(ctx, reader, readings) }()
	go app.Recorder.Run(ctx, readings)

	require.Eventually(t, func() bool {
		_, err := app.History.Latest(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, app.Sink.Stale(time.Now()))
}
