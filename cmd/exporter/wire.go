//go:build wireinject

package main

import (
	"context"
	"io"

	"github.com/google/wire"
)

func initApplication(ctx context.Context, out io.Writer, flags cli) (*application, func(), error) {
	wire.Build(
		provideConfig,
		provideServiceName,
		provideLogger,
		provideSink,
		provideRepository,
		provideStreamConfig,
		provideStream,
		provideRecorder,
		provideSimulatorConfig,
		provideSimulator,
		provideSourceConfig,
		newApplication,
		assembleApplication,
	)
	return nil, nil, nil
}
