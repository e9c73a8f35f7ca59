package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	grpcapi "pms-exporter/internal/api/grpc"
	httpapi "pms-exporter/internal/api/http"
	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/source"
)

func main() {
	flags, err := parseCLI(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pms-exporter: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initApplication(ctx, os.Stdout, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	logger := app.Logger

	infra.LogConfig(ctx, logger, cfg)
	infra.StartMetricsServer(cfg.MetricsPort, logger)

	reader, err := openSource(ctx, app)
	if err != nil {
		logger.Fatalf(ctx, "failed to open %s source: %v", cfg.Source, err)
	}
	go func() {
		<-ctx.Done()
		// Unblocks a Read stuck on a quiet serial line.
		_ = reader.Close()
	}()

	bufferSize := cfg.ReadingBufferSize
	if bufferSize <= 0 {
		bufferSize = 16
	}
	readings := make(chan domain.Reading, bufferSize)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		err := app.Stream.Run(ctx, reader, readings)
		switch {
		case err == nil:
			logger.Println(ctx, "source exhausted, serving the last reading until shutdown")
		case errors.Is(err, context.Canceled):
		default:
			logger.Errorf(ctx, "stream stopped: %v", err)
			stop()
		}
	}()
	go func() {
		defer workers.Done()
		app.Recorder.Run(ctx, readings)
	}()

	httpServer := newHTTPServer(cfg.HTTPPort, app)
	httpListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		stop()
		workers.Wait()
		logger.Fatalf(ctx, "failed to listen on HTTP port %s: %v", cfg.HTTPPort, err)
	}

	grpcServer, healthServer := grpcapi.NewServer(logger)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		stop()
		workers.Wait()
		logger.Fatalf(ctx, "failed to listen on gRPC port %s: %v", cfg.GRPCPort, err)
	}

	workers.Add(1)
	go func() {
		defer workers.Done()
		grpcapi.WatchHealth(ctx, app.Sink, healthServer, grpcapi.DefaultWatchInterval, logger)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf(ctx, "HTTP server shutdown error: %v", err)
		}

		grpcServer.GracefulStop()
	}()

	serverErrs := make(chan error, 2)
	var serverGroup sync.WaitGroup

	serverGroup.Add(1)
	go func() {
		defer serverGroup.Done()
		logger.Printf(ctx, "HTTP server listening on %s", httpListener.Addr())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- fmt.Errorf("http server: %w", err)
		}
	}()

	serverGroup.Add(1)
	go func() {
		defer serverGroup.Done()
		logger.Printf(ctx, "gRPC server listening on %s", grpcListener.Addr())
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErrs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error

	select {
	case <-ctx.Done():
	case err := <-serverErrs:
		if err != nil {
			serveErr = err
		}
		stop()
	}

	stop()
	workers.Wait()
	serverGroup.Wait()

	if serveErr != nil {
		logger.Printf(ctx, "server error: %v", serveErr)
	}

	logger.Println(ctx, "exporter stopped")
}

func openSource(ctx context.Context, app *application) (io.ReadCloser, error) {
	if app.Source.Kind == source.KindSimulate {
		app.Logger.Println(ctx, "using the built-in frame simulator")
		return app.Simulator.Open(ctx), nil
	}
	return source.Open(ctx, app.Source)
}

func newHTTPServer(port string, app *application) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           httpapi.NewServer(app.Sink, app.History, app.Logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
