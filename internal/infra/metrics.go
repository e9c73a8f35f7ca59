package infra

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	// HTTP metrics
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_exporter_http_requests_total",
		Help: "Total number of HTTP requests by route and status code",
	}, []string{"path", "code"})
	HttpRequestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_http_request_errors_total",
		Help: "Total number of HTTP requests answered with a 4xx or 5xx status",
	})
	ProcessingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_exporter_request_duration_seconds",
		Help:    "Duration of HTTP and gRPC request processing in seconds",
		Buckets: prometheus.DefBuckets,
	})
	GrpcRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_exporter_grpc_requests_total",
		Help: "Total number of gRPC requests by method and status code",
	}, []string{"method", "code"})

	// Stream metrics
	BytesReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_bytes_read_total",
		Help: "Total number of bytes read from the sensor stream",
	})
	NoiseBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_noise_bytes_total",
		Help: "Bytes dropped because no frame marker was found in them",
	})
	FramesDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_frames_decoded_total",
		Help: "Total number of frames that passed validation",
	})
	FrameErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_exporter_frame_errors_total",
		Help: "Total number of rejected frames by reason",
	}, []string{"reason"})
	StartupMarkersSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_startup_markers_skipped_total",
		Help: "Markers dropped as serial startup artifacts",
	})
	StreamSessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_stream_sessions_total",
		Help: "Total number of sensor stream sessions started",
	})

	// Recorder metrics
	RecorderActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pm_exporter_recorder_active",
		Help: "Number of running reading recorders",
	})
	ReadingsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_readings_recorded_total",
		Help: "Readings applied to the sink",
	})

	// Database metrics
	DbBatchFlushTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_db_batch_flush_total",
		Help: "Total number of database batch flush operations",
	})
	DbBatchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_exporter_db_batch_duration_seconds",
		Help:    "Duration of database batch flush operations in seconds",
		Buckets: prometheus.DefBuckets,
	})
	DbBatchSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pm_exporter_db_batch_size",
		Help: "Size of the last flushed batch",
	})
	DbBatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_exporter_db_batch_wait_seconds",
		Help:    "Wait time before batch flush (seconds)",
		Buckets: prometheus.DefBuckets,
	})
	DbWriteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_exporter_db_write_errors_total",
		Help: "Total number of failed reading inserts",
	})

	registerOnce      sync.Once
	metricsServerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all operational collectors on the default registry.
// The sensor gauges live on their own registry in package metrics.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HttpRequestsTotal,
			HttpRequestErrorsTotal,
			ProcessingDurationSeconds,
			GrpcRequestsTotal,
			BytesReadTotal,
			NoiseBytesTotal,
			FramesDecodedTotal,
			FrameErrorsTotal,
			StartupMarkersSkippedTotal,
			StreamSessionsTotal,
			RecorderActive,
			ReadingsRecordedTotal,
			DbBatchFlushTotal,
			DbBatchDurationSeconds,
			DbBatchSize,
			DbBatchWaitSeconds,
			DbWriteErrorsTotal,
		)
	})
}

// Handler returns an HTTP handler that exposes the operational metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// StartMetricsServer exposes operational metrics on :port/metrics. An empty
// port disables it.
func StartMetricsServer(port string, logger *Logger) {
	InitMetrics()
	if port == "" {
		return
	}
	metricsServerOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil {
				if logger != nil {
					logger.Errorf(context.Background(), "metrics server error: %v", err)
				}
			}
		}()
	})
}

// HTTPMiddleware instruments HTTP handlers with request/latency metrics. The
// resolver runs after the handler so routers can report the matched pattern.
func HTTPMiddleware(pathResolver func(*http.Request) string) func(http.Handler) http.Handler {
	InitMetrics()
	if pathResolver == nil {
		pathResolver = func(r *http.Request) string {
			if r == nil {
				return "unknown"
			}
			return r.URL.Path
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r == nil {
				HttpRequestErrorsTotal.Inc()
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			defer func() {
				duration := time.Since(start)
				ProcessingDurationSeconds.Observe(duration.Seconds())
				HttpRequestsTotal.WithLabelValues(pathResolver(r), strconv.Itoa(recorder.Status())).Inc()

				if recorder.Status() >= http.StatusBadRequest {
					HttpRequestErrorsTotal.Inc()
				}
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

// GRPCUnaryInterceptor instruments gRPC unary handlers with request/latency metrics.
func GRPCUnaryInterceptor() grpc.UnaryServerInterceptor {
	InitMetrics()
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			duration := time.Since(start)
			ProcessingDurationSeconds.Observe(duration.Seconds())

			method := "unknown"
			if info != nil {
				method = info.FullMethod
			}
			GrpcRequestsTotal.WithLabelValues(method, status.Code(err).String()).Inc()
		}()

		return handler(ctx, req)
	}
}

// AddBytesRead counts bytes received from the sensor.
func AddBytesRead(n int) {
	if n > 0 {
		BytesReadTotal.Add(float64(n))
	}
}

// AddNoiseBytes counts bytes discarded without ever reaching the decoder.
func AddNoiseBytes(n int) {
	if n > 0 {
		NoiseBytesTotal.Add(float64(n))
	}
}

// IncFramesDecoded counts a frame that passed validation.
func IncFramesDecoded() {
	FramesDecodedTotal.Inc()
}

// IncFrameError counts a rejected frame. reason is a short fixed label such
// as "checksum" or "header".
func IncFrameError(reason string) {
	FrameErrorsTotal.WithLabelValues(reason).Inc()
}

// AddStartupMarkersSkipped counts markers dropped as startup artifacts.
func AddStartupMarkersSkipped(n int) {
	if n > 0 {
		StartupMarkersSkippedTotal.Add(float64(n))
	}
}

// IncStreamSessions counts an opened sensor stream.
func IncStreamSessions() {
	StreamSessionsTotal.Inc()
}

// RecorderStarted increments the active recorder gauge.
func RecorderStarted() {
	RecorderActive.Inc()
}

// RecorderFinished decrements the active recorder gauge.
func RecorderFinished() {
	RecorderActive.Dec()
}

// IncReadingsRecorded counts a reading applied to the sink.
func IncReadingsRecorded() {
	ReadingsRecordedTotal.Inc()
}

// RecordDBBatchFlush tracks a completed database batch flush.
func RecordDBBatchFlush(duration time.Duration, size int, wait time.Duration) {
	if duration < 0 {
		duration = 0
	}
	if wait < 0 {
		wait = 0
	}
	DbBatchFlushTotal.Inc()
	DbBatchDurationSeconds.Observe(duration.Seconds())
	DbBatchSize.Set(float64(size))
	DbBatchWaitSeconds.Observe(wait.Seconds())
}

// IncDBWriteErrors counts a failed insert.
func IncDBWriteErrors() {
	DbWriteErrorsTotal.Inc()
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Status() int {
	return r.status
}
