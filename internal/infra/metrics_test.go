package infra

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestInitMetricsIdempotent(t *testing.T) {
	t.Log("повторно инициализируем метрики без паники")
	assert.NotPanics(t, func() { InitMetrics() })
	assert.NotPanics(t, func() { InitMetrics() })
}

func TestMetricsHandlerServesContent(t *testing.T) {
	t.Log("вызываем HTTP-обработчик метрик")
	IncFramesDecoded()
	handler := Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Result().StatusCode)
	assert.Contains(t, rr.Body.String(), "pm_exporter_frames_decoded_total")
}

func TestStartMetricsServerDisabledWithoutPort(t *testing.T) {
	assert.NotPanics(t, func() {
		StartMetricsServer("", NewLogger(io.Discard, "metrics"))
	})
}

func TestHTTPMiddlewareRecordsMetrics(t *testing.T) {
	t.Log("измеряем счётчик запросов до вызова")
	counter := HttpRequestsTotal.WithLabelValues("/items", "201")
	before := testutil.ToFloat64(counter)

	middleware := HTTPMiddleware(nil)
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	t.Log("сравниваем значение счётчика после запроса")
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHTTPMiddlewareUsesResolver(t *testing.T) {
	counter := HttpRequestsTotal.WithLabelValues("/readings/{id}", "503")
	before := testutil.ToFloat64(counter)
	errorsBefore := testutil.ToFloat64(HttpRequestErrorsTotal)

	middleware := HTTPMiddleware(func(*http.Request) string { return "/readings/{id}" })
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readings/7", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(HttpRequestErrorsTotal))
}

func TestHTTPMiddlewareRejectsNilRequest(t *testing.T) {
	t.Log("измеряем счётчик ошибок до вызова")
	before := testutil.ToFloat64(HttpRequestErrorsTotal)

	handler := HTTPMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("should not be called")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, nil)

	assert.Equal(t, before+1, testutil.ToFloat64(HttpRequestErrorsTotal))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGRPCUnaryInterceptorRecordsMetrics(t *testing.T) {
	interceptor := GRPCUnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/service/Method"}

	ok := GrpcRequestsTotal.WithLabelValues("/service/Method", codes.OK.String())
	failed := GrpcRequestsTotal.WithLabelValues("/service/Method", codes.NotFound.String())
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestStreamCounters(t *testing.T) {
	bytesBefore := testutil.ToFloat64(BytesReadTotal)
	noiseBefore := testutil.ToFloat64(NoiseBytesTotal)
	checksumBefore := testutil.ToFloat64(FrameErrorsTotal.WithLabelValues("checksum"))
	skippedBefore := testutil.ToFloat64(StartupMarkersSkippedTotal)
	sessionsBefore := testutil.ToFloat64(StreamSessionsTotal)

	AddBytesRead(64)
	AddBytesRead(-1)
	AddNoiseBytes(10)
	AddNoiseBytes(0)
	IncFrameError("checksum")
	AddStartupMarkersSkipped(2)
	IncStreamSessions()

	assert.Equal(t, bytesBefore+64, testutil.ToFloat64(BytesReadTotal))
	assert.Equal(t, noiseBefore+10, testutil.ToFloat64(NoiseBytesTotal))
	assert.Equal(t, checksumBefore+1, testutil.ToFloat64(FrameErrorsTotal.WithLabelValues("checksum")))
	assert.Equal(t, skippedBefore+2, testutil.ToFloat64(StartupMarkersSkippedTotal))
	assert.Equal(t, sessionsBefore+1, testutil.ToFloat64(StreamSessionsTotal))
}

func TestRecordDBBatchFlushIncrementsMetrics(t *testing.T) {
	t.Log("вызываем запись события сброса батча")
	before := testutil.ToFloat64(DbBatchFlushTotal)

	RecordDBBatchFlush(500*time.Millisecond, 7, -time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(DbBatchFlushTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(DbBatchSize))
}

func TestRecorderStartedAndFinishedAdjustGauge(t *testing.T) {
	t.Log("фиксируем запуск и завершение записи")
	before := testutil.ToFloat64(RecorderActive)
	RecorderStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(RecorderActive))
	RecorderFinished()
	assert.Equal(t, before, testutil.ToFloat64(RecorderActive))
}

func TestStatusRecorder(t *testing.T) {
	recorder := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	recorder.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, recorder.Status())
}
