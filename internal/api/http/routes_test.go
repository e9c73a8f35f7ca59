package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/metrics"
	"pms-exporter/internal/shared/constants"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSink struct {
	body       []byte
	encodeErr  error
	lastUpdate time.Time
	stale      bool
}

func (s *stubSink) Encode() ([]byte, error) { return s.body, s.encodeErr }
func (s *stubSink) LastUpdate() time.Time { return s.lastUpdate }
func (s *stubSink) Stale(now time.Time) bool { return s.stale }

type stubHistory struct {
	latest    domain.Reading
	latestErr error
	rangeOut  []domain.Reading
	rangeErr  error

	lastFrom time.Time
	lastTo   time.Time
}

func (s *stubHistory) Latest(context.Context) (domain.Reading, error) {
	return s.latest, s.latestErr
}

func (s *stubHistory) InRange(_ context.Context, from, to time.Time) ([]domain.Reading, error) {
	s.lastFrom = from
	s.lastTo = to
	return s.rangeOut, s.rangeErr
}

var when = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func serve(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func newTestServer(sink Exposition, history domain.ReadingReader) *Server {
	return NewServer(sink, history, infra.NewLogger(io.Discard, "test"))
}

func TestMetricsEndpointServesSinkEncoding(t *testing.T) {
	t.Log("Шаг 1: отдаём закодированные метрики из стаба")
	sink := &stubSink{body: []byte("# HELP pm25 x\npm25 12\n")}
	rr := serve(t, newTestServer(sink, nil), "/metrics")

	t.Log("Шаг 2: проверяем статус, тип содержимого и тело")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, metrics.ContentType, rr.Header().Get("Content-Type"))
	assert.Equal(t, string(sink.body), rr.Body.String())
}

func TestMetricsEndpointEncodeFailure(t *testing.T) {
	sink := &stubSink{encodeErr: errors.New("gather failed")}
	rr := serve(t, newTestServer(sink, nil), "/metrics")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetricsEndpointWithRealSink(t *testing.T) {
	sink := metrics.NewSink()
	sink.Update(domain.Frame{PM25: 17})

	rr := serve(t, newTestServer(sink, nil), "/metrics")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pm_pm25 17")
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("fresh", func(t *testing.T) {
		sink := &stubSink{lastUpdate: when}
		rr := serve(t, newTestServer(sink, nil), "/health")

		assert.Equal(t, http.StatusOK, rr.Code)
		var body healthResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, when.Format(constants.TimeFormat), body.LastUpdate)
	})

	t.Run("stale", func(t *testing.T) {
		sink := &stubSink{lastUpdate: when, stale: true}
		rr := serve(t, newTestServer(sink, nil), "/health")

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		var body healthResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "stale", body.Status)
	})

	t.Run("liveness ignores staleness", func(t *testing.T) {
		sink := &stubSink{stale: true}
		rr := serve(t, newTestServer(sink, nil), "/healthz")
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestHealthUsesHandlerClock(t *testing.T) {
	sink := metrics.NewSink(metrics.WithClock(func() time.Time { return when }))
	sink.Update(domain.Frame{})

	h := newHandler(sink, nil, nil)
	h.now = func() time.Time { return when.Add(metrics.StaleAfter - time.Millisecond) }

	rr := httptest.NewRecorder()
	h.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	h.now = func() time.Time { return when.Add(metrics.StaleAfter) }
	rr = httptest.NewRecorder()
	h.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestLatestReadingEndpoint(t *testing.T) {
	history := &stubHistory{latest: domain.Reading{Frame: domain.Frame{PM25: 9, Count03: 1200}, Timestamp: when}}
	rr := serve(t, newTestServer(&stubSink{}, history), "/readings/latest")

	require.Equal(t, http.StatusOK, rr.Code)
	var body readingResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, uint16(9), body.PM25)
	assert.Equal(t, uint16(1200), body.Count03)
	assert.Equal(t, when.Format(constants.TimeFormat), body.Timestamp)
}

func TestLatestReadingErrors(t *testing.T) {
	tests := []struct {
		name    string
		history domain.ReadingReader
		want    int
	}{
		{name: "history disabled", history: nil, want: http.StatusNotFound},
		{name: "no readings", history: &stubHistory{latestErr: domain.ErrNotFound}, want: http.StatusNotFound},
		{name: "backend failure", history: &stubHistory{latestErr: errors.New("db down")}, want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(t, newTestServer(&stubSink{}, tc.history), "/readings/latest")
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestReadingsInRangeEndpoint(t *testing.T) {
	t.Log("Шаг 1: запрашиваем диапазон с корректными границами")
	history := &stubHistory{rangeOut: []domain.Reading{
		{Frame: domain.Frame{PM25: 1}, Timestamp: when},
		{Frame: domain.Frame{PM25: 2}, Timestamp: when.Add(time.Second)},
	}}
	from := when.Format(constants.TimeFormat)
	to := when.Add(time.Minute).Format(constants.TimeFormat)

	rr := serve(t, newTestServer(&stubSink{}, history), "/readings?from="+from+"&to="+to)

	t.Log("Шаг 2: проверяем ответ и переданные границы")
	require.Equal(t, http.StatusOK, rr.Code)
	var body []readingResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body, 2)
	assert.Equal(t, uint16(2), body[1].PM25)
	assert.True(t, history.lastFrom.Equal(when))
	assert.True(t, history.lastTo.Equal(when.Add(time.Minute)))
}

func TestReadingsInRangeValidation(t *testing.T) {
	from := when.Format(constants.TimeFormat)
	to := when.Add(time.Minute).Format(constants.TimeFormat)

	tests := []struct {
		name    string
		query   string
		history *stubHistory
		want    int
	}{
		{name: "missing params", query: "", history: &stubHistory{}, want: http.StatusBadRequest},
		{name: "missing to", query: "?from=" + from, history: &stubHistory{}, want: http.StatusBadRequest},
		{name: "bad from", query: "?from=yesterday&to=" + to, history: &stubHistory{}, want: http.StatusBadRequest},
		{name: "bad to", query: "?from=" + from + "&to=later", history: &stubHistory{}, want: http.StatusBadRequest},
		{name: "inverted", query: "?from=" + to + "&to=" + from, history: &stubHistory{}, want: http.StatusBadRequest},
		{name: "nothing stored", query: "?from=" + from + "&to=" + to, history: &stubHistory{rangeErr: domain.ErrNotFound}, want: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(t, newTestServer(&stubSink{}, tc.history), "/readings"+tc.query)
			assert.Equal(t, tc.want, rr.Code)

			var body errorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tc.want, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(&stubSink{}, nil)

	rr := serve(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	srv := newTestServer(&stubSink{}, &stubHistory{latestErr: domain.ErrNotFound})

	counter := infra.HttpRequestsTotal.WithLabelValues("/readings/latest", "404")
	before := testutil.ToFloat64(counter)

	serve(t, srv.Router(), "/readings/latest")

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
