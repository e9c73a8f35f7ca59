package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/metrics"
	"pms-exporter/internal/shared/constants"
)

const (
	queryFrom = "from"
	queryTo   = "to"
)

type handler struct {
	sink    Exposition
	history domain.ReadingReader
	logger  *infra.Logger
	now     func() time.Time
}

func newHandler(sink Exposition, history domain.ReadingReader, logger *infra.Logger) *handler {
	return &handler{sink: sink, history: history, logger: logger, now: time.Now}
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/metrics", h.handleMetrics)
	router.Get("/health", h.handleHealth)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Get("/readings", h.handleReadingsInRange)
	router.Get("/readings/latest", h.handleLatestReading)
}

type healthResponse struct {
	Status     string `json:"status"`
	LastUpdate string `json:"last_update"`
}

type readingResponse struct {
	Timestamp  string `json:"timestamp"`
	PM10       uint16 `json:"pm10"`
	PM25       uint16 `json:"pm25"`
	PM100      uint16 `json:"pm100"`
	PM10Atmos  uint16 `json:"pm10_atmos"`
	PM25Atmos  uint16 `json:"pm25_atmos"`
	PM100Atmos uint16 `json:"pm100_atmos"`
	Count03    uint16 `json:"pm03_count"`
	Count05    uint16 `json:"pm05_count"`
	Count10    uint16 `json:"pm10_count"`
	Count25    uint16 `json:"pm25_count"`
	Count50    uint16 `json:"pm50_count"`
	Count100   uint16 `json:"pm100_count"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := h.sink.Encode()
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf(r.Context(), "metrics encode failed: %v", err)
		}
		http.Error(w, "failed to encode metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", metrics.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{
		Status:     "ok",
		LastUpdate: h.sink.LastUpdate().UTC().Format(constants.TimeFormat),
	}
	status := http.StatusOK
	if h.sink.Stale(h.now()) {
		response.Status = "stale"
		status = http.StatusServiceUnavailable
		if h.logger != nil {
			h.logger.Warnf(r.Context(), "health check: no frame since %s", response.LastUpdate)
		}
	}
	h.writeJSON(w, status, response)
}

func (h *handler) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "reading history is disabled")
		return
	}

	reading, err := h.history.Latest(r.Context())
	if err != nil {
		h.respondHistoryError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toReadingResponse(reading))
}

func (h *handler) handleReadingsInRange(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "reading history is disabled")
		return
	}

	params := r.URL.Query()
	fromParam := params.Get(queryFrom)
	toParam := params.Get(queryTo)
	if fromParam == "" || toParam == "" {
		h.writeError(w, http.StatusBadRequest, "both from and to parameters are required")
		return
	}

	from, err := time.Parse(constants.TimeFormat, fromParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return
	}
	to, err := time.Parse(constants.TimeFormat, toParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return
	}
	if from.After(to) {
		h.writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	readings, err := h.history.InRange(r.Context(), from, to)
	if err != nil {
		h.respondHistoryError(w, r, err)
		return
	}

	payload := make([]readingResponse, len(readings))
	for i, reading := range readings {
		payload[i] = toReadingResponse(reading)
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func (h *handler) respondHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "reading not found")
	default:
		if h.logger != nil {
			h.logger.Errorf(r.Context(), "reading history query failed: %v", err)
		}
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func toReadingResponse(reading domain.Reading) readingResponse {
	f := reading.Frame
	return readingResponse{
		Timestamp:  reading.Timestamp.UTC().Format(constants.TimeFormat),
		PM10:       f.PM10,
		PM25:       f.PM25,
		PM100:      f.PM100,
		PM10Atmos:  f.PM10Atmos,
		PM25Atmos:  f.PM25Atmos,
		PM100Atmos: f.PM100Atmos,
		Count03:    f.Count03,
		Count05:    f.Count05,
		Count10:    f.Count10,
		Count25:    f.Count25,
		Count50:    f.Count50,
		Count100:   f.Count100,
	}
}
