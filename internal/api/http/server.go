package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
)

// Exposition is the part of the measurement sink served over HTTP.
type Exposition interface {
	Encode() ([]byte, error)
	domain.Freshness
}

// Server exposes the HTTP transport of the exporter.
type Server struct {
	handler http.Handler
}

// NewServer wires the scrape, health and history endpoints. history may be nil.
func NewServer(sink Exposition, history domain.ReadingReader, logger *infra.Logger) *Server {
	router := chi.NewRouter()

	router.Use(infra.HTTPMiddleware(func(r *http.Request) string {
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				return pattern
			}
		}
		return r.URL.Path
	}))

	h := newHandler(sink, history, logger)
	registerRoutes(router, h)

	return &Server{handler: router}
}

// Router returns the configured HTTP handler for reuse in tests or external HTTP servers.
func (s *Server) Router() http.Handler {
	return s.handler
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
