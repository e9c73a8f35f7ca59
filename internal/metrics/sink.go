// Package metrics holds the measurement sink: the latest sensor values as
// Prometheus gauges on a private registry, plus the time they were last
// refreshed.
package metrics

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"pms-exporter/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const (
	namespace = "pm"

	// StaleAfter is how long the sink may go without an update before a
	// health check should report the feed as dead.
	StaleAfter = 10 * time.Second

	// ContentType is the media type of Encode's output.
	ContentType = "text/plain; version=0.0.4; charset=utf-8"
)

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithClock replaces time.Now. Tests use it to pin last_update.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// Sink is safe for one writer and any number of concurrent readers.
type Sink struct {
	mu         sync.RWMutex
	registry   *prometheus.Registry
	gauges     gauges
	lastUpdate time.Time
	now        func() time.Time
}

type gauges struct {
	pm10, pm25, pm100                prometheus.Gauge
	pm10Atmos, pm25Atmos, pm100Atmos prometheus.Gauge
	count03, count05, count10        prometheus.Gauge
	count25, count50, count100       prometheus.Gauge
}

// NewSink registers the twelve gauges at zero. LastUpdate starts StaleAfter
// in the past so a health check can tell "never updated" from "fresh".
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.gauges = gauges{
		pm10:       s.gauge("pm10", "PM1.0 concentration in µg/m³, standard particle (CF=1)."),
		pm25:       s.gauge("pm25", "PM2.5 concentration in µg/m³, standard particle (CF=1)."),
		pm100:      s.gauge("pm100", "PM10 concentration in µg/m³, standard particle (CF=1)."),
		pm10Atmos:  s.gauge("pm10_atmos", "PM1.0 concentration in µg/m³, atmospheric environment."),
		pm25Atmos:  s.gauge("pm25_atmos", "PM2.5 concentration in µg/m³, atmospheric environment."),
		pm100Atmos: s.gauge("pm100_atmos", "PM10 concentration in µg/m³, atmospheric environment."),
		count03:    s.gauge("pm03_count", "Particles beyond 0.3 µm in 0.1 L of air."),
		count05:    s.gauge("pm05_count", "Particles beyond 0.5 µm in 0.1 L of air."),
		count10:    s.gauge("pm10_count", "Particles beyond 1.0 µm in 0.1 L of air."),
		count25:    s.gauge("pm25_count", "Particles beyond 2.5 µm in 0.1 L of air."),
		count50:    s.gauge("pm50_count", "Particles beyond 5.0 µm in 0.1 L of air."),
		count100:   s.gauge("pm100_count", "Particles beyond 10 µm in 0.1 L of air."),
	}
	s.lastUpdate = s.now().Add(-StaleAfter)
	return s
}

func (s *Sink) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
	s.registry.MustRegister(g)
	return g
}

// Update overwrites every gauge with the frame's values and refreshes
// LastUpdate. Readers never observe a half-applied frame.
func (s *Sink) Update(frame domain.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.gauges
	g.pm10.Set(float64(frame.PM10))
	g.pm25.Set(float64(frame.PM25))
	g.pm100.Set(float64(frame.PM100))
	g.pm10Atmos.Set(float64(frame.PM10Atmos))
	g.pm25Atmos.Set(float64(frame.PM25Atmos))
	g.pm100Atmos.Set(float64(frame.PM100Atmos))
	g.count03.Set(float64(frame.Count03))
	g.count05.Set(float64(frame.Count05))
	g.count10.Set(float64(frame.Count10))
	g.count25.Set(float64(frame.Count25))
	g.count50.Set(float64(frame.Count50))
	g.count100.Set(float64(frame.Count100))
	s.lastUpdate = s.now()
}

// Encode renders a consistent snapshot of the gauges in the Prometheus text
// exposition format.
func (s *Sink) Encode() ([]byte, error) {
	s.mu.RLock()
	families, err := s.registry.Gather()
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// LastUpdate returns when Update last ran.
func (s *Sink) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Stale reports whether at least StaleAfter has passed since the last update.
func (s *Sink) Stale(now time.Time) bool {
	return now.Sub(s.LastUpdate()) >= StaleAfter
}

var (
	_ domain.FrameSink = (*Sink)(nil)
	_ domain.Freshness = (*Sink)(nil)
)
