package constants

import "time"

const (
	// TimeFormat defines the canonical timestamp format used across transports.
	TimeFormat = time.RFC3339Nano

	// ServiceName is reported in every log line.
	ServiceName = "pms-exporter"

	// HealthService is the gRPC health service name tracking sensor freshness.
	HealthService = "pms5003"
)
