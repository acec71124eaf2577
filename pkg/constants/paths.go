package constants

// Health, readiness and metrics paths (meeting REST API is wired in router).
const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathMetrics = "/metrics"
)
