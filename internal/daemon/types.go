package daemon

import "github.com/ankittk/agentsync/internal/inference"

// DefaultPort is the HTTP port used when StartOptions.Port is zero.
const DefaultPort = 3548

// StartOptions configures the daemon. Zero values fall back to <home>/config.yaml.
type StartOptions struct {
	Home          string
	Port          int
	MaxConcurrent int // dispatcher concurrency; 0 uses the config value
	Dev           bool
	PprofAddr     string
	DBDriver      string // "sqlite" (default) or "postgres"
	DBURL         string // for postgres: connection string (or DATABASE_URL env)
	APIKey        string // if empty, AGENTSYNC_API_KEY is used
	EnableOtel    bool   // Prometheus exporter on /metrics plus otelhttp request metrics

	// Inferrer overrides the configured backend (tests).
	Inferrer inference.Inferrer
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
