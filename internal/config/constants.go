package config

import "time"

// Application constants shared across the vquant service
const (
	// Application Info
	AppName    = "vquant"
	AppVersion = "1.2.0"

	// Environment variable namespace, VQUANT_SERVER_PORT and friends
	envPrefix = "VQUANT"

	// Server defaults
	DefaultPort         = 8080
	DefaultStudyTimeout = 10 * time.Minute

	// Dataset defaults
	DefaultMarket         = "stocks_vn"
	DefaultTimeframe      = "1d"
	DefaultDataDir        = "data"
	DefaultReportsDir     = "reports"
	DefaultCacheTTL       = 24 * time.Hour
	DefaultMaxConcurrency = 4

	// Rate Limiting
	DefaultRateLimitRPS   = 100
	DefaultRateLimitBurst = 50

	// Network Timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second
)

// API endpoints
const (
	APIBasePath     = "/api/v1"
	DataEndpoint    = "/api/v1/data"
	FactorsEndpoint = "/api/v1/factors"
	StudiesEndpoint = "/api/v1/studies"
	HealthEndpoint  = "/health"
	MetricsEndpoint = "/metrics"

	WebSocketEndpoint = "/ws"
)
