// Package config provides centralized configuration management for the
// vquant service. It handles loading configuration from multiple sources,
// validation, and provides a type-safe API for accessing configuration
// values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration files (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern VQUANT_* for namespacing:
//
//	VQUANT_SERVER_PORT=8080
//	VQUANT_DATA_MARKET=stocks_vn
//	VQUANT_DATA_BASE_URL=https://storage.googleapis.com/edges-quant-data/data/dim
//	VQUANT_LOGGING_LEVEL=info
//
// # Validation
//
// All configuration is validated at load time to ensure required fields are
// present and values are within acceptable ranges.
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
