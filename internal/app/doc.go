// Package app wires the vquant service together: configuration, logging,
// OpenTelemetry, the factor store and research client, the operations
// manager with its study pipeline, the service layer, and the chi router.
//
// Initialization order matters: config → logger → otel → store/client →
// hub → manager → services → router. All errors bubble up to main; the
// package never calls os.Exit itself. Run blocks until SIGINT/SIGTERM and
// then shuts down gracefully: the HTTP server drains, the hub closes its
// connections, the store is released and telemetry is flushed.
package app
