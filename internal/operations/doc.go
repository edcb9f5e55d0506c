// Package operations runs the research pipeline: fetch data, compute
// factors, run the study, write the report. Steps declare dependencies and
// execute in topological order under a Manager that tracks per-step state,
// retries retryable failures, and broadcasts progress snapshots to the
// WebSocket hub.
package operations
