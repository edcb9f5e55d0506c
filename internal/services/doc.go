// Package services holds the application service layer sitting between the
// HTTP transport and the research library. DataService answers catalog and
// data queries, StudyService runs correlation studies through the operations
// manager, and HealthService reports liveness and readiness.
//
// Services accept interfaces for their collaborators and return plain DTOs,
// so handlers stay thin and tests run without a real store.
package services
