package operations

import (
	"context"
	"log/slog"
	"time"
)

func (m *Manager) logOperationStart(ctx context.Context, operationID string, req OperationRequest) {
	step := req.Step
	if step == "" {
		step = StepFullPipeline
	}
	slog.InfoContext(ctx, "operation started",
		slog.String("operation_id", operationID),
		slog.String("step", step),
		slog.Int("parameters", len(req.Parameters)))
}

func (m *Manager) logOperationComplete(ctx context.Context, operationID string, duration time.Duration, status string) {
	slog.InfoContext(ctx, "operation finished",
		slog.String("operation_id", operationID),
		slog.Duration("duration", duration),
		slog.String("status", status))
}

func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	slog.ErrorContext(ctx, "operation failed",
		slog.String("operation_id", operationID),
		slog.String("error", err.Error()))
}

func (m *Manager) logStepStart(ctx context.Context, operationID, stepID string) {
	slog.InfoContext(ctx, "step started",
		slog.String("operation_id", operationID),
		slog.String("step", stepID))
}

func (m *Manager) logStepComplete(ctx context.Context, operationID, stepID string, duration time.Duration) {
	slog.InfoContext(ctx, "step completed",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

func (m *Manager) logStepError(ctx context.Context, operationID, stepID string, err error) {
	slog.ErrorContext(ctx, "step failed",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.String("error", err.Error()),
		slog.String("error_type", string(GetErrorType(err))))
}

func (m *Manager) logStepRetry(ctx context.Context, operationID, stepID string, attempt int, delay time.Duration, err error) {
	slog.WarnContext(ctx, "step retrying",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()))
}
