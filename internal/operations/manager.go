package operations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Manager orchestrates operation execution: it resolves the requested steps,
// runs them in dependency order with per-step timeouts and retries, tracks
// state for status queries, and broadcasts progress snapshots.
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	tracer      *OperationTracer // nil disables tracing

	mu         sync.RWMutex
	operations map[string]*OperationState
	cancels    map[string]context.CancelFunc
}

// NewManager creates a manager. A nil registry or config gets defaults.
func NewManager(hub WebSocketHub, registry *Registry, config *Config) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	return &Manager{
		registry:    registry,
		config:      config,
		broadcaster: NewStatusBroadcaster(hub, nil),
		operations:  make(map[string]*OperationState),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// SetTracer wires OTel tracing and metrics into execution.
func (m *Manager) SetTracer(tracer *OperationTracer) {
	m.tracer = tracer
}

// RegisterStep registers a step with the manager's registry.
func (m *Manager) RegisterStep(step Step) error {
	return m.registry.Register(step)
}

// Registry exposes the step registry for discovery endpoints.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Broadcaster exposes the status broadcaster.
func (m *Manager) Broadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// Config returns the execution configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// Execute runs an operation synchronously and returns its summary. The
// state stays queryable through GetOperation until cleaned up.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	state := NewOperationState(req.ID)
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.storeOperation(state, cancel)
	defer m.clearCancel(req.ID)

	m.logOperationStart(ctx, req.ID, req)

	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.TraceOperation(ctx, req.ID, req)
		m.tracer.RecordActiveChange(ctx, 1)
		defer m.tracer.RecordActiveChange(ctx, -1)
	}

	steps, err := m.resolveSteps(req)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		m.finishTrace(ctx, span, req.ID, state, err)
		return m.createResponse(state), err
	}

	for _, step := range steps {
		state.SetStep(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.broadcaster.CreateOperation(req.ID, steps)

	state.Start()
	m.broadcaster.StartOperation(req.ID)

	err = m.executeSteps(ctx, state, steps)

	switch {
	case err != nil && GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel()
		m.broadcaster.CancelOperation(req.ID)
		if m.tracer != nil {
			m.tracer.RecordCancellation(ctx, req.ID, "context cancelled")
		}
	case err != nil:
		state.Fail(err)
		m.broadcaster.FailOperation(req.ID, err)
	default:
		state.Complete()
		m.broadcaster.CompleteOperation(req.ID, "operation completed")
	}

	m.logOperationComplete(ctx, req.ID, state.Duration(), string(state.GetStatus()))
	m.finishTrace(ctx, span, req.ID, state, err)
	return m.createResponse(state), err
}

func (m *Manager) finishTrace(ctx context.Context, span trace.Span, operationID string, state *OperationState, err error) {
	if m.tracer == nil {
		return
	}
	m.tracer.RecordOperationCompletion(ctx, span, operationID, state.Duration(), err)
	if span != nil {
		span.End()
	}
}

// resolveSteps maps the request onto concrete steps: a named step alone, or
// the full registry in dependency order.
func (m *Manager) resolveSteps(req OperationRequest) ([]Step, error) {
	if req.Step != "" && req.Step != StepFullPipeline {
		step, err := m.registry.Get(req.Step)
		if err != nil {
			return nil, NewValidationError(req.Step, err.Error())
		}
		return []Step{step}, nil
	}
	steps, err := m.registry.DependencyOrder()
	if err != nil {
		return nil, fmt.Errorf("resolve step order: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no steps registered")
	}
	return steps, nil
}

// executeSteps runs the steps sequentially. The pipeline is inherently
// serial: factors need fetched data, the study needs factors, the report
// needs the study.
func (m *Manager) executeSteps(ctx context.Context, state *OperationState, steps []Step) error {
	for _, step := range steps {
		select {
		case <-ctx.Done():
			return NewCancellationError(step.ID())
		default:
		}

		stepState := state.GetStep(step.ID())
		if stepState.GetStatus() == StepStatusSkipped {
			continue
		}

		if err := m.executeStep(ctx, state, step); err != nil {
			m.logStepError(ctx, state.ID, step.ID(), err)
			if GetErrorType(err) == ErrorTypeCancellation {
				return err
			}
			if !m.config.ContinueOnError {
				m.skipDependents(state, steps, step.ID())
				return err
			}
		}
	}
	return nil
}

// executeStep runs one step with dependency checks, validation, a timeout
// and retries for retryable failures.
func (m *Manager) executeStep(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStep(step.ID())

	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(fmt.Sprintf("dependencies not met: %v", err))
		m.broadcaster.SkipStep(state.ID, step.ID(), stepState.Message)
		return NewDependencyError(step.ID(), "", err.Error())
	}

	if err := step.Validate(state); err != nil {
		stepState.Skip(fmt.Sprintf("validation failed: %v", err))
		m.broadcaster.SkipStep(state.ID, step.ID(), stepState.Message)
		return NewValidationError(step.ID(), err.Error())
	}

	timeout := m.config.StepTimeout(step.ID())
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retry := m.config.RetryConfig
	var lastErr error

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		stepState.Start()
		m.broadcaster.UpdateStepProgress(state.ID, step.ID(), 0, "step started")
		m.logStepStart(ctx, state.ID, step.ID())

		runCtx := stepCtx
		var span trace.Span
		if m.tracer != nil {
			runCtx, span = m.tracer.TraceStep(stepCtx, state.ID, step.ID(), attempt)
		}

		start := time.Now()
		err := step.Execute(runCtx, state)
		duration := time.Since(start)

		if m.tracer != nil {
			m.tracer.RecordStepCompletion(runCtx, span, state.ID, step.ID(), duration, err)
			span.End()
		}

		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID(), "step completed")
			m.logStepComplete(ctx, state.ID, step.ID(), duration)
			return nil
		}

		if ctx.Err() != nil {
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			return NewCancellationError(step.ID())
		}
		if stepCtx.Err() != nil {
			timeoutErr := NewTimeoutError(step.ID(), timeout.String())
			stepState.Fail(timeoutErr)
			m.broadcaster.FailStep(state.ID, step.ID(), timeoutErr)
			return timeoutErr
		}

		lastErr = err
		if !IsRetryable(err) || attempt >= retry.MaxAttempts {
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			return WrapError(err, step.ID(), "step execution failed")
		}

		delay := m.retryDelay(attempt, retry)
		m.logStepRetry(ctx, state.ID, step.ID(), attempt, delay, err)
		select {
		case <-time.After(delay):
		case <-stepCtx.Done():
			timeoutErr := NewTimeoutError(step.ID(), timeout.String())
			stepState.Fail(timeoutErr)
			m.broadcaster.FailStep(state.ID, step.ID(), timeoutErr)
			return timeoutErr
		}
	}

	stepState.Fail(lastErr)
	m.broadcaster.FailStep(state.ID, step.ID(), lastErr)
	return WrapError(lastErr, step.ID(), "step execution failed after retries")
}

// skipDependents marks every step that transitively depends on failedID as
// skipped.
func (m *Manager) skipDependents(state *OperationState, steps []Step, failedID string) {
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if dep != failedID {
				continue
			}
			stepState := state.GetStep(step.ID())
			if stepState != nil && stepState.GetStatus() == StepStatusPending {
				stepState.Skip(fmt.Sprintf("dependency %s failed", failedID))
				m.broadcaster.SkipStep(state.ID, step.ID(), stepState.Message)
				m.skipDependents(state, steps, step.ID())
			}
			break
		}
	}
}

func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStep(dep)
		if depState == nil {
			// Single-step runs have no dependency states; the step's own
			// Validate decides whether it can run standalone.
			continue
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return fmt.Errorf("dependency %s not completed (status: %s)", dep, status)
		}
	}
	return nil
}

func (m *Manager) retryDelay(attempt int, rc RetryConfig) time.Duration {
	delay := rc.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rc.Multiplier)
	}
	if delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	snapshot := state.Clone()
	resp := &OperationResponse{
		ID:       snapshot.ID,
		Status:   snapshot.Status,
		Duration: snapshot.Duration(),
		Steps:    snapshot.Steps,
	}
	if snapshot.Error != nil {
		resp.Error = snapshot.Error.Error()
	}
	return resp
}

// GetOperation returns a copy of an operation's state.
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, exists := m.operations[id]
	if !exists {
		return nil, ErrOperationNotFound
	}
	return state.Clone(), nil
}

// GetOperationContext reads one context value from a tracked operation,
// letting callers retrieve step outputs like the study result.
func (m *Manager) GetOperationContext(id, key string) (interface{}, error) {
	m.mu.RLock()
	state, exists := m.operations[id]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrOperationNotFound
	}
	value, ok := state.GetContext(key)
	if !ok {
		return nil, fmt.Errorf("operation %s has no %s", id, key)
	}
	return value, nil
}

// ListOperations returns copies of every tracked operation state.
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*OperationState, 0, len(m.operations))
	for _, state := range m.operations {
		out = append(out, state.Clone())
	}
	return out
}

// CancelOperation cancels a running operation.
func (m *Manager) CancelOperation(id string) error {
	m.mu.Lock()
	state, exists := m.operations[id]
	cancel := m.cancels[id]
	m.mu.Unlock()

	if !exists {
		return ErrOperationNotFound
	}
	if state.IsComplete() {
		return ErrOperationCompleted
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// CleanupOldOperations drops terminal operations older than maxAge, along
// with their broadcast snapshots.
func (m *Manager) CleanupOldOperations(ctx context.Context, maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	for id, state := range m.operations {
		if state.IsComplete() && state.EndTime != nil && state.EndTime.Before(cutoff) {
			delete(m.operations, id)
			delete(m.cancels, id)
		}
	}
	m.mu.Unlock()

	m.broadcaster.CleanupOldOperations(ctx, maxAge)
}

func (m *Manager) storeOperation(state *OperationState, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
	m.cancels[state.ID] = cancel
}

func (m *Manager) clearCancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, id)
}
