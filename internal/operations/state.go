package operations

import (
	"sync"
	"time"
)

// OperationStatus is the overall status of an operation.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// StepStatus is the status of a single step within an operation.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState tracks the runtime state of one step.
type StepState struct {
	mu sync.RWMutex

	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState creates a pending step state.
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Progress: 0,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the step as running.
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = StepStatusRunning
	s.StartTime = &now
	s.Progress = 0
	s.Error = ""
}

// Complete marks the step as completed.
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = StepStatusCompleted
	s.EndTime = &now
	s.Progress = 100
}

// Fail marks the step as failed with the given error.
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = StepStatusFailed
	s.EndTime = &now
	if err != nil {
		s.Error = err.Error()
	}
}

// Skip marks the step as skipped with a reason.
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = StepStatusSkipped
	s.EndTime = &now
	s.Message = reason
}

// UpdateProgress sets the step progress percentage and message.
func (s *StepState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.Progress = progress
	if message != "" {
		s.Message = message
	}
}

// SetMetadata records a metadata value on the step.
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}

// GetMetadata reads a metadata value from the step.
func (s *StepState) GetMetadata(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Metadata[key]
	return v, ok
}

// GetStatus returns the step status.
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns how long the step ran. Running steps report elapsed time
// so far; steps that never started report zero.
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime == nil {
		return time.Since(*s.StartTime)
	}
	return s.EndTime.Sub(*s.StartTime)
}

// clone returns a deep copy of the step state.
func (s *StepState) clone() *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &StepState{
		ID:       s.ID,
		Name:     s.Name,
		Status:   s.Status,
		Progress: s.Progress,
		Message:  s.Message,
		Error:    s.Error,
	}
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// OperationState tracks the runtime state of an operation and its steps.
// Config carries the request inputs; Context carries values steps produce
// for later steps and for result retrieval.
type OperationState struct {
	mu sync.RWMutex

	ID        string                 `json:"id"`
	Status    OperationStatus        `json:"status"`
	StartTime time.Time              `json:"start_time"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Steps     map[string]*StepState  `json:"steps"`
	Context   map[string]interface{} `json:"-"`
	Config    map[string]interface{} `json:"-"`
	Error     error                  `json:"-"`
}

// NewOperationState creates a pending operation state.
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:      id,
		Status:  OperationStatusPending,
		Steps:   make(map[string]*StepState),
		Context: make(map[string]interface{}),
		Config:  make(map[string]interface{}),
	}
}

// Start marks the operation as running.
func (s *OperationState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = OperationStatusRunning
	s.StartTime = time.Now()
}

// Complete marks the operation as completed.
func (s *OperationState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = OperationStatusCompleted
	s.EndTime = &now
}

// Fail marks the operation as failed with the given error.
func (s *OperationState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = OperationStatusFailed
	s.EndTime = &now
	s.Error = err
}

// Cancel marks the operation as cancelled.
func (s *OperationState) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = OperationStatusCancelled
	s.EndTime = &now
}

// GetStatus returns the operation status.
func (s *OperationState) GetStatus() OperationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// GetStep returns the state for a step ID, or nil if unknown.
func (s *OperationState) GetStep(id string) *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Steps[id]
}

// SetStep registers a step state under its ID.
func (s *OperationState) SetStep(id string, step *StepState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Steps[id] = step
}

// GetContext reads a value steps stored in the operation context.
func (s *OperationState) GetContext(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Context[key]
	return v, ok
}

// SetContext stores a value in the operation context.
func (s *OperationState) SetContext(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Context[key] = value
}

// GetConfig reads a request input from the operation config.
func (s *OperationState) GetConfig(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Config[key]
	return v, ok
}

// SetConfig stores a request input in the operation config.
func (s *OperationState) SetConfig(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Config[key] = value
}

// Duration returns how long the operation has run.
func (s *OperationState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime == nil {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// RunningSteps returns the IDs of steps currently running.
func (s *OperationState) RunningSteps() []string {
	return s.stepsWithStatus(StepStatusRunning)
}

// CompletedSteps returns the IDs of steps that completed.
func (s *OperationState) CompletedSteps() []string {
	return s.stepsWithStatus(StepStatusCompleted)
}

// FailedSteps returns the IDs of steps that failed.
func (s *OperationState) FailedSteps() []string {
	return s.stepsWithStatus(StepStatusFailed)
}

func (s *OperationState) stepsWithStatus(status StepStatus) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for id, step := range s.Steps {
		if step.GetStatus() == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsComplete reports whether the operation reached a terminal status.
func (s *OperationState) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status == OperationStatusCompleted ||
		s.Status == OperationStatusFailed ||
		s.Status == OperationStatusCancelled
}

// HasFailures reports whether any step failed.
func (s *OperationState) HasFailures() bool {
	return len(s.FailedSteps()) > 0
}

// Clone returns a copy safe to hand to callers. Step states are deep-copied;
// context and config values are shared.
func (s *OperationState) Clone() *OperationState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &OperationState{
		ID:        s.ID,
		Status:    s.Status,
		StartTime: s.StartTime,
		Error:     s.Error,
		Steps:     make(map[string]*StepState, len(s.Steps)),
		Context:   make(map[string]interface{}, len(s.Context)),
		Config:    make(map[string]interface{}, len(s.Config)),
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	for id, step := range s.Steps {
		c.Steps[id] = step.clone()
	}
	for k, v := range s.Context {
		c.Context[k] = v
	}
	for k, v := range s.Config {
		c.Config[k] = v
	}
	return c
}
