package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event types the broadcaster emits, matching the websocket package's
// message constants.
const (
	eventOperationSnapshot = "operation:snapshot"

	SubtypeStatus = "status"
	ActionUpdate  = "update"
)

// StatusBroadcaster is the single authority for operation status updates.
// It keeps a snapshot per operation and broadcasts the complete snapshot on
// every change, so clients never need to merge deltas.
type StatusBroadcaster struct {
	mu         sync.RWMutex
	operations map[string]*OperationSnapshot
	hub        WebSocketHub
	logger     *slog.Logger
	updates    chan updateRequest
	stop       chan struct{}
	stopOnce   sync.Once
}

// OperationSnapshot is the complete state of one operation at a point in
// time. It is the only structure sent to the dashboard.
type OperationSnapshot struct {
	OperationID string         `json:"operation_id"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot is the state of a single step within a snapshot.
type StepSnapshot struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type updateRequest struct {
	operationID string
	updateFunc  func(*OperationSnapshot)
	done        chan struct{}
}

// NewStatusBroadcaster creates a broadcaster over the hub and starts its
// update loop. A nil logger falls back to the process default.
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		operations: make(map[string]*OperationSnapshot),
		hub:        hub,
		logger:     logger,
		updates:    make(chan updateRequest, 100),
		stop:       make(chan struct{}),
	}
	go sb.processUpdates()
	return sb
}

// processUpdates applies updates sequentially so snapshots never race.
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	sb.mu.Lock()
	snapshot, exists := sb.operations[req.operationID]
	if !exists {
		snapshot = &OperationSnapshot{
			OperationID: req.operationID,
			Status:      string(OperationStatusPending),
			StartedAt:   time.Now(),
			UpdatedAt:   time.Now(),
			Steps:       []StepSnapshot{},
		}
		sb.operations[req.operationID] = snapshot
	}

	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	// Overall progress is the mean of the step progresses.
	if len(snapshot.Steps) > 0 {
		total := 0
		for _, step := range snapshot.Steps {
			total += step.Progress
		}
		snapshot.Progress = total / len(snapshot.Steps)
	}

	if isTerminalStatus(snapshot.Status) && snapshot.CompletedAt == nil {
		now := time.Now()
		snapshot.CompletedAt = &now
	}

	copied := cloneSnapshot(snapshot)
	sb.mu.Unlock()

	sb.broadcast(copied)
}

func isTerminalStatus(status string) bool {
	return status == string(OperationStatusCompleted) ||
		status == string(OperationStatusFailed) ||
		status == string(OperationStatusCancelled)
}

func (sb *StatusBroadcaster) broadcast(snapshot *OperationSnapshot) {
	if sb.hub == nil {
		return
	}
	sb.hub.BroadcastUpdate(eventOperationSnapshot, SubtypeStatus, ActionUpdate, snapshot)
}

// update queues an update and waits for it to apply.
func (sb *StatusBroadcaster) update(operationID string, fn func(*OperationSnapshot)) {
	req := updateRequest{
		operationID: operationID,
		updateFunc:  fn,
		done:        make(chan struct{}),
	}
	select {
	case sb.updates <- req:
		<-req.done
	case <-sb.stop:
	}
}

// CreateOperation seeds a pending snapshot with the given step IDs.
func (sb *StatusBroadcaster) CreateOperation(operationID string, steps []Step) {
	sb.update(operationID, func(s *OperationSnapshot) {
		s.Status = string(OperationStatusPending)
		s.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			s.Steps[i] = StepSnapshot{
				ID:     step.ID(),
				Name:   step.Name(),
				Status: string(StepStatusPending),
			}
		}
	})
}

// StartOperation marks the operation as running.
func (sb *StatusBroadcaster) StartOperation(operationID string) {
	sb.update(operationID, func(s *OperationSnapshot) {
		s.Status = string(OperationStatusRunning)
		s.StartedAt = time.Now()
	})
}

// UpdateStepProgress records step progress and marks the step running.
func (sb *StatusBroadcaster) UpdateStepProgress(operationID, stepID string, progress int, message string) {
	sb.update(operationID, func(s *OperationSnapshot) {
		for i := range s.Steps {
			if s.Steps[i].ID != stepID {
				continue
			}
			if s.Steps[i].Status == string(StepStatusPending) {
				s.Steps[i].Status = string(StepStatusRunning)
			}
			s.Steps[i].Progress = clampPercent(progress)
			s.Steps[i].Message = message
			s.CurrentStep = s.Steps[i].Name
			return
		}
	})
}

// CompleteStep marks a step completed.
func (sb *StatusBroadcaster) CompleteStep(operationID, stepID, message string) {
	sb.update(operationID, func(s *OperationSnapshot) {
		for i := range s.Steps {
			if s.Steps[i].ID == stepID {
				s.Steps[i].Status = string(StepStatusCompleted)
				s.Steps[i].Progress = 100
				s.Steps[i].Message = message
				return
			}
		}
	})
}

// FailStep marks a step failed.
func (sb *StatusBroadcaster) FailStep(operationID, stepID string, err error) {
	sb.update(operationID, func(s *OperationSnapshot) {
		for i := range s.Steps {
			if s.Steps[i].ID == stepID {
				s.Steps[i].Status = string(StepStatusFailed)
				if err != nil {
					s.Steps[i].Error = err.Error()
				}
				return
			}
		}
	})
}

// SkipStep marks a step skipped with a reason.
func (sb *StatusBroadcaster) SkipStep(operationID, stepID, reason string) {
	sb.update(operationID, func(s *OperationSnapshot) {
		for i := range s.Steps {
			if s.Steps[i].ID == stepID {
				s.Steps[i].Status = string(StepStatusSkipped)
				s.Steps[i].Message = reason
				return
			}
		}
	})
}

// CompleteOperation marks the operation completed.
func (sb *StatusBroadcaster) CompleteOperation(operationID, message string) {
	sb.update(operationID, func(s *OperationSnapshot) {
		s.Status = string(OperationStatusCompleted)
		s.Message = message
		s.CurrentStep = ""
	})
}

// FailOperation marks the operation failed.
func (sb *StatusBroadcaster) FailOperation(operationID string, err error) {
	sb.update(operationID, func(s *OperationSnapshot) {
		s.Status = string(OperationStatusFailed)
		if err != nil {
			s.Error = err.Error()
		}
	})
}

// CancelOperation marks the operation cancelled.
func (sb *StatusBroadcaster) CancelOperation(operationID string) {
	sb.update(operationID, func(s *OperationSnapshot) {
		s.Status = string(OperationStatusCancelled)
	})
}

// GetSnapshot returns a copy of one operation's snapshot.
func (sb *StatusBroadcaster) GetSnapshot(operationID string) (*OperationSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	snapshot, ok := sb.operations[operationID]
	if !ok {
		return nil, false
	}
	return cloneSnapshot(snapshot), true
}

// GetAllSnapshots returns copies of every tracked snapshot.
func (sb *StatusBroadcaster) GetAllSnapshots() []*OperationSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	out := make([]*OperationSnapshot, 0, len(sb.operations))
	for _, snapshot := range sb.operations {
		out = append(out, cloneSnapshot(snapshot))
	}
	return out
}

// CleanupOldOperations drops terminal snapshots older than maxAge.
func (sb *StatusBroadcaster) CleanupOldOperations(ctx context.Context, maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	sb.mu.Lock()
	defer sb.mu.Unlock()
	for id, snapshot := range sb.operations {
		if snapshot.CompletedAt != nil && snapshot.CompletedAt.Before(cutoff) {
			delete(sb.operations, id)
			sb.logger.DebugContext(ctx, "cleaned up operation snapshot",
				slog.String("operation_id", id))
		}
	}
}

// Stop terminates the update loop. Idempotent.
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
}

func cloneSnapshot(s *OperationSnapshot) *OperationSnapshot {
	c := *s
	c.Steps = make([]StepSnapshot, len(s.Steps))
	copy(c.Steps, s.Steps)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
