package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/internal/operations"
)

// StudyRunRequest describes one study submission.
type StudyRunRequest struct {
	Tickers   []string
	Columns   []string
	Factors   []string
	Signals   []operations.SignalRule
	Winsorize *vquant.Winsorization
	Formats   []string
	BaseName  string
}

// Validate checks the request can be turned into a runnable operation.
func (r StudyRunRequest) Validate() error {
	if len(r.Tickers) == 0 {
		return fmt.Errorf("no tickers given")
	}
	if len(r.Factors) == 0 && len(r.Signals) == 0 {
		return fmt.Errorf("no factors or signals given")
	}
	for _, ref := range r.Factors {
		if err := vquant.Ref(ref).Validate(); err != nil {
			return err
		}
	}
	for _, rule := range r.Signals {
		if _, err := rule.Compile(); err != nil {
			return err
		}
	}
	if r.Winsorize != nil {
		if err := r.Winsorize.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StepStatus is the wire form of one step's state.
type StepStatus struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// StudyStatus is the wire form of one operation's state.
type StudyStatus struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	DurationMS  int64        `json:"duration_ms"`
	Steps       []StepStatus `json:"steps"`
	Error       string       `json:"error,omitempty"`
}

// StudyService submits correlation studies to the operations manager and
// serves their status and results.
type StudyService struct {
	manager *operations.Manager
	timeout time.Duration
	logger  *slog.Logger
}

// NewStudyService creates a study service. timeout bounds each submitted
// study end to end; zero means no bound.
func NewStudyService(manager *operations.Manager, timeout time.Duration, logger *slog.Logger) *StudyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudyService{manager: manager, timeout: timeout, logger: logger}
}

// Run validates the request and starts the study pipeline in the background,
// returning the operation id the caller can poll.
func (s *StudyService) Run(ctx context.Context, req StudyRunRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	opReq := operations.OperationRequest{
		ID:         id,
		Parameters: s.parameters(req),
	}

	s.logger.InfoContext(ctx, "study submitted",
		slog.String("operation_id", id),
		slog.Int("tickers", len(req.Tickers)),
		slog.Int("factors", len(req.Factors)),
		slog.Int("signals", len(req.Signals)))

	// The study outlives the HTTP request that submitted it.
	go func() {
		runCtx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, s.timeout)
			defer cancel()
		}
		if _, err := s.manager.Execute(runCtx, opReq); err != nil {
			s.logger.Error("study failed",
				slog.String("operation_id", id),
				slog.String("error", err.Error()))
		}
	}()

	return id, nil
}

func (s *StudyService) parameters(req StudyRunRequest) map[string]interface{} {
	params := map[string]interface{}{
		operations.ConfigKeyTickers: req.Tickers,
	}
	if len(req.Columns) > 0 {
		params[operations.ConfigKeyColumns] = req.Columns
	}
	if len(req.Factors) > 0 {
		params[operations.ConfigKeyFactors] = req.Factors
	}
	if len(req.Signals) > 0 {
		params[operations.ConfigKeySignals] = req.Signals
	}
	if req.Winsorize != nil {
		params[operations.ConfigKeyWinsorize] = *req.Winsorize
	}
	if len(req.Formats) > 0 {
		params[operations.ConfigKeyFormats] = req.Formats
	}
	if req.BaseName != "" {
		params[operations.ConfigKeyBaseName] = req.BaseName
	}
	return params
}

// Status reports the current state of one study.
func (s *StudyService) Status(ctx context.Context, id string) (*StudyStatus, error) {
	state, err := s.manager.GetOperation(id)
	if err != nil {
		return nil, ErrStudyNotFound
	}
	return studyStatus(state), nil
}

// List reports every tracked study, newest first.
func (s *StudyService) List(ctx context.Context) []*StudyStatus {
	states := s.manager.ListOperations()
	statuses := make([]*StudyStatus, 0, len(states))
	for _, state := range states {
		statuses = append(statuses, studyStatus(state))
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.After(statuses[j].StartedAt)
	})
	return statuses
}

// Result returns the finished study's correlations and panel.
func (s *StudyService) Result(ctx context.Context, id string) (*vquant.StudyResult, error) {
	state, err := s.manager.GetOperation(id)
	if err != nil {
		return nil, ErrStudyNotFound
	}
	if !state.IsComplete() {
		return nil, ErrStudyNotComplete
	}
	v, err := s.manager.GetOperationContext(id, operations.ContextKeyStudyResult)
	if err != nil {
		return nil, ErrStudyNoResult
	}
	result, ok := v.(*vquant.StudyResult)
	if !ok || result == nil {
		return nil, ErrStudyNoResult
	}
	return result, nil
}

// Artifacts returns the report files a finished study wrote, if any.
func (s *StudyService) Artifacts(ctx context.Context, id string) ([]string, error) {
	if _, err := s.manager.GetOperation(id); err != nil {
		return nil, ErrStudyNotFound
	}
	v, err := s.manager.GetOperationContext(id, operations.ContextKeyArtifacts)
	if err != nil {
		return nil, nil
	}
	paths, _ := v.([]string)
	return paths, nil
}

// WriteResultCSV streams the finished study's correlation table as CSV.
func (s *StudyService) WriteResultCSV(ctx context.Context, id string, w io.Writer) error {
	result, err := s.Result(ctx, id)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ticker", "column", "correlation", "n"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range result.Correlations {
		record := []string{
			c.Ticker,
			c.Column,
			formatCorrelation(c.Value),
			strconv.Itoa(c.N),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Cancel stops a running study.
func (s *StudyService) Cancel(ctx context.Context, id string) error {
	err := s.manager.CancelOperation(id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, operations.ErrOperationNotFound):
		return ErrStudyNotFound
	default:
		return err
	}
}

func studyStatus(state *operations.OperationState) *StudyStatus {
	status := &StudyStatus{
		ID:          state.ID,
		Status:      string(state.GetStatus()),
		StartedAt:   state.StartTime,
		CompletedAt: state.EndTime,
		DurationMS:  state.Duration().Milliseconds(),
	}
	if state.Error != nil {
		status.Error = state.Error.Error()
	}
	for _, step := range state.Steps {
		ss := StepStatus{
			ID:       step.ID,
			Name:     step.Name,
			Status:   string(step.GetStatus()),
			Progress: step.Progress,
			Message:  step.Message,
			Error:    step.Error,
		}
		status.Steps = append(status.Steps, ss)
	}
	sort.Slice(status.Steps, func(i, j int) bool {
		return stepOrder(status.Steps[i].ID) < stepOrder(status.Steps[j].ID)
	})
	return status
}

// stepOrder fixes the display order of the pipeline steps.
func stepOrder(id string) int {
	switch id {
	case operations.StepIDFetch:
		return 0
	case operations.StepIDFactors:
		return 1
	case operations.StepIDStudy:
		return 2
	case operations.StepIDReport:
		return 3
	default:
		return 4
	}
}

func formatCorrelation(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
