package operations

import (
	"time"
)

// Step identifiers for the research pipeline.
const (
	StepIDFetch   = "fetch_data"
	StepIDFactors = "compute_factors"
	StepIDStudy   = "run_study"
	StepIDReport  = "write_report"
)

// Human-readable step names.
const (
	StepNameFetch   = "Fetch Data"
	StepNameFactors = "Compute Factors"
	StepNameStudy   = "Run Study"
	StepNameReport  = "Write Report"
)

// StepFullPipeline requests every registered step in dependency order.
const StepFullPipeline = "full_pipeline"

// Keys for values carried in operation config and context. Config holds the
// request inputs, context holds what steps produce for later steps and for
// result retrieval.
const (
	ConfigKeyTickers   = "tickers"
	ConfigKeyColumns   = "columns"
	ConfigKeyFactors   = "factors"
	ConfigKeySignals   = "signals"
	ConfigKeyWinsorize = "winsorize"
	ConfigKeyReportDir = "report_dir"
	ConfigKeyFormats   = "report_formats"
	ConfigKeyBaseName  = "report_name"

	ContextKeyPanel       = "panel"
	ContextKeyFactorFrame = "factor_frame"
	ContextKeyStudyResult = "study_result"
	ContextKeyArtifacts   = "artifacts"
)

// Default step timeouts.
const (
	DefaultFetchTimeout   = 5 * time.Minute
	DefaultFactorsTimeout = 10 * time.Minute
	DefaultStudyTimeout   = 10 * time.Minute
	DefaultReportTimeout  = 5 * time.Minute
	DefaultStepTimeout    = 10 * time.Minute
)

// RetryConfig controls retry behavior for retryable step failures.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest describes one operation run. Step selects a single step
// by ID; empty or "full_pipeline" runs every registered step in dependency
// order. Parameters are copied into the operation config, where steps read
// their inputs under the Config* keys.
type OperationRequest struct {
	ID         string                 `json:"id,omitempty"`
	Step       string                 `json:"step,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// OperationResponse summarizes a finished operation.
type OperationResponse struct {
	ID       string                `json:"id"`
	Status   OperationStatus       `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Error    string                `json:"error,omitempty"`
}

// ProgressUpdate is a single progress event for one step of an operation.
type ProgressUpdate struct {
	OperationID string    `json:"operation_id"`
	StepID      string    `json:"step_id"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// OperationType describes a runnable operation for discovery endpoints.
type OperationType struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Dependencies []string              `json:"dependencies,omitempty"`
	CanRunAlone  bool                  `json:"can_run_alone"`
	Parameters   []ParameterDefinition `json:"parameters,omitempty"`
}

// ParameterDefinition describes one accepted request parameter.
type ParameterDefinition struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"`
}
