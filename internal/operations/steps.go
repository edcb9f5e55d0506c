package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/internal/infrastructure"
)

// ResearchClient is the library surface the steps drive. *vquant.Client
// satisfies it; tests substitute fakes.
type ResearchClient interface {
	Market() string
	Timeframe() string
	GetOHLCV(ctx context.Context, tickers []string, columns []string) (*frame.Frame, error)
	GetFactors(ctx context.Context, tickers []string, factors ...vquant.Factor) (*frame.Frame, error)
	Study(ctx context.Context, req vquant.StudyRequest) (*vquant.StudyResult, error)
}

// StudyReporter writes a study result to report files and returns the
// artifact paths. Implemented by the report package.
type StudyReporter interface {
	Write(ctx context.Context, baseName string, formats []string, result *vquant.StudyResult) ([]string, error)
}

// SignalRule is the declarative signal form accepted over HTTP and CLI
// flags: one factor compared against a level. Arbitrary condition functions
// stay a library-only feature, rules are what serializes.
type SignalRule struct {
	Name   string  `json:"name" validate:"required"`
	Factor string  `json:"factor" validate:"required"`
	Op     string  `json:"op" validate:"required,oneof=gt lt ge le cross_above cross_below"`
	Value  float64 `json:"value"`
}

// Compile turns the rule into a library signal.
func (r SignalRule) Compile() (*vquant.Signal, error) {
	ref := vquant.Ref(r.Factor)
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("signal %s: %w", r.Name, err)
	}
	condition, err := vquant.Threshold(ref, r.Op, r.Value)
	if err != nil {
		return nil, fmt.Errorf("signal %s: %w", r.Name, err)
	}
	return vquant.NewSignal(r.Name, []vquant.Factor{ref}, condition)
}

// FetchStep loads the OHLCV panel for the requested tickers.
type FetchStep struct {
	BaseStep
	client ResearchClient
}

// NewFetchStep creates the data-fetch step.
func NewFetchStep(client ResearchClient) *FetchStep {
	return &FetchStep{
		BaseStep: NewBaseStep(StepIDFetch, StepNameFetch, nil),
		client:   client,
	}
}

// Validate requires at least one ticker in the operation config.
func (s *FetchStep) Validate(state *OperationState) error {
	tickers := stringSliceConfig(state, ConfigKeyTickers)
	if len(tickers) == 0 {
		return fmt.Errorf("no tickers configured")
	}
	return nil
}

// Execute loads the bars and stores the panel in the operation context.
func (s *FetchStep) Execute(ctx context.Context, state *OperationState) error {
	tickers := stringSliceConfig(state, ConfigKeyTickers)
	columns := stringSliceConfig(state, ConfigKeyColumns)

	panel, err := s.client.GetOHLCV(ctx, tickers, columns)
	if err != nil {
		return err
	}

	state.SetContext(ContextKeyPanel, panel)
	stepState := state.GetStep(s.ID())
	if stepState != nil {
		stepState.SetMetadata("tickers", len(tickers))
		stepState.SetMetadata("rows", panel.Len())
	}

	slog.InfoContext(ctx, "fetched ohlcv panel",
		slog.String("operation_id", state.ID),
		slog.String("market", s.client.Market()),
		slog.Int("tickers", len(tickers)),
		slog.Int("rows", panel.Len()))
	return nil
}

// FactorsStep fetches the requested factor columns, making missing factors
// fail fast before the study runs.
type FactorsStep struct {
	BaseStep
	client ResearchClient
}

// NewFactorsStep creates the factor-fetch step.
func NewFactorsStep(client ResearchClient) *FactorsStep {
	return &FactorsStep{
		BaseStep: NewBaseStep(StepIDFactors, StepNameFactors, []string{StepIDFetch}),
		client:   client,
	}
}

// Validate requires parseable factor references when any are configured.
func (s *FactorsStep) Validate(state *OperationState) error {
	for _, ref := range stringSliceConfig(state, ConfigKeyFactors) {
		if err := vquant.Ref(ref).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Execute fetches the factors and stores the aligned frame. With no factors
// configured the step completes as a no-op; the study may still evaluate
// signals.
func (s *FactorsStep) Execute(ctx context.Context, state *OperationState) error {
	refs := stringSliceConfig(state, ConfigKeyFactors)
	stepState := state.GetStep(s.ID())
	if stepState != nil {
		stepState.SetMetadata("factors", len(refs))
	}
	if len(refs) == 0 {
		return nil
	}

	tickers := stringSliceConfig(state, ConfigKeyTickers)
	factors := make([]vquant.Factor, len(refs))
	for i, ref := range refs {
		factors[i] = vquant.Ref(ref)
	}

	factorFrame, err := s.client.GetFactors(ctx, tickers, factors...)
	if err != nil {
		return err
	}
	state.SetContext(ContextKeyFactorFrame, factorFrame)

	slog.InfoContext(ctx, "fetched factor frame",
		slog.String("operation_id", state.ID),
		slog.Int("factors", len(refs)),
		slog.Int("rows", factorFrame.Len()))
	return nil
}

// StudyStep runs the correlation study over the configured factors and
// signal rules.
type StudyStep struct {
	BaseStep
	client  ResearchClient
	metrics *infrastructure.BusinessMetrics
}

// NewStudyStep creates the study step. metrics may be nil.
func NewStudyStep(client ResearchClient, metrics *infrastructure.BusinessMetrics) *StudyStep {
	return &StudyStep{
		BaseStep: NewBaseStep(StepIDStudy, StepNameStudy, []string{StepIDFetch}),
		client:   client,
		metrics:  metrics,
	}
}

// Validate requires tickers and at least one factor or signal.
func (s *StudyStep) Validate(state *OperationState) error {
	if len(stringSliceConfig(state, ConfigKeyTickers)) == 0 {
		return fmt.Errorf("no tickers configured")
	}
	rules, err := signalRulesConfig(state, ConfigKeySignals)
	if err != nil {
		return err
	}
	if len(stringSliceConfig(state, ConfigKeyFactors)) == 0 && len(rules) == 0 {
		return fmt.Errorf("nothing to study: no factors or signals configured")
	}
	return nil
}

// Execute builds the study request from the operation config and stores the
// result in the operation context.
func (s *StudyStep) Execute(ctx context.Context, state *OperationState) error {
	req, err := buildStudyRequest(state)
	if err != nil {
		return err
	}

	result, err := s.client.Study(ctx, req)
	success := err == nil

	var correlations int
	if result != nil {
		correlations = len(result.Correlations)
	}
	if stepState := state.GetStep(s.ID()); stepState != nil && result != nil {
		stepState.SetMetadata("correlations", correlations)
		stepState.SetMetadata("rows", result.Panel.Len())
	}
	if s.metrics != nil {
		var duration time.Duration
		if stepState := state.GetStep(s.ID()); stepState != nil {
			duration = stepState.Duration()
		}
		infrastructure.RecordStudyMetrics(ctx, s.metrics, s.client.Market(), duration, correlations, success)
	}
	if err != nil {
		return err
	}

	state.SetContext(ContextKeyStudyResult, result)
	return nil
}

// buildStudyRequest assembles the library request from the operation config.
func buildStudyRequest(state *OperationState) (vquant.StudyRequest, error) {
	req := vquant.StudyRequest{
		Tickers: stringSliceConfig(state, ConfigKeyTickers),
	}
	for _, ref := range stringSliceConfig(state, ConfigKeyFactors) {
		req.Factors = append(req.Factors, vquant.Ref(ref))
	}

	rules, err := signalRulesConfig(state, ConfigKeySignals)
	if err != nil {
		return req, err
	}
	for _, rule := range rules {
		sig, err := rule.Compile()
		if err != nil {
			return req, err
		}
		req.Signals = append(req.Signals, sig)
	}

	if winsorize, ok := state.GetConfig(ConfigKeyWinsorize); ok {
		w, err := parseWinsorize(winsorize)
		if err != nil {
			return req, err
		}
		req.Winsorize = w
	}
	return req, nil
}

// ReportStep writes the study result to the configured report formats.
type ReportStep struct {
	BaseStep
	reporter StudyReporter
}

// NewReportStep creates the report step.
func NewReportStep(reporter StudyReporter) *ReportStep {
	return &ReportStep{
		BaseStep: NewBaseStep(StepIDReport, StepNameReport, []string{StepIDStudy}),
		reporter: reporter,
	}
}

// Validate requires a configured reporter.
func (s *ReportStep) Validate(state *OperationState) error {
	if s.reporter == nil {
		return fmt.Errorf("no report writer configured")
	}
	return nil
}

// Execute writes the reports and stores the artifact paths.
func (s *ReportStep) Execute(ctx context.Context, state *OperationState) error {
	value, ok := state.GetContext(ContextKeyStudyResult)
	if !ok {
		return fmt.Errorf("no study result in operation context")
	}
	result, ok := value.(*vquant.StudyResult)
	if !ok {
		return fmt.Errorf("unexpected study result type %T", value)
	}

	formats := stringSliceConfig(state, ConfigKeyFormats)
	if len(formats) == 0 {
		formats = []string{"csv"}
	}
	baseName := stringConfig(state, ConfigKeyBaseName)
	if baseName == "" {
		baseName = "study"
	}

	artifacts, err := s.reporter.Write(ctx, baseName, formats, result)
	if err != nil {
		return err
	}

	state.SetContext(ContextKeyArtifacts, artifacts)
	if stepState := state.GetStep(s.ID()); stepState != nil {
		stepState.SetMetadata("artifacts", artifacts)
	}

	slog.InfoContext(ctx, "wrote study reports",
		slog.String("operation_id", state.ID),
		slog.Int("artifacts", len(artifacts)))
	return nil
}

// RegisterResearchSteps wires the full pipeline into a manager.
func RegisterResearchSteps(m *Manager, client ResearchClient, reporter StudyReporter, metrics *infrastructure.BusinessMetrics) error {
	steps := []Step{
		NewFetchStep(client),
		NewFactorsStep(client),
		NewStudyStep(client, metrics),
		NewReportStep(reporter),
	}
	for _, step := range steps {
		if err := m.RegisterStep(step); err != nil {
			return err
		}
	}
	return nil
}

// stringSliceConfig coerces a config value into a string slice, accepting
// both typed slices and JSON-decoded []interface{}.
func stringSliceConfig(state *OperationState, key string) []string {
	value, ok := state.GetConfig(key)
	if !ok {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

func stringConfig(state *OperationState, key string) string {
	value, ok := state.GetConfig(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// signalRulesConfig coerces a config value into signal rules, accepting
// typed rules and JSON-decoded maps.
func signalRulesConfig(state *OperationState, key string) ([]SignalRule, error) {
	value, ok := state.GetConfig(key)
	if !ok {
		return nil, nil
	}
	switch v := value.(type) {
	case []SignalRule:
		return v, nil
	case []interface{}:
		out := make([]SignalRule, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("signal rule %d: unexpected type %T", i, item)
			}
			rule := SignalRule{}
			rule.Name, _ = m["name"].(string)
			rule.Factor, _ = m["factor"].(string)
			rule.Op, _ = m["op"].(string)
			switch level := m["value"].(type) {
			case float64:
				rule.Value = level
			case int:
				rule.Value = float64(level)
			}
			out = append(out, rule)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected signal rules type %T", value)
	}
}

// parseWinsorize accepts true (default bounds) or explicit {lower, upper}
// percentile bounds.
func parseWinsorize(value interface{}) (*vquant.Winsorization, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
		w := vquant.DefaultWinsorization()
		return &w, nil
	case *vquant.Winsorization:
		return v, nil
	case vquant.Winsorization:
		return &v, nil
	case map[string]interface{}:
		w := vquant.DefaultWinsorization()
		if lower, ok := v["lower"].(float64); ok {
			w.Lower = lower
		}
		if upper, ok := v["upper"].(float64); ok {
			w.Upper = upper
		}
		if err := w.Validate(); err != nil {
			return nil, err
		}
		return &w, nil
	default:
		return nil, fmt.Errorf("unexpected winsorize type %T", value)
	}
}
