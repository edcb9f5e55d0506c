package http

import (
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	vquant "github.com/edges-ai/vquant"
	apierrors "github.com/edges-ai/vquant/internal/errors"
	"github.com/edges-ai/vquant/internal/operations"
	"github.com/edges-ai/vquant/internal/services"
)

var validate = validator.New()

// RunStudyRequest is the study submission payload.
type RunStudyRequest struct {
	Tickers []string            `json:"tickers" validate:"required,min=1,dive,required"`
	Columns []string            `json:"columns,omitempty"`
	Factors []string            `json:"factors,omitempty"`
	Signals []SignalRuleRequest `json:"signals,omitempty" validate:"dive"`
	// Winsorize clamps factor columns cross-sectionally before correlating.
	Winsorize *WinsorizeRequest `json:"winsorize,omitempty"`
	Formats   []string          `json:"formats,omitempty" validate:"dive,oneof=csv xlsx html"`
	Name      string            `json:"name,omitempty" validate:"omitempty,max=64"`
}

// SignalRuleRequest is one declarative threshold signal.
type SignalRuleRequest struct {
	Name   string  `json:"name" validate:"required"`
	Factor string  `json:"factor" validate:"required"`
	Op     string  `json:"op" validate:"required,oneof=gt lt ge le cross_above cross_below"`
	Value  float64 `json:"value"`
}

// WinsorizeRequest carries the percentile clamp bounds.
type WinsorizeRequest struct {
	Lower float64 `json:"lower" validate:"gte=0,lt=1"`
	Upper float64 `json:"upper" validate:"gt=0,lte=1,gtfield=Lower"`
}

// Bind validates the payload after decoding.
func (req *RunStudyRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// RunStudyResponse acknowledges a submitted study.
type RunStudyResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
}

// CorrelationData is the wire form of one correlation; undefined
// correlations (too few complete rows) serialize as null.
type CorrelationData struct {
	Ticker string   `json:"ticker"`
	Column string   `json:"column"`
	Value  *float64 `json:"value"`
	N      int      `json:"n"`
}

// StudyResultResponse is the finished study payload.
type StudyResultResponse struct {
	OperationID  string            `json:"operation_id"`
	Correlations []CorrelationData `json:"correlations"`
	Artifacts    []string          `json:"artifacts,omitempty"`
}

// StudyHandler serves study submission, status and results.
type StudyHandler struct {
	service      StudyServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewStudyHandler creates a study handler.
func NewStudyHandler(service StudyServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *StudyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudyHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "study_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the study routes.
func (h *StudyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.RunStudy)
	r.Get("/", h.ListStudies)

	r.Route("/{operationID}", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Delete("/", h.CancelStudy)
		r.Get("/result", h.GetResult)
		r.Get("/result.csv", h.GetResultCSV)
	})

	return r
}

// RunStudy validates and submits a study, answering 202 with the operation
// id to poll.
func (h *StudyHandler) RunStudy(w http.ResponseWriter, r *http.Request) {
	var req RunStudyRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	id, err := h.service.Run(r.Context(), toRunRequest(req))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "study accepted",
		slog.String("operation_id", id),
		slog.Int("tickers", len(req.Tickers)))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, RunStudyResponse{OperationID: id, Status: "pending"})
}

// ListStudies reports every tracked study.
func (h *StudyHandler) ListStudies(w http.ResponseWriter, r *http.Request) {
	statuses := h.service.List(r.Context())
	render.JSON(w, r, map[string]interface{}{
		"studies": statuses,
		"count":   len(statuses),
	})
}

// GetStatus reports one study's progress.
func (h *StudyHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.errorHandler.HandleError(w, r, mapServiceError(err))
		return
	}
	render.JSON(w, r, status)
}

// GetResult serves a finished study's correlations and report artifacts.
func (h *StudyHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	result, err := h.service.Result(r.Context(), id)
	if err != nil {
		h.errorHandler.HandleError(w, r, mapServiceError(err))
		return
	}
	artifacts, err := h.service.Artifacts(r.Context(), id)
	if err != nil {
		h.errorHandler.HandleError(w, r, mapServiceError(err))
		return
	}

	render.JSON(w, r, StudyResultResponse{
		OperationID:  id,
		Correlations: correlationData(result.Correlations),
		Artifacts:    artifacts,
	})
}

// GetResultCSV streams a finished study's correlation table as CSV.
func (h *StudyHandler) GetResultCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="study_`+id+`.csv"`)

	if err := h.service.WriteResultCSV(r.Context(), id, w); err != nil {
		// Headers may already be out; only render a problem when they are not.
		w.Header().Del("Content-Disposition")
		h.errorHandler.HandleError(w, r, mapServiceError(err))
	}
}

// CancelStudy stops a running study.
func (h *StudyHandler) CancelStudy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.errorHandler.HandleError(w, r, mapServiceError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "study cancelled", slog.String("operation_id", id))
	render.JSON(w, r, map[string]string{"operation_id": id, "status": "cancelled"})
}

func toRunRequest(req RunStudyRequest) services.StudyRunRequest {
	out := services.StudyRunRequest{
		Tickers:  req.Tickers,
		Columns:  req.Columns,
		Factors:  req.Factors,
		Formats:  req.Formats,
		BaseName: req.Name,
	}
	for _, rule := range req.Signals {
		out.Signals = append(out.Signals, operations.SignalRule{
			Name:   rule.Name,
			Factor: rule.Factor,
			Op:     rule.Op,
			Value:  rule.Value,
		})
	}
	if req.Winsorize != nil {
		out.Winsorize = &vquant.Winsorization{
			Lower: req.Winsorize.Lower,
			Upper: req.Winsorize.Upper,
		}
	}
	return out
}

func correlationData(correlations []vquant.Correlation) []CorrelationData {
	out := make([]CorrelationData, 0, len(correlations))
	for _, c := range correlations {
		data := CorrelationData{Ticker: c.Ticker, Column: c.Column, N: c.N}
		if !math.IsNaN(c.Value) {
			v := c.Value
			data.Value = &v
		}
		out = append(out, data)
	}
	return out
}
