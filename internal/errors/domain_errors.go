package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/storage"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapDataError maps library errors from data loading, factor resolution, and
// study execution to HTTP problem details.
func MapDataError(err error, instance, traceID string) render.Renderer {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "TIMEOUT")
	}

	var factorErr *vquant.FactorNotFoundError
	if errors.As(err, &factorErr) {
		problem := NewProblemDetails(
			http.StatusNotFound,
			TypeFactorNotFound,
			"Factor Not Found",
			fmt.Sprintf("Factor %s is neither stored nor registered.", factorErr.Factor),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "FACTOR_NOT_FOUND").
			WithExtension("factor", factorErr.Factor)
		if factorErr.Ticker != "" {
			problem.WithExtension("ticker", factorErr.Ticker)
		}
		return problem
	}

	var loadErr *vquant.DataLoadError
	if errors.As(err, &loadErr) {
		if errors.Is(err, storage.ErrNotFound) {
			return NewProblemDetails(
				http.StatusNotFound,
				TypeDataNotFound,
				"Data Not Found",
				fmt.Sprintf("No stored data for ticker %s.", loadErr.Ticker),
				instance,
			).WithExtension("trace_id", traceID).
				WithExtension("error_code", "TICKER_NOT_FOUND").
				WithExtension("ticker", loadErr.Ticker)
		}
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeDataLoadFailed,
			"Data Load Failed",
			fmt.Sprintf("Loading data for ticker %s failed.", loadErr.Ticker),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DATA_LOAD_FAILED").
			WithExtension("ticker", loadErr.Ticker)
	}

	switch {
	case errors.Is(err, vquant.ErrBadFactorRef):
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeBadFactorRef,
			"Malformed Factor Reference",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "BAD_FACTOR_REF").
			WithExtension("expected_format", "category.name")

	case errors.Is(err, vquant.ErrFactorNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeFactorNotFound,
			"Factor Not Found",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "FACTOR_NOT_FOUND")

	case errors.Is(err, storage.ErrColumnNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeDataNotFound,
			"Column Not Found",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "COLUMN_NOT_FOUND")

	case errors.Is(err, storage.ErrNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeDataNotFound,
			"Data Not Found",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "NOT_FOUND")

	case errors.Is(err, vquant.ErrDataLoad):
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeDataLoadFailed,
			"Data Load Failed",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DATA_LOAD_FAILED")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
