package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/edges-ai/vquant/internal/errors"
)

// DataHandler serves the factor catalog and raw market data.
type DataHandler struct {
	service      DataServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a data handler.
func NewDataHandler(service DataServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DataHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "data_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the data routes.
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/catalog", h.GetCatalog)
	r.Get("/ohlcv", h.GetOHLCV)
	r.Get("/factors", h.GetFactors)

	return r
}

// GetCatalog lists the stored factors, optionally filtered by the category
// query parameter.
func (h *DataHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	factors, err := h.service.Catalog(r.Context(), category)
	if err != nil {
		h.handleDataError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"factors": factors,
		"count":   len(factors),
	})
}

// GetOHLCV serves aligned price columns for the tickers query parameter.
func (h *DataHandler) GetOHLCV(w http.ResponseWriter, r *http.Request) {
	tickers := queryList(r, "tickers")
	if len(tickers) == 0 {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("tickers", "at least one ticker is required"))
		return
	}
	columns := queryList(r, "columns")

	data, err := h.service.GetOHLCV(r.Context(), tickers, columns)
	if err != nil {
		h.handleDataError(w, r, err)
		return
	}
	render.JSON(w, r, data)
}

// GetFactors serves aligned factor columns for the tickers and factors
// query parameters.
func (h *DataHandler) GetFactors(w http.ResponseWriter, r *http.Request) {
	tickers := queryList(r, "tickers")
	if len(tickers) == 0 {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("tickers", "at least one ticker is required"))
		return
	}
	refs := queryList(r, "factors")
	if len(refs) == 0 {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("factors", "at least one factor reference is required"))
		return
	}

	data, err := h.service.GetFactorData(r.Context(), tickers, refs)
	if err != nil {
		h.handleDataError(w, r, err)
		return
	}
	render.JSON(w, r, data)
}

func (h *DataHandler) handleDataError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "data request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	h.errorHandler.HandleError(w, r, mapServiceError(err))
}

// queryList parses a repeatable, comma-separable query parameter.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
