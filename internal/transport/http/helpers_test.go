package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	vquant "github.com/edges-ai/vquant"
	apierrors "github.com/edges-ai/vquant/internal/errors"
	"github.com/edges-ai/vquant/internal/services"
)

func testErrorHandler() *apierrors.ErrorHandler {
	return apierrors.NewErrorHandler(slog.Default(), false)
}

func doRequest(t *testing.T, router http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// stubDataService implements DataServiceInterface.
type stubDataService struct {
	catalog    []services.FactorSummary
	frame      *services.FrameData
	catalogErr error
	frameErr   error

	gotTickers []string
	gotColumns []string
	gotRefs    []string
}

func (s *stubDataService) Catalog(ctx context.Context, category string) ([]services.FactorSummary, error) {
	if s.catalogErr != nil {
		return nil, s.catalogErr
	}
	return s.catalog, nil
}

func (s *stubDataService) GetOHLCV(ctx context.Context, tickers, columns []string) (*services.FrameData, error) {
	s.gotTickers, s.gotColumns = tickers, columns
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return s.frame, nil
}

func (s *stubDataService) GetFactorData(ctx context.Context, tickers, refs []string) (*services.FrameData, error) {
	s.gotTickers, s.gotRefs = tickers, refs
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return s.frame, nil
}

// stubStudyService implements StudyServiceInterface.
type stubStudyService struct {
	runID     string
	runErr    error
	status    *services.StudyStatus
	statusErr error
	statuses  []*services.StudyStatus
	result    *vquant.StudyResult
	resultErr error
	artifacts []string
	csv       string
	cancelErr error

	gotRun *services.StudyRunRequest
}

func (s *stubStudyService) Run(ctx context.Context, req services.StudyRunRequest) (string, error) {
	s.gotRun = &req
	if s.runErr != nil {
		return "", s.runErr
	}
	return s.runID, nil
}

func (s *stubStudyService) Status(ctx context.Context, id string) (*services.StudyStatus, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.status, nil
}

func (s *stubStudyService) List(ctx context.Context) []*services.StudyStatus {
	return s.statuses
}

func (s *stubStudyService) Result(ctx context.Context, id string) (*vquant.StudyResult, error) {
	if s.resultErr != nil {
		return nil, s.resultErr
	}
	return s.result, nil
}

func (s *stubStudyService) Artifacts(ctx context.Context, id string) ([]string, error) {
	return s.artifacts, nil
}

func (s *stubStudyService) WriteResultCSV(ctx context.Context, id string, w io.Writer) error {
	if s.resultErr != nil {
		return s.resultErr
	}
	_, err := io.WriteString(w, s.csv)
	return err
}

func (s *stubStudyService) Cancel(ctx context.Context, id string) error {
	return s.cancelErr
}

// stubHealthService implements HealthServiceInterface.
type stubHealthService struct {
	live  *services.HealthStatus
	ready *services.HealthStatus
	stats *services.SystemStats
}

func (s *stubHealthService) Liveness(ctx context.Context) *services.HealthStatus  { return s.live }
func (s *stubHealthService) Readiness(ctx context.Context) *services.HealthStatus { return s.ready }
func (s *stubHealthService) Stats(ctx context.Context) *services.SystemStats      { return s.stats }

func requireJSONContentType(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}
