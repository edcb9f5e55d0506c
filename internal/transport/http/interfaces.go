package http

import (
	"context"
	"io"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/internal/services"
)

// DataServiceInterface is the data surface the data handler consumes.
type DataServiceInterface interface {
	Catalog(ctx context.Context, category string) ([]services.FactorSummary, error)
	GetOHLCV(ctx context.Context, tickers, columns []string) (*services.FrameData, error)
	GetFactorData(ctx context.Context, tickers, refs []string) (*services.FrameData, error)
}

// StudyServiceInterface is the study surface the study handler consumes.
type StudyServiceInterface interface {
	Run(ctx context.Context, req services.StudyRunRequest) (string, error)
	Status(ctx context.Context, id string) (*services.StudyStatus, error)
	List(ctx context.Context) []*services.StudyStatus
	Result(ctx context.Context, id string) (*vquant.StudyResult, error)
	Artifacts(ctx context.Context, id string) ([]string, error)
	WriteResultCSV(ctx context.Context, id string, w io.Writer) error
	Cancel(ctx context.Context, id string) error
}

// HealthServiceInterface is the health surface the health handler consumes.
type HealthServiceInterface interface {
	Liveness(ctx context.Context) *services.HealthStatus
	Readiness(ctx context.Context) *services.HealthStatus
	Stats(ctx context.Context) *services.SystemStats
}
