package services

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/internal/operations"
)

func newStudyService(t *testing.T, client *stubClient, reporter *stubReporter) *StudyService {
	t.Helper()
	manager := operations.NewManager(&stubHub{}, nil, nil)
	require.NoError(t, operations.RegisterResearchSteps(manager, client, reporter, nil))
	return NewStudyService(manager, time.Minute, slog.Default())
}

func studyStub() *stubClient {
	return &stubClient{
		market:    "stocks_vn",
		timeframe: "1d",
		ohlcv:     testFrame(3, frame.Key{Column: "close", Ticker: "VNM"}),
		factors:   testFrame(3, frame.Key{Column: "technical.rsi_14", Ticker: "VNM"}),
		result: &vquant.StudyResult{
			Panel: testFrame(3,
				frame.Key{Column: "close", Ticker: "VNM"},
				frame.Key{Column: "daily_return", Ticker: "VNM"},
			),
			Correlations: []vquant.Correlation{
				{Ticker: "VNM", Column: "technical.rsi_14", Value: 0.42, N: 3},
			},
		},
	}
}

func waitForStatus(t *testing.T, svc *StudyService, id, want string) *StudyStatus {
	t.Helper()
	var status *StudyStatus
	require.Eventually(t, func() bool {
		s, err := svc.Status(context.Background(), id)
		if err != nil {
			return false
		}
		status = s
		return s.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestStudyServiceRun(t *testing.T) {
	svc := newStudyService(t, studyStub(), &stubReporter{})

	id, err := svc.Run(context.Background(), StudyRunRequest{
		Tickers: []string{"VNM"},
		Factors: []string{"technical.rsi_14"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status := waitForStatus(t, svc, id, "completed")
	require.Len(t, status.Steps, 4)
	assert.Equal(t, operations.StepIDFetch, status.Steps[0].ID)
	assert.Equal(t, operations.StepIDReport, status.Steps[3].ID)
	for _, step := range status.Steps {
		assert.Equal(t, "completed", step.Status, step.ID)
	}
}

func TestStudyServiceRunValidation(t *testing.T) {
	svc := newStudyService(t, studyStub(), &stubReporter{})

	tests := []struct {
		name string
		req  StudyRunRequest
	}{
		{name: "no tickers", req: StudyRunRequest{Factors: []string{"rsi_14"}}},
		{name: "no factors or signals", req: StudyRunRequest{Tickers: []string{"VNM"}}},
		{
			name: "bad factor ref",
			req:  StudyRunRequest{Tickers: []string{"VNM"}, Factors: []string{"a.b.c"}},
		},
		{
			name: "bad signal op",
			req: StudyRunRequest{
				Tickers: []string{"VNM"},
				Signals: []operations.SignalRule{{Name: "s", Factor: "rsi_14", Op: "between", Value: 30}},
			},
		},
		{
			name: "bad winsorize bounds",
			req: StudyRunRequest{
				Tickers:   []string{"VNM"},
				Factors:   []string{"rsi_14"},
				Winsorize: &vquant.Winsorization{Lower: 0.9, Upper: 0.1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestStudyServiceResult(t *testing.T) {
	svc := newStudyService(t, studyStub(), &stubReporter{})

	id, err := svc.Run(context.Background(), StudyRunRequest{
		Tickers: []string{"VNM"},
		Factors: []string{"technical.rsi_14"},
	})
	require.NoError(t, err)
	waitForStatus(t, svc, id, "completed")

	result, err := svc.Result(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, result.Correlations, 1)
	assert.Equal(t, "VNM", result.Correlations[0].Ticker)

	paths, err := svc.Artifacts(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, paths)
}

func TestStudyServiceResultNotFound(t *testing.T) {
	svc := newStudyService(t, studyStub(), &stubReporter{})

	_, err := svc.Result(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStudyNotFound)

	_, err = svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStudyNotFound)

	err = svc.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStudyNotFound)
}

func TestStudyServiceResultCSV(t *testing.T) {
	svc := newStudyService(t, studyStub(), &stubReporter{})

	id, err := svc.Run(context.Background(), StudyRunRequest{
		Tickers: []string{"VNM"},
		Factors: []string{"technical.rsi_14"},
	})
	require.NoError(t, err)
	waitForStatus(t, svc, id, "completed")

	var buf bytes.Buffer
	require.NoError(t, svc.WriteResultCSV(context.Background(), id, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ticker,column,correlation,n", lines[0])
	assert.Equal(t, "VNM,technical.rsi_14,0.420000,3", lines[1])
}

func TestStudyServiceFailedStudy(t *testing.T) {
	client := studyStub()
	client.studyErr = assert.AnError
	svc := newStudyService(t, client, &stubReporter{})

	id, err := svc.Run(context.Background(), StudyRunRequest{
		Tickers: []string{"VNM"},
		Factors: []string{"technical.rsi_14"},
	})
	require.NoError(t, err)

	status := waitForStatus(t, svc, id, "failed")
	assert.NotEmpty(t, status.Error)

	_, err = svc.Result(context.Background(), id)
	assert.ErrorIs(t, err, ErrStudyNoResult)
}

func TestStudyServiceList(t *testing.T) {
	svc := newStudyService(t, studyStub(), &stubReporter{})

	first, err := svc.Run(context.Background(), StudyRunRequest{
		Tickers: []string{"VNM"},
		Factors: []string{"technical.rsi_14"},
	})
	require.NoError(t, err)
	waitForStatus(t, svc, first, "completed")

	second, err := svc.Run(context.Background(), StudyRunRequest{
		Tickers: []string{"VNM"},
		Factors: []string{"technical.rsi_14"},
	})
	require.NoError(t, err)
	waitForStatus(t, svc, second, "completed")

	statuses := svc.List(context.Background())
	require.Len(t, statuses, 2)
}
