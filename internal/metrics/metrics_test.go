package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/model"
)

func TestObserveRun(t *testing.T) {
	m := New()
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	m.ObserveRun(&model.Run{
		Mode:        model.ModeProduction,
		Status:      model.RunStatusPartial,
		CostUSD:     0.42,
		OpsByKind:   map[string]int{"classify": 2, "search": 1},
		StartedAt:   start,
		CompletedAt: &end,
	})

	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("production", "partial")), 1e-9)
	assert.InDelta(t, 0.42, testutil.ToFloat64(m.runCost), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ops.WithLabelValues("classify")), 1e-9)
	assert.InDelta(t, float64(end.Unix()), testutil.ToFloat64(m.lastRun), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))
}

func TestObserveCases_BoundsReasonLabel(t *testing.T) {
	m := New()
	m.ObserveCases([]model.CaseFile{
		{Status: model.CaseStatusQualified},
		{Status: model.CaseStatusDropped, DropReason: model.ReasonDuplicate},
		{Status: model.CaseStatusDropped, DropReason: model.ReasonLowQuality + ": generic narrative"},
	})

	assert.InDelta(t, 1, testutil.ToFloat64(m.cases.WithLabelValues("qualified", "")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cases.WithLabelValues("dropped", model.ReasonLowQuality)), 1e-9)
	assert.Equal(t, 3, testutil.CollectAndCount(m.cases))
}

func TestObserveFeedbackAndCalibration(t *testing.T) {
	m := New()
	m.ObserveFeedback(model.GradeRelevant)
	m.ObserveFeedback(model.GradeRelevant)
	m.ObserveCalibration("news_wire", "raise")

	assert.InDelta(t, 2, testutil.ToFloat64(m.feedback.WithLabelValues("Relevant")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.calibrations.WithLabelValues("news_wire", "raise")), 1e-9)
}

func TestNilManagerIsNoop(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.ObserveRun(&model.Run{})
		m.ObserveCases([]model.CaseFile{{}})
		m.ObserveFeedback(model.GradePartial)
		m.ObserveCalibration("x", "keep")
		m.ObserveHTTP("/health", http.MethodGet, 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"))
	m.ObserveHTTP("/leads", http.MethodGet, 200, 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `test_http_requests_total{code="200",method="GET",route="/leads"} 1`)
	assert.Contains(t, string(body), "test_http_request_duration_seconds_bucket")
}

func TestWithProcessCollectors(t *testing.T) {
	m := New(WithProcessCollectors())
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}
