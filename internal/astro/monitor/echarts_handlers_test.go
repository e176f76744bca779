package monitor

import (
	"net/http"
	"testing"

	"github.com/nightjar-data/gradient.report/internal/testutil"
)

func TestSamplesChart_NoResult(t *testing.T) {
	ws := newTestServer(t)

	rr := testutil.NewTestRecorder()
	ws.handleSamplesChart(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts/samples"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)
}

func TestSamplesChart_Renders(t *testing.T) {
	ws := newTestServer(t)
	runExtraction(t, ws, testSettings())

	rr := testutil.NewTestRecorder()
	ws.handleSamplesChart(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts/samples"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	if ctype := rr.Header().Get("Content-Type"); ctype != "text/html; charset=utf-8" {
		t.Errorf("content type = %q, want text/html", ctype)
	}
	testutil.AssertBodyContains(t, rr, "Extraction Samples")
	testutil.AssertBodyContains(t, rr, "echarts")
}

func TestModelChart(t *testing.T) {
	ws := newTestServer(t)

	// Default settings discard the surface, so the chart has nothing.
	runExtraction(t, ws, testSettings())
	rr := testutil.NewTestRecorder()
	ws.handleModelChart(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts/model"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)

	s := testSettings()
	s.DiscardModel = false
	runExtraction(t, ws, s)

	rr = testutil.NewTestRecorder()
	ws.handleModelChart(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts/model"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "Background Model Surface")
}

func TestRunsChart(t *testing.T) {
	// Without an archive the chart is unavailable.
	ws := newTestServer(t)
	rr := testutil.NewTestRecorder()
	ws.handleRunsChart(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts/runs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusServiceUnavailable)

	// With an empty archive there is nothing to draw.
	ws = newTestServerWithDB(t)
	rr = testutil.NewTestRecorder()
	ws.handleRunsChart(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts/runs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)

	runExtraction(t, ws, testSettings())

	rr = testutil.NewTestRecorder()
	ws.handleRunsChart(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts/runs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "RMS Error by Run")
	testutil.AssertBodyContains(t, rr, "Run Duration")
}

func TestChartsDashboard(t *testing.T) {
	ws := newTestServer(t)

	rr := testutil.NewTestRecorder()
	ws.handleChartsDashboard(rr, testutil.NewTestRequest(http.MethodGet, "/debug/charts"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "Gradient Charts: test")
	testutil.AssertBodyContains(t, rr, "/debug/charts/samples")
	testutil.AssertBodyContains(t, rr, "iframe")
}
