package monitor

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/astro/fits"
	"github.com/nightjar-data/gradient.report/internal/astrodb"
	"github.com/nightjar-data/gradient.report/internal/testutil"
)

// newTestServerWithData points the data directory at a temp dir.
func newTestServerWithData(t *testing.T) (*WebServer, string) {
	t.Helper()
	ws := newTestServer(t)
	dataDir := t.TempDir()
	ws.tuning.DataDir = &dataDir
	return ws, dataDir
}

// newTestServerWithDB adds a run archive in a temp dir and wires it to
// the extractor so completed runs are persisted.
func newTestServerWithDB(t *testing.T) *WebServer {
	t.Helper()
	ws := newTestServer(t)
	db, err := astrodb.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("astrodb.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ws.db = db
	ws.extractor.SetRunStore(db)
	return ws
}

func TestImageLoadHandler(t *testing.T) {
	ws, dataDir := newTestServerWithData(t)

	src := testImage(48, 40)
	if err := fits.Write(filepath.Join(dataDir, "in.fits"), src); err != nil {
		t.Fatalf("fits.Write: %v", err)
	}

	rr := testutil.NewTestRecorder()
	ws.handleImageLoad(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/load?file=in.fits"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var resp struct {
		Loaded   string `json:"loaded"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Channels int    `json:"channels"`
	}
	testutil.DecodeJSON(t, rr, &resp)
	if resp.Loaded != "in.fits" || resp.Width != 48 || resp.Height != 40 || resp.Channels != 1 {
		t.Errorf("unexpected load response: %+v", resp)
	}

	img := ws.extractor.CurrentImage()
	if img == nil || img.Width != 48 {
		t.Error("image not attached to the extractor")
	}
	if ws.stats.Snapshot().Loads != 1 {
		t.Error("load counter not incremented")
	}
}

func TestImageLoadHandler_Errors(t *testing.T) {
	ws, _ := newTestServerWithData(t)

	// Missing file parameter.
	rr := testutil.NewTestRecorder()
	ws.handleImageLoad(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/load"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)

	// Escaping the data directory.
	rr = testutil.NewTestRecorder()
	ws.handleImageLoad(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/load?file=../../etc/passwd"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)

	// Nonexistent file.
	rr = testutil.NewTestRecorder()
	ws.handleImageLoad(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/load?file=nope.fits"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)

	// Wrong method.
	rr = testutil.NewTestRecorder()
	ws.handleImageLoad(rr, testutil.NewTestRequest(http.MethodGet, "/api/image/load?file=in.fits"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusMethodNotAllowed)
}

func TestImageSaveHandler_Source(t *testing.T) {
	ws, dataDir := newTestServerWithData(t)
	if err := ws.extractor.SetImage(testImage(48, 40)); err != nil {
		t.Fatalf("SetImage: %v", err)
	}

	rr := testutil.NewTestRecorder()
	ws.handleImageSave(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/save?file=out.fits&kind=source"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	reloaded, err := fits.Load(filepath.Join(dataDir, "out.fits"))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Width != 48 || reloaded.Height != 40 {
		t.Errorf("saved image is %dx%d, want 48x40", reloaded.Width, reloaded.Height)
	}
	if ws.stats.Snapshot().Saves != 1 {
		t.Error("save counter not incremented")
	}
}

func TestImageSaveHandler_CorrectedAndModel(t *testing.T) {
	ws, dataDir := newTestServerWithData(t)

	s := testSettings()
	s.ApplyCorrection = true
	s.DiscardModel = false
	runExtraction(t, ws, s)

	rr := testutil.NewTestRecorder()
	ws.handleImageSave(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/save?file=corrected.fits"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	rr = testutil.NewTestRecorder()
	ws.handleImageSave(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/save?file=model.fits&kind=model"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	for _, name := range []string{"corrected.fits", "model.fits"} {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestImageSaveHandler_MissingProducts(t *testing.T) {
	ws, _ := newTestServerWithData(t)

	// Default settings discard the model and skip correction.
	runExtraction(t, ws, testSettings())

	rr := testutil.NewTestRecorder()
	ws.handleImageSave(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/save?file=c.fits&kind=corrected"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)

	rr = testutil.NewTestRecorder()
	ws.handleImageSave(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/save?file=m.fits&kind=model"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)

	rr = testutil.NewTestRecorder()
	ws.handleImageSave(rr, testutil.NewTestRequest(http.MethodPost, "/api/image/save?file=x.fits&kind=everything"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)
}

func TestImageInfoHandler(t *testing.T) {
	ws := newTestServer(t)

	rr := testutil.NewTestRecorder()
	ws.handleImageInfo(rr, testutil.NewTestRequest(http.MethodGet, "/api/image/info"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"loaded":false`)

	if err := ws.extractor.SetImage(testImage(64, 32)); err != nil {
		t.Fatalf("SetImage: %v", err)
	}

	rr = testutil.NewTestRecorder()
	ws.handleImageInfo(rr, testutil.NewTestRequest(http.MethodGet, "/api/image/info"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var resp struct {
		Loaded bool `json:"loaded"`
		Width  int  `json:"width"`
		Height int  `json:"height"`
	}
	testutil.DecodeJSON(t, rr, &resp)
	if !resp.Loaded || resp.Width != 64 || resp.Height != 32 {
		t.Errorf("unexpected info response: %+v", resp)
	}
}

func TestRunsHandler(t *testing.T) {
	ws := newTestServerWithDB(t)
	runExtraction(t, ws, testSettings())

	rr := testutil.NewTestRecorder()
	ws.handleRuns(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var resp struct {
		Count int               `json:"count"`
		Runs  []astro.RunRecord `json:"runs"`
	}
	testutil.DecodeJSON(t, rr, &resp)
	if resp.Count != 1 || len(resp.Runs) != 1 {
		t.Fatalf("expected one archived run, got %+v", resp)
	}
	if !resp.Runs[0].Success {
		t.Error("archived run should be successful")
	}
	if resp.Runs[0].Width != 128 {
		t.Errorf("archived width = %d, want 128", resp.Runs[0].Width)
	}
}

func TestRunsHandler_Delete(t *testing.T) {
	ws := newTestServerWithDB(t)
	runExtraction(t, ws, testSettings())

	rr := testutil.NewTestRecorder()
	ws.handleRuns(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var listResp struct {
		Runs []astro.RunRecord `json:"runs"`
	}
	testutil.DecodeJSON(t, rr, &listResp)
	if len(listResp.Runs) != 1 {
		t.Fatalf("expected one archived run, got %d", len(listResp.Runs))
	}
	id := listResp.Runs[0].ID

	rr = testutil.NewTestRecorder()
	ws.handleRuns(rr, testutil.NewTestRequest(http.MethodDelete, fmt.Sprintf("/api/runs?id=%d", id)))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	// Archive is empty now and a second delete reports not found.
	rr = testutil.NewTestRecorder()
	ws.handleRuns(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs"))
	testutil.AssertBodyContains(t, rr, `"count":0`)

	rr = testutil.NewTestRecorder()
	ws.handleRuns(rr, testutil.NewTestRequest(http.MethodDelete, fmt.Sprintf("/api/runs?id=%d", id)))
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)

	// Missing id parameter.
	rr = testutil.NewTestRecorder()
	ws.handleRuns(rr, testutil.NewTestRequest(http.MethodDelete, "/api/runs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)
}

func TestRunsHandler_NoArchive(t *testing.T) {
	ws := newTestServer(t)

	rr := testutil.NewTestRecorder()
	ws.handleRuns(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusServiceUnavailable)

	rr = testutil.NewTestRecorder()
	ws.handleRunStats(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs/stats"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusServiceUnavailable)
}

func TestRunStatsHandler_Units(t *testing.T) {
	ws := newTestServerWithDB(t)
	runExtraction(t, ws, testSettings())

	rr := testutil.NewTestRecorder()
	ws.handleRunStats(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs/stats"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var normResp struct {
		Stats astrodb.RunStats `json:"stats"`
	}
	testutil.DecodeJSON(t, rr, &normResp)
	if normResp.Stats.TotalRuns != 1 || normResp.Stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", normResp.Stats)
	}

	rr = testutil.NewTestRecorder()
	ws.handleRunStats(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs/stats?units=percent"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var pctResp struct {
		Stats astrodb.RunStats `json:"stats"`
	}
	testutil.DecodeJSON(t, rr, &pctResp)

	want := normResp.Stats.MeanRMSError * 100
	got := pctResp.Stats.MeanRMSError
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("percent mean rms = %g, want %g", got, want)
	}

	rr = testutil.NewTestRecorder()
	ws.handleRunStats(rr, testutil.NewTestRequest(http.MethodGet, "/api/runs/stats?units=furlongs"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)
}

func TestPlotsHandler(t *testing.T) {
	ws := newTestServer(t)

	// Disabled plotter refuses.
	rr := testutil.NewTestRecorder()
	ws.handlePlots(rr, testutil.NewTestRequest(http.MethodPost, "/api/plots"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusServiceUnavailable)

	if err := ws.plotter.Start(t.TempDir()); err != nil {
		t.Fatalf("plotter.Start: %v", err)
	}

	// Enabled but no result yet.
	rr = testutil.NewTestRecorder()
	ws.handlePlots(rr, testutil.NewTestRequest(http.MethodPost, "/api/plots"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)

	s := testSettings()
	s.DiscardModel = false
	runExtraction(t, ws, s)

	rr = testutil.NewTestRecorder()
	ws.handlePlots(rr, testutil.NewTestRequest(http.MethodPost, "/api/plots"))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var resp struct {
		Count int      `json:"count"`
		Files []string `json:"files"`
	}
	testutil.DecodeJSON(t, rr, &resp)
	if resp.Count == 0 {
		t.Fatal("expected at least one plot file")
	}
	for _, f := range resp.Files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("plot file %s not written: %v", f, err)
		}
	}
}
