package monitor

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/astro/fits"
	"github.com/nightjar-data/gradient.report/internal/astrodb"
	"github.com/nightjar-data/gradient.report/internal/httputil"
	"github.com/nightjar-data/gradient.report/internal/security"
	"github.com/nightjar-data/gradient.report/internal/units"
)

// resolveDataPath joins file onto the configured data directory and
// refuses anything that is not a FITS name or escapes the directory.
func (ws *WebServer) resolveDataPath(file string) (string, error) {
	if err := security.ValidateFITSFilename(file); err != nil {
		return "", err
	}
	dataDir := ws.tuning.GetDataDir()
	path := filepath.Join(dataDir, file)
	if err := security.ValidatePathWithinDirectory(path, dataDir); err != nil {
		return "", err
	}
	return path, nil
}

// handleImageLoad reads a FITS file from the data directory and
// attaches it to the extractor. POST /api/image/load?file=light.fits
func (ws *WebServer) handleImageLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	path, err := ws.resolveDataPath(r.URL.Query().Get("file"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	img, err := fits.Load(path)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("load failed: %v", err))
		return
	}

	if err := ws.extractor.SetImage(img); err != nil {
		httputil.Conflict(w, err.Error())
		return
	}

	ws.stats.AddLoad()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"loaded":   filepath.Base(path),
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
	})
}

// handleImageSave writes an extraction product to the data directory
// as FITS. POST /api/image/save?file=out.fits&kind=corrected|model|source
func (ws *WebServer) handleImageSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	path, err := ws.resolveDataPath(r.URL.Query().Get("file"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "corrected"
	}

	var img *astro.Image
	switch kind {
	case "corrected":
		res := ws.extractor.Result()
		if res == nil || res.Corrected == nil {
			httputil.NotFound(w, "no corrected image; run with apply_correction enabled")
			return
		}
		img = res.Corrected
	case "model":
		res := ws.extractor.Result()
		if res == nil {
			httputil.NotFound(w, "no extraction result available")
			return
		}
		img = fits.SurfaceImage(res.Model)
		if img == nil {
			httputil.NotFound(w, "model surface unavailable; run with discard_model disabled")
			return
		}
	case "source":
		img = ws.extractor.CurrentImage()
		if img == nil {
			httputil.NotFound(w, "no image attached")
			return
		}
	default:
		httputil.BadRequest(w, "kind must be corrected, model, or source")
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("cannot create output directory: %v", err))
		return
	}
	if err := fits.Write(path, img); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("save failed: %v", err))
		return
	}

	ws.stats.AddSave()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"saved":    filepath.Base(path),
		"kind":     kind,
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
	})
}

// handleImageInfo describes the attached image. GET /api/image/info
func (ws *WebServer) handleImageInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	img := ws.extractor.CurrentImage()
	if img == nil {
		httputil.WriteJSONOK(w, map[string]interface{}{"loaded": false})
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"loaded":         true,
		"width":          img.Width,
		"height":         img.Height,
		"channels":       img.Channels,
		"manual_samples": ws.extractor.ManualSampleCount(),
		"in_flight":      ws.extractor.InFlight(),
	})
}

// handleRuns manages the run archive.
// GET /api/runs?limit=N lists, DELETE /api/runs?id=N removes one run.
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.ServiceUnavailable(w, "run archive not available")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		runs, err := ws.db.ListRuns(limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("query failed: %v", err))
			return
		}

		httputil.WriteJSONOK(w, map[string]interface{}{
			"count": len(runs),
			"runs":  runs,
		})
	case http.MethodDelete:
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || id <= 0 {
			httputil.BadRequest(w, "id parameter is required")
			return
		}
		if err := ws.db.DeleteRun(id); err != nil {
			if astrodb.IsNotFound(err) {
				httputil.NotFound(w, fmt.Sprintf("run %d not found", id))
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("delete failed: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{"deleted": id})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleRunStats aggregates outcomes across the archive.
// GET /api/runs/stats?units=norm|adu8|adu16|percent
func (ws *WebServer) handleRunStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.ServiceUnavailable(w, "run archive not available")
		return
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.Norm
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q, must be one of: %s", unit, units.GetValidUnitsString()))
		return
	}

	st, err := ws.db.Stats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("query failed: %v", err))
		return
	}

	converted := st
	converted.MeanRMSError = units.ConvertValue(st.MeanRMSError, unit)

	httputil.WriteJSONOK(w, map[string]interface{}{
		"units": unit,
		"stats": converted,
	})
}

// handlePlots renders plot artifacts for the held result into the
// plot output directory. POST /api/plots
func (ws *WebServer) handlePlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !ws.plotter.IsEnabled() {
		httputil.ServiceUnavailable(w, "plot output not enabled")
		return
	}

	res := ws.extractor.Result()
	if res == nil || res.RunID == "" {
		httputil.NotFound(w, "no extraction result available")
		return
	}

	files, err := ws.plotter.GeneratePlots(res)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot generation failed: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"count": len(files),
		"files": files,
	})
}
