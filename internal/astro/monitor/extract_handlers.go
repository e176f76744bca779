package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/httputil"
	"github.com/nightjar-data/gradient.report/internal/units"
)

// handleExtract starts an extraction over the attached image.
// POST /api/extract?mode=async|sync
//
// The default async mode returns immediately; poll /api/status until
// in_flight drops, then fetch /api/result. Sync mode blocks until the
// run reaches a terminal state.
func (ws *WebServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	img := ws.extractor.CurrentImage()
	if img == nil {
		httputil.BadRequest(w, "no image attached; POST /api/image/load first")
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "async"
	}

	ws.stats.AddExtract()

	switch mode {
	case "async":
		if !ws.extractor.ExtractAsync(img) {
			ws.stats.AddBusy()
			httputil.Conflict(w, "extraction already in flight")
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"started": true,
			"mode":    mode,
		})
	case "sync":
		if ws.extractor.InFlight() {
			ws.stats.AddBusy()
			httputil.Conflict(w, "extraction already in flight")
			return
		}
		success := ws.extractor.Extract(img)
		res := ws.extractor.Result()
		if res == nil || res.RunID == "" {
			httputil.InternalServerError(w, "extraction produced no result")
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"started": true,
			"mode":    mode,
			"success": success,
			"run_id":  res.RunID,
			"metrics": res.Metrics,
		})
	default:
		httputil.BadRequest(w, "mode must be async or sync")
	}
}

// handlePreview starts an asynchronous run over a downsampled copy of
// the attached image. POST /api/extract/preview?max_dim=N
func (ws *WebServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	img := ws.extractor.CurrentImage()
	if img == nil {
		httputil.BadRequest(w, "no image attached; POST /api/image/load first")
		return
	}

	maxDim := ws.tuning.GetPreviewMaxDim()
	if v := r.URL.Query().Get("max_dim"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 32 && n <= 4096 {
			maxDim = n
		}
	}

	ws.stats.AddPreview()

	if !ws.extractor.GeneratePreview(img, maxDim) {
		ws.stats.AddBusy()
		httputil.Conflict(w, "preview refused: run in flight or image too small")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"started": true,
		"max_dim": maxDim,
	})
}

// handleCancel requests cooperative cancellation of the active run.
// POST /api/extract/cancel
func (ws *WebServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	wasRunning := ws.extractor.InFlight()
	ws.extractor.Cancel()
	ws.stats.AddCancel()

	httputil.WriteJSONOK(w, map[string]interface{}{
		"cancel_requested": true,
		"was_running":      wasRunning,
	})
}

// handleResult returns the last terminal result.
// GET /api/result?units=norm|adu8|adu16|percent
//
// Metric fields are converted into the requested display units; sample
// and coefficient values stay normalized.
func (ws *WebServer) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	res := ws.extractor.Result()
	if res == nil || res.RunID == "" {
		httputil.NotFound(w, "no extraction result available")
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

	convertMetrics(&res.Metrics, unit)
	for i := range res.ChannelMetrics {
		convertMetrics(&res.ChannelMetrics[i], unit)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":  unit,
		"result": res,
	})
}

func convertMetrics(m *astro.Metrics, unit string) {
	m.RMSError = units.ConvertValue(m.RMSError, unit)
	m.MeanDeviation = units.ConvertValue(m.MeanDeviation, unit)
	m.MaxDeviation = units.ConvertValue(m.MaxDeviation, unit)
}

// handleClearResult drops the held result. POST /api/result/clear
func (ws *WebServer) handleClearResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	ws.extractor.ClearResult()
	httputil.WriteJSONOK(w, map[string]interface{}{"cleared": true})
}

// handleSettings reads or replaces the extractor configuration.
// GET returns the full settings document; POST expects the same
// document back, so clients fetch, edit, and resubmit.
func (ws *WebServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, ws.extractor.Settings())
	case http.MethodPost:
		var s astro.Settings
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid settings body: %v", err))
			return
		}
		if ws.extractor.InFlight() {
			httputil.Conflict(w, "cannot change settings while a run is in flight")
			return
		}
		if err := ws.extractor.SetSettings(s); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, ws.extractor.Settings())
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handlePresets lists or applies named settings presets.
// GET /api/presets; POST /api/presets?name=default
func (ws *WebServer) handlePresets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]interface{}{"presets": astro.PresetNames()})
	case http.MethodPost:
		name := r.URL.Query().Get("name")
		if name == "" {
			httputil.BadRequest(w, "name parameter is required")
			return
		}
		if ws.extractor.InFlight() {
			httputil.Conflict(w, "cannot change settings while a run is in flight")
			return
		}
		if err := ws.extractor.ApplyPreset(name); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, ws.extractor.Settings())
	default:
		httputil.MethodNotAllowed(w)
	}
}

type manualSampleRequest struct {
	X     int      `json:"x"`
	Y     int      `json:"y"`
	Value *float64 `json:"value,omitempty"`
}

// handleSamples manages the manual sample list consumed in manual
// sample mode. GET lists, POST adds one point, DELETE clears.
//
// A POST without an explicit value samples the attached image at the
// given pixel, averaged across channels.
func (ws *WebServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		samples := ws.extractor.ManualSamples()
		httputil.WriteJSONOK(w, map[string]interface{}{
			"count":   len(samples),
			"samples": samples,
		})
	case http.MethodPost:
		var req manualSampleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid sample body: %v", err))
			return
		}

		img := ws.extractor.CurrentImage()
		if img != nil && (req.X < 0 || req.X >= img.Width || req.Y < 0 || req.Y >= img.Height) {
			httputil.BadRequest(w, fmt.Sprintf("sample (%d, %d) outside %dx%d image", req.X, req.Y, img.Width, img.Height))
			return
		}

		var value float32
		switch {
		case req.Value != nil:
			value = float32(*req.Value)
		case img != nil:
			for c := 0; c < img.Channels; c++ {
				value += img.At(req.X, req.Y, c)
			}
			value /= float32(img.Channels)
		default:
			httputil.BadRequest(w, "value is required when no image is attached")
			return
		}

		ws.extractor.AddManualSample(req.X, req.Y, value)
		httputil.WriteJSONOK(w, map[string]interface{}{
			"count": ws.extractor.ManualSampleCount(),
		})
	case http.MethodDelete:
		ws.extractor.ClearManualSamples()
		httputil.WriteJSONOK(w, map[string]interface{}{"count": 0})
	default:
		httputil.MethodNotAllowed(w)
	}
}
