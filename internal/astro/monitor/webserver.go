// Package monitor provides the HTTP surface for the gradient service:
// extraction control, result inspection, the run archive, and debug
// charts over the current extractor state.
package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/astrodb"
	"github.com/nightjar-data/gradient.report/internal/config"
	"github.com/nightjar-data/gradient.report/internal/httputil"
	"github.com/nightjar-data/gradient.report/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer serves the monitoring and control interface for one
// extractor. Handlers never touch extractor internals directly; all
// access goes through the facade methods, which carry their own locks.
type WebServer struct {
	address   string
	extractor *astro.Extractor
	db        *astrodb.AstroDB
	tuning    *config.TuningConfig
	stats     *ServiceStats
	plotter   *RunPlotter
	server    *http.Server
}

// WebServerConfig holds the configuration for creating a WebServer.
type WebServerConfig struct {
	Address   string
	Extractor *astro.Extractor
	DB        *astrodb.AstroDB
	Tuning    *config.TuningConfig
}

// NewWebServer creates a new web server with the given configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &WebServer{
		address:   cfg.Address,
		extractor: cfg.Extractor,
		db:        cfg.DB,
		tuning:    tuning,
		stats:     NewServiceStats(),
		plotter:   NewRunPlotter(),
	}
}

// Stats exposes the request counters for periodic logging.
func (ws *WebServer) Stats() *ServiceStats { return ws.stats }

// Plotter exposes the run plotter so callers can enable artifact output.
func (ws *WebServer) Plotter() *RunPlotter { return ws.plotter }

// Start runs the web server until the context is cancelled, then shuts
// it down within the configured grace period.
func (ws *WebServer) Start(ctx context.Context) error {
	mux := ws.setupRoutes()
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: mux,
	}

	go func() {
		log.Printf("Starting web server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Web server failed: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down web server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ws.tuning.GetShutdownGrace())
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Web server shutdown error: %v", err)
		ws.server.Close()
	}

	return nil
}

// Close releases resources held by the server outside the HTTP
// listener lifecycle.
func (ws *WebServer) Close() {
	ws.plotter.Stop()
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/health", ws.handleHealth)

	mux.HandleFunc("/api/status", ws.handleAPIStatus)
	mux.HandleFunc("/api/settings", ws.handleSettings)
	mux.HandleFunc("/api/presets", ws.handlePresets)
	mux.HandleFunc("/api/extract", ws.handleExtract)
	mux.HandleFunc("/api/extract/preview", ws.handlePreview)
	mux.HandleFunc("/api/extract/cancel", ws.handleCancel)
	mux.HandleFunc("/api/result", ws.handleResult)
	mux.HandleFunc("/api/result/clear", ws.handleClearResult)
	mux.HandleFunc("/api/samples", ws.handleSamples)
	mux.HandleFunc("/api/plots", ws.handlePlots)

	mux.HandleFunc("/api/image/load", ws.handleImageLoad)
	mux.HandleFunc("/api/image/save", ws.handleImageSave)
	mux.HandleFunc("/api/image/info", ws.handleImageInfo)

	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/runs/stats", ws.handleRunStats)

	mux.HandleFunc("/debug/charts", ws.handleChartsDashboard)
	mux.HandleFunc("/debug/charts/samples", ws.handleSamplesChart)
	mux.HandleFunc("/debug/charts/model", ws.handleModelChart)
	mux.HandleFunc("/debug/charts/runs", ws.handleRunsChart)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "gradient", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().Format(time.RFC3339))
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Template parsing error", http.StatusInternalServerError)
		return
	}

	settings := ws.extractor.Settings()

	imageInfo := "none loaded"
	if img := ws.extractor.CurrentImage(); img != nil {
		imageInfo = fmt.Sprintf("%dx%d, %d channel(s)", img.Width, img.Height, img.Channels)
	}

	lastRun := "no completed runs"
	if ws.extractor.HasResult() {
		lastRun = ws.extractor.Result().Summary()
	}

	var archive *astrodb.RunStats
	if ws.db != nil {
		if st, err := ws.db.Stats(); err == nil {
			archive = &st
		}
	}

	data := struct {
		Version       string
		Uptime        string
		Extractor     string
		InFlight      bool
		ImageInfo     string
		Order         int
		SampleMode    string
		ChannelMode   string
		Rejection     bool
		ManualSamples int
		LastRun       string
		Archive       *astrodb.RunStats
		Requests      StatsSnapshot
	}{
		Version:       version.Version,
		Uptime:        ws.stats.GetUptime().Round(time.Second).String(),
		Extractor:     ws.extractor.Name(),
		InFlight:      ws.extractor.InFlight(),
		ImageInfo:     imageInfo,
		Order:         settings.Order,
		SampleMode:    string(settings.SampleMode),
		ChannelMode:   string(settings.ChannelMode),
		Rejection:     settings.RejectionEnabled,
		ManualSamples: ws.extractor.ManualSampleCount(),
		LastRun:       lastRun,
		Archive:       archive,
		Requests:      ws.stats.Snapshot(),
	}

	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.Execute(w, data); err != nil {
		log.Printf("Template execution error: %v", err)
	}
}

// handleAPIStatus reports the live state as JSON for polling clients.
func (ws *WebServer) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	status := map[string]interface{}{
		"service":        "gradient",
		"version":        version.Version,
		"uptime_seconds": int64(ws.stats.GetUptime().Seconds()),
		"extractor":      ws.extractor.Name(),
		"registered":     astro.ListExtractors(),
		"in_flight":      ws.extractor.InFlight(),
		"has_result":     ws.extractor.HasResult(),
		"manual_samples": ws.extractor.ManualSampleCount(),
		"requests":       ws.stats.Snapshot(),
	}

	if img := ws.extractor.CurrentImage(); img != nil {
		status["image"] = map[string]int{
			"width":    img.Width,
			"height":   img.Height,
			"channels": img.Channels,
		}
	}

	httputil.WriteJSONOK(w, status)
}
