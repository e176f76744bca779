package monitor

import (
	"bytes"
	"fmt"
	"html"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsPrefix points chart pages at the published echarts
// bundles so the binary stays asset-free.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisPalette maps low values to deep purple and high values to
// yellow, matching the colormap astronomers expect for surface data.
var viridisPalette = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// handleSamplesChart renders the sample table of the last run as a
// scatter over image coordinates. Accepted samples are colored by
// value; rejected samples are drawn in red on top.
func (ws *WebServer) handleSamplesChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res := ws.extractor.Result()
	if res == nil || len(res.Samples) == 0 {
		http.Error(w, "no samples; run an extraction first", http.StatusNotFound)
		return
	}

	accepted := make([]opts.ScatterData, 0, len(res.Samples))
	rejected := make([]opts.ScatterData, 0)
	minVal, maxVal := res.Samples[0].Value, res.Samples[0].Value
	rejectedCount := 0
	for _, s := range res.Samples {
		if s.Value < minVal {
			minVal = s.Value
		}
		if s.Value > maxVal {
			maxVal = s.Value
		}
		point := opts.ScatterData{Value: []interface{}{s.X, s.Y, s.Value}}
		if s.Rejected {
			rejected = append(rejected, point)
			rejectedCount++
		} else {
			accepted = append(accepted, point)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Extraction Samples",
			Theme:      "dark",
			Width:      "900px",
			Height:     "700px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Extraction Samples",
			Subtitle: fmt.Sprintf("run %s: %d samples, %d rejected", res.RunID, len(res.Samples), rejectedCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: res.Width, Name: "x (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: res.Height, Name: "y (px)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        minVal,
			Max:        maxVal,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisPalette},
		}),
	)

	scatter.AddSeries("accepted", accepted,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("rejected", rejected,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("chart render failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleModelChart renders the fitted surface as a downsampled scatter
// grid colored by background level.
func (ws *WebServer) handleModelChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res := ws.extractor.Result()
	if res == nil || !res.HasModel() {
		http.Error(w, "no model surface; run with discard_model disabled", http.StatusNotFound)
		return
	}

	m := res.Model
	step := m.Width
	if m.Height > step {
		step = m.Height
	}
	step /= 96
	if step < 1 {
		step = 1
	}

	points := make([]opts.ScatterData, 0, (m.Width/step+1)*(m.Height/step+1))
	minVal, maxVal := m.Data[0], m.Data[0]
	for y := 0; y < m.Height; y += step {
		for x := 0; x < m.Width; x += step {
			v := m.At(x, y)
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
			points = append(points, opts.ScatterData{Value: []interface{}{x, y, v}})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Background Model",
			Theme:      "dark",
			Width:      "900px",
			Height:     "700px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Background Model Surface",
			Subtitle: fmt.Sprintf("order %d, %dx%d, grid step %d px", m.Order, m.Width, m.Height, step),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: m.Width, Name: "x (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: m.Height, Name: "y (px)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        minVal,
			Max:        maxVal,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisPalette},
		}),
	)

	scatter.AddSeries("background", points,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 7}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("chart render failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleRunsChart renders fit quality and duration across the most
// recent archived runs as paired bar charts.
func (ws *WebServer) handleRunsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ws.db == nil {
		http.Error(w, "run archive not available", http.StatusServiceUnavailable)
		return
	}

	runs, err := ws.db.ListRuns(50)
	if err != nil {
		http.Error(w, fmt.Sprintf("query failed: %v", err), http.StatusInternalServerError)
		return
	}
	if len(runs) == 0 {
		http.Error(w, "no archived runs", http.StatusNotFound)
		return
	}

	// Oldest first so the bars read left to right in time.
	labels := make([]string, 0, len(runs))
	rmsData := make([]opts.BarData, 0, len(runs))
	elapsedData := make([]opts.BarData, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		label := run.RunID
		if len(label) > 8 {
			label = label[:8]
		}
		labels = append(labels, label)
		rmsData = append(rmsData, opts.BarData{Value: run.RMSError})
		elapsedData = append(elapsedData, opts.BarData{Value: run.ElapsedMS})
	}

	rmsBar := charts.NewBar()
	rmsBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "RMS Error by Run",
			Subtitle: fmt.Sprintf("last %d archived runs, normalized units", len(runs)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	rmsBar.SetXAxis(labels).AddSeries("rms_error", rmsData)

	elapsedBar := charts.NewBar()
	elapsedBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Run Duration"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	elapsedBar.SetXAxis(labels).AddSeries("elapsed_ms", elapsedData)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(rmsBar, elapsedBar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("chart render failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

const chartsDashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Gradient Charts</title>
<style>
body { font-family: ui-monospace, Menlo, Consolas, monospace; background: #0b0b0b; color: #ddd; margin: 1.5em; }
h1 { color: #fde725; font-size: 1.3em; }
nav a { color: #31688e; margin-right: 1.5em; }
iframe { border: 1px solid #333; background: #111; margin-top: 1em; }
</style>
</head>
<body>
<h1>Gradient Charts: %s</h1>
<nav>
<a href="/debug/charts/samples">samples</a>
<a href="/debug/charts/model">model</a>
<a href="/debug/charts/runs">runs</a>
<a href="/">status</a>
</nav>
<iframe src="/debug/charts/samples" width="940" height="740"></iframe>
<iframe src="/debug/charts/model" width="940" height="740"></iframe>
</body>
</html>
`

// handleChartsDashboard serves a single page embedding the sample and
// model charts with links to the rest.
func (ws *WebServer) handleChartsDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, chartsDashboardHTML, html.EscapeString(ws.extractor.Name()))
}
