package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nightjar-data/gradient.report/internal/httputil"
)

// sweepMetrics mirrors the metrics block of the monitor's result payload.
type sweepMetrics struct {
	SampleCount   int     `json:"sample_count"`
	RejectedCount int     `json:"rejected_count"`
	RMSError      float64 `json:"rms_error"`
	MeanDeviation float64 `json:"mean_deviation"`
	MaxDeviation  float64 `json:"max_deviation"`
	ElapsedMS     int64   `json:"elapsed_ms"`
}

type resultEnvelope struct {
	Units  string `json:"units"`
	Result struct {
		RunID   string       `json:"run_id"`
		Success bool         `json:"success"`
		Metrics sweepMetrics `json:"metrics"`
	} `json:"result"`
}

func main() {
	monitorURL := flag.String("monitor", "http://localhost:8080", "Base URL for gradient monitor")
	param := flag.String("param", "tolerance", "Settings field to sweep (JSON key, e.g. tolerance, order, reject_high_sigma)")
	start := flag.Float64("start", 0.5, "Start value")
	end := flag.Float64("end", 2.0, "End value")
	step := flag.Float64("step", 0.25, "Step increment")
	units := flag.String("units", "norm", "Units for reported metrics")
	flag.Parse()

	client := httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Minute})
	if err := runSweep(client, *monitorURL, *param, *start, *end, *step, *units, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// runSweep walks the parameter range, running one synchronous extraction
// per value and printing one CSV row per run.
func runSweep(client httputil.HTTPClient, baseURL, param string, start, end, step float64, units string, w io.Writer) error {
	if step <= 0 {
		return fmt.Errorf("step must be positive")
	}
	fmt.Fprintf(w, "%s,success,run_id,sample_count,rejected_count,rms_error,mean_deviation,max_deviation,elapsed_ms\n", param)

	for v := start; v <= end+1e-9; v += step {
		// fetch current settings so one field can be changed in place
		resp, err := client.Get(baseURL + "/api/settings")
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		var settings map[string]interface{}
		if err := httputil.DecodeJSONBody(resp, &settings); err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		if _, ok := settings[param]; !ok {
			return fmt.Errorf("unknown settings field %q", param)
		}
		settings[param] = v

		b, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		resp, err = client.Post(baseURL+"/api/settings", "application/json", bytes.NewReader(b))
		if err != nil {
			return fmt.Errorf("set %s=%v: %w", param, v, err)
		}
		if err := httputil.DiscardBody(resp); err != nil {
			return fmt.Errorf("set %s=%v: %w", param, v, err)
		}

		resp, err = client.Post(baseURL+"/api/extract?mode=sync", "application/json", nil)
		if err != nil {
			return fmt.Errorf("extract at %s=%v: %w", param, v, err)
		}
		var extract struct {
			Success bool   `json:"success"`
			RunID   string `json:"run_id"`
		}
		if err := httputil.DecodeJSONBody(resp, &extract); err != nil {
			return fmt.Errorf("extract at %s=%v: %w", param, v, err)
		}

		// re-fetch the result so the monitor converts metrics to the
		// requested units
		resp, err = client.Get(baseURL + "/api/result?units=" + units)
		if err != nil {
			return fmt.Errorf("fetch result: %w", err)
		}
		var env resultEnvelope
		if err := httputil.DecodeJSONBody(resp, &env); err != nil {
			return fmt.Errorf("fetch result: %w", err)
		}

		m := env.Result.Metrics
		fmt.Fprintf(w, "%g,%t,%s,%d,%d,%g,%g,%g,%d\n",
			v, extract.Success, extract.RunID,
			m.SampleCount, m.RejectedCount, m.RMSError, m.MeanDeviation, m.MaxDeviation, m.ElapsedMS)
	}
	return nil
}

