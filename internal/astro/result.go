package astro

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Metrics summarizes how well a fitted surface matches the samples it
// was derived from. Deviations are computed over valid samples only.
type Metrics struct {
	SampleCount   int     `json:"sample_count"`
	RejectedCount int     `json:"rejected_count"`
	RMSError      float64 `json:"rms_error"`
	MeanDeviation float64 `json:"mean_deviation"`
	MaxDeviation  float64 `json:"max_deviation"`
	ElapsedMS     int64   `json:"elapsed_ms"`
}

// Result is the terminal outcome of one extraction run, owned by the
// facade and replaced wholesale at each completion. Callers receive
// deep copies; mutating a returned result never affects the facade.
type Result struct {
	RunID     string `json:"run_id"`
	Extractor string `json:"extractor,omitempty"`

	// Success is true only for a completed, uncancelled run whose error
	// metrics passed the configured maximum.
	Success bool `json:"success"`

	// Cancelled distinguishes user-stopped runs from broken ones.
	Cancelled bool `json:"cancelled"`

	// ErrorKind is one of configuration/sampling/fitting/runtime when
	// Success is false and Cancelled is false.
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`

	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`

	Settings Settings `json:"settings"`

	// Samples is the per-sample table: coordinate, value, rejection
	// flag, and channel in per-channel mode.
	Samples []Sample `json:"samples,omitempty"`

	// Model is the fitted surface; the first channel's surface in
	// per-channel mode. Nil when DiscardModel was set or the run failed
	// before fitting.
	Model *Model `json:"model,omitempty"`

	// ChannelModels holds one surface per channel in per-channel mode.
	ChannelModels []*Model `json:"channel_models,omitempty"`

	// Corrected is the background-subtracted image when correction was
	// requested and completed.
	Corrected *Image `json:"corrected,omitempty"`

	Metrics Metrics `json:"metrics"`

	// ChannelMetrics carries per-channel metrics in per-channel mode.
	ChannelMetrics []Metrics `json:"channel_metrics,omitempty"`

	// RejectionCounts is the number of samples clipped in each rejection
	// pass, in order.
	RejectionCounts []int `json:"rejection_counts,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// HasModel reports whether a dense surface buffer is attached.
func (r *Result) HasModel() bool {
	return r != nil && r.Model != nil && len(r.Model.Data) > 0
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Samples = cloneSamples(r.Samples)
	out.Model = r.Model.Clone()
	if r.ChannelModels != nil {
		out.ChannelModels = make([]*Model, len(r.ChannelModels))
		for i, m := range r.ChannelModels {
			out.ChannelModels[i] = m.Clone()
		}
	}
	if r.Corrected != nil {
		out.Corrected = r.Corrected.Clone()
	}
	out.ChannelMetrics = append([]Metrics(nil), r.ChannelMetrics...)
	out.RejectionCounts = append([]int(nil), r.RejectionCounts...)
	return &out
}

// Summary renders the textual statistics block shown to users and
// written by the CLI.
func (r *Result) Summary() string {
	if r == nil {
		return "no result"
	}
	if r.Cancelled {
		return "Extraction cancelled"
	}
	if !r.Success {
		if r.Message != "" {
			return fmt.Sprintf("Extraction failed: %s", r.Message)
		}
		return "Extraction failed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Samples: %d (rejected: %d)\n", r.Metrics.SampleCount, r.Metrics.RejectedCount)
	fmt.Fprintf(&b, "RMS error: %.6f\n", r.Metrics.RMSError)
	fmt.Fprintf(&b, "Mean deviation: %.6f\n", r.Metrics.MeanDeviation)
	fmt.Fprintf(&b, "Max deviation: %.6f\n", r.Metrics.MaxDeviation)
	fmt.Fprintf(&b, "Processing time: %.2fs", float64(r.Metrics.ElapsedMS)/1000)
	return b.String()
}

// computeMetrics measures the fitted surface against the valid samples.
func computeMetrics(samples []Sample, model *Model) Metrics {
	m := Metrics{SampleCount: len(samples)}
	var sumSq, sumAbs float64
	valid := 0
	for i := range samples {
		if samples[i].Rejected {
			m.RejectedCount++
			continue
		}
		dev := float64(samples[i].Value) - float64(model.At(samples[i].X, samples[i].Y))
		abs := math.Abs(dev)
		sumSq += dev * dev
		sumAbs += abs
		if abs > m.MaxDeviation {
			m.MaxDeviation = abs
		}
		valid++
	}
	if valid > 0 {
		m.RMSError = math.Sqrt(sumSq / float64(valid))
		m.MeanDeviation = sumAbs / float64(valid)
	}
	return m
}
