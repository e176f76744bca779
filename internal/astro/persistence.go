package astro

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nightjar-data/gradient.report/internal/monitoring"
)

// RunStore receives terminal extraction results for archival. The
// facade calls it outside its mutex; implementations own their own
// synchronization.
type RunStore interface {
	InsertExtractionRun(rec *RunRecord) (int64, error)
}

// RunRecord is one archived extraction run.
type RunRecord struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Extractor     string    `json:"extractor"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Success       bool      `json:"success"`
	Cancelled     bool      `json:"cancelled"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	Message       string    `json:"message,omitempty"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Channels      int       `json:"channels"`
	SampleCount   int       `json:"sample_count"`
	RejectedCount int       `json:"rejected_count"`
	RMSError      float64   `json:"rms_error"`
	ElapsedMS     int64     `json:"elapsed_ms"`
	SettingsJSON  string    `json:"settings_json,omitempty"`
	MetricsJSON   string    `json:"metrics_json,omitempty"`
	ModelBlob     []byte    `json:"-"`
}

// modelArchive is the gob payload stored per run: coefficient-only
// copies of the fitted surfaces, enough to re-evaluate them later.
type modelArchive struct {
	Model    *Model
	Channels []*Model
}

// SerializeModels packs the fitted surfaces of res into a compressed
// blob. Pixel buffers are stripped; coefficients and dimensions are
// all that persistence needs.
func SerializeModels(res *Result) ([]byte, error) {
	if res == nil || res.Model == nil {
		return nil, nil
	}
	arch := modelArchive{Model: coeffOnly(res.Model)}
	for _, m := range res.ChannelModels {
		arch.Channels = append(arch.Channels, coeffOnly(m))
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(&arch); err != nil {
		zw.Close()
		return nil, fmt.Errorf("encode model archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close model archive: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeModels unpacks a blob written by SerializeModels. The
// returned surfaces carry coefficients only; call EvaluateModel to
// regenerate pixel data.
func DeserializeModels(blob []byte) (*Model, []*Model, error) {
	if len(blob) == 0 {
		return nil, nil, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, nil, fmt.Errorf("open model archive: %w", err)
	}
	defer zr.Close()

	var arch modelArchive
	if err := gob.NewDecoder(zr).Decode(&arch); err != nil {
		return nil, nil, fmt.Errorf("decode model archive: %w", err)
	}
	return arch.Model, arch.Channels, nil
}

func coeffOnly(m *Model) *Model {
	if m == nil {
		return nil
	}
	c := &Model{Width: m.Width, Height: m.Height, Order: m.Order}
	c.Coeffs = append(c.Coeffs, m.Coeffs...)
	return c
}

// persistResult archives res through store. Persistence failures are
// logged and swallowed; they never disturb the completed run.
func (e *Extractor) persistResult(store RunStore, res *Result) {
	rec := &RunRecord{
		RunID:         res.RunID,
		Extractor:     res.Extractor,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		Success:       res.Success,
		Cancelled:     res.Cancelled,
		ErrorKind:     res.ErrorKind,
		Message:       res.Message,
		Width:         res.Width,
		Height:        res.Height,
		Channels:      res.Channels,
		SampleCount:   res.Metrics.SampleCount,
		RejectedCount: res.Metrics.RejectedCount,
		RMSError:      res.Metrics.RMSError,
		ElapsedMS:     res.Metrics.ElapsedMS,
	}
	if b, err := json.Marshal(res.Settings); err == nil {
		rec.SettingsJSON = string(b)
	}
	if b, err := json.Marshal(res.Metrics); err == nil {
		rec.MetricsJSON = string(b)
	}
	blob, err := SerializeModels(res)
	if err != nil {
		log.Printf("[Extractor] %s: serialize models for run %s: %v", e.name, res.RunID, err)
	} else {
		rec.ModelBlob = blob
	}

	id, err := store.InsertExtractionRun(rec)
	if err != nil {
		log.Printf("[Extractor] %s: persist run %s: %v", e.name, res.RunID, err)
		return
	}
	monitoring.Logf("[Extractor] %s: archived run %s as record %d", e.name, res.RunID, id)
}
