package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nightjar-data/gradient.report/internal/astro"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for the gradient service. The
// extraction fields mirror the settings JSON served by /api/settings so
// the same document works for startup configuration and runtime
// updates. All fields are optional; nil means "keep the default".
type TuningConfig struct {
	// Extraction settings overrides
	Order            *int     `json:"order,omitempty"`
	SampleMode       *string  `json:"sample_mode,omitempty"`
	ChannelMode      *string  `json:"channel_mode,omitempty"`
	Tolerance        *float64 `json:"tolerance,omitempty"`
	Deviation        *float64 `json:"deviation,omitempty"`
	MinSamples       *int     `json:"min_samples,omitempty"`
	MaxSamples       *int     `json:"max_samples,omitempty"`
	RejectionEnabled *bool    `json:"rejection_enabled,omitempty"`
	RejectLowSigma   *float64 `json:"reject_low_sigma,omitempty"`
	RejectHighSigma  *float64 `json:"reject_high_sigma,omitempty"`
	RejectIterations *int     `json:"reject_iterations,omitempty"`
	GridRows         *int     `json:"grid_rows,omitempty"`
	GridCols         *int     `json:"grid_cols,omitempty"`
	DiscardModel     *bool    `json:"discard_model,omitempty"`
	ApplyCorrection  *bool    `json:"apply_correction,omitempty"`
	NormalizeOutput  *bool    `json:"normalize_output,omitempty"`
	MaxError         *float64 `json:"max_error,omitempty"`

	// Service params
	PreviewMaxDim *int    `json:"preview_max_dim,omitempty"`
	RunRetention  *int    `json:"run_retention,omitempty"`
	DataDir       *string `json:"data_dir,omitempty"`
	PlotOutputDir *string `json:"plot_output_dir,omitempty"`

	// Durations as strings like "90s"
	ExtractionTimeout *string `json:"extraction_timeout,omitempty"`
	ShutdownGrace     *string `json:"shutdown_grace,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/astro/monitor/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Extraction
// overrides are checked by applying them to the default settings and
// running the settings validation.
func (c *TuningConfig) Validate() error {
	if err := c.ApplySettings(astro.DefaultSettings()).Validate(); err != nil {
		return err
	}

	if c.PreviewMaxDim != nil && *c.PreviewMaxDim < 32 {
		return fmt.Errorf("preview_max_dim must be at least 32, got %d", *c.PreviewMaxDim)
	}
	if c.RunRetention != nil && *c.RunRetention < 0 {
		return fmt.Errorf("run_retention must be non-negative, got %d", *c.RunRetention)
	}
	if c.ExtractionTimeout != nil && *c.ExtractionTimeout != "" {
		if _, err := time.ParseDuration(*c.ExtractionTimeout); err != nil {
			return fmt.Errorf("invalid extraction_timeout '%s': %w", *c.ExtractionTimeout, err)
		}
	}
	if c.ShutdownGrace != nil && *c.ShutdownGrace != "" {
		if _, err := time.ParseDuration(*c.ShutdownGrace); err != nil {
			return fmt.Errorf("invalid shutdown_grace '%s': %w", *c.ShutdownGrace, err)
		}
	}
	return nil
}

// ApplySettings overlays the non-nil extraction overrides onto base and
// returns the result.
func (c *TuningConfig) ApplySettings(base astro.Settings) astro.Settings {
	s := base
	if c.Order != nil {
		s.Order = *c.Order
	}
	if c.SampleMode != nil {
		s.SampleMode = astro.SampleMode(*c.SampleMode)
	}
	if c.ChannelMode != nil {
		s.ChannelMode = astro.ChannelMode(*c.ChannelMode)
	}
	if c.Tolerance != nil {
		s.Tolerance = *c.Tolerance
	}
	if c.Deviation != nil {
		s.Deviation = *c.Deviation
	}
	if c.MinSamples != nil {
		s.MinSamples = *c.MinSamples
	}
	if c.MaxSamples != nil {
		s.MaxSamples = *c.MaxSamples
	}
	if c.RejectionEnabled != nil {
		s.RejectionEnabled = *c.RejectionEnabled
	}
	if c.RejectLowSigma != nil {
		s.RejectLowSigma = *c.RejectLowSigma
	}
	if c.RejectHighSigma != nil {
		s.RejectHighSigma = *c.RejectHighSigma
	}
	if c.RejectIterations != nil {
		s.RejectIterations = *c.RejectIterations
	}
	if c.GridRows != nil {
		s.GridRows = *c.GridRows
	}
	if c.GridCols != nil {
		s.GridCols = *c.GridCols
	}
	if c.DiscardModel != nil {
		s.DiscardModel = *c.DiscardModel
	}
	if c.ApplyCorrection != nil {
		s.ApplyCorrection = *c.ApplyCorrection
	}
	if c.NormalizeOutput != nil {
		s.NormalizeOutput = *c.NormalizeOutput
	}
	if c.MaxError != nil {
		s.MaxError = *c.MaxError
	}
	return s
}

// GetPreviewMaxDim returns the preview_max_dim value or the default.
func (c *TuningConfig) GetPreviewMaxDim() int {
	if c.PreviewMaxDim == nil {
		return 256
	}
	return *c.PreviewMaxDim
}

// GetRunRetention returns the run_retention value or the default.
// Zero keeps every archived run.
func (c *TuningConfig) GetRunRetention() int {
	if c.RunRetention == nil {
		return 500
	}
	return *c.RunRetention
}

// GetDataDir returns the data_dir value or the default.
func (c *TuningConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "data"
	}
	return *c.DataDir
}

// GetPlotOutputDir returns the plot_output_dir value or the default.
func (c *TuningConfig) GetPlotOutputDir() string {
	if c.PlotOutputDir == nil || *c.PlotOutputDir == "" {
		return "plots"
	}
	return *c.PlotOutputDir
}

// GetExtractionTimeout parses and returns the ExtractionTimeout as a
// time.Duration. Zero means no timeout.
func (c *TuningConfig) GetExtractionTimeout() time.Duration {
	if c.ExtractionTimeout == nil || *c.ExtractionTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.ExtractionTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetShutdownGrace parses and returns the ShutdownGrace as a
// time.Duration.
func (c *TuningConfig) GetShutdownGrace() time.Duration {
	if c.ShutdownGrace == nil || *c.ShutdownGrace == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.ShutdownGrace)
	if err != nil {
		return time.Second
	}
	return d
}
