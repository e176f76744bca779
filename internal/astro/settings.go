package astro

import "fmt"

// ModelKind selects the surface model fitted to the accepted samples.
type ModelKind string

const (
	// ModelPolynomial fits a low-order 2D polynomial surface. It is the
	// only model that ships; the SurfaceFitter interface leaves room for
	// alternatives selected by this field.
	ModelPolynomial ModelKind = "polynomial"
)

// SampleMode selects how candidate background samples are generated.
type SampleMode string

const (
	// SampleModeGrid places samples on a regular interior lattice.
	SampleModeGrid SampleMode = "grid"
	// SampleModeAutomatic searches for low-variance blocks and samples
	// their centers, falling back to grid placement when it cannot
	// produce enough points.
	SampleModeAutomatic SampleMode = "automatic"
	// SampleModeManual uses only externally registered samples.
	SampleModeManual SampleMode = "manual"
)

// ChannelMode selects how multi-channel images are orchestrated through
// the single-channel pipeline.
type ChannelMode string

const (
	// ChannelModeCombined fits one surface to the per-pixel channel mean
	// and subtracts it from every channel.
	ChannelModeCombined ChannelMode = "combined"
	// ChannelModePerChannel fits and corrects each channel independently.
	ChannelModePerChannel ChannelMode = "per_channel"
	// ChannelModeLuminance fits one surface to the weighted luminance
	// plane and subtracts it from every channel.
	ChannelModeLuminance ChannelMode = "luminance_only"
)

// Settings is the complete configuration for one extraction run. A
// snapshot is value-copied into the worker at run start; the facade
// only mutates its copy between runs.
type Settings struct {
	// Model selects the fitted surface family.
	Model ModelKind `json:"model"`

	// Order is the polynomial order: 1 (linear, 3 terms), 2 (quadratic,
	// 6 terms) or 3 (cubic, 10 terms).
	Order int `json:"order"`

	// SampleMode selects grid, automatic or manual sample generation.
	SampleMode SampleMode `json:"sample_mode"`

	// ChannelMode selects multi-channel orchestration. Ignored for
	// single-channel images.
	ChannelMode ChannelMode `json:"channel_mode"`

	// Tolerance is the sample tolerance knob (0.1 - 10.0).
	Tolerance float64 `json:"tolerance"`

	// Deviation is the maximum sample deviation knob (0.1 - 2.0).
	Deviation float64 `json:"deviation"`

	// MinSamples is the smallest valid-sample count a generator may
	// succeed with.
	MinSamples int `json:"min_samples"`

	// MaxSamples caps the number of samples any generator produces.
	MaxSamples int `json:"max_samples"`

	// RejectionEnabled turns iterative sigma clipping on or off.
	RejectionEnabled bool `json:"rejection_enabled"`

	// RejectLowSigma is the clip threshold below the median, in
	// MAD-sigma units.
	RejectLowSigma float64 `json:"reject_low_sigma"`

	// RejectHighSigma is the clip threshold above the median, in
	// MAD-sigma units.
	RejectHighSigma float64 `json:"reject_high_sigma"`

	// RejectIterations caps the number of clipping passes.
	RejectIterations int `json:"reject_iterations"`

	// GridRows and GridCols size the lattice for grid sampling and for
	// the automatic-mode fallback.
	GridRows int `json:"grid_rows"`
	GridCols int `json:"grid_cols"`

	// DiscardModel drops the dense model buffer from the result once
	// correction has been applied, keeping only the metrics.
	DiscardModel bool `json:"discard_model"`

	// ApplyCorrection subtracts the fitted surface from the image and
	// attaches the corrected buffer to the result.
	ApplyCorrection bool `json:"apply_correction"`

	// NormalizeOutput rescales the corrected buffer back into [0, 1].
	NormalizeOutput bool `json:"normalize_output"`

	// MaxError fails the run when the sample RMS error against the
	// fitted surface exceeds it. Zero disables the check.
	MaxError float64 `json:"max_error"`
}

// DefaultSettings is the standard preset: quadratic surface, automatic
// sampling, moderate rejection.
func DefaultSettings() Settings {
	return Settings{
		Model:            ModelPolynomial,
		Order:            2,
		SampleMode:       SampleModeAutomatic,
		ChannelMode:      ChannelModeCombined,
		Tolerance:        1.0,
		Deviation:        0.8,
		MinSamples:       50,
		MaxSamples:       2000,
		RejectionEnabled: true,
		RejectLowSigma:   2.0,
		RejectHighSigma:  2.5,
		RejectIterations: 3,
		GridRows:         16,
		GridCols:         16,
		DiscardModel:     true,
		ApplyCorrection:  false,
		NormalizeOutput:  true,
		MaxError:         0.1,
	}
}

// ConservativeSettings is the cautious preset: linear surface, grid
// sampling, wider sample floor, looser rejection.
func ConservativeSettings() Settings {
	s := DefaultSettings()
	s.Order = 1
	s.SampleMode = SampleModeGrid
	s.Tolerance = 1.5
	s.Deviation = 1.2
	s.MinSamples = 100
	s.RejectLowSigma = 1.5
	s.RejectHighSigma = 2.0
	return s
}

// AggressiveSettings is the strong-gradient preset: cubic surface,
// automatic sampling, higher sample cap, tighter rejection.
func AggressiveSettings() Settings {
	s := DefaultSettings()
	s.Order = 3
	s.Tolerance = 0.5
	s.Deviation = 0.5
	s.MaxSamples = 5000
	s.RejectLowSigma = 2.5
	s.RejectHighSigma = 3.0
	s.RejectIterations = 5
	return s
}

// PresetNames lists the preset labels accepted by PresetByName.
func PresetNames() []string {
	return []string{"default", "conservative", "aggressive"}
}

// PresetByName maps a preset label to its settings. The second return
// is false for unknown names.
func PresetByName(name string) (Settings, bool) {
	switch name {
	case "default":
		return DefaultSettings(), true
	case "conservative":
		return ConservativeSettings(), true
	case "aggressive":
		return AggressiveSettings(), true
	default:
		return Settings{}, false
	}
}

// TermCount returns the polynomial term count for the configured order.
func (s Settings) TermCount() int {
	return polyTermCount(s.Order)
}

// Validate checks the settings for internal consistency and returns an
// error naming the first offending field.
func (s Settings) Validate() error {
	if s.Model != ModelPolynomial {
		return fmt.Errorf("%w: unknown model %q", ErrConfiguration, s.Model)
	}
	if s.Order < 1 || s.Order > 3 {
		return fmt.Errorf("%w: order %d out of range 1-3", ErrConfiguration, s.Order)
	}
	switch s.SampleMode {
	case SampleModeGrid, SampleModeAutomatic, SampleModeManual:
	default:
		return fmt.Errorf("%w: unknown sample mode %q", ErrConfiguration, s.SampleMode)
	}
	switch s.ChannelMode {
	case ChannelModeCombined, ChannelModePerChannel, ChannelModeLuminance:
	default:
		return fmt.Errorf("%w: unknown channel mode %q", ErrConfiguration, s.ChannelMode)
	}
	if s.MinSamples < 1 {
		return fmt.Errorf("%w: min_samples %d must be at least 1", ErrConfiguration, s.MinSamples)
	}
	if s.MaxSamples < s.MinSamples {
		return fmt.Errorf("%w: max_samples %d below min_samples %d", ErrConfiguration, s.MaxSamples, s.MinSamples)
	}
	if s.RejectionEnabled {
		if s.RejectLowSigma <= 0 || s.RejectHighSigma <= 0 {
			return fmt.Errorf("%w: rejection sigmas must be positive", ErrConfiguration)
		}
		if s.RejectIterations < 1 {
			return fmt.Errorf("%w: reject_iterations %d must be at least 1", ErrConfiguration, s.RejectIterations)
		}
	}
	if s.GridRows < 1 || s.GridCols < 1 {
		return fmt.Errorf("%w: grid %dx%d must have positive dimensions", ErrConfiguration, s.GridRows, s.GridCols)
	}
	if s.MaxError < 0 {
		return fmt.Errorf("%w: max_error %g must not be negative", ErrConfiguration, s.MaxError)
	}
	return nil
}
