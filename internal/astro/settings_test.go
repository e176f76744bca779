package astro

import (
	"errors"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	if s.Order != 2 || s.SampleMode != SampleModeAutomatic {
		t.Errorf("default = order %d mode %s, want order 2 automatic", s.Order, s.SampleMode)
	}
	if s.MinSamples != 50 || s.MaxSamples != 2000 {
		t.Errorf("default sample bounds %d-%d, want 50-2000", s.MinSamples, s.MaxSamples)
	}
	if !s.RejectionEnabled || s.RejectLowSigma != 2.0 || s.RejectHighSigma != 2.5 {
		t.Errorf("default rejection %v %g/%g, want on 2.0/2.5",
			s.RejectionEnabled, s.RejectLowSigma, s.RejectHighSigma)
	}
	if s.MaxError != 0.1 {
		t.Errorf("default max error %g, want 0.1", s.MaxError)
	}
	if !s.DiscardModel || s.ApplyCorrection {
		t.Error("default must discard the model and skip correction")
	}
}

func TestPresetVariants(t *testing.T) {
	c := ConservativeSettings()
	if err := c.Validate(); err != nil {
		t.Fatalf("conservative settings invalid: %v", err)
	}
	if c.Order != 1 || c.SampleMode != SampleModeGrid {
		t.Errorf("conservative = order %d mode %s, want order 1 grid", c.Order, c.SampleMode)
	}
	if c.MinSamples != 100 || c.RejectLowSigma != 1.5 || c.RejectHighSigma != 2.0 {
		t.Errorf("conservative knobs %d/%g/%g, want 100/1.5/2.0",
			c.MinSamples, c.RejectLowSigma, c.RejectHighSigma)
	}

	a := AggressiveSettings()
	if err := a.Validate(); err != nil {
		t.Fatalf("aggressive settings invalid: %v", err)
	}
	if a.Order != 3 || a.MaxSamples != 5000 || a.RejectIterations != 5 {
		t.Errorf("aggressive knobs %d/%d/%d, want 3/5000/5",
			a.Order, a.MaxSamples, a.RejectIterations)
	}
}

func TestPresetByName(t *testing.T) {
	for _, name := range []string{"default", "conservative", "aggressive"} {
		if _, ok := PresetByName(name); !ok {
			t.Errorf("preset %q must be known", name)
		}
	}
	if _, ok := PresetByName("extreme"); ok {
		t.Error("unknown preset must not resolve")
	}
}

func TestSettingsTermCount(t *testing.T) {
	s := DefaultSettings()
	for order, want := range map[int]int{1: 3, 2: 6, 3: 10} {
		s.Order = order
		if got := s.TermCount(); got != want {
			t.Errorf("order %d term count = %d, want %d", order, got, want)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown model", func(s *Settings) { s.Model = "wavelet" }},
		{"order too low", func(s *Settings) { s.Order = 0 }},
		{"order too high", func(s *Settings) { s.Order = 4 }},
		{"unknown sample mode", func(s *Settings) { s.SampleMode = "spiral" }},
		{"unknown channel mode", func(s *Settings) { s.ChannelMode = "chroma" }},
		{"zero min samples", func(s *Settings) { s.MinSamples = 0 }},
		{"max below min", func(s *Settings) { s.MaxSamples = s.MinSamples - 1 }},
		{"negative low sigma", func(s *Settings) { s.RejectLowSigma = -1 }},
		{"zero high sigma", func(s *Settings) { s.RejectHighSigma = 0 }},
		{"zero iterations", func(s *Settings) { s.RejectIterations = 0 }},
		{"zero grid rows", func(s *Settings) { s.GridRows = 0 }},
		{"zero grid cols", func(s *Settings) { s.GridCols = 0 }},
		{"negative max error", func(s *Settings) { s.MaxError = -0.5 }},
	}
	for _, c := range cases {
		s := DefaultSettings()
		c.mutate(&s)
		err := s.Validate()
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: err = %v, want configuration error", c.name, err)
		}
	}

	// rejection knobs are ignored while rejection is off
	s := DefaultSettings()
	s.RejectionEnabled = false
	s.RejectLowSigma = -1
	s.RejectIterations = 0
	if err := s.Validate(); err != nil {
		t.Errorf("disabled rejection must not validate its knobs: %v", err)
	}
}
