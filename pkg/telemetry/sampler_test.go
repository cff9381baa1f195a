package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
)

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name       string
		sampler    string
		samplerArg string
	}{
		{"default_falls_back_to_always_on", "", ""},
		{"always_on", "always_on", ""},
		{"always_off", "always_off", ""},
		{"traceidratio_quarter", "traceidratio", "0.25"},
		{"parentbased_always_on", "parentbased_always_on", ""},
		{"parentbased_always_off", "parentbased_always_off", ""},
		{"parentbased_traceidratio", "parentbased_traceidratio", "0.1"},
		{"unknown_sampler_falls_back_to_always_on", "bogus", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Sampler:    tt.sampler,
				SamplerArg: tt.samplerArg,
			}

			sampler := createSampler(cfg)
			if sampler == nil {
				t.Error("expected sampler to be non-nil")
			}
			var _ trace.Sampler = sampler
		})
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"empty_defaults_to_full_sampling", "", 1.0},
		{"valid_half", "0.5", 0.5},
		{"valid_zero_disables_sampling", "0", 0},
		{"valid_one", "1", 1.0},
		{"valid_small_fraction", "0.001", 0.001},
		{"garbage_falls_back_to_full_sampling", "not-a-number", 1.0},
		{"negative_clamps_to_zero", "-0.5", 0},
		{"over_one_clamps_to_one", "1.5", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseRatio(tt.input)
			if result != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}
