// Package telemetry provides the OpenTelemetry bootstrap for the spans
// around build_segments_volatile and flush (internal/engine) and
// AssignHead (internal/idmap); the query methods are not traced. Settings come from config.TelemetryConfig (the "telemetry"
// section of a segdag config file), with the standard OTEL_* process
// environment variables always taking precedence — a deployment that
// already injects those (e.g. an OTel collector sidecar) keeps
// working unchanged regardless of what the config file says.
package telemetry

import (
	"os"
	"strconv"
	"strings"

	"github.com/segdag/segdag/pkg/config"
)

// Config is the resolved telemetry configuration, after merging a
// config.TelemetryConfig with any OTEL_* environment overrides.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Protocol       string
	Headers        map[string]string
	Insecure       bool
	Sampler        string
	SamplerArg     string
	ResourceAttrs  map[string]string
}

// FromAppConfig resolves a Config from tc, overridden field-by-field
// by any OTEL_* environment variable that is explicitly set.
func FromAppConfig(tc config.TelemetryConfig) *Config {
	cfg := &Config{
		Enabled:        tc.Enabled,
		ServiceName:    tc.ServiceName,
		ServiceVersion: tc.ServiceVersion,
		Endpoint:       tc.Endpoint,
		Protocol:       tc.Protocol,
		Insecure:       tc.Insecure,
		Sampler:        tc.Sampler,
		SamplerArg:     tc.SamplerArg,
		Headers:        parseKeyValuePairs(tc.Headers),
		ResourceAttrs:  parseKeyValuePairs(tc.ResourceAttrs),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "segdag"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "unknown"
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "grpc"
	}

	if v, ok := os.LookupEnv("OTEL_ENABLED"); ok {
		cfg.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("OTEL_SERVICE_VERSION"); v != "" {
		cfg.ServiceVersion = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); v != "" {
		cfg.Protocol = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.Headers = parseKeyValuePairs(v)
	}
	if v, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_INSECURE"); ok {
		cfg.Insecure = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER"); v != "" {
		cfg.Sampler = v
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		cfg.SamplerArg = v
	}
	if v := os.Getenv("OTEL_RESOURCE_ATTRIBUTES"); v != "" {
		cfg.ResourceAttrs = parseKeyValuePairs(v)
	}

	return cfg
}

// parseRatio parses a sampling ratio string to float64, clamped to
// [0,1]. Used by createSampler for the traceidratio samplers.
func parseRatio(s string) float64 {
	if s == "" {
		return 1.0
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1.0
	}
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1.0
	}
	return ratio
}

// parseKeyValuePairs parses a comma-separated list of key=value pairs.
// Example: "key1=value1,key2=value2" -> map[string]string{"key1": "value1", "key2": "value2"}
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	if s == "" {
		return result
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(pair[:idx])
		value := strings.TrimSpace(pair[idx+1:])
		if key != "" {
			result[key] = value
		}
	}

	return result
}
