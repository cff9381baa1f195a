package telemetry

import (
	"go.opentelemetry.io/otel/sdk/trace"
)

// createSampler maps cfg.Sampler (the standard OTEL_TRACES_SAMPLER
// names) to an SDK sampler. Anything unrecognized — including the
// empty string — samples everything, so a misconfigured store still
// traces its builds rather than silently dropping them.
func createSampler(cfg *Config) trace.Sampler {
	switch cfg.Sampler {
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(parseRatio(cfg.SamplerArg))
	case "parentbased_always_on":
		return trace.ParentBased(trace.AlwaysSample())
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample())
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(parseRatio(cfg.SamplerArg)))
	default:
		return trace.AlwaysSample()
	}
}
