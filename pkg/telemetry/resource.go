package telemetry

import (
	"context"
	"net"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// buildResource creates the OpenTelemetry Resource shared by every
// span a dag store emits: the build/flush spans from internal/engine
// and the AssignHead span from internal/idmap.
// service.namespace pins every segdag process into the same namespace
// regardless of which binary emitted the span, and host.name carries
// the machine's routable IP rather than its bare hostname so spans
// from different writers against different directories stay
// distinguishable in a collector.
func buildResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.ServiceNamespace("segdag"),
	}
	if ip := routableHostIP(); ip != "" {
		attrs = append(attrs, semconv.HostName(ip))
	}
	for k, v := range cfg.ResourceAttrs {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

// routableHostIP picks the address to report as host.name: the
// hostname's resolved IP when DNS knows it, otherwise the first
// non-loopback interface address. IPv4 wins over IPv6 when both are
// present; the empty string means no usable address was found and the
// attribute is simply omitted.
func routableHostIP() string {
	if hostname, err := os.Hostname(); err == nil {
		if addrs, err := net.LookupIP(hostname); err == nil {
			if ip := pickAddress(addrs); ip != "" {
				return ip
			}
		}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		ips := make([]net.IP, 0, len(addrs))
		for _, addr := range addrs {
			switch v := addr.(type) {
			case *net.IPNet:
				ips = append(ips, v.IP)
			case *net.IPAddr:
				ips = append(ips, v.IP)
			}
		}
		if ip := pickAddress(ips); ip != "" {
			return ip
		}
	}
	return ""
}

// pickAddress returns the best non-loopback address in ips, preferring
// IPv4, or "" if every candidate is loopback or nil.
func pickAddress(ips []net.IP) string {
	var fallback string
	for _, ip := range ips {
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		if fallback == "" {
			fallback = ip.String()
		}
	}
	return fallback
}
