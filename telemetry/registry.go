package telemetry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/codeloop/supervisor/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalRegistry atomic.Value // *Registry
	initOnce       sync.Once
)

// Registry adapts a Provider's OTel instruments to core.MetricsRegistry, so
// core and resilience can emit metrics without importing this package
// directly (core.SetMetricsRegistry / core.GetGlobalMetricsRegistry).
type Registry struct {
	provider *Provider
}

// Init builds a Provider for serviceName, installs a Registry as the
// process-wide core.MetricsRegistry, and returns the Provider so the caller
// can defer provider.Shutdown. Init is idempotent: subsequent calls return the
// already-installed Registry's provider without creating a second one.
func Init(serviceName string) (*Provider, error) {
	var initErr error
	initOnce.Do(func() {
		provider, err := NewProvider(serviceName)
		if err != nil {
			initErr = err
			return
		}
		reg := &Registry{provider: provider}
		globalRegistry.Store(reg)
		core.SetMetricsRegistry(reg)
	})
	if initErr != nil {
		return nil, initErr
	}
	if reg, ok := globalRegistry.Load().(*Registry); ok {
		return reg.provider, nil
	}
	return nil, nil
}

// GetRegistry returns the installed Registry, or nil if Init was never
// called.
func GetRegistry() *Registry {
	reg, _ := globalRegistry.Load().(*Registry)
	return reg
}

func attrsFromLabels(labels []string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// Counter implements core.MetricsRegistry.
func (r *Registry) Counter(name string, labels ...string) {
	if r == nil || r.provider == nil {
		return
	}
	name = normalizeMetricName(name)
	attrs := attrsFromLabels(labels)
	_ = r.provider.meterInstruments().RecordCounter(context.Background(), name, 1, metric.WithAttributes(attrs...))
}

// Gauge implements core.MetricsRegistry by recording the instantaneous
// value into a histogram; OTel's synchronous API has no direct "set gauge"
// primitive outside of observable callbacks, and the teacher's own
// RecordMetric heuristic makes the same trade-off.
func (r *Registry) Gauge(name string, value float64, labels ...string) {
	if r == nil || r.provider == nil {
		return
	}
	name = normalizeMetricName(name)
	attrs := attrsFromLabels(labels)
	_ = r.provider.meterInstruments().RecordHistogram(context.Background(), name, value, metric.WithAttributes(attrs...))
}

// Histogram implements core.MetricsRegistry.
func (r *Registry) Histogram(name string, value float64, labels ...string) {
	if r == nil || r.provider == nil {
		return
	}
	name = normalizeMetricName(name)
	attrs := attrsFromLabels(labels)
	_ = r.provider.meterInstruments().RecordHistogram(context.Background(), name, value, metric.WithAttributes(attrs...))
}

func normalizeMetricName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}
