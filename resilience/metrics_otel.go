package resilience

import (
	"github.com/codeloop/supervisor/core"
)

// RegistryMetricsCollector implements MetricsCollector by forwarding to
// whatever core.MetricsRegistry the telemetry package installed at startup
// (core.SetMetricsRegistry). Decoupling resilience from telemetry directly
// avoids a cyclic import, the same reason the teacher routes its own
// circuit breaker metrics through a registry interface rather than an OTel
// import.
type RegistryMetricsCollector struct{}

// NewRegistryMetricsCollector returns a MetricsCollector backed by the
// process-wide metrics registry.
func NewRegistryMetricsCollector() *RegistryMetricsCollector {
	return &RegistryMetricsCollector{}
}

func (r *RegistryMetricsCollector) RecordSuccess(name string) {
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.circuit_breaker.success", "name", name)
	}
}

func (r *RegistryMetricsCollector) RecordFailure(name string, errorType string) {
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.circuit_breaker.failure", "name", name, "error_type", errorType)
	}
}

func (r *RegistryMetricsCollector) RecordStateChange(name string, from, to string) {
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.circuit_breaker.state_change", "name", name, "from", from, "to", to)

		stateValue := 0.0
		switch to {
		case "open":
			stateValue = 1.0
		case "half-open":
			stateValue = 0.5
		}
		registry.Gauge("supervisor.circuit_breaker.state", stateValue, "name", name)
	}
}

func (r *RegistryMetricsCollector) RecordRejection(name string) {
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.circuit_breaker.rejected", "name", name)
	}
}
