package resilience

import (
	"github.com/codeloop/supervisor/core"
)

// Dependencies holds the optional collaborators a circuit breaker wired
// through CreateCircuitBreaker can use.
type Dependencies struct {
	Logger  core.Logger
	Metrics MetricsCollector
}

// CreateCircuitBreaker builds a named circuit breaker with sensible
// defaults and the given dependencies injected, mirroring the teacher's
// factory-function dependency-injection pattern rather than a constructor
// with a dozen positional arguments.
func CreateCircuitBreaker(name string, deps Dependencies) (*CircuitBreaker, error) {
	config := DefaultConfig()
	config.Name = name

	if deps.Logger != nil {
		config.Logger = deps.Logger
	} else {
		config.Logger = core.NewProductionLogger(core.LoggingConfig{Level: "info"}, core.DevelopmentConfig{}, "supervisor/resilience")
	}

	if deps.Metrics != nil {
		config.Metrics = deps.Metrics
	}

	config.Logger.Debug("creating circuit breaker", map[string]interface{}{
		"name":             name,
		"error_threshold":  config.ErrorThreshold,
		"volume_threshold": config.VolumeThreshold,
	})

	return NewCircuitBreaker(config)
}
