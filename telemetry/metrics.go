package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricInstruments lazily creates and caches OTel instruments by name, so
// call sites don't need to thread instrument handles through every package
// that wants to emit a metric.
type MetricInstruments struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]gaugeCallback
	mu         sync.RWMutex
}

type gaugeCallback struct {
	registration metric.Registration
	gauge        metric.Float64ObservableGauge
}

// NewMetricInstruments returns an instrument cache bound to the named meter.
func NewMetricInstruments(meterName string) *MetricInstruments {
	return &MetricInstruments{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]gaugeCallback),
	}
}

// RecordCounter increments a named counter, creating it on first use.
func (m *MetricInstruments) RecordCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if counter, exists = m.counters[name]; !exists {
			var err error
			counter, err = m.meter.Int64Counter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("create counter %s: %w", name, err)
			}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value into a named histogram, creating it on
// first use.
func (m *MetricInstruments) RecordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			var err error
			histogram, err = m.meter.Float64Histogram(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.Record(ctx, value, opts...)
	return nil
}

// RegisterGauge registers an observable gauge backed by callback.
func (m *MetricInstruments) RegisterGauge(name string, callback metric.Callback, opts ...metric.Float64ObservableGaugeOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gauges[name]; exists {
		return fmt.Errorf("gauge %s already registered", name)
	}

	gauge, err := m.meter.Float64ObservableGauge(name, opts...)
	if err != nil {
		return fmt.Errorf("create gauge %s: %w", name, err)
	}

	registration, err := m.meter.RegisterCallback(callback, gauge)
	if err != nil {
		return fmt.Errorf("register callback for gauge %s: %w", name, err)
	}

	m.gauges[name] = gaugeCallback{registration: registration, gauge: gauge}
	return nil
}

// Shutdown unregisters all gauge callbacks.
func (m *MetricInstruments) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, gauge := range m.gauges {
		if err := gauge.registration.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("unregister gauge %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// RecordError increments a named error counter tagged with an error type.
func (m *MetricInstruments) RecordError(ctx context.Context, name string, errorType string) error {
	return m.RecordCounter(ctx, name, 1, metric.WithAttributes(attribute.String("error.type", errorType)))
}

// Supervisor-specific metric names (spec.md §2 "Data flow per tick" and
// SPEC_FULL.md §B's domain-stack wiring table).
const (
	// MetricTickDuration is a histogram (milliseconds) of one scheduler
	// tick's wall-clock duration across all processed instances.
	MetricTickDuration = "supervisor.tick.duration_ms"

	// MetricInterventionsPerformed counts successful Executor sub-protocol
	// completions, labeled by recovery kind.
	MetricInterventionsPerformed = "supervisor.interventions.performed"

	// MetricLocatorCacheHits / MetricLocatorCacheMisses count session-cache
	// outcomes in the Locator Store's resolution cascade (spec.md §4.3).
	MetricLocatorCacheHits   = "supervisor.locator.cache_hits"
	MetricLocatorCacheMisses = "supervisor.locator.cache_misses"

	// MetricClassifierDecisions counts Classifier decisions, labeled by
	// decision kind (spec.md §4.2).
	MetricClassifierDecisions = "supervisor.classifier.decisions"

	// MetricInstancesMonitored is a gauge of the live Instance count.
	MetricInstancesMonitored = "supervisor.instances.monitored"
)
