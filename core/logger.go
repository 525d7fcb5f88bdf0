package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// rateLimiter lets at most one call through per interval. Each
// ProductionLogger holds its own, shared by every Error call on that logger,
// so a burst of failures cannot flood the log output.
type rateLimiter struct {
	interval time.Duration
	lastTime time.Time
	mu       sync.Mutex
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	return false
}

// ProductionLogger is the default Logger implementation: JSON lines by
// default, human-readable text in development mode (either can be forced via
// LoggingConfig.Format), and a component tag on every line.
type ProductionLogger struct {
	level     string
	component string
	output    io.Writer
	format    string // "json" or "text"
	mu        sync.RWMutex

	errorLimiter *rateLimiter

	metricsEnabled bool
}

// NewProductionLogger builds a ProductionLogger for the named component.
// Mirrors the teacher's three-argument constructor shape.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, component string) *ProductionLogger {
	format := logging.Format
	if format == "" {
		format = "text"
		if dev.Enabled {
			format = "text"
		} else {
			format = "json"
		}
	}

	level := logging.Level
	if level == "" {
		level = "info"
	}

	return &ProductionLogger{
		level:        strings.ToUpper(level),
		component:    component,
		output:       os.Stdout,
		format:       format,
		errorLimiter: newRateLimiter(1 * time.Second),
	}
}

// WithComponent returns a logger sharing this one's configuration but
// tagging its own lines with a different component, satisfying
// ComponentAwareLogger.
func (l *ProductionLogger) WithComponent(component string) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &ProductionLogger{
		level:        l.level,
		component:    component,
		output:       l.output,
		format:       l.format,
		errorLimiter: newRateLimiter(1 * time.Second),
	}
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) { l.log("DEBUG", msg, fields) }

// Error logs are rate limited to one line per second per logger; an Error
// call within a second of the last printed one is dropped.
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, withCorrelation(ctx, fields))
}

type correlationKey struct{}

// ContextWithCorrelationID stamps a correlation ID (typically an Instance's
// uuid, see the lifecycle package) onto ctx for the *WithContext log calls.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func withCorrelation(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	id, ok := ctx.Value(correlationKey{}).(string)
	if !ok || id == "" {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["correlation_id"] = id
	return out
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)

	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}

	l.emitLogMetric(level)
}

func (l *ProductionLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"component": l.component,
		"message":   msg,
	}
	for k, v := range fields {
		if k == "timestamp" || k == "level" || k == "component" || k == "message" {
			continue
		}
		entry[k] = v
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *ProductionLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", timestamp, level, l.component, msg, b.String())
}

func (l *ProductionLogger) shouldLog(level string) bool {
	levels := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	current, ok1 := levels[l.level]
	target, ok2 := levels[level]
	if !ok1 || !ok2 {
		return true
	}
	return target >= current
}

func (l *ProductionLogger) emitLogMetric(level string) {
	if !l.metricsEnabled {
		return
	}
	if registry := GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.log.lines", "level", level, "component", l.component)
	}
}

// EnableMetrics turns on the Layer-2 metrics emission once telemetry.Init
// has installed a MetricsRegistry.
func (l *ProductionLogger) EnableMetrics() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metricsEnabled = true
}

// SetOutput redirects log output; used by tests.
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}
