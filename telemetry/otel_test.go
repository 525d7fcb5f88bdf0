package telemetry

import (
	"context"
	"testing"
)

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider("test-service")
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if provider == nil {
		t.Fatal("NewProvider() returned nil provider")
	}
	defer provider.Shutdown(context.Background())
}

func TestNewProvider_EmptyServiceName(t *testing.T) {
	_, err := NewProvider("")
	if err == nil {
		t.Error("NewProvider(\"\") should error")
	}
}

func TestProvider_StartSpan(t *testing.T) {
	provider, err := NewProvider("test-service")
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer provider.Shutdown(context.Background())

	ctx, span := provider.StartSpan(context.Background(), "tick")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan() returned nil ctx or span")
	}
	span.SetAttribute("instance.pid", 1234)
	span.RecordError(nil)
	span.End()
}

func TestProvider_StartSpan_AfterShutdown(t *testing.T) {
	provider, err := NewProvider("test-service")
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	_, span := provider.StartSpan(context.Background(), "tick")
	// Must be safe to call on a no-op span.
	span.SetAttribute("key", "value")
	span.End()
}

func TestProvider_Shutdown_Idempotent(t *testing.T) {
	provider, err := NewProvider("test-service")
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown() error = %v", err)
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}
