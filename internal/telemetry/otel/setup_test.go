package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, endpoint, "camp-auth-test", false, nil)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatal("no-op providers should all be set")
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name     string
		endpoint string
	}{
		{"invalid characters", "://invalid"},
		{"malformed URL", "http://[invalid"},
		{"missing host", "http://"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewProviders(ctx, tc.endpoint, "camp-auth-test", false, nil); err == nil {
				t.Errorf("NewProviders(%q) should return error", tc.endpoint)
			}
		})
	}
}

func TestNewProviders_LazyExporters(t *testing.T) {
	// gRPC exporters dial lazily, so construction succeeds without a collector.
	ctx := context.Background()
	for _, endpoint := range []string{"localhost:4317", "https://localhost:4317/v1/traces"} {
		providers, err := NewProviders(ctx, endpoint, "camp-auth-test", true, nil)
		if err != nil {
			t.Logf("NewProviders(%q): %v", endpoint, err)
			continue
		}
		shutdownCtx, cancel := context.WithCancel(ctx)
		cancel()
		_ = providers.Shutdown(shutdownCtx)
	}
}

func TestSetGlobalAndTracer(t *testing.T) {
	providers, err := NewProviders(context.Background(), "", "camp-auth-test", false, nil)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	oldTracerProvider := otel.GetTracerProvider()
	oldMeterProvider := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(oldTracerProvider)
		otel.SetMeterProvider(oldMeterProvider)
	})

	providers.SetGlobal()
	if otel.GetTracerProvider() == oldTracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() == oldMeterProvider {
		t.Error("MeterProvider should be updated")
	}
	if providers.Tracer() == nil {
		t.Error("Tracer should not be nil")
	}
	var nilProviders *Providers
	if nilProviders.Tracer() == nil {
		t.Error("nil providers fall back to the global tracer")
	}
}
