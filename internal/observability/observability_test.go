package observability

import (
	"context"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	if err := Init(Config{Enabled: false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Spans still work against the noop provider.
	_, span := StartSpanWithOtel(context.Background(), "test.span")
	span.End()

	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	err := Init(Config{Enabled: true, ExporterType: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := parseHeaders("Authorization=Bearer abc, X-Tenant=kawan")
	if headers["Authorization"] != "Bearer abc" {
		t.Errorf("unexpected auth header %q", headers["Authorization"])
	}
	if headers["X-Tenant"] != "kawan" {
		t.Errorf("unexpected tenant header %q", headers["X-Tenant"])
	}
	if parseHeaders("") != nil {
		t.Error("expected nil for empty input")
	}
}
