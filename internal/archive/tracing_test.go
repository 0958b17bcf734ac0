package archive

import (
	"context"
	"testing"
)

func TestNewTracerProvider_DisabledExporterIsNoError(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	defer tp.Shutdown(context.Background())

	SetTracerProvider(tp)
	span := tracer()
	if span == nil {
		t.Fatalf("tracer() returned nil")
	}
}

func TestNewTracerProvider_UnknownExporterErrors(t *testing.T) {
	if _, err := NewTracerProvider(context.Background(), TracingConfig{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}
