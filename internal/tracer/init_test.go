package tracer

import (
	"context"
	"testing"
)

func TestInitTracerDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")

	shutdown := InitTracer()
	if shutdown == nil {
		t.Fatal("InitTracer must always return a shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("disabled shutdown returned error: %v", err)
	}
}
