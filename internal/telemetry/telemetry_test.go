package telemetry_test

import (
	"context"
	"testing"

	"github.com/refactorly/console/internal/telemetry"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "console", "", true)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "console", "http://localhost:4318", false)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown with cancelled context: %v", err)
	}
}

func TestSetupCreatesProvider(t *testing.T) {
	// Non-routable address: nothing is exported, shutdown still flushes.
	shutdown, err := telemetry.Setup(context.Background(), "console", "http://192.0.2.1:4318", true)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
