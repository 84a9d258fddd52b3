package app

import (
	"context"
	"testing"

	"github.com/ghuser/procureflow/pkg/config"
	"github.com/ghuser/procureflow/pkg/logger"
)

type stubQueue struct{}

func (stubQueue) Ping(context.Context) error { return nil }

func TestConnect_MemoryBackend(t *testing.T) {
	cfg := &config.Config{StoreBackend: config.StoreMemory}
	a, closeAll, err := Connect(context.Background(), cfg, logger.Nop(), Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer closeAll()

	if !a.InMemory() || a.Redis != nil || a.EventBus != nil || a.TemporalClient != nil {
		t.Fatalf("memory backend must not open external connections: %+v", a)
	}
	if a.Metrics == nil {
		t.Fatal("task metrics not registered")
	}
}

func TestHealthChecks_OmitsMissingDependencies(t *testing.T) {
	a := &Application{}
	checks := a.HealthChecks(stubQueue{})
	if checks.Database != nil || checks.Redis != nil || checks.EventBus != nil || checks.Temporal != nil {
		t.Fatalf("nil dependencies must stay nil interfaces: %+v", checks)
	}
	if checks.Queue == nil {
		t.Fatal("queue checker missing")
	}
}
