package inserter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*StreamRegistry, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "streams.json"))
	registry := NewStreamRegistry(store, errFetcher(), NewSegmentSynchronizer(2, discardLogger()),
		&fakeEncoder{}, discardLogger(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		registry.Shutdown(ctx)
	})
	return registry, store
}

func registryStreamConfig(t *testing.T, id StreamID) StreamConfig {
	t.Helper()
	cfg := testStreamConfig()
	cfg.ID = id
	cfg.OutputDir = filepath.Join(t.TempDir(), string(id))
	return cfg
}

func TestRegistry_registerRejectsDuplicate(t *testing.T) {
	registry, _ := newTestRegistry(t)
	cfg := registryStreamConfig(t, "s1")

	if !registry.Register(cfg) {
		t.Fatal("first register should succeed")
	}
	if registry.Register(cfg) {
		t.Error("duplicate register should be rejected")
	}
}

func TestRegistry_removeUnknown(t *testing.T) {
	registry, _ := newTestRegistry(t)
	if registry.Remove("missing") {
		t.Error("removing unknown id should report false")
	}
}

func TestRegistry_removeReclaimsID(t *testing.T) {
	registry, _ := newTestRegistry(t)
	cfg := registryStreamConfig(t, "s1")

	registry.Register(cfg)
	if !registry.Remove("s1") {
		t.Fatal("remove should succeed")
	}
	if _, ok := registry.Status("s1"); ok {
		t.Error("status should be gone after remove")
	}
	if !registry.Register(cfg) {
		t.Error("id should be reusable after remove")
	}
}

func TestRegistry_persistsConfigSet(t *testing.T) {
	registry, store := newTestRegistry(t)

	registry.Register(registryStreamConfig(t, "s1"))
	registry.Register(registryStreamConfig(t, "s2"))

	configs, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(configs) != 2 || configs[0].ID != "s1" || configs[1].ID != "s2" {
		t.Errorf("persisted configs = %+v", configs)
	}

	registry.Remove("s1")
	configs, _ = store.Load()
	if len(configs) != 1 || configs[0].ID != "s2" {
		t.Errorf("persisted configs after remove = %+v", configs)
	}
}

func TestRegistry_restorePurgesStaleOutput(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "streams.json"))

	cfg := testStreamConfig()
	cfg.ID = "restored"
	cfg.OutputDir = filepath.Join(dir, "out")
	if err := store.Save([]StreamConfig{cfg}); err != nil {
		t.Fatal(err)
	}

	// Leftovers from the previous run.
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(cfg.OutputDir, "old.ts")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := NewStreamRegistry(store, errFetcher(), NewSegmentSynchronizer(2, discardLogger()),
		&fakeEncoder{}, discardLogger(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		registry.Shutdown(ctx)
	})

	if err := registry.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale output should be purged on restore")
	}
	if _, ok := registry.Status("restored"); !ok {
		t.Error("restored stream should be registered")
	}
}

func TestRegistry_listOrderedByID(t *testing.T) {
	registry, _ := newTestRegistry(t)
	registry.Register(registryStreamConfig(t, "zz"))
	registry.Register(registryStreamConfig(t, "aa"))

	statuses := registry.List()
	if len(statuses) != 2 {
		t.Fatalf("list len = %d", len(statuses))
	}
	if statuses[0].ID != "aa" || statuses[1].ID != "zz" {
		t.Errorf("list order = %v, %v", statuses[0].ID, statuses[1].ID)
	}
}

func TestRegistry_statusReflectsConfig(t *testing.T) {
	registry, _ := newTestRegistry(t)
	cfg := registryStreamConfig(t, "s1")
	registry.Register(cfg)

	status, ok := registry.Status("s1")
	if !ok {
		t.Fatal("status: not found")
	}
	if status.ID != cfg.ID || status.InputURL != cfg.InputURL || status.OutputDir != cfg.OutputDir {
		t.Errorf("status = %+v", status)
	}
	if status.AdDuration != cfg.AdDuration || status.AdInterval != cfg.AdInterval || !status.Enabled {
		t.Errorf("status = %+v", status)
	}
	if status.InAdBreak {
		t.Error("fresh stream should not be in a break")
	}
	// First break one interval out.
	if status.NextAdIn <= 0 || status.NextAdIn > cfg.AdInterval {
		t.Errorf("NextAdIn = %d, want within (0, %d]", status.NextAdIn, cfg.AdInterval)
	}
}
