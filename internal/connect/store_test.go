package connect

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hurttlocker/timeline/internal/store"
)

// newTestConnectorStore opens an in-memory post store and wraps its DB.
func newTestConnectorStore(t *testing.T) (*ConnectorStore, store.Store) {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sqlSt, ok := st.(*store.SQLiteStore)
	if !ok {
		t.Fatal("expected SQLiteStore")
	}
	return NewConnectorStore(sqlSt.GetDB()), st
}

func TestConnectorStoreAdd(t *testing.T) {
	cs, _ := newTestConnectorStore(t)
	ctx := context.Background()

	id, err := cs.Add(ctx, "export", json.RawMessage(`{"path": "posts.json"}`))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive ID, got %d", id)
	}

	if _, err := cs.Add(ctx, "export", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error on duplicate add")
	}
	if _, err := cs.Add(ctx, "", nil); err == nil {
		t.Fatal("expected error for empty provider")
	}
}

func TestConnectorStoreGetAndList(t *testing.T) {
	cs, _ := newTestConnectorStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if _, err := cs.Add(ctx, name, nil); err != nil {
			t.Fatalf("Add %s: %v", name, err)
		}
	}

	c, err := cs.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !c.Enabled {
		t.Error("new connectors should be enabled")
	}
	if string(c.Config) != "{}" {
		t.Errorf("expected empty config, got %s", c.Config)
	}
	if c.LastSyncAt != nil {
		t.Errorf("expected no last sync, got %v", c.LastSyncAt)
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	if _, err := cs.Get(ctx, "missing"); err == nil {
		t.Error("expected error for missing connector")
	}

	list, err := cs.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Provider != "alpha" || list[1].Provider != "zeta" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := cs.SetEnabled(ctx, "zeta", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	enabled, err := cs.List(ctx, true)
	if err != nil {
		t.Fatalf("List enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Provider != "alpha" {
		t.Fatalf("expected only alpha enabled, got %+v", enabled)
	}
}

func TestConnectorStoreUpdateAndRemove(t *testing.T) {
	cs, _ := newTestConnectorStore(t)
	ctx := context.Background()

	if _, err := cs.Add(ctx, "export", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cs.UpdateConfig(ctx, "export", json.RawMessage(`{"path":"b.yaml"}`)); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	c, _ := cs.Get(ctx, "export")
	if string(c.Config) != `{"path":"b.yaml"}` {
		t.Errorf("config not updated: %s", c.Config)
	}

	if err := cs.UpdateConfig(ctx, "missing", nil); err == nil {
		t.Error("expected error updating missing connector")
	}
	if err := cs.Remove(ctx, "export"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := cs.Remove(ctx, "export"); err == nil {
		t.Error("expected error removing twice")
	}
}

func TestConnectorStoreSyncState(t *testing.T) {
	cs, _ := newTestConnectorStore(t)
	ctx := context.Background()

	if _, err := cs.Add(ctx, "export", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cs.RecordSyncError(ctx, "export", "boom"); err != nil {
		t.Fatalf("RecordSyncError: %v", err)
	}
	c, _ := cs.Get(ctx, "export")
	if c.LastError != "boom" || c.LastSyncAt == nil {
		t.Fatalf("expected error state, got %+v", c)
	}

	if err := cs.RecordSyncSuccess(ctx, "export", 3); err != nil {
		t.Fatalf("RecordSyncSuccess: %v", err)
	}
	if err := cs.RecordSyncSuccess(ctx, "export", 2); err != nil {
		t.Fatalf("RecordSyncSuccess: %v", err)
	}
	c, _ = cs.Get(ctx, "export")
	if c.LastError != "" {
		t.Errorf("expected error cleared, got %q", c.LastError)
	}
	if c.RecordsImported != 5 {
		t.Errorf("expected 5 records imported, got %d", c.RecordsImported)
	}
}
