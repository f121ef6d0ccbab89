package connect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hurttlocker/timeline/internal/extract"
	"github.com/hurttlocker/timeline/internal/store"
)

// newTestSyncEngine creates a SyncEngine with in-memory stores for testing.
func newTestSyncEngine(t *testing.T, provider *mockProvider) (*SyncEngine, *ConnectorStore, store.Store) {
	t.Helper()
	cs, st := newTestConnectorStore(t)

	registry := NewRegistry()
	registry.Register(provider)

	engine := NewSyncEngine(registry, cs, st, zerolog.New(io.Discard))
	return engine, cs, st
}

func healthRecords() []Record {
	return []Record{
		{ExternalID: "s1", Text: "🛏️ 21:06 → 05:25 (8h19m)\n深い睡眠: 63分", Source: extract.SourceFitbit},
		{ExternalID: "e1", Text: "🏃‍♂️ ランニング 30分\n距離: 5.2km", Source: extract.SourceGoogleFit},
		{ExternalID: "d1", Text: "📊 今日の健康データ\n歩数: 8,542歩\n消費カロリー: 2,100kcal", Source: extract.SourceFitbit},
		{ExternalID: "p1", Text: "今日はいい天気でした", Source: extract.SourceFitbit},
	}
}

func TestSyncOneBasic(t *testing.T) {
	mock := &mockProvider{name: "test", records: healthRecords()}
	engine, cs, st := newTestSyncEngine(t, mock)
	ctx := context.Background()

	if _, err := cs.Add(ctx, "test", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("adding connector: %v", err)
	}
	conn, err := cs.Get(ctx, "test")
	if err != nil {
		t.Fatalf("getting connector: %v", err)
	}

	result := engine.SyncOne(ctx, conn)
	if result.Error != "" {
		t.Fatalf("sync error: %s", result.Error)
	}
	if result.RecordsFetched != 4 || result.RecordsImported != 4 || result.RecordsSkipped != 0 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if mock.lastSince != nil {
		t.Errorf("first sync should be full, got since=%v", mock.lastSince)
	}

	want := map[extract.Category]int{
		extract.CategorySleep:         1,
		extract.CategoryExercise:      1,
		extract.CategoryDailyActivity: 1,
		extract.CategoryPlainText:     1,
	}
	for cat, n := range want {
		if result.Categories[cat] != n {
			t.Errorf("category %s: got %d want %d", cat, result.Categories[cat], n)
		}
	}
	if result.HintMismatches != 1 {
		t.Errorf("expected one hint mismatch (fitbit plain text), got %d", result.HintMismatches)
	}

	post, err := st.GetPost(ctx, "test:s1")
	if err != nil || post == nil {
		t.Fatalf("expected stored post, got %v %v", post, err)
	}
	if post.Source != "fitbit" {
		t.Errorf("expected fitbit source, got %q", post.Source)
	}

	conn, _ = cs.Get(ctx, "test")
	if conn.RecordsImported != 4 || conn.LastSyncAt == nil {
		t.Errorf("connector state not updated: %+v", conn)
	}
}

func TestSyncOneDedup(t *testing.T) {
	mock := &mockProvider{name: "test", records: healthRecords()}
	engine, cs, _ := newTestSyncEngine(t, mock)
	ctx := context.Background()

	if _, err := cs.Add(ctx, "test", nil); err != nil {
		t.Fatalf("adding connector: %v", err)
	}
	conn, _ := cs.Get(ctx, "test")
	engine.SyncOne(ctx, conn)

	conn, _ = cs.Get(ctx, "test")
	result := engine.SyncOne(ctx, conn)
	if result.RecordsImported != 0 || result.RecordsSkipped != 4 {
		t.Errorf("second sync should skip everything: %+v", result)
	}
	if mock.lastSince == nil {
		t.Error("second sync should pass last sync time")
	}
	if result.Categories[extract.CategorySleep] != 1 {
		t.Errorf("skipped posts are still tallied: %+v", result.Categories)
	}
}

func TestSyncOneFetchError(t *testing.T) {
	mock := &mockProvider{name: "test", fetchErr: errors.New("feed offline")}
	engine, cs, _ := newTestSyncEngine(t, mock)
	ctx := context.Background()

	if _, err := cs.Add(ctx, "test", nil); err != nil {
		t.Fatalf("adding connector: %v", err)
	}
	conn, _ := cs.Get(ctx, "test")
	result := engine.SyncOne(ctx, conn)
	if result.Error == "" {
		t.Fatal("expected sync error")
	}

	conn, _ = cs.Get(ctx, "test")
	if conn.LastError == "" {
		t.Error("expected last_error to be recorded")
	}
}

func TestSyncOneUnregisteredProvider(t *testing.T) {
	engine, cs, _ := newTestSyncEngine(t, &mockProvider{name: "test"})
	ctx := context.Background()

	if _, err := cs.Add(ctx, "ghost", nil); err != nil {
		t.Fatalf("adding connector: %v", err)
	}
	conn, _ := cs.Get(ctx, "ghost")
	if result := engine.SyncOne(ctx, conn); result.Error == "" {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestSyncProviderDisabled(t *testing.T) {
	engine, cs, _ := newTestSyncEngine(t, &mockProvider{name: "test"})
	ctx := context.Background()

	if _, err := cs.Add(ctx, "test", nil); err != nil {
		t.Fatalf("adding connector: %v", err)
	}
	if err := cs.SetEnabled(ctx, "test", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if _, err := engine.SyncProvider(ctx, "test"); err == nil {
		t.Fatal("expected error syncing disabled connector")
	}
	if _, err := engine.SyncProvider(ctx, "missing"); err == nil {
		t.Fatal("expected error syncing missing connector")
	}
}

func TestSyncAll(t *testing.T) {
	engine, cs, _ := newTestSyncEngine(t, &mockProvider{name: "test", records: healthRecords()[:1]})
	ctx := context.Background()

	results, err := engine.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results without connectors, got %d", len(results))
	}

	if _, err := cs.Add(ctx, "test", nil); err != nil {
		t.Fatalf("adding connector: %v", err)
	}
	results, err = engine.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(results) != 1 || results[0].RecordsImported != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestImportKeepsTimestampAndRejectsMissingID(t *testing.T) {
	engine, _, st := newTestSyncEngine(t, &mockProvider{name: "test"})
	ctx := context.Background()

	posted := time.Date(2024, 5, 1, 5, 30, 0, 0, time.UTC)
	result := engine.Import(ctx, "export", []Record{
		{ExternalID: "a", Text: "😴 仮眠記録\n13:00 → 13:30", Timestamp: posted},
		{Text: "no id"},
	})
	if result.RecordsImported != 1 || result.RecordsFailed != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Categories[extract.CategoryNap] != 1 {
		t.Errorf("expected nap tally, got %+v", result.Categories)
	}

	post, _ := st.GetPost(ctx, PostID("export", "a"))
	if post == nil || post.PostedAt == nil || !post.PostedAt.Equal(posted) {
		t.Fatalf("expected posted_at %v, got %+v", posted, post)
	}
}

func TestImportUntaggedReimportKeepsSource(t *testing.T) {
	engine, _, st := newTestSyncEngine(t, &mockProvider{name: "test"})
	ctx := context.Background()

	first := engine.Import(ctx, "export", healthRecords())
	if first.RecordsImported != 4 || first.HintMismatches != 1 {
		t.Fatalf("unexpected first import: %+v", first)
	}

	untagged := healthRecords()
	for i := range untagged {
		untagged[i].Source = extract.SourceUnknown
	}
	again := engine.Import(ctx, "export", untagged)
	if again.RecordsImported != 0 || again.RecordsSkipped != 4 {
		t.Errorf("untagged re-import should change nothing: %+v", again)
	}
	if again.HintMismatches != 1 {
		t.Errorf("mismatch should be judged against the stored tag, got %d", again.HintMismatches)
	}

	post, err := st.GetPost(ctx, "export:p1")
	if err != nil || post == nil {
		t.Fatalf("GetPost: %v %v", post, err)
	}
	if post.Source != string(extract.SourceFitbit) {
		t.Errorf("stored source = %q want fitbit", post.Source)
	}
}
