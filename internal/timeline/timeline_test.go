package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hurttlocker/timeline/internal/extract"
	"github.com/hurttlocker/timeline/internal/store"
)

func newTestService(t *testing.T, posts ...*store.Post) *Service {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, p := range posts {
		if _, err := st.AddPost(context.Background(), p); err != nil {
			t.Fatalf("AddPost %s: %v", p.ID, err)
		}
	}
	return New(st)
}

func samplePosts() []*store.Post {
	return []*store.Post{
		{ID: "sleep", Source: "fitbit", Text: "💤 睡眠記録\n23:30 → 06:45 (7h15m)\n深い睡眠: 80分\nレム睡眠: 95分"},
		{ID: "run", Source: "googlefit", Text: "🏃‍♂️ ランニング 30分\n距離: 5.2km\nカロリー: 320kcal"},
		{ID: "steps", Source: "fitbit", Text: "📊 今日の健康データ\n歩数: 8,542歩"},
		{ID: "chat", Source: "generic-social", Text: "今日はいい天気でした"},
		{ID: "broken", Source: "fitbit", Text: "💤 睡眠記録\nよく眠れた"},
		{ID: "stale", Source: "myspace", Text: "😴 仮眠記録\n13:00 → 13:30"},
	}
}

func TestGet(t *testing.T) {
	svc := newTestService(t, samplePosts()...)
	ctx := context.Background()

	e, err := svc.Get(ctx, "sleep")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Result.Category != extract.CategorySleep || e.Result.Hint != extract.SourceFitbit {
		t.Fatalf("unexpected result: %+v", e.Result)
	}
	rec, ok := e.Result.Sleep()
	if !ok || rec.Start != "23:30" || rec.End != "06:45" || rec.Deep != 80 || rec.REM != 95 {
		t.Errorf("unexpected sleep record: %+v", rec)
	}

	_, err = svc.Get(ctx, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_UnknownStoredSourceIsIgnored(t *testing.T) {
	svc := newTestService(t, samplePosts()...)
	e, err := svc.Get(context.Background(), "stale")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Result.Category != extract.CategoryNap {
		t.Errorf("expected nap, got %s", e.Result.Category)
	}
	if e.Result.Hint != extract.SourceUnknown {
		t.Errorf("expected unknown hint, got %q", e.Result.Hint)
	}
}

func TestRecentAndSearch(t *testing.T) {
	svc := newTestService(t, samplePosts()...)
	ctx := context.Background()

	got, err := svc.Recent(ctx, 10, "fitbit")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 fitbit entries, got %d", len(got))
	}
	for _, e := range got {
		if e.Post.Source != "fitbit" {
			t.Errorf("source filter leaked %s", e.Post.ID)
		}
	}

	found, err := svc.Search(ctx, "ランニング", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].Result.Category != extract.CategoryExercise {
		t.Fatalf("unexpected search result: %+v", found)
	}
	ex, _ := found[0].Result.Exercise()
	if ex.Activity != "ランニング" || ex.Distance != "5.2km" || ex.Calories != "320kcal" {
		t.Errorf("unexpected exercise: %+v", ex)
	}

	if _, err := svc.Search(ctx, "", 10); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestBreakdown(t *testing.T) {
	svc := newTestService(t, samplePosts()...)

	b, err := svc.Breakdown(context.Background())
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if b.Total != 6 {
		t.Fatalf("Total = %d", b.Total)
	}

	want := map[extract.Category]int{
		extract.CategorySleep:         1,
		extract.CategoryNap:           1,
		extract.CategoryExercise:      1,
		extract.CategoryDailyActivity: 1,
		extract.CategoryPlainText:     2,
	}
	for cat, n := range want {
		if b.Categories[cat] != n {
			t.Errorf("%s: got %d want %d", cat, b.Categories[cat], n)
		}
	}
	if b.Dialects[extract.DialectSleepHeader] != 1 || b.Dialects[extract.DialectExerciseRunner] != 1 {
		t.Errorf("unexpected dialects: %v", b.Dialects)
	}
	if b.HintMismatches != 1 || len(b.MismatchIDs) != 1 || b.MismatchIDs[0] != "broken" {
		t.Errorf("expected only the broken fitbit post to mismatch, got %d %v", b.HintMismatches, b.MismatchIDs)
	}
}

func TestBreakdown_Empty(t *testing.T) {
	svc := newTestService(t)
	b, err := svc.Breakdown(context.Background())
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if b.Total != 0 || len(b.Categories) != len(extract.Categories()) {
		t.Errorf("unexpected empty breakdown: %+v", b)
	}
}

func TestEntryJSON(t *testing.T) {
	svc := newTestService(t, samplePosts()...)
	e, err := svc.Get(context.Background(), "steps")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got struct {
		ID     string `json:"id"`
		Result struct {
			Category      string `json:"category"`
			DailyActivity struct {
				Steps    *int `json:"steps"`
				Calories *int `json:"calories"`
			} `json:"daily_activity"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v (%s)", err, data)
	}
	if got.ID != "steps" || got.Result.Category != "daily_activity" {
		t.Fatalf("unexpected entry JSON: %s", data)
	}
	if got.Result.DailyActivity.Steps == nil || *got.Result.DailyActivity.Steps != 8542 {
		t.Errorf("steps = %v", got.Result.DailyActivity.Steps)
	}
	if got.Result.DailyActivity.Calories != nil {
		t.Errorf("absent calories should be null, got %d", *got.Result.DailyActivity.Calories)
	}
}
