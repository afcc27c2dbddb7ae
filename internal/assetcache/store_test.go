package assetcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	asset := Asset{
		AssetID:    42,
		Keyword:    "volcano",
		FilePath:   "/tmp/42.mp4",
		LastUsedAt: time.Now(),
		UseCount:   1,
	}

	inserted, err := store.InsertIfAbsent(ctx, asset)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if !inserted {
		t.Error("first insert should report a new row")
	}

	inserted, err = store.InsertIfAbsent(ctx, asset)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should be ignored")
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestByKeywordOrdersByRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{0, 2 * time.Hour, time.Hour} {
		_, err := store.InsertIfAbsent(ctx, Asset{
			AssetID:    int64(i + 1),
			Keyword:    "ocean storm",
			FilePath:   "/tmp/clip.mp4",
			LastUsedAt: base.Add(offset),
		})
		if err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	assets, err := store.ByKeyword(ctx, "ocean storm")
	if err != nil {
		t.Fatalf("ByKeyword failed: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("len = %d, want 3", len(assets))
	}
	if assets[0].AssetID != 2 || assets[1].AssetID != 3 || assets[2].AssetID != 1 {
		t.Errorf("order = %d,%d,%d, want 2,3,1", assets[0].AssetID, assets[1].AssetID, assets[2].AssetID)
	}

	if other, err := store.ByKeyword(ctx, "desert"); err != nil || len(other) != 0 {
		t.Errorf("unrelated keyword returned %d assets, err %v", len(other), err)
	}
}

func TestTouchBumpsUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.InsertIfAbsent(ctx, Asset{AssetID: 7, Keyword: "city", FilePath: "/tmp/7.mp4", LastUsedAt: start, UseCount: 1}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.Touch(ctx, 7, start.Add(48*time.Hour)); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	assets, err := store.ByKeyword(ctx, "city")
	if err != nil {
		t.Fatalf("ByKeyword failed: %v", err)
	}
	if assets[0].UseCount != 2 {
		t.Errorf("use count = %d, want 2", assets[0].UseCount)
	}
	if !assets[0].LastUsedAt.Equal(start.Add(48 * time.Hour)) {
		t.Errorf("last used = %v", assets[0].LastUsedAt)
	}
}

func TestOlderThanAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := Asset{AssetID: 1, Keyword: "a", FilePath: "/tmp/1.mp4", LastUsedAt: now}
	stale := Asset{AssetID: 2, Keyword: "b", FilePath: "/tmp/2.mp4", LastUsedAt: now.AddDate(0, 0, -45)}
	for _, asset := range []Asset{fresh, stale} {
		if _, err := store.InsertIfAbsent(ctx, asset); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	old, err := store.OlderThan(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("OlderThan failed: %v", err)
	}
	if len(old) != 1 || old[0].AssetID != 2 {
		t.Fatalf("stale set = %+v", old)
	}

	if err := store.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count after delete = %d, want 1", count)
	}
}
