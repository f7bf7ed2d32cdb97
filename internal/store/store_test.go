package store

import (
	"path/filepath"
	"testing"
	"time"

	"cachewarm/internal/stats"
	"cachewarm/internal/usage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_InsertAndRecent(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := stats.Record{
			Fields: usage.Fields{
				InputTokens:     int64(100 + i),
				OutputTokens:    50,
				CacheReadTokens: int64(i * 1000),
			},
			Model:      "claude-sonnet-4-5",
			Provider:   "anthropic",
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.InsertRecord("req-"+string(rune('a'+i)), r); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	records, err := s.RecentRecords(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Newest first.
	if records[0].InputTokens != 102 || records[1].InputTokens != 101 {
		t.Errorf("wrong order: %+v", records)
	}
	if !records[0].ObservedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("observed_at = %v", records[0].ObservedAt)
	}

	count, err := s.RecordCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestStore_ModelBreakdown(t *testing.T) {
	s := openTestStore(t)

	insert := func(model string, cacheRead int64) {
		t.Helper()
		err := s.InsertRecord("req", stats.Record{
			Fields:     usage.Fields{CacheReadTokens: cacheRead, InputTokens: 10},
			Model:      model,
			Provider:   "anthropic",
			ObservedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	insert("claude-haiku-4-5", 100)
	insert("claude-sonnet-4-5", 5000)
	insert("claude-sonnet-4-5", 3000)
	insert("claude-haiku-4-5", 0)

	breakdown, err := s.ModelBreakdown()
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(breakdown) != 2 {
		t.Fatalf("got %d models, want 2", len(breakdown))
	}
	if breakdown[0].Model != "claude-sonnet-4-5" {
		t.Errorf("heaviest cache reader = %q", breakdown[0].Model)
	}
	if breakdown[0].CacheReadTokens != 8000 || breakdown[0].Requests != 2 || breakdown[0].Hits != 2 {
		t.Errorf("sonnet totals: %+v", breakdown[0])
	}
	if breakdown[1].Hits != 1 {
		t.Errorf("haiku hits = %d, want 1", breakdown[1].Hits)
	}
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, found, err := s.LoadSnapshot(); err != nil || found {
		t.Fatalf("fresh db: found=%v err=%v", found, err)
	}

	snap := stats.Snapshot{
		TotalRequests:       10,
		Hits:                7,
		Misses:              3,
		CacheReadTokens:     123456,
		InputTokens:         2000,
		OutputTokens:        900,
		EstimatedSavingsUSD: 0.33,
		ConsecutiveMisses:   2,
		LastHitAt:           time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
	}
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second save replaces, not duplicates.
	snap.TotalRequests = 11
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, found, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("snapshot not found after save")
	}
	if got.TotalRequests != 11 || got.Hits != 7 || got.CacheReadTokens != 123456 {
		t.Errorf("snapshot mismatch: %+v", got)
	}
	if !got.LastHitAt.Equal(snap.LastHitAt) {
		t.Errorf("last hit = %v, want %v", got.LastHitAt, snap.LastHitAt)
	}
}

func TestStore_ResetAll(t *testing.T) {
	s := openTestStore(t)

	_ = s.InsertRecord("req", stats.Record{
		Fields: usage.Fields{InputTokens: 1}, Model: "m", Provider: "p", ObservedAt: time.Now(),
	})
	_ = s.SaveSnapshot(stats.Snapshot{TotalRequests: 1})

	if err := s.ResetAll(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	count, _ := s.RecordCount()
	if count != 0 {
		t.Errorf("records survive reset: %d", count)
	}
	if _, found, _ := s.LoadSnapshot(); found {
		t.Error("snapshot survives reset")
	}
}
