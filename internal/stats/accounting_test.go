package stats

import (
	"fmt"
	"math"
	"testing"
	"time"

	"cachewarm/internal/notify"
	"cachewarm/internal/usage"
)

func TestRecord_Invariants(t *testing.T) {
	a := New("claude-sonnet-4-5", 3)

	var wantRead int64
	for i := 0; i < 25; i++ {
		f := usage.Fields{InputTokens: 10}
		if i%3 == 0 {
			f.CacheReadTokens = int64(100 + i)
		}
		wantRead += f.CacheReadTokens
		a.Record(f, "", "anthropic")
	}

	snap := a.Snapshot()
	if snap.Hits+snap.Misses != snap.TotalRequests {
		t.Errorf("hits(%d)+misses(%d) != total(%d)", snap.Hits, snap.Misses, snap.TotalRequests)
	}
	if snap.TotalRequests != 25 {
		t.Errorf("TotalRequests = %d, want 25", snap.TotalRequests)
	}
	if snap.CacheReadTokens != wantRead {
		t.Errorf("CacheReadTokens = %d, want %d", snap.CacheReadTokens, wantRead)
	}
}

func TestRecord_HistoryCap(t *testing.T) {
	a := New("claude-sonnet-4-5", 3)

	for i := 0; i < HistoryCap+40; i++ {
		a.Record(usage.Fields{InputTokens: int64(i)}, "", "")
	}

	hist := a.History()
	if len(hist) != HistoryCap {
		t.Fatalf("history len = %d, want %d", len(hist), HistoryCap)
	}
	// Retained entries are exactly the last 100 in arrival order.
	for i, rec := range hist {
		want := int64(40 + i)
		if rec.InputTokens != want {
			t.Fatalf("history[%d].InputTokens = %d, want %d", i, rec.InputTokens, want)
		}
	}
}

func TestConsecutiveMissAlert_OneShot(t *testing.T) {
	var alerts []string
	a := New("claude-sonnet-4-5", 3, WithNotify(func(msg string, sev notify.Severity) {
		if sev == notify.Warning {
			alerts = append(alerts, msg)
		}
	}))

	miss := usage.Fields{InputTokens: 10}
	hit := usage.Fields{InputTokens: 10, CacheReadTokens: 500}

	// Five straight misses: alert fires exactly once, at the third.
	for i := 0; i < 5; i++ {
		a.Record(miss, "", "")
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts after 5 misses = %d, want 1", len(alerts))
	}

	// A hit resets the streak...
	a.Record(hit, "", "")
	if a.Snapshot().ConsecutiveMisses != 0 {
		t.Fatal("hit did not reset consecutive misses")
	}

	// ...so a new unbroken run alerts once more.
	for i := 0; i < 4; i++ {
		a.Record(miss, "", "")
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts after second run = %d, want 2", len(alerts))
	}
}

func TestRecord_Savings(t *testing.T) {
	a := New("claude-sonnet-4-5", 3)

	// Sonnet pricing: input $3.00/MTok, cache read $0.30/MTok.
	a.Record(usage.Fields{CacheReadTokens: 1_000_000}, "", "")

	got := a.Snapshot().EstimatedSavingsUSD
	if math.Abs(got-2.70) > 1e-9 {
		t.Fatalf("EstimatedSavingsUSD = %.4f, want 2.70", got)
	}
}

func TestRecord_SavingsFallbackChain(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		observed   string
		want       float64
	}{
		// Observed model known to the table wins over the configured one.
		{"observed known", "claude-sonnet-4-5", "claude-opus-4-1", 13.50},
		// Unknown observed model falls back to the configured entry.
		{"observed unknown", "claude-opus-4-1", "gpt-4o", 13.50},
		// Both unknown lands on the default table entry.
		{"both unknown", "not-a-model", "gpt-4o", 2.70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.configured, 3)
			a.Record(usage.Fields{CacheReadTokens: 1_000_000}, tt.observed, "openai")

			got := a.Snapshot().EstimatedSavingsUSD
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("EstimatedSavingsUSD = %.4f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestRecord_LastHitAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := New("claude-sonnet-4-5", 3, WithClock(func() time.Time { return now }))

	a.Record(usage.Fields{InputTokens: 1}, "", "")
	if !a.Snapshot().LastHitAt.IsZero() {
		t.Fatal("miss must not stamp LastHitAt")
	}

	a.Record(usage.Fields{CacheReadTokens: 9}, "", "")
	if !a.Snapshot().LastHitAt.Equal(now) {
		t.Fatalf("LastHitAt = %v, want %v", a.Snapshot().LastHitAt, now)
	}
}

func TestReset(t *testing.T) {
	var renders int
	a := New("claude-sonnet-4-5", 3, WithRenderHook(func(Snapshot) { renders++ }))

	a.Record(usage.Fields{InputTokens: 10, CacheReadTokens: 5}, "", "")
	a.Reset()

	snap := a.Snapshot()
	if snap != (Snapshot{}) {
		t.Fatalf("snapshot after reset = %+v, want zero", snap)
	}
	if len(a.History()) != 0 {
		t.Fatal("history not cleared by reset")
	}
	if renders != 2 {
		t.Fatalf("render hook fired %d times, want 2 (record + reset)", renders)
	}

	// Idempotent.
	a.Reset()
	if a.Snapshot() != (Snapshot{}) {
		t.Fatal("second reset changed state")
	}
}

func TestResetStreak(t *testing.T) {
	a := New("claude-sonnet-4-5", 3)
	a.Record(usage.Fields{InputTokens: 1}, "", "")
	a.Record(usage.Fields{InputTokens: 1}, "", "")

	a.ResetStreak()

	snap := a.Snapshot()
	if snap.ConsecutiveMisses != 0 {
		t.Fatal("ResetStreak did not clear the counter")
	}
	if snap.Misses != 2 || snap.TotalRequests != 2 {
		t.Fatal("ResetStreak must not touch cumulative counts")
	}
}

func TestRestore(t *testing.T) {
	a := New("claude-sonnet-4-5", 3)

	history := make([]Record, HistoryCap+10)
	for i := range history {
		history[i] = Record{Fields: usage.Fields{InputTokens: int64(i)}}
	}
	a.Restore(Snapshot{TotalRequests: len(history)}, history)

	if got := len(a.History()); got != HistoryCap {
		t.Fatalf("restored history len = %d, want %d", got, HistoryCap)
	}
	if a.Snapshot().TotalRequests != HistoryCap+10 {
		t.Fatal("restored snapshot lost totals")
	}
}

func ExampleSnapshot_HitRate() {
	s := Snapshot{TotalRequests: 4, Hits: 3, Misses: 1}
	fmt.Printf("%.0f%%\n", s.HitRate()*100)
	// Output: 75%
}
