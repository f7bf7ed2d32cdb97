// Package stats owns cumulative session statistics for observed API
// requests: hit/miss counts, token sums, estimated savings, and a bounded
// history of recent requests.
package stats

import (
	"sync"
	"time"

	"cachewarm/internal/config"
	"cachewarm/internal/notify"
	"cachewarm/internal/usage"
)

// HistoryCap bounds the retained request history.
const HistoryCap = 100

// Record is one observed API request with its usage report.
type Record struct {
	usage.Fields
	Model      string
	Provider   string
	ObservedAt time.Time
}

// Snapshot is a copy of the current session statistics.
type Snapshot struct {
	TotalRequests int `json:"total_requests"`
	Hits          int `json:"hits"`
	Misses        int `json:"misses"`

	CacheReadTokens  int64 `json:"cache_read_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`

	EstimatedSavingsUSD float64   `json:"estimated_savings_usd"`
	ConsecutiveMisses   int       `json:"consecutive_misses"`
	LastHitAt           time.Time `json:"last_hit_at,omitzero"`
}

// HitRate returns hits over total requests, 0 when nothing was recorded.
func (s Snapshot) HitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.TotalRequests)
}

// Accountant accumulates usage records into session statistics.
// Responses may complete out of order under concurrent requests; all
// fields are order-insensitive sums except ConsecutiveMisses, which is a
// best-effort signal.
type Accountant struct {
	mu sync.Mutex

	pricingModel  string
	missThreshold int

	snap    Snapshot
	history []Record

	notify   notify.Func
	onRender func(Snapshot)
	now      func() time.Time
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithNotify sets the notification sink for threshold alerts.
func WithNotify(fn notify.Func) Option {
	return func(a *Accountant) { a.notify = fn }
}

// WithRenderHook sets a callback invoked after every mutation with the
// fresh snapshot. Used by the dashboard and daemon to re-render.
func WithRenderHook(fn func(Snapshot)) Option {
	return func(a *Accountant) { a.onRender = fn }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// New returns an Accountant using the given pricing model for savings
// estimates and firing a warning when missThreshold consecutive misses
// are observed.
func New(pricingModel string, missThreshold int, opts ...Option) *Accountant {
	a := &Accountant{
		pricingModel:  pricingModel,
		missThreshold: missThreshold,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record folds one merged usage report into the session statistics.
func (a *Accountant) Record(f usage.Fields, model, provider string) {
	a.mu.Lock()

	rec := Record{
		Fields:     f,
		Model:      model,
		Provider:   provider,
		ObservedAt: a.now(),
	}

	a.snap.TotalRequests++
	a.snap.CacheReadTokens += f.CacheReadTokens
	a.snap.CacheWriteTokens += f.CacheWriteTokens
	a.snap.InputTokens += f.InputTokens
	a.snap.OutputTokens += f.OutputTokens

	var alert string
	if f.IsHit() {
		a.snap.Hits++
		a.snap.ConsecutiveMisses = 0
		a.snap.LastHitAt = rec.ObservedAt
	} else {
		a.snap.Misses++
		a.snap.ConsecutiveMisses++
		// Fire only on the crossing, not on every miss past it. A hit
		// resets the streak, so each unbroken run alerts at most once.
		if a.snap.ConsecutiveMisses == a.missThreshold {
			alert = "cache misses detected: prompt cache may have expired"
		}
	}

	// Price against the observed model when the table knows it, else the
	// configured model; CacheSavingsAt applies the final default fallback.
	pricingModel := a.pricingModel
	if rec.Model != "" {
		if _, ok := config.LookupPricingAt(rec.Model, rec.ObservedAt); ok {
			pricingModel = rec.Model
		}
	}
	a.snap.EstimatedSavingsUSD += config.CacheSavingsAt(pricingModel, rec.ObservedAt, f.CacheReadTokens)

	a.history = append(a.history, rec)
	if len(a.history) > HistoryCap {
		a.history = a.history[len(a.history)-HistoryCap:]
	}

	snap := a.snap
	notifyFn := a.notify
	renderFn := a.onRender
	a.mu.Unlock()

	if alert != "" && notifyFn != nil {
		notifyFn(alert, notify.Warning)
	}
	if renderFn != nil {
		renderFn(snap)
	}
}

// Reset zeroes all statistics and clears the history. Idempotent.
func (a *Accountant) Reset() {
	a.mu.Lock()
	a.snap = Snapshot{}
	a.history = nil
	snap := a.snap
	renderFn := a.onRender
	a.mu.Unlock()

	if renderFn != nil {
		renderFn(snap)
	}
}

// ResetStreak clears the consecutive-miss counter without touching the
// cumulative statistics. Called when the conversation changes, so misses
// from the previous conversation don't count against the new one.
func (a *Accountant) ResetStreak() {
	a.mu.Lock()
	a.snap.ConsecutiveMisses = 0
	a.mu.Unlock()
}

// SetPricingModel switches the model used for future savings estimates.
func (a *Accountant) SetPricingModel(model string) {
	a.mu.Lock()
	a.pricingModel = model
	a.mu.Unlock()
}

// Snapshot returns a copy of the current statistics.
func (a *Accountant) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// History returns a copy of the retained records, oldest first.
func (a *Accountant) History() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.history))
	copy(out, a.history)
	return out
}

// Restore seeds the accountant from a persisted snapshot and history,
// typically at startup. Overwrites any existing state.
func (a *Accountant) Restore(snap Snapshot, history []Record) {
	a.mu.Lock()
	a.snap = snap
	a.history = append([]Record(nil), history...)
	if len(a.history) > HistoryCap {
		a.history = a.history[len(a.history)-HistoryCap:]
	}
	a.mu.Unlock()
}
