package config

import (
	"math"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"claude-sonnet-4-5", "claude-sonnet-4-5"},
		{"claude-sonnet-4-5-20250929", "claude-sonnet-4-5"},
		{"claude-opus-4-1-20250805", "claude-opus-4-1"},
		{"gpt-4o", "gpt-4o"}, // unknown models pass through
	}
	for _, tt := range tests {
		if got := NormalizeModelName(tt.raw); got != tt.want {
			t.Errorf("NormalizeModelName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLookupPricingAt_UsesEffectiveDate(t *testing.T) {
	model := "test-model-windowed"
	orig, had := defaultPricingHistory[model]
	if had {
		defer func() { defaultPricingHistory[model] = orig }()
	} else {
		defer delete(defaultPricingHistory, model)
	}

	defaultPricingHistory[model] = []modelPricingVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Pricing:       ModelPricing{InputPerMTok: 1.0},
		},
		{
			EffectiveFrom: mustDate(t, "2025-07-01"),
			Pricing:       ModelPricing{InputPerMTok: 2.0},
		},
	}

	aprPrice, ok := LookupPricingAt(model, mustDate(t, "2025-04-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model")
	}
	if aprPrice.InputPerMTok != 1.0 {
		t.Fatalf("April price InputPerMTok = %.2f, want 1.0", aprPrice.InputPerMTok)
	}

	augPrice, ok := LookupPricingAt(model, mustDate(t, "2025-08-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model in later window")
	}
	if augPrice.InputPerMTok != 2.0 {
		t.Fatalf("August price InputPerMTok = %.2f, want 2.0", augPrice.InputPerMTok)
	}
}

func TestCacheSavings(t *testing.T) {
	// Sonnet: input $3.00/MTok, cache read $0.30/MTok.
	// 1M cache-read tokens saved $3.00 - $0.30 = $2.70.
	got := CacheSavings("claude-sonnet-4-5", 1_000_000)
	if math.Abs(got-2.70) > 1e-9 {
		t.Fatalf("CacheSavings = %.4f, want 2.70", got)
	}

	if CacheSavings("claude-sonnet-4-5", 0) != 0 {
		t.Fatal("zero cache reads should save nothing")
	}
}

func TestCacheSavings_UnknownModelFallsBack(t *testing.T) {
	got := CacheSavings("totally-unknown-model", 1_000_000)
	want := CacheSavings(DefaultPricingModel, 1_000_000)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("unknown model savings = %.4f, want fallback %.4f", got, want)
	}
}

func TestConfigClamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Refresh.IntervalMs = 5 // far below minimum
	cfg.Refresh.MaxAttempts = 99
	cfg.Refresh.MissWarningThreshold = 0
	cfg.Pricing.Model = "no-such-model"

	cfg.Clamp()

	if cfg.Refresh.IntervalMs != MinRefreshInterval.Milliseconds() {
		t.Errorf("IntervalMs = %d, want clamped to %d", cfg.Refresh.IntervalMs, MinRefreshInterval.Milliseconds())
	}
	if cfg.Refresh.MaxAttempts != MaxRefreshAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.Refresh.MaxAttempts, MaxRefreshAttempts)
	}
	if cfg.Refresh.MissWarningThreshold != 1 {
		t.Errorf("MissWarningThreshold = %d, want 1", cfg.Refresh.MissWarningThreshold)
	}
	if cfg.Pricing.Model != DefaultPricingModel {
		t.Errorf("Pricing.Model = %q, want fallback %q", cfg.Pricing.Model, DefaultPricingModel)
	}
}
