package daemon

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cachewarm/internal/refresh"
	"cachewarm/internal/stats"
	"cachewarm/internal/usage"
)

func testService(t *testing.T, buffer int) *Service {
	t.Helper()
	acct := stats.New("claude-sonnet-4-5", 3)
	sched := refresh.New(refresh.Config{
		Interval:    5 * time.Minute,
		MaxAttempts: 5,
		Enabled:     false,
	}, nil, refresh.SystemClock(), nil)
	return New(Config{EventsBuffer: buffer}, acct, sched, nil)
}

func TestService_StatusComposesSnapshots(t *testing.T) {
	s := testService(t, 10)
	s.acct.Record(usage.Fields{InputTokens: 100, CacheReadTokens: 500}, "claude-sonnet-4-5", "anthropic")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Usage.TotalRequests != 1 || st.Usage.Hits != 1 {
		t.Errorf("usage snapshot: %+v", st.Usage)
	}
	if st.Refresh.StateLabel != "stopped" {
		t.Errorf("refresh state = %q, want stopped", st.Refresh.StateLabel)
	}
}

func TestService_EventRingBuffer(t *testing.T) {
	s := testService(t, 2)

	s.PublishUsage()
	s.PublishRefresh()
	s.PublishAlert("cache gone cold", "warning")

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
	if s.events[1].Type != EventAlert || s.events[1].Message != "cache gone cold" {
		t.Errorf("alert event: %+v", s.events[1])
	}
}

func TestService_EventDeltas(t *testing.T) {
	s := testService(t, 10)

	s.acct.Record(usage.Fields{InputTokens: 100, CacheReadTokens: 500}, "claude-sonnet-4-5", "anthropic")
	s.PublishUsage()
	s.acct.Record(usage.Fields{InputTokens: 40, OutputTokens: 7}, "claude-sonnet-4-5", "anthropic")
	s.PublishUsage()

	s.mu.RLock()
	defer s.mu.RUnlock()

	first, second := s.events[0].Delta, s.events[1].Delta
	if first.Requests != 1 || first.Hits != 1 || first.CacheReadTokens != 500 {
		t.Errorf("first delta: %+v", first)
	}
	if second.Requests != 1 || second.Misses != 1 || second.InputTokens != 40 || second.OutputTokens != 7 {
		t.Errorf("second delta: %+v", second)
	}
	if second.CacheReadTokens != 0 {
		t.Errorf("second delta cache reads = %d, want 0", second.CacheReadTokens)
	}
}

func TestService_EventsEndpoint(t *testing.T) {
	s := testService(t, 10)
	s.PublishUsage()
	s.PublishAlert("warming failed", "error")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/events")
	if err != nil {
		t.Fatalf("events request: %v", err)
	}
	defer resp.Body.Close()

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventUsage || events[1].Type != EventAlert {
		t.Errorf("event types: %s, %s", events[0].Type, events[1].Type)
	}
}

func TestService_ResetEndpoint(t *testing.T) {
	resetCalls := 0
	acct := stats.New("claude-sonnet-4-5", 3)
	sched := refresh.New(refresh.Config{Interval: time.Minute, MaxAttempts: 1}, nil, refresh.SystemClock(), nil)
	s := New(Config{EventsBuffer: 10}, acct, sched, func() { resetCalls++ })

	acct.Record(usage.Fields{InputTokens: 10}, "m", "anthropic")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// GET is rejected.
	resp, err := http.Get(srv.URL + "/v1/reset")
	if err != nil {
		t.Fatalf("get reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/v1/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("post reset: %v", err)
	}
	defer resp.Body.Close()

	var snap stats.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode reset response: %v", err)
	}
	if snap.TotalRequests != 0 {
		t.Errorf("counters survive reset: %+v", snap)
	}
	if resetCalls != 1 {
		t.Errorf("onReset called %d times, want 1", resetCalls)
	}
}

func TestService_StreamSendsInitialState(t *testing.T) {
	s := testService(t, 10)
	s.acct.Record(usage.Fields{CacheReadTokens: 999}, "m", "anthropic")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/stream")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	var dataLine string
	deadline := time.After(2 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(done)
				return
			}
			if strings.HasPrefix(line, "data:") {
				dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-deadline:
		t.Fatal("timed out waiting for initial stream event")
	}

	var ev Event
	if err := json.Unmarshal([]byte(dataLine), &ev); err != nil {
		t.Fatalf("decode stream event: %v", err)
	}
	if ev.Usage.CacheReadTokens != 999 {
		t.Errorf("initial event usage: %+v", ev.Usage)
	}
}
