// Package daemon exposes the running monitor's state over a local HTTP
// API so status widgets, the TUI, and the CLI can observe one shared
// session without attaching to the process.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cachewarm/internal/refresh"
	"cachewarm/internal/stats"
)

// Config controls the daemon HTTP service.
type Config struct {
	Addr         string
	EventsBuffer int
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time        `json:"started_at"`
	Usage           stats.Snapshot   `json:"usage"`
	Refresh         refresh.Snapshot `json:"refresh"`
	EventCount      int              `json:"event_count"`
	SubscriberCount int              `json:"subscriber_count"`
}

// Event is emitted whenever the monitor's state changes.
type Event struct {
	ID        int64            `json:"id"`
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Message   string           `json:"message,omitempty"`
	Severity  string           `json:"severity,omitempty"`
	Usage     stats.Snapshot   `json:"usage"`
	Refresh   refresh.Snapshot `json:"refresh"`
	Delta     Delta            `json:"delta"`
}

// Delta is the change in usage totals since the previous event, so
// stream consumers can attribute activity to a single exchange without
// diffing snapshots themselves. Negative values follow a reset.
type Delta struct {
	Requests         int     `json:"requests"`
	Hits             int     `json:"hits"`
	Misses           int     `json:"misses"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	SavingsUSD       float64 `json:"savings_usd"`
}

func diffSnapshots(prev, cur stats.Snapshot) Delta {
	return Delta{
		Requests:         cur.TotalRequests - prev.TotalRequests,
		Hits:             cur.Hits - prev.Hits,
		Misses:           cur.Misses - prev.Misses,
		CacheReadTokens:  cur.CacheReadTokens - prev.CacheReadTokens,
		CacheWriteTokens: cur.CacheWriteTokens - prev.CacheWriteTokens,
		InputTokens:      cur.InputTokens - prev.InputTokens,
		OutputTokens:     cur.OutputTokens - prev.OutputTokens,
		SavingsUSD:       cur.EstimatedSavingsUSD - prev.EstimatedSavingsUSD,
	}
}

// Event types published by the service.
const (
	EventUsage   = "usage"
	EventRefresh = "refresh"
	EventAlert   = "alert"
)

// Service composes the accountant and scheduler into a status API.
type Service struct {
	cfg       Config
	acct      *stats.Accountant
	sched     *refresh.Scheduler
	onReset   func()
	startedAt time.Time

	mu          sync.RWMutex
	nextEventID int64
	events      []Event
	lastUsage   stats.Snapshot

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon service observing the given accountant and
// scheduler. onReset, if non-nil, runs after a reset request clears
// the session counters (persistence hooks live there).
func New(cfg Config, acct *stats.Accountant, sched *refresh.Scheduler, onReset func()) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}

	return &Service{
		cfg:       cfg,
		acct:      acct,
		sched:     sched,
		onReset:   onReset,
		startedAt: time.Now(),
		lastUsage: acct.Snapshot(),
		subs:      make(map[int]chan Event),
	}
}

// Run serves the HTTP API until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("daemon http server: %w", err)
	}
}

// Handler returns the daemon's HTTP mux.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.HandleFunc("/v1/reset", s.handleReset)
	return mux
}

// PublishUsage emits a usage event after a new record was accounted.
func (s *Service) PublishUsage() {
	s.publish(EventUsage, "", "")
}

// PublishRefresh emits a refresh event after a scheduler transition.
func (s *Service) PublishRefresh() {
	s.publish(EventRefresh, "", "")
}

// PublishAlert emits an alert event carrying a notification.
func (s *Service) PublishAlert(msg, severity string) {
	s.publish(EventAlert, msg, severity)
}

func (s *Service) publish(eventType, msg, severity string) {
	ev := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Message:   msg,
		Severity:  severity,
		Usage:     s.acct.Snapshot(),
		Refresh:   s.sched.Snapshot(),
	}

	s.mu.Lock()
	ev.Delta = diffSnapshots(s.lastUsage, ev.Usage)
	s.lastUsage = ev.Usage
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		Usage:           s.acct.Snapshot(),
		Refresh:         s.sched.Snapshot(),
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.acct.Reset()
	if s.onReset != nil {
		s.onReset()
	}
	s.PublishUsage()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.acct.Snapshot())
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current state immediately so clients render without waiting.
	current := Event{
		Type:      EventUsage,
		Timestamp: time.Now(),
		Usage:     s.acct.Snapshot(),
		Refresh:   s.sched.Snapshot(),
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
