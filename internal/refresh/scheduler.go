// Package refresh keeps the provider-side prompt cache warm by sending
// minimal ping requests before the cache TTL expires. The scheduler is a
// timer-driven state machine keyed to a conversation identity: refresh
// activity armed for one conversation must never fire after the active
// conversation changes.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cachewarm/internal/notify"
)

// State of the scheduler.
type State int

const (
	// Idle: no captured context, nothing scheduled.
	Idle State = iota
	// Armed: counting down to the next refresh.
	Armed
	// Refreshing: a refresh request is in flight.
	Refreshing
	// Exhausted: the attempt budget for this conversation is spent.
	Exhausted
	// Stopped: halted by the user or by disabling the feature.
	Stopped
)

// String returns the lowercase state label used in status payloads.
func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Refreshing:
		return "refreshing"
	case Exhausted:
		return "exhausted"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// failureBackoff is the fixed delay before re-arming after a failed ping.
// Failures delay the next attempt but never consume the attempt budget.
const failureBackoff = 5 * time.Second

// pingTimeout bounds a single refresh request.
const pingTimeout = 30 * time.Second

// PingFunc performs the minimal near-zero-cost request that resets the
// provider's cache TTL clock.
type PingFunc func(ctx context.Context) error

// Captured is the context snapshot taken when a generation completes.
type Captured struct {
	Identity     string
	MessageCount int
	CapturedAt   time.Time
}

// Config controls scheduler behavior.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Enabled     bool
}

// Snapshot is a read-only projection of scheduler state for display.
type Snapshot struct {
	State            State     `json:"-"`
	StateLabel       string    `json:"state"`
	Identity         string    `json:"identity,omitempty"`
	Attempts         int       `json:"attempts"`
	MaxAttempts      int       `json:"max_attempts"`
	SecondsRemaining int       `json:"seconds_remaining"`
	Deadline         time.Time `json:"deadline,omitzero"`
}

// Scheduler is the cache-refresh state machine. All methods are safe for
// concurrent use; at most one countdown timer is live at any moment.
type Scheduler struct {
	mu sync.Mutex

	cfg    Config
	clock  Clock
	ping   PingFunc
	notify notify.Func
	render func()

	state    State
	captured *Captured
	identity string // current active conversation
	armedFor string // identity recorded at arming time (fire guard)
	attempts int
	deadline time.Time
	timer    Timer
	gen      uint64 // arming generation; stale timer fires are discarded
}

// New returns a scheduler in the Idle state (Stopped when disabled).
func New(cfg Config, ping PingFunc, clock Clock, notifyFn notify.Func) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	s := &Scheduler{
		cfg:    cfg,
		clock:  clock,
		ping:   ping,
		notify: notifyFn,
	}
	if !cfg.Enabled {
		s.state = Stopped
	}
	return s
}

// SetRenderHook registers a callback invoked after state transitions.
func (s *Scheduler) SetRenderHook(fn func()) {
	s.mu.Lock()
	s.render = fn
	s.mu.Unlock()
}

// PromptCaptured records a completed generation for the given
// conversation and arms the refresh countdown. A new identity resets the
// attempt budget. No-op while stopped.
func (s *Scheduler) PromptCaptured(identity string, messageCount int) {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}

	if identity != s.identity {
		s.identity = identity
		s.attempts = 0
	}
	s.captured = &Captured{
		Identity:     identity,
		MessageCount: messageCount,
		CapturedAt:   s.clock.Now(),
	}

	if s.cfg.Enabled && s.attempts < s.cfg.MaxAttempts {
		s.armLocked(s.cfg.Interval)
	} else {
		s.cancelTimerLocked()
		s.state = Idle
	}
	s.mu.Unlock()
	s.renderNow()
}

// ConversationChanged cancels any pending refresh when the active
// conversation moves to a different identity.
func (s *Scheduler) ConversationChanged(identity string) {
	s.mu.Lock()
	if identity == s.identity {
		s.mu.Unlock()
		return
	}

	s.identity = identity
	s.attempts = 0
	s.captured = nil
	s.cancelTimerLocked()
	if s.state != Stopped {
		s.state = Idle
	}
	s.mu.Unlock()
	s.renderNow()
}

// Stop cancels all timers and halts the scheduler. Subsequent captures
// are ignored until Resume.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.captured = nil
	s.state = Stopped
	s.mu.Unlock()
	s.renderNow()
}

// Resume re-enables a stopped scheduler. The next capture re-arms it.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if s.state == Stopped {
		s.state = Idle
		s.cfg.Enabled = true
	}
	s.mu.Unlock()
	s.renderNow()
}

// armLocked schedules the next fire. Any previous timer is cancelled
// first so at most one countdown is ever live.
func (s *Scheduler) armLocked(delay time.Duration) {
	s.cancelTimerLocked()
	s.state = Armed
	s.armedFor = s.identity
	s.deadline = s.clock.Now().Add(delay)
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *Scheduler) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = time.Time{}
}

// fire runs when the countdown reaches zero. The generation check throws
// away fires from timers that were superseded between schedule and run.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Armed {
		s.mu.Unlock()
		return
	}

	// Identity guard: if the conversation drifted since arming, this
	// refresh is stale. Abort rather than warm the wrong cache.
	if s.identity != s.armedFor || s.captured == nil || s.captured.Identity != s.armedFor {
		s.cancelTimerLocked()
		s.state = Idle
		s.mu.Unlock()
		s.renderNow()
		return
	}

	s.state = Refreshing
	s.deadline = time.Time{}
	ping := s.ping
	firedFor := s.armedFor
	s.mu.Unlock()
	s.renderNow()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	err := ping(ctx)
	cancel()

	s.mu.Lock()
	if s.state != Refreshing || s.identity != firedFor {
		// Stopped or switched conversations while the ping was in
		// flight; discard the result.
		s.mu.Unlock()
		s.renderNow()
		return
	}

	var note string
	var sev notify.Severity

	if err != nil {
		// Failure does not consume the attempt budget; it only delays
		// the next arming.
		note = fmt.Sprintf("cache refresh failed: %v", err)
		sev = notify.Warning
		s.armLocked(failureBackoff)
	} else {
		s.attempts++
		if s.attempts >= s.cfg.MaxAttempts {
			s.cancelTimerLocked()
			s.state = Exhausted
			note = fmt.Sprintf("refresh limit reached (%d) for this conversation", s.cfg.MaxAttempts)
			sev = notify.Info
		} else {
			s.armLocked(s.cfg.Interval)
		}
	}
	notifyFn := s.notify
	s.mu.Unlock()

	if note != "" && notifyFn != nil {
		notifyFn(note, sev)
	}
	s.renderNow()
}

func (s *Scheduler) renderNow() {
	s.mu.Lock()
	render := s.render
	s.mu.Unlock()
	if render != nil {
		render()
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the attempts consumed for the current conversation.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// SecondsRemaining derives the countdown from the armed deadline. It is
// a pure projection of the deadline timestamp, so the display can never
// drift from the fire timer. Zero when not armed.
func (s *Scheduler) SecondsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secondsRemainingLocked()
}

func (s *Scheduler) secondsRemainingLocked() int {
	if s.state != Armed || s.deadline.IsZero() {
		return 0
	}
	remaining := s.deadline.Sub(s.clock.Now())
	if remaining < 0 {
		return 0
	}
	return int(remaining.Round(time.Second) / time.Second)
}

// Snapshot returns a copy of the displayable scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:            s.state,
		StateLabel:       s.state.String(),
		Identity:         s.identity,
		Attempts:         s.attempts,
		MaxAttempts:      s.cfg.MaxAttempts,
		SecondsRemaining: s.secondsRemainingLocked(),
		Deadline:         s.deadline,
	}
}
