package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cachewarm/internal/anthropic"
	"cachewarm/internal/config"
	"cachewarm/internal/daemon"
	"cachewarm/internal/notify"
	"cachewarm/internal/proxy"
	"cachewarm/internal/refresh"
	"cachewarm/internal/stats"
	"cachewarm/internal/store"
	"cachewarm/internal/tui"
	"cachewarm/internal/usage"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var flagHeadless bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the proxy, warmer, and dashboard",
	RunE:  runMonitor,
}

func init() {
	runCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Run without the dashboard (daemon API only)")
	rootCmd.AddCommand(runCmd)
}

// monitor ties the proxy's observations to the accountant and the
// refresh scheduler. It owns the conversation identity transition:
// a new identity resets the miss streak and cancels any pending warm.
type monitor struct {
	acct  *stats.Accountant
	sched *refresh.Scheduler
	st    *store.Store
	svc   *daemon.Service

	mu           sync.Mutex
	lastIdentity string
	msgCounts    map[string]int
}

func (m *monitor) onResult(meta proxy.Meta, f usage.Fields, found bool) {
	m.mu.Lock()
	changed := meta.ConversationID != m.lastIdentity
	m.lastIdentity = meta.ConversationID
	m.msgCounts[meta.ConversationID]++
	count := m.msgCounts[meta.ConversationID]
	m.mu.Unlock()

	if changed {
		m.sched.ConversationChanged(meta.ConversationID)
		m.acct.ResetStreak()
	}

	if found {
		m.acct.Record(f, meta.Model, meta.Provider)
		if m.st != nil {
			rec := stats.Record{
				Fields:     f,
				Model:      meta.Model,
				Provider:   meta.Provider,
				ObservedAt: time.Now(),
			}
			if err := m.st.InsertRecord(meta.RequestID, rec); err != nil {
				log.Printf("cachewarm store insert: %v", err)
			}
			if err := m.st.SaveSnapshot(m.acct.Snapshot()); err != nil {
				log.Printf("cachewarm store snapshot: %v", err)
			}
		}
		m.svc.PublishUsage()
	}

	// Every intercepted prompt restarts the warm countdown.
	m.sched.PromptCaptured(meta.ConversationID, count)
}

func runMonitor(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("cachewarm config: %v (continuing with defaults)", err)
		cfg = config.DefaultConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence is best-effort: a broken store degrades to in-memory.
	st, err := store.Open(config.StorePath())
	if err != nil {
		log.Printf("cachewarm: usage store unavailable, stats will not persist: %v", err)
		st = nil
	} else {
		defer st.Close()
	}

	// Refresh pings need an API key; without one, warming is off but
	// monitoring still works.
	refreshEnabled := cfg.Refresh.Enabled
	var ping refresh.PingFunc
	client := anthropic.NewClient(config.GetAPIKey(cfg), cfg.API.BaseURL, cfg.API.Model)
	if client == nil {
		if refreshEnabled {
			log.Printf("cachewarm: no API key configured, cache warming disabled (run `cachewarm setup`)")
		}
		refreshEnabled = false
	} else {
		ping = client.Ping
	}

	var alerts chan<- tui.AlertMsg
	var svc *daemon.Service

	sinks := []notify.Func{notify.Log}
	sinks = append(sinks, func(msg string, sev notify.Severity) {
		if svc != nil {
			svc.PublishAlert(msg, sev.String())
		}
	})
	if !flagHeadless {
		sinks = append(sinks, func(msg string, sev notify.Severity) {
			if alerts != nil {
				select {
				case alerts <- tui.AlertMsg{Message: msg, Severity: sev.String()}:
				default:
				}
			}
		})
	}
	notifier := notify.Fanout(sinks...)

	acct := stats.New(cfg.Pricing.Model, cfg.Refresh.MissWarningThreshold, stats.WithNotify(notifier))
	if st != nil {
		if snap, fnd, loadErr := st.LoadSnapshot(); loadErr == nil && fnd {
			var history []stats.Record
			if recent, recErr := st.RecentRecords(stats.HistoryCap); recErr == nil {
				// RecentRecords is newest-first; Restore wants oldest-first.
				for i := len(recent) - 1; i >= 0; i-- {
					history = append(history, recent[i])
				}
			}
			acct.Restore(snap, history)
		}
	}

	sched := refresh.New(refresh.Config{
		Interval:    cfg.Refresh.Interval(),
		MaxAttempts: cfg.Refresh.MaxAttempts,
		Enabled:     refreshEnabled,
	}, ping, refresh.SystemClock(), notifier)

	svc = daemon.New(daemon.Config{
		Addr:         cfg.Daemon.Addr,
		EventsBuffer: cfg.Daemon.EventsBuffer,
	}, acct, sched, func() {
		if st != nil {
			if resetErr := st.ResetAll(); resetErr != nil {
				log.Printf("cachewarm store reset: %v", resetErr)
			}
		}
	})
	sched.SetRenderHook(svc.PublishRefresh)

	mon := &monitor{
		acct:      acct,
		sched:     sched,
		st:        st,
		svc:       svc,
		msgCounts: make(map[string]int),
	}

	// The dashboard and its alert channel must exist before the proxy
	// starts: proxy handlers and scheduler timers call the notify sinks,
	// and the sink that forwards into the TUI reads `alerts`.
	var app tui.App
	if !flagHeadless {
		var alertCh chan<- tui.AlertMsg
		app, alertCh = tui.NewApp(acct, sched, cfg.Refresh.Interval())
		alerts = alertCh
	}

	pxy := proxy.NewServer(proxy.Config{
		Addr:      cfg.Proxy.Addr,
		Upstreams: cfg.Proxy.Upstreams,
		OnResult:  mon.onResult,
	})
	addr, err := pxy.Start()
	if err != nil {
		return err
	}
	defer pxy.Stop()
	log.Printf("cachewarm: proxy listening on %s, point clients at http://%s/anthropic/...", addr, addr)

	daemonErr := make(chan error, 1)
	go func() { daemonErr <- svc.Run(ctx) }()

	defer func() {
		sched.Stop()
		if st != nil {
			if saveErr := st.SaveSnapshot(acct.Snapshot()); saveErr != nil {
				log.Printf("cachewarm store snapshot: %v", saveErr)
			}
		}
	}()

	if flagHeadless {
		select {
		case <-ctx.Done():
			return nil
		case err := <-daemonErr:
			return err
		}
	}

	program := tea.NewProgram(app, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
