// Package tui provides the interactive Bubble Tea dashboard for cachewarm.
package tui

import (
	"fmt"
	"strings"
	"time"

	"cachewarm/internal/cli"
	"cachewarm/internal/refresh"
	"cachewarm/internal/stats"
	"cachewarm/internal/tui/components"
	"cachewarm/internal/tui/theme"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TickMsg drives the per-second countdown refresh.
type TickMsg time.Time

// AlertMsg carries a notification into the status line.
type AlertMsg struct {
	Message  string
	Severity string
}

// App is the root Bubble Tea model. It reads the accountant and
// scheduler directly; both are safe for concurrent use.
type App struct {
	acct  *stats.Accountant
	sched *refresh.Scheduler

	// Interval the scheduler re-arms with, for the countdown bar scale.
	interval time.Duration

	width  int
	height int

	spinner   spinner.Model
	lastAlert AlertMsg
	alertAt   time.Time

	alerts chan AlertMsg
}

const (
	minTerminalWidth = 60
	maxContentWidth  = 110
	alertLinger      = 15 * time.Second
)

// NewApp creates the dashboard model. The returned alert channel feeds
// notifications into the status line; wire it as a notify sink.
func NewApp(acct *stats.Accountant, sched *refresh.Scheduler, interval time.Duration) (App, chan<- AlertMsg) {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	alerts := make(chan AlertMsg, 8)
	return App{
		acct:     acct,
		sched:    sched,
		interval: interval,
		spinner:  sp,
		alerts:   alerts,
	}, alerts
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, tickCmd(), waitAlertCmd(a.alerts))
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitAlertCmd(ch chan AlertMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case TickMsg:
		return a, tickCmd()

	case AlertMsg:
		a.lastAlert = msg
		a.alertAt = time.Now()
		return a, waitAlertCmd(a.alerts)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "r":
			a.acct.Reset()
			return a, nil
		case "w":
			snap := a.sched.Snapshot()
			if snap.State == refresh.Stopped {
				a.sched.Resume()
			} else {
				a.sched.Stop()
			}
			return a, nil
		}
	}

	return a, nil
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return "loading..."
	}
	if a.width < minTerminalWidth {
		return fmt.Sprintf("terminal too narrow (%d cols, need %d)", a.width, minTerminalWidth)
	}

	width := a.width
	if width > maxContentWidth {
		width = maxContentWidth
	}

	var b strings.Builder
	b.WriteString(a.renderHeader(width))
	b.WriteString("\n")
	b.WriteString(a.renderMetrics(width))
	b.WriteString("\n")
	b.WriteString(a.renderRefresh(width))
	b.WriteString("\n")
	b.WriteString(a.renderHistory(width))
	b.WriteString("\n")
	b.WriteString(a.renderStatusLine(width))
	return b.String()
}

func (a App) renderHeader(width int) string {
	t := theme.Active
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(t.TextPrimary).
		Render("cachewarm")
	sub := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Render("  prompt cache monitor")
	return lipgloss.NewStyle().Width(width).Render(title + sub)
}

func (a App) renderMetrics(width int) string {
	snap := a.acct.Snapshot()

	cards := []struct{ Label, Value, Detail string }{
		{
			Label:  "Requests",
			Value:  cli.FormatNumber(int64(snap.TotalRequests)),
			Detail: fmt.Sprintf("%d hit / %d miss", snap.Hits, snap.Misses),
		},
		{
			Label:  "Hit rate",
			Value:  cli.FormatPercent(snap.HitRate()),
			Detail: lastHitDetail(snap),
		},
		{
			Label:  "Cache reads",
			Value:  cli.FormatTokens(snap.CacheReadTokens),
			Detail: cli.FormatTokens(snap.CacheWriteTokens) + " written",
		},
		{
			Label:  "Est. savings",
			Value:  cli.FormatCost(snap.EstimatedSavingsUSD),
			Detail: cli.FormatTokens(snap.InputTokens+snap.OutputTokens) + " in+out",
		},
	}
	return components.MetricCardRow(cards, width)
}

func lastHitDetail(snap stats.Snapshot) string {
	if snap.LastHitAt.IsZero() {
		return "no hits yet"
	}
	return "last " + time.Since(snap.LastHitAt).Round(time.Second).String() + " ago"
}

func (a App) renderRefresh(width int) string {
	snap := a.sched.Snapshot()

	var body strings.Builder
	stateLine := "state: " + cli.RenderRefreshState(snap.StateLabel)
	if snap.State == refresh.Refreshing {
		stateLine += " " + a.spinner.View()
	}
	body.WriteString(stateLine)
	body.WriteString("\n")

	switch snap.State {
	case refresh.Armed:
		total := int(a.interval / time.Second)
		barWidth := components.CardInnerWidth(width) - 10
		if barWidth > 40 {
			barWidth = 40
		}
		body.WriteString("next warm " + cli.RenderCountdownBar(snap.SecondsRemaining, total, barWidth))
	case refresh.Exhausted:
		body.WriteString("attempt limit reached for this conversation")
	case refresh.Stopped:
		body.WriteString("warming off (press w to resume)")
	default:
		body.WriteString("waiting for a prompt")
	}
	body.WriteString("\n")
	body.WriteString(fmt.Sprintf("attempts: %d/%d", snap.Attempts, snap.MaxAttempts))
	if snap.Identity != "" {
		body.WriteString("  conversation: " + truncate(snap.Identity, 40))
	}

	return components.ContentCard("Cache refresh", body.String(), width)
}

func (a App) renderHistory(width int) string {
	history := a.acct.History()

	if len(history) == 0 {
		return components.ContentCard("Recent requests", "nothing intercepted yet", width)
	}

	// Newest first, at most what fits in a short card.
	show := 5
	if len(history) < show {
		show = len(history)
	}

	var body strings.Builder
	for i := 0; i < show; i++ {
		r := history[len(history)-1-i]
		marker := "miss"
		if r.IsHit() {
			marker = "hit "
		}
		line := fmt.Sprintf("%s  %s  %s read  %s",
			r.ObservedAt.Format("15:04:05"),
			marker,
			cli.FormatTokens(r.CacheReadTokens),
			truncate(r.Model, 28),
		)
		body.WriteString(line)
		if i < show-1 {
			body.WriteString("\n")
		}
	}
	return components.ContentCard("Recent requests", body.String(), width)
}

func (a App) renderStatusLine(width int) string {
	t := theme.Active

	keys := lipgloss.NewStyle().Foreground(t.TextDim).
		Render("q quit · r reset · w warming on/off")

	alert := ""
	if a.lastAlert.Message != "" && time.Since(a.alertAt) < alertLinger {
		style := lipgloss.NewStyle().Foreground(t.Yellow)
		if a.lastAlert.Severity == "error" {
			style = style.Foreground(t.Red)
		}
		alert = style.Render(a.lastAlert.Message) + "  "
	}

	return lipgloss.NewStyle().Width(width).Render(alert + keys)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
