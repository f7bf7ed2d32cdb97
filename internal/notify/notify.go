// Package notify fans user-facing notifications out to interested sinks.
// Notifications are fire-and-forget: a sink must never block or fail the
// caller.
package notify

import "log"

// Severity classifies a notification for display purposes.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

// String returns the lowercase severity label used in event payloads.
func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Func receives one notification.
type Func func(msg string, sev Severity)

// Log writes notifications to the standard logger.
func Log(msg string, sev Severity) {
	log.Printf("cachewarm [%s] %s", sev, msg)
}

// Fanout returns a Func that forwards to every given sink. Nil sinks are
// skipped so callers can pass optional destinations directly.
func Fanout(sinks ...Func) Func {
	return func(msg string, sev Severity) {
		for _, sink := range sinks {
			if sink != nil {
				sink(msg, sev)
			}
		}
	}
}
