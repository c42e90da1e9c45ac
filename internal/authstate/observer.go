package authstate

import (
	"time"

	"github.com/dgellow/stylefront/internal/log"
)

// Cause names what triggered a transition.
type Cause string

const (
	CauseCacheHint       Cause = "cache_hint"
	CauseBootSkipped     Cause = "boot_skipped"
	CauseBootVerified    Cause = "boot_verified"
	CauseBootSettled     Cause = "boot_settled"
	CauseExchangeStarted Cause = "exchange_started"
	CauseExchangeSuccess Cause = "exchange_succeeded"
	CauseExchangeFailure Cause = "exchange_failed"
	CauseExchangeSettled Cause = "exchange_settled"
	CauseStatusChecked   Cause = "status_checked"
	CauseLogout          Cause = "logout"
)

// Transition describes one state change.
type Transition struct {
	Cause Cause
	From  Snapshot
	To    Snapshot
	At    time.Time
}

// Observer is notified of every transition, after the state has changed.
type Observer interface {
	Transition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

func (f ObserverFunc) Transition(t Transition) { f(t) }

type multiObserver []Observer

func (m multiObserver) Transition(t Transition) {
	for _, o := range m {
		o.Transition(t)
	}
}

// Observers fans transitions out to every non-nil observer.
func Observers(observers ...Observer) Observer {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// LogObserver logs transitions with internal/log.
type LogObserver struct {
	// Page identifies the page the store belongs to in log lines.
	Page string
}

func (o LogObserver) Transition(t Transition) {
	fields := map[string]any{
		"page":    o.Page,
		"cause":   string(t.Cause),
		"from":    t.From.Phase().String(),
		"to":      t.To.Phase().String(),
		"version": t.To.Version,
	}
	if t.To.User != nil {
		fields["user"] = t.To.User.ID
	}
	switch t.Cause {
	case CauseExchangeFailure:
		log.LogInfoWithFields("authstate", "Session exchange failed", fields)
	case CauseExchangeSuccess, CauseLogout:
		log.LogInfoWithFields("authstate", "Auth state changed", fields)
	default:
		log.LogDebugWithFields("authstate", "Auth state changed", fields)
	}
}
