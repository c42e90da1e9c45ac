package authstate

import (
	"context"
	"fmt"

	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/sessionapi"
)

// ExchangeStatus is the result class of Exchange.
type ExchangeStatus int

const (
	// ExchangeSkipped means another exchange was running or had already run
	// on this store, or the store was disposed.
	ExchangeSkipped ExchangeStatus = iota
	ExchangeSucceeded
	ExchangeFailed
	// ExchangeDiscarded means the exchange succeeded remotely but a logout
	// ran while it was in flight, so the session was not adopted.
	ExchangeDiscarded
)

func (s ExchangeStatus) String() string {
	switch s {
	case ExchangeSkipped:
		return "skipped"
	case ExchangeSucceeded:
		return "succeeded"
	case ExchangeFailed:
		return "failed"
	case ExchangeDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// ExchangeOutcome is what Exchange reports to the view that triggered it.
type ExchangeOutcome struct {
	Status  ExchangeStatus
	User    *sessionapi.User
	Reason  sessionapi.FailureReason
	Message string

	// CleanupErr is set when the cleanup step failed or panicked. It does
	// not turn a successful exchange into a failed one.
	CleanupErr error
}

// Exchange trades a one-time session token for a session. It runs at most
// once per store: a second call, concurrent or later, returns
// ExchangeSkipped without touching the network.
//
// On success cleanup runs before oauthInFlight is released; the landing view
// uses it to replace the address so the consumed token cannot be replayed.
// On failure nothing navigates: the reason is returned for the view to show.
// A logout while the call is in flight wins over its success.
func (s *Store) Exchange(ctx context.Context, token string, cleanup func() error) (out ExchangeOutcome) {
	var epoch uint64
	_, started := s.update(CauseExchangeStarted, func(st *state) bool {
		if s.disposed || s.exchanged || st.oauthInFlight {
			return false
		}
		s.exchanged = true
		st.oauthInFlight = true
		epoch = s.userEpoch
		return true
	})
	if !started {
		log.LogDebugWithFields("authstate", "Session exchange skipped", nil)
		return ExchangeOutcome{Status: ExchangeSkipped}
	}

	callCtx, cancel := s.detach(ctx)
	defer cancel()

	// Released last, after cleanup, on every path.
	defer s.update(CauseExchangeSettled, func(st *state) bool {
		st.oauthInFlight = false
		return true
	})

	result := s.client.ExchangeSession(callCtx, token)
	if result.Success && result.User == nil {
		result = sessionapi.ExchangeResult{Reason: sessionapi.ReasonServer}
	}

	if !result.Success {
		s.update(CauseExchangeFailure, func(st *state) bool {
			st.user = nil
			st.oauthInFlight = false
			s.userEpoch++
			return true
		})
		return ExchangeOutcome{
			Status:  ExchangeFailed,
			Reason:  result.Reason,
			Message: result.Message,
		}
	}

	adopted := false
	s.update(CauseExchangeSuccess, func(st *state) bool {
		if s.userEpoch != epoch {
			return false
		}
		adopted = true
		st.user = result.User
		st.cachedUser = nil
		s.userEpoch++
		return true
	})

	if adopted {
		s.cachePut(callCtx, result.User)
		out = ExchangeOutcome{Status: ExchangeSucceeded, User: result.User}
	} else {
		log.LogInfoWithFields("authstate", "Session exchange discarded after logout", nil)
		// The new session cookie may already be in the jar; end it too.
		if err := s.client.Logout(callCtx); err != nil {
			log.LogWarnWithFields("authstate", "Remote logout of discarded session failed", map[string]any{
				"error": err.Error(),
			})
		}
		out = ExchangeOutcome{Status: ExchangeDiscarded}
	}
	if cleanup != nil {
		out.CleanupErr = runCleanup(cleanup)
		if out.CleanupErr != nil {
			log.LogWarnWithFields("authstate", "Session token cleanup failed", map[string]any{
				"error": out.CleanupErr.Error(),
			})
		}
	}
	return out
}

// Login exchanges a session token outside the landing flow. It shares the
// once-per-store rule with Exchange.
func (s *Store) Login(ctx context.Context, token string) ExchangeOutcome {
	return s.Exchange(ctx, token, nil)
}

func runCleanup(cleanup func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panicked: %v", r)
		}
	}()
	return cleanup()
}
