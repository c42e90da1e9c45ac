package authstate

import "github.com/dgellow/stylefront/internal/sessionapi"

// Snapshot is a consistent read of the store. Guards and views take exactly
// one snapshot per decision.
type Snapshot struct {
	User            *sessionapi.User
	IsAuthenticated bool
	IsInitializing  bool
	OAuthInFlight   bool

	// CachedUser is the last user seen by this browser. It is a display
	// hint and never makes the snapshot authenticated.
	CachedUser *sessionapi.User

	// Version increases by one on every transition.
	Version uint64
}

// Phase is the coarse state of a store.
type Phase int

const (
	PhaseBooting Phase = iota
	PhaseOAuthExchanging
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseBooting:
		return "booting"
	case PhaseOAuthExchanging:
		return "oauth_exchanging"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Phase derives the coarse state. An exchange in flight dominates booting.
func (s Snapshot) Phase() Phase {
	switch {
	case s.OAuthInFlight:
		return PhaseOAuthExchanging
	case s.IsInitializing:
		return PhaseBooting
	case s.IsAuthenticated:
		return PhaseAuthenticated
	default:
		return PhaseUnauthenticated
	}
}

// Resolved reports whether neither the boot check nor an exchange is pending.
func (s Snapshot) Resolved() bool {
	return !s.IsInitializing && !s.OAuthInFlight
}

// DisplayUser returns the user to show in chrome such as a header avatar:
// the authenticated user, or the cached hint while booting.
func (s Snapshot) DisplayUser() *sessionapi.User {
	if s.User != nil {
		return s.User
	}
	if s.IsInitializing {
		return s.CachedUser
	}
	return nil
}

// state is the mutable part of a store, guarded by Store.mu.
type state struct {
	user           *sessionapi.User
	isInitializing bool
	oauthInFlight  bool
	cachedUser     *sessionapi.User
}

func (st state) snapshot(version uint64) Snapshot {
	return Snapshot{
		User:            st.user,
		IsAuthenticated: st.user != nil,
		IsInitializing:  st.isInitializing,
		OAuthInFlight:   st.oauthInFlight,
		CachedUser:      st.cachedUser,
		Version:         version,
	}
}
