// Package guard decides whether a guarded view may navigate away yet.
package guard

import "github.com/dgellow/stylefront/internal/authstate"

// Verdict is the three-valued answer of Decide.
type Verdict int

const (
	// Hold renders a neutral waiting state and performs no navigation.
	Hold Verdict = iota
	// Deny sends the visitor to the public location.
	Deny
	// Allow renders the protected content.
	Allow
)

func (v Verdict) String() string {
	switch v {
	case Hold:
		return "hold"
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Input is everything Decide looks at. Build it from one snapshot.
type Input struct {
	IsInitializing  bool
	OAuthInFlight   bool
	TokenPresent    bool
	IsAuthenticated bool
}

// Decide holds while anything is pending, including a token that is visible
// in the address but not yet picked up by an exchange.
func Decide(in Input) Verdict {
	if in.IsInitializing || in.OAuthInFlight || in.TokenPresent {
		return Hold
	}
	if in.IsAuthenticated {
		return Allow
	}
	return Deny
}

// FromSnapshot builds the input from a store snapshot and the page address.
func FromSnapshot(snap authstate.Snapshot, tokenPresent bool) Input {
	return Input{
		IsInitializing:  snap.IsInitializing,
		OAuthInFlight:   snap.OAuthInFlight,
		TokenPresent:    tokenPresent,
		IsAuthenticated: snap.IsAuthenticated,
	}
}
