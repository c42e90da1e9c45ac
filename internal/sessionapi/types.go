package sessionapi

import "context"

// User is the profile returned by the backend for an authenticated session.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// FailureReason classifies a failed session exchange.
type FailureReason string

const (
	// ReasonInvalidToken means the backend rejected the session token
	// (unknown, expired or already consumed).
	ReasonInvalidToken FailureReason = "invalid_token"

	// ReasonNetwork covers transport errors, timeouts and cancellation.
	ReasonNetwork FailureReason = "network"

	// ReasonServer covers 5xx answers and malformed success bodies.
	ReasonServer FailureReason = "server"
)

// Retryable reports whether a user-initiated retry can help.
func (r FailureReason) Retryable() bool {
	return r == ReasonNetwork || r == ReasonServer
}

// VerifyResult is the outcome of VerifySession.
type VerifyResult struct {
	Valid bool
	User  *User
}

// ExchangeResult is the outcome of ExchangeSession.
type ExchangeResult struct {
	Success bool
	User    *User
	Reason  FailureReason
	Message string
}

// SessionClient is the contract the auth state store depends on.
type SessionClient interface {
	VerifySession(ctx context.Context) VerifyResult
	ExchangeSession(ctx context.Context, token string) ExchangeResult
	Logout(ctx context.Context) error
}
