// Package routeguard turns guard verdicts into HTTP behavior for protected
// and public-only routes.
package routeguard

import (
	"context"
	"net/http"
	"time"

	"github.com/dgellow/stylefront/internal/authstate"
	"github.com/dgellow/stylefront/internal/browser"
	"github.com/dgellow/stylefront/internal/guard"
	"github.com/dgellow/stylefront/internal/json"
	"github.com/dgellow/stylefront/internal/log"
)

// Decision is a verdict together with the snapshot it was derived from.
type Decision struct {
	Verdict      guard.Verdict
	Snapshot     authstate.Snapshot
	TokenPresent bool
}

// Evaluate decides for page right now. The address is read before the
// snapshot: the token is removed only after the user is set, so this order
// never pairs a token-free address with a pre-exchange snapshot.
func Evaluate(page *browser.Page) Decision {
	tokenPresent := page.TokenPresent()
	snap := page.Store().Snapshot()
	return Decision{
		Verdict:      guard.Decide(guard.FromSnapshot(snap, tokenPresent)),
		Snapshot:     snap,
		TokenPresent: tokenPresent,
	}
}

// Settle waits up to d for a verdict other than Hold, so quick resolutions
// render directly instead of flashing the waiting screen. A failed exchange
// also ends the wait: the verdict stays Hold while the token is in the
// address, but the error screen can be shown right away. It returns the
// current decision either way.
func Settle(ctx context.Context, page *browser.Page, d time.Duration) Decision {
	if d <= 0 {
		return Evaluate(page)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	// The outcome is recorded after the store's last transition, so the
	// store alone never wakes the wait for it.
	go func() {
		select {
		case <-page.ExchangeDone():
			cancel()
		case <-ctx.Done():
		}
	}()

	_, _ = page.Store().Wait(ctx, func(authstate.Snapshot) bool {
		return Evaluate(page).Verdict != guard.Hold || exchangeFailed(page)
	})
	return Evaluate(page)
}

func exchangeFailed(page *browser.Page) bool {
	out, ok := page.Exchange()
	return ok && out.Status == authstate.ExchangeFailed
}

type decisionKey struct{}

// WithDecision stores the decision a guard made for this request.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// GetDecision returns the decision made by the guard in front of the
// handler. Handlers render from it instead of reading the store again.
func GetDecision(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}

// Options configures the guards.
type Options struct {
	// Hold renders the waiting state. Required for ProtectedRoute; for
	// PublicOnlyRoute a nil Hold renders the public content.
	Hold http.Handler

	// Deny handles unauthenticated visitors on protected routes. Defaults
	// to a 303 redirect to PublicPath.
	Deny http.Handler

	// PublicPath defaults to "/".
	PublicPath string

	// AuthenticatedPath is where PublicOnlyRoute sends signed-in visitors.
	// Defaults to "/dashboard".
	AuthenticatedPath string

	// Settle is how long a request may wait for a pending state to resolve.
	Settle time.Duration
}

func (o Options) withDefaults() Options {
	if o.PublicPath == "" {
		o.PublicPath = "/"
	}
	if o.AuthenticatedPath == "" {
		o.AuthenticatedPath = "/dashboard"
	}
	if o.Deny == nil {
		o.Deny = redirect(o.PublicPath)
	}
	if o.Hold == nil {
		o.Hold = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusAccepted)
		})
	}
	return o
}

func redirect(to string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, to, http.StatusSeeOther)
	})
}

// ProtectedRoute holds while authentication is pending, denies anonymous
// visitors and lets authenticated ones through.
func ProtectedRoute(opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			page, ok := browser.GetPage(r.Context())
			if !ok {
				log.LogErrorWithFields("routeguard", "Protected route reached without a page", map[string]any{
					"path": r.URL.Path,
				})
				json.WriteInternalServerError(w, "page not initialized")
				return
			}

			d := Settle(r.Context(), page, opts.Settle)
			ctx := WithDecision(r.Context(), d)
			log.LogTraceWithFields("routeguard", "Protected route decision", map[string]any{
				"page":    page.ID(),
				"path":    r.URL.Path,
				"verdict": d.Verdict.String(),
				"phase":   d.Snapshot.Phase().String(),
			})

			switch d.Verdict {
			case guard.Hold:
				opts.Hold.ServeHTTP(w, r.WithContext(ctx))
			case guard.Deny:
				opts.Deny.ServeHTTP(w, r.WithContext(ctx))
			default:
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// PublicOnlyRoute sends authenticated visitors to the authenticated landing
// area once nothing is pending, and renders the public content otherwise.
func PublicOnlyRoute(opts Options) func(http.Handler) http.Handler {
	custom := opts.Hold
	opts = opts.withDefaults()
	toApp := redirect(opts.AuthenticatedPath)

	return func(next http.Handler) http.Handler {
		hold := custom
		if hold == nil {
			hold = next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			page, ok := browser.GetPage(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			d := Settle(r.Context(), page, opts.Settle)
			ctx := WithDecision(r.Context(), d)

			switch {
			case d.Verdict == guard.Hold:
				hold.ServeHTTP(w, r.WithContext(ctx))
			case d.Snapshot.IsAuthenticated:
				toApp.ServeHTTP(w, r.WithContext(ctx))
			default:
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}
