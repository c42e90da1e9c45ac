package server

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/stylefront/internal/authstate"
	"github.com/dgellow/stylefront/internal/browser"
	"github.com/dgellow/stylefront/internal/config"
	"github.com/dgellow/stylefront/internal/cookie"
	"github.com/dgellow/stylefront/internal/crypto"
	"github.com/dgellow/stylefront/internal/guard"
	jsonwriter "github.com/dgellow/stylefront/internal/json"
	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/routeguard"
	"github.com/dgellow/stylefront/internal/sessionapi"
)

// AuthHandlers provides the sign-in, sign-out and page state endpoints
type AuthHandlers struct {
	manager    *browser.Manager
	authConfig config.AuthConfig
	baseURL    string
	csrf       crypto.CSRFProtection
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(manager *browser.Manager, authConfig config.AuthConfig, baseURL string, csrf crypto.CSRFProtection) *AuthHandlers {
	return &AuthHandlers{
		manager:    manager,
		authConfig: authConfig,
		baseURL:    strings.TrimRight(baseURL, "/"),
		csrf:       csrf,
	}
}

// LoginHandler sends the visitor to the identity provider, which comes
// back to the landing path with a one-time session token.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	target, err := url.Parse(h.authConfig.LoginURL)
	if err != nil {
		log.LogErrorWithFields("auth", "Invalid login URL", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Sign-in is misconfigured")
		return
	}

	q := target.Query()
	q.Set("redirect_uri", h.baseURL+h.authConfig.LandingPath)
	target.RawQuery = q.Encode()

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// LogoutHandler ends the session. The form must carry the CSRF token that
// was issued with the page, matching the sf_csrf cookie.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := browser.GetBrowser(r.Context())
	if !ok {
		jsonwriter.WriteInternalServerError(w, "browser not initialized")
		return
	}

	if err := r.ParseForm(); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid form data")
		return
	}

	formToken := r.PostFormValue("csrf_token")
	cookieToken, err := cookie.GetCSRF(r)
	if err != nil || formToken == "" ||
		subtle.ConstantTimeCompare([]byte(formToken), []byte(cookieToken)) != 1 ||
		!h.csrf.Validate(b.ID(), formToken) {
		log.LogWarnWithFields("auth", "Rejected logout with invalid CSRF token", map[string]any{
			"browser": b.ID(),
		})
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	var page *browser.Page
	if id := r.PostFormValue("page_id"); id != "" {
		if p, err := h.manager.Page(id); err == nil && p.Browser() == b {
			page = p
		}
	}

	if err := h.manager.Logout(r.Context(), b, page); err != nil {
		log.LogWarnWithFields("auth", "Logout completed with errors", map[string]any{
			"browser": b.ID(),
			"error":   err.Error(),
		})
	} else {
		log.LogInfoWithFields("auth", "Browser logged out", map[string]any{
			"browser": b.ID(),
		})
	}

	cookie.Clear(w, cookie.CSRFCookie)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.authConfig.PublicPath, http.StatusSeeOther)
}

// PageState is the JSON view of a page polled by the waiting screen
type PageState struct {
	ID            string           `json:"id"`
	Phase         string           `json:"phase"`
	Verdict       string           `json:"verdict"`
	Authenticated bool             `json:"authenticated"`
	User          *sessionapi.User `json:"user,omitempty"`
	CachedUser    *sessionapi.User `json:"cachedUser,omitempty"`
	Location      string           `json:"location"`
	Redirect      string           `json:"redirect,omitempty"`
	Exchange      *ExchangeState   `json:"exchange,omitempty"`
}

// ExchangeState describes a finished session exchange
type ExchangeState struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable"`
}

// ownedPage returns the page named in the path if it belongs to the
// requesting browser. Other browsers' pages are reported as missing.
func (h *AuthHandlers) ownedPage(r *http.Request) (*browser.Page, bool) {
	b, ok := browser.GetBrowser(r.Context())
	if !ok {
		return nil, false
	}
	p, err := h.manager.Page(r.PathValue("id"))
	if err != nil || p.Browser() != b {
		return nil, false
	}
	return p, true
}

// PageStateHandler reports the current guard decision for a page
func (h *AuthHandlers) PageStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	p, ok := h.ownedPage(r)
	if !ok {
		jsonwriter.WriteNotFound(w, "Page not found")
		return
	}

	d := routeguard.Evaluate(p)
	state := PageState{
		ID:            p.ID(),
		Phase:         d.Snapshot.Phase().String(),
		Verdict:       d.Verdict.String(),
		Authenticated: d.Snapshot.IsAuthenticated,
		User:          d.Snapshot.User,
		CachedUser:    d.Snapshot.CachedUser,
		Location:      p.Location().String(),
	}
	if d.Verdict == guard.Deny {
		state.Redirect = h.authConfig.PublicPath
	}
	if out, ok := p.Exchange(); ok {
		state.Exchange = &ExchangeState{
			Status:    out.Status.String(),
			Reason:    string(out.Reason),
			Retryable: out.Reason.Retryable(),
		}
		if out.Status == authstate.ExchangeFailed {
			state.Exchange.Message = exchangeMessage(out)
		}
	}

	_ = jsonwriter.WriteResponse(w, http.StatusOK, state)
}

// UnmountHandler closes a page when its document goes away
func (h *AuthHandlers) UnmountHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	if p, ok := h.ownedPage(r); ok {
		h.manager.ClosePage(p.ID())
	}
	w.WriteHeader(http.StatusNoContent)
}
