package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/stylefront/internal/authstate"
	"github.com/dgellow/stylefront/internal/browser"
	"github.com/dgellow/stylefront/internal/config"
	"github.com/dgellow/stylefront/internal/cookie"
	"github.com/dgellow/stylefront/internal/crypto"
	jsonwriter "github.com/dgellow/stylefront/internal/json"
	"github.com/dgellow/stylefront/internal/location"
	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/routeguard"
	"github.com/dgellow/stylefront/internal/sessionapi"
)

const (
	loginPath  = "/auth/login"
	logoutPath = "/auth/logout"
	pagesPath  = "/auth/pages/"
)

// PageHandlers renders the document routes: the public home page and the
// guarded application pages, together with their waiting and error states.
type PageHandlers struct {
	manager    *browser.Manager
	authConfig config.AuthConfig
	appName    string
	csrf       crypto.CSRFProtection
	nav        []NavLink
}

// NewPageHandlers creates page handlers. protected lists the guarded paths
// in navigation order.
func NewPageHandlers(manager *browser.Manager, authConfig config.AuthConfig, appName string, csrf crypto.CSRFProtection, protected []string) *PageHandlers {
	nav := make([]NavLink, 0, len(protected))
	for _, p := range protected {
		nav = append(nav, NavLink{Path: p, Label: pageTitle(p)})
	}
	return &PageHandlers{
		manager:    manager,
		authConfig: authConfig,
		appName:    appName,
		csrf:       csrf,
		nav:        nav,
	}
}

// pageTitle turns "/saved-looks" into "Saved looks".
func pageTitle(path string) string {
	name := strings.Trim(path, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "Home"
	}
	name = strings.ReplaceAll(name, "-", " ")
	return strings.ToUpper(name[:1]) + name[1:]
}

func stateURL(pageID string) string {
	return pagesPath + url.PathEscape(pageID)
}

func unmountURL(pageID string) string {
	return stateURL(pageID) + "/unmount"
}

func (h *PageHandlers) chrome(p *browser.Page) Chrome {
	c := Chrome{
		AppName:     h.appName,
		LandingPath: h.authConfig.LandingPath,
		TokenParam:  location.SessionTokenParam,
		LoginPath:   loginPath,
		PublicPath:  h.authConfig.PublicPath,
	}
	if p != nil {
		c.PageID = p.ID()
		c.UnmountURL = unmountURL(p.ID())
	}
	return c
}

// OpenPage registers a page for every document request and starts the
// session exchange when a token arrives on the landing path. A token on
// any other path is never exchanged: the visitor is sent to the same
// address without it.
func (h *PageHandlers) OpenPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := browser.GetBrowser(r.Context())
		if !ok {
			log.LogErrorWithFields("server", "Page route reached without a browser", map[string]any{
				"path": r.URL.Path,
			})
			jsonwriter.WriteInternalServerError(w, "browser not initialized")
			return
		}

		loc := location.FromURL(r.URL)
		tokenPresent := location.HasSessionToken(loc)
		if tokenPresent && loc.Path != h.authConfig.LandingPath {
			log.LogWarnWithFields("server", "Dropping session token outside the landing path", map[string]any{
				"path": loc.Path,
			})
			w.Header().Set("Cache-Control", "no-store")
			http.Redirect(w, r, location.WithoutSessionToken(loc).String(), http.StatusSeeOther)
			return
		}

		p, err := h.manager.OpenPage(r.Context(), b, loc)
		if err != nil {
			if errors.Is(err, browser.ErrShutdown) {
				jsonwriter.WriteUnavailable(w, "Server is shutting down", shutdownRetryAfter)
				return
			}
			log.LogErrorWithFields("server", "Failed to open page", map[string]any{
				"browser": b.ID(),
				"error":   err.Error(),
			})
			jsonwriter.WriteInternalServerError(w, "Failed to open page")
			return
		}

		if tokenPresent {
			go func() {
				out, err := p.BootOutcome()
				if err == nil && out.SkippedVerify {
					p.StartExchange(out.Token)
				}
			}()
		}

		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, r.WithContext(browser.WithPage(r.Context(), p)))

		// A redirected document never loads, so nothing will unmount it.
		if status := wrapped.Status(); status >= 300 && status < 400 {
			h.manager.ClosePage(p.ID())
		}
	})
}

// Public renders the public home page. Visitors the browser has seen
// before get their cached name as a greeting, never as a signed-in state.
func (h *PageHandlers) Public(w http.ResponseWriter, r *http.Request) {
	p, _ := browser.GetPage(r.Context())
	data := PublicPageData{Chrome: h.chrome(p)}
	if d, ok := routeguard.GetDecision(r.Context()); ok {
		data.CachedUser = d.Snapshot.CachedUser
	}
	render(w, http.StatusOK, "public.html", data)
}

// App renders a guarded page for an authenticated visitor.
func (h *PageHandlers) App(title string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := browser.GetPage(r.Context())
		if !ok {
			jsonwriter.WriteInternalServerError(w, "page not initialized")
			return
		}
		d, _ := routeguard.GetDecision(r.Context())

		csrfToken, err := h.csrf.Generate(p.Browser().ID())
		if err != nil {
			log.LogErrorWithFields("server", "Failed to generate CSRF token", map[string]any{
				"error": err.Error(),
			})
			jsonwriter.WriteInternalServerError(w, "Failed to render page")
			return
		}
		cookie.SetCSRF(w, csrfToken)

		nav := make([]NavLink, len(h.nav))
		copy(nav, h.nav)
		for i := range nav {
			nav[i].Current = nav[i].Path == r.URL.Path
		}

		data := AppPageData{
			Chrome:     h.chrome(p),
			Title:      title,
			User:       d.Snapshot.User,
			Nav:        nav,
			CSRFToken:  csrfToken,
			LogoutPath: logoutPath,
		}
		if current := p.Location().String(); current != r.URL.RequestURI() {
			data.ReplaceURL = current
		}
		render(w, http.StatusOK, "app.html", data)
	})
}

// Hold renders the neutral waiting screen, or the sign-in error once an
// exchange has failed. It never navigates.
func (h *PageHandlers) Hold(w http.ResponseWriter, r *http.Request) {
	p, ok := browser.GetPage(r.Context())
	if !ok {
		jsonwriter.WriteInternalServerError(w, "page not initialized")
		return
	}

	if out, ok := p.Exchange(); ok && out.Status == authstate.ExchangeFailed {
		data := ExchangeErrorData{
			Chrome:  h.chrome(p),
			Message: exchangeMessage(out),
		}
		if out.Reason.Retryable() {
			data.RetryURL = r.URL.RequestURI()
		}
		render(w, exchangeErrorStatus(out.Reason), "exchange_error.html", data)
		return
	}

	d, _ := routeguard.GetDecision(r.Context())
	render(w, http.StatusOK, "waiting.html", WaitingPageData{
		Chrome:     h.chrome(p),
		CachedUser: d.Snapshot.DisplayUser(),
		Exchanging: d.Snapshot.OAuthInFlight || d.TokenPresent,
		StateURL:   stateURL(p.ID()),
		CurrentURL: r.URL.RequestURI(),
	})
}

// Deny sends anonymous visitors to the public page. On the landing path the
// redirect happens in the document instead, so a token the identity
// provider put in the fragment is picked up before leaving.
func (h *PageHandlers) Deny(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == h.authConfig.LandingPath {
		p, _ := browser.GetPage(r.Context())
		render(w, http.StatusOK, "landing_redirect.html", RedirectPageData{
			Chrome: h.chrome(p),
			Target: h.authConfig.PublicPath,
		})
		if p != nil {
			h.manager.ClosePage(p.ID())
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.authConfig.PublicPath, http.StatusSeeOther)
}

func exchangeMessage(out authstate.ExchangeOutcome) string {
	if out.Message != "" {
		return out.Message
	}
	switch out.Reason {
	case sessionapi.ReasonInvalidToken:
		return "This sign-in link has expired or was already used."
	case sessionapi.ReasonNetwork:
		return "We couldn't reach the sign-in service. Check your connection and try again."
	default:
		return "The sign-in service ran into a problem. Please try again in a moment."
	}
}

func exchangeErrorStatus(reason sessionapi.FailureReason) int {
	switch reason {
	case sessionapi.ReasonInvalidToken:
		return http.StatusUnauthorized
	case sessionapi.ReasonNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
