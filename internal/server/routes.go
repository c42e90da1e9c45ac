package server

import (
	"net/http"
	"time"

	"github.com/dgellow/stylefront/internal/browser"
	"github.com/dgellow/stylefront/internal/config"
	"github.com/dgellow/stylefront/internal/crypto"
	"github.com/dgellow/stylefront/internal/routeguard"
	"github.com/dgellow/stylefront/internal/telemetry"
)

// defaultProtectedPaths are the application pages served behind the guard
// in addition to the configured landing and authenticated paths.
var defaultProtectedPaths = []string{"/dashboard", "/profile", "/results"}

// RouterDeps is everything the router needs
type RouterDeps struct {
	Manager    *browser.Manager
	Front      config.FrontConfig
	Auth       config.AuthConfig
	BrowserKey []byte
	CSRFKey    []byte
	BrowserTTL time.Duration
	Metrics    *telemetry.Metrics // Optional
}

// ProtectedPaths returns the guarded paths in navigation order, without
// duplicates and never including the public path.
func ProtectedPaths(auth config.AuthConfig) []string {
	seen := map[string]bool{auth.PublicPath: true}
	var paths []string
	for _, p := range append([]string{auth.AuthenticatedPath, auth.LandingPath}, defaultProtectedPaths...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return paths
}

// routePattern returns the ServeMux pattern matching exactly path.
func routePattern(method, path string) string {
	if path == "/" {
		path = "/{$}"
	}
	if method == "" {
		return path
	}
	return method + " " + path
}

// NewRouter builds the HTTP handler for the whole front end
func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()

	csrf := crypto.NewCSRFProtection(d.CSRFKey, 12*time.Hour)
	protected := ProtectedPaths(d.Auth)
	pages := NewPageHandlers(d.Manager, d.Auth, d.Front.Name, csrf, protected)
	authHandlers := NewAuthHandlers(d.Manager, d.Auth, d.Front.BaseURL, csrf)

	browserMW := NewBrowserMiddleware(d.Manager, crypto.NewTokenSigner(d.BrowserKey, 0), d.BrowserTTL)
	corsMW := NewCORSMiddleware(d.Auth.AllowedOrigins)
	noStore := NewNoStoreMiddleware()

	// route registers h behind mws, then the shared outer layers. The last
	// middleware listed runs first.
	route := func(pattern, name string, h http.Handler, mws ...MiddlewareFunc) {
		chain := make([]MiddlewareFunc, 0, len(mws)+4)
		chain = append(chain, mws...)
		chain = append(chain, NewLoggerMiddleware("http"), NewRecoverMiddleware("stylefront"))
		if d.Metrics != nil {
			chain = append(chain, d.Metrics.Middleware(name))
		}
		mux.Handle(pattern, ChainMiddleware(h, chain...))
	}

	guardOpts := routeguard.Options{
		Hold:              http.HandlerFunc(pages.Hold),
		Deny:              http.HandlerFunc(pages.Deny),
		PublicPath:        d.Auth.PublicPath,
		AuthenticatedPath: d.Auth.AuthenticatedPath,
		Settle:            d.Auth.SettleTimeout,
	}

	route(routePattern(http.MethodGet, d.Auth.PublicPath), "public",
		http.HandlerFunc(pages.Public),
		routeguard.PublicOnlyRoute(routeguard.Options{
			PublicPath:        d.Auth.PublicPath,
			AuthenticatedPath: d.Auth.AuthenticatedPath,
			Settle:            d.Auth.SettleTimeout,
		}),
		pages.OpenPage, browserMW)

	for _, path := range protected {
		route(routePattern(http.MethodGet, path), path,
			pages.App(pageTitle(path)),
			routeguard.ProtectedRoute(guardOpts),
			pages.OpenPage, browserMW)
	}

	route(routePattern(http.MethodGet, loginPath), "login",
		http.HandlerFunc(authHandlers.LoginHandler), noStore)
	route(routePattern(http.MethodPost, logoutPath), "logout",
		http.HandlerFunc(authHandlers.LogoutHandler), browserMW, noStore)

	// No method in these patterns so the CORS layer can answer preflights
	route(pagesPath+"{id}", "page_state",
		http.HandlerFunc(authHandlers.PageStateHandler), browserMW, corsMW)
	route(pagesPath+"{id}/unmount", "page_unmount",
		http.HandlerFunc(authHandlers.UnmountHandler), browserMW, corsMW)

	route(routePattern(http.MethodGet, "/health"), "health",
		NewHealthHandler(d.Manager.Stats))
	if d.Metrics != nil {
		mux.Handle(routePattern(http.MethodGet, "/metrics"), d.Metrics.Handler())
	}

	return mux
}
