package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/stylefront/internal/browser"
	"github.com/dgellow/stylefront/internal/cookie"
	"github.com/dgellow/stylefront/internal/crypto"
	jsonwriter "github.com/dgellow/stylefront/internal/json"
	"github.com/dgellow/stylefront/internal/log"
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// shutdownRetryAfter is advertised on requests refused during shutdown.
const shutdownRetryAfter = 5 * time.Second

// ChainMiddleware chains multiple middleware functions. The last one runs
// first.
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		if mw != nil {
			h = mw(h)
		}
	}
	return h
}

// NewCORSMiddleware adds CORS headers to responses
func NewCORSMiddleware(allowedOrigins []string) MiddlewareFunc {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Only set CORS headers if origin is allowed
			if origin != "" && allowedMap[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			} else if len(allowedOrigins) == 0 {
				// If no allowed origins configured, allow all (development mode)
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}
			// The query may carry a one-time session token; log only its presence
			if r.URL.RawQuery != "" {
				fields["query"] = true
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.LogErrorWithFields(prefix, "Recovered from panic", map[string]any{
						"panic": err,
						"path":  r.URL.Path,
					})
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type browserClaims struct {
	ID string `json:"id"`
}

// NewBrowserMiddleware resolves the visitor's browser from the signed
// sf_browser cookie, issuing a new identity when the cookie is missing,
// tampered with or expired.
func NewBrowserMiddleware(manager *browser.Manager, signer crypto.TokenSigner, maxAge time.Duration) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if raw, err := cookie.GetBrowser(r); err == nil {
				var claims browserClaims
				if err := signer.Verify(raw, &claims); err != nil {
					log.LogDebugWithFields("browser_cookie", "Rejected browser cookie", map[string]any{
						"error": err.Error(),
					})
				} else {
					id = claims.ID
				}
			}

			if id == "" {
				id = browser.NewBrowserID()
				token, err := signer.Sign(browserClaims{ID: id})
				if err != nil {
					log.LogErrorWithFields("browser_cookie", "Failed to sign browser cookie", map[string]any{
						"error": err.Error(),
					})
					jsonwriter.WriteInternalServerError(w, "Failed to identify browser")
					return
				}
				cookie.SetBrowser(w, token, maxAge)
			}

			b, err := manager.Browser(r.Context(), id)
			if err != nil {
				if errors.Is(err, browser.ErrShutdown) {
					jsonwriter.WriteUnavailable(w, "Server is shutting down", shutdownRetryAfter)
					return
				}
				jsonwriter.WriteInternalServerError(w, "Failed to identify browser")
				return
			}

			next.ServeHTTP(w, r.WithContext(browser.WithBrowser(r.Context(), b)))
		})
	}
}

// NewNoStoreMiddleware marks responses as uncacheable. Auth-dependent pages
// must never be served from a shared cache.
func NewNoStoreMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
