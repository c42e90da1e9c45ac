package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/stylefront/internal/browser"
	"github.com/dgellow/stylefront/internal/cookie"
	"github.com/dgellow/stylefront/internal/crypto"
	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/dgellow/stylefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		allowedOrigins    []string
		requestOrigin     string
		method            string
		expectAllowOrigin string
		expectCredentials bool
		expectWildcard    bool
	}{
		{
			name:              "allowed origin",
			allowedOrigins:    []string{"https://style.example.com", "https://example.com"},
			requestOrigin:     "https://style.example.com",
			expectAllowOrigin: "https://style.example.com",
			expectCredentials: true,
		},
		{
			name:           "disallowed origin",
			allowedOrigins: []string{"https://style.example.com"},
			requestOrigin:  "https://evil.com",
		},
		{
			name:           "no origin header",
			allowedOrigins: []string{"https://style.example.com"},
		},
		{
			name:              "empty allowed origins",
			allowedOrigins:    []string{},
			requestOrigin:     "https://style.example.com",
			expectAllowOrigin: "*",
			expectWildcard:    true,
		},
		{
			name:              "preflight request",
			allowedOrigins:    []string{"https://style.example.com"},
			requestOrigin:     "https://style.example.com",
			method:            http.MethodOptions,
			expectAllowOrigin: "https://style.example.com",
			expectCredentials: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			})
			corsHandler := NewCORSMiddleware(tt.allowedOrigins)(handler)

			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, "/auth/pages/p-1", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}

			rr := httptest.NewRecorder()
			corsHandler.ServeHTTP(rr, req)

			if tt.expectAllowOrigin != "" {
				assert.Equal(t, tt.expectAllowOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			}
			if tt.expectCredentials {
				assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
			} else if !tt.expectWildcard {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
			}

			assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Cache-Control", rr.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, method != http.MethodOptions, reached, "preflight must not reach the handler")
		})
	}
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("inner"), nil, mw("outer"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRecoverMiddleware(t *testing.T) {
	h := NewRecoverMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Internal Server Error")
}

func TestResponseWriterDelegator(t *testing.T) {
	rr := httptest.NewRecorder()
	w := wrapResponseWriter(rr)

	w.WriteHeader(http.StatusSeeOther)
	w.WriteHeader(http.StatusOK)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusSeeOther, w.Status())
	assert.Equal(t, 5, w.BytesWritten())
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Same(t, rr, w.Unwrap())
}

func newTestManager(t *testing.T) (*browser.Manager, *testutil.MockSessionClient) {
	t.Helper()
	client := &testutil.MockSessionClient{}
	m := browser.NewManager(
		func(http.CookieJar) sessionapi.SessionClient { return client },
		browser.WithCleanupInterval(time.Hour),
	)
	t.Cleanup(m.Shutdown)
	return m, client
}

func TestBrowserMiddleware(t *testing.T) {
	m, _ := newTestManager(t)
	signer := crypto.NewTokenSigner([]byte(strings.Repeat("k", 32)), 0)

	var seen []string
	h := NewBrowserMiddleware(m, signer, 24*time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := browser.GetBrowser(r.Context())
		require.True(t, ok)
		seen = append(seen, b.ID())
	}))

	// First visit mints an identity
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookie.BrowserCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	require.Len(t, seen, 1)

	// The signed cookie brings back the same browser
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Result().Cookies())
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])

	// A tampered cookie is replaced by a new identity
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.BrowserCookie, Value: cookies[0].Value + "x"})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Len(t, rr.Result().Cookies(), 1)
	require.Len(t, seen, 3)
	assert.NotEqual(t, seen[0], seen[2])

	browsers, _ := m.Stats()
	assert.Equal(t, 2, browsers)
}

func TestBrowserMiddlewareAfterShutdown(t *testing.T) {
	m, _ := newTestManager(t)
	m.Shutdown()

	h := NewBrowserMiddleware(m, crypto.NewTokenSigner([]byte(strings.Repeat("k", 32)), 0), time.Hour)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run after shutdown")
		}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
