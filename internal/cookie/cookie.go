package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/stylefront/internal/envutil"
	"github.com/dgellow/stylefront/internal/log"
)

// Cookie names used by stylefront
const (
	BrowserCookie = "sf_browser"
	CSRFCookie    = "sf_csrf"
)

// SetBrowser sets the signed browser identity cookie
func SetBrowser(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     BrowserCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Browser cookie set", map[string]any{
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// SetCSRF sets a CSRF token cookie. Forms echo it back in a hidden field.
func SetCSRF(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int((12 * time.Hour).Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// ClearBrowser removes the browser cookie
func ClearBrowser(w http.ResponseWriter) {
	Clear(w, BrowserCookie)
	log.LogTraceWithFields("cookie", "Browser cookie cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetBrowser retrieves the browser cookie value
func GetBrowser(r *http.Request) (string, error) {
	return Get(r, BrowserCookie)
}

// GetCSRF retrieves the CSRF cookie value
func GetCSRF(r *http.Request) (string, error) {
	return Get(r, CSRFCookie)
}
