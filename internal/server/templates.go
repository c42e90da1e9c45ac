package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/sessionapi"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Chrome is shared by every page template. The fragment partial needs the
// landing path and token parameter; the beacon partial needs the page.
type Chrome struct {
	AppName     string
	LandingPath string
	TokenParam  string
	LoginPath   string
	PublicPath  string
	PageID      string
	UnmountURL  string
}

// PublicPageData represents the data for the public home page
type PublicPageData struct {
	Chrome
	CachedUser *sessionapi.User
}

// NavLink is one entry of the signed-in navigation
type NavLink struct {
	Path    string
	Label   string
	Current bool
}

// AppPageData represents the data for an authenticated page
type AppPageData struct {
	Chrome
	Title      string
	User       *sessionapi.User
	Nav        []NavLink
	CSRFToken  string
	LogoutPath string
	ReplaceURL string // Token-free address to show once the exchange consumed the token
}

// WaitingPageData represents the data for the neutral waiting screen
type WaitingPageData struct {
	Chrome
	CachedUser *sessionapi.User
	Exchanging bool
	StateURL   string
	CurrentURL string
}

// ExchangeErrorData represents the data for a failed sign-in
type ExchangeErrorData struct {
	Chrome
	Message  string
	RetryURL string // Empty when retrying cannot help
}

// RedirectPageData represents the data for a client-side redirect
type RedirectPageData struct {
	Chrome
	Target string
}

// render executes a template into a buffer first so a template error never
// leaves a half-written page behind.
func render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		log.LogErrorWithFields("server", "Failed to render template", map[string]any{
			"template": name,
			"error":    err.Error(),
		})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
