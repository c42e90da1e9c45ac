package browser

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgellow/stylefront/internal/sessionapi"
)

// Browser is one visitor's browser: the cookie jar holding the backend
// session and the pages currently open in it.
type Browser struct {
	id       string
	jar      http.CookieJar
	client   sessionapi.SessionClient
	created  time.Time
	lastSeen atomic.Pointer[time.Time]

	mu    sync.Mutex
	pages []*Page // oldest first
}

// ID returns the browser identifier carried by the browser cookie.
func (b *Browser) ID() string { return b.id }

// Jar returns the cookie jar used for backend calls.
func (b *Browser) Jar() http.CookieJar { return b.jar }

// Client returns the session client bound to this browser's jar.
func (b *Browser) Client() sessionapi.SessionClient { return b.client }

// Pages returns the open pages, oldest first.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Page, len(b.pages))
	copy(out, b.pages)
	return out
}

func (b *Browser) touch(now time.Time) {
	b.lastSeen.Store(&now)
}

func (b *Browser) idleSince() time.Time {
	if t := b.lastSeen.Load(); t != nil {
		return *t
	}
	return b.created
}

func (b *Browser) addPage(p *Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages = append(b.pages, p)
}

func (b *Browser) removePage(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.pages {
		if p.id == id {
			b.pages = append(b.pages[:i], b.pages[i+1:]...)
			return
		}
	}
}

// oldestBeyond returns the pages that exceed max, oldest first.
func (b *Browser) oldestBeyond(max int) []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max <= 0 || len(b.pages) <= max {
		return nil
	}
	out := make([]*Page, len(b.pages)-max)
	copy(out, b.pages[:len(b.pages)-max])
	return out
}

func (b *Browser) pageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}
