// Package browser keeps the server-side model of visitors' browsers and the
// pages open in them. A page is one document load: it gets a fresh auth state
// store, so a reload starts from Booting and never resumes an exchange.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"sync"
	"time"

	"github.com/dgellow/stylefront/internal/authstate"
	"github.com/dgellow/stylefront/internal/location"
	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/dgellow/stylefront/internal/usercache"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPageTimeout is how long an idle page is kept
	DefaultPageTimeout = 10 * time.Minute

	// DefaultBrowserTimeout is how long an idle browser without pages is kept
	DefaultBrowserTimeout = 24 * time.Hour

	// DefaultCleanupInterval is how often idle pages and browsers are swept
	DefaultCleanupInterval = 1 * time.Minute

	// DefaultMaxPagesPerBrowser bounds the pages one browser can hold open
	DefaultMaxPagesPerBrowser = 8
)

var (
	// ErrPageNotFound is returned when a page doesn't exist or was closed
	ErrPageNotFound = errors.New("page not found")

	// ErrShutdown is returned once the manager has been shut down
	ErrShutdown = errors.New("browser manager shut down")
)

// ClientBinder returns a session client that uses jar for credentials.
type ClientBinder func(jar http.CookieJar) sessionapi.SessionClient

// Manager tracks browsers and their pages.
type Manager struct {
	mu       sync.RWMutex
	browsers map[string]*Browser
	pages    map[string]*Page
	closed   bool

	bind            ClientBinder
	pageTimeout     time.Duration
	browserTimeout  time.Duration
	cleanupInterval time.Duration
	maxPages        int
	storeOpts       []authstate.Option
	observer        authstate.Observer
	cache           usercache.Cache
	now             func() time.Time

	group       singleflight.Group // Deduplicates concurrent browser creation
	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

// ManagerOption configures the manager
type ManagerOption func(*Manager)

// WithPageTimeout sets how long idle pages are kept
func WithPageTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pageTimeout = d
	}
}

// WithBrowserTimeout sets how long idle browsers are kept
func WithBrowserTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.browserTimeout = d
	}
}

// WithCleanupInterval sets how often to run cleanup
func WithCleanupInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.cleanupInterval = d
	}
}

// WithMaxPagesPerBrowser sets the page limit per browser
func WithMaxPagesPerBrowser(n int) ManagerOption {
	return func(m *Manager) {
		m.maxPages = n
	}
}

// WithStoreOptions adds options applied to every page's store
func WithStoreOptions(opts ...authstate.Option) ManagerOption {
	return func(m *Manager) {
		m.storeOpts = append(m.storeOpts, opts...)
	}
}

// WithObserver adds an observer to every page's store, next to the
// per-page log observer
func WithObserver(o authstate.Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithUserCache sets the user cache, keyed by browser ID
func WithUserCache(c usercache.Cache) ManagerOption {
	return func(m *Manager) {
		m.cache = c
	}
}

// NewManager creates a manager and starts its cleanup routine
func NewManager(bind ClientBinder, opts ...ManagerOption) *Manager {
	m := &Manager{
		browsers:        make(map[string]*Browser),
		pages:           make(map[string]*Page),
		bind:            bind,
		pageTimeout:     DefaultPageTimeout,
		browserTimeout:  DefaultBrowserTimeout,
		cleanupInterval: DefaultCleanupInterval,
		maxPages:        DefaultMaxPagesPerBrowser,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.startCleanupRoutine()

	return m
}

// NewBrowserID returns a fresh browser identifier
func NewBrowserID() string {
	return uuid.NewString()
}

// Browser returns the browser for id, creating it when unknown. Concurrent
// first requests from the same browser share one instance.
func (m *Manager) Browser(ctx context.Context, id string) (*Browser, error) {
	if id == "" {
		return nil, fmt.Errorf("browser id is required")
	}

	v, err, _ := m.group.Do(id, func() (any, error) {
		m.mu.RLock()
		b, ok := m.browsers[id]
		closed := m.closed
		m.mu.RUnlock()

		if closed {
			return nil, ErrShutdown
		}
		if ok {
			b.touch(m.now())
			return b, nil
		}
		return m.createBrowser(id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Browser), nil
}

func (m *Manager) createBrowser(id string) (*Browser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	now := m.now()
	b := &Browser{
		id:      id,
		jar:     jar,
		client:  m.bind(jar),
		created: now,
	}
	b.touch(now)

	m.mu.Lock()
	m.browsers[id] = b
	total := len(m.browsers)
	m.mu.Unlock()

	log.LogTraceWithFields("browser", "Browser created", map[string]any{
		"browser":  id,
		"browsers": total,
	})
	return b, nil
}

// OpenPage registers a new document load of loc in b and starts its boot
// protocol in the background.
func (m *Manager) OpenPage(ctx context.Context, b *Browser, loc location.Location) (*Page, error) {
	id := uuid.NewString()

	storeOpts := make([]authstate.Option, 0, len(m.storeOpts)+3)
	storeOpts = append(storeOpts, m.storeOpts...)
	storeOpts = append(storeOpts, authstate.WithObserver(authstate.Observers(authstate.LogObserver{Page: id}, m.observer)))
	if m.cache != nil {
		storeOpts = append(storeOpts, authstate.WithCache(m.cache), authstate.WithCacheKey(b.id))
	}
	store := authstate.New(b.client, storeOpts...)

	now := m.now()
	p := newPage(id, b, store, loc, now)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		store.Dispose()
		return nil, ErrShutdown
	}
	m.pages[id] = p
	m.mu.Unlock()

	b.addPage(p)
	b.touch(now)

	for _, old := range b.oldestBeyond(m.maxPages) {
		log.LogDebugWithFields("browser", "Evicting oldest page", map[string]any{
			"browser": b.id,
			"page":    old.id,
		})
		m.ClosePage(old.id)
	}

	go p.boot(WithPage(ctx, p))

	log.LogTraceWithFields("browser", "Page opened", map[string]any{
		"browser": b.id,
		"page":    id,
		"path":    loc.Path,
	})
	return p, nil
}

// Page returns an open page and marks it as active
func (m *Manager) Page(id string) (*Page, error) {
	m.mu.RLock()
	p, ok := m.pages[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrPageNotFound
	}

	now := m.now()
	p.touch(now)
	p.browser.touch(now)
	return p, nil
}

// ClosePage unmounts a page and forgets it. Closing an unknown page is not
// an error.
func (m *Manager) ClosePage(id string) {
	m.mu.Lock()
	p, ok := m.pages[id]
	if ok {
		delete(m.pages, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	p.browser.removePage(id)
	p.unmount()

	log.LogTraceWithFields("browser", "Page closed", map[string]any{
		"browser": p.browser.id,
		"page":    id,
		"open":    time.Since(p.opened).String(),
	})
}

// Logout ends the browser's session. When page is one of the browser's
// pages its store performs the logout, so its state clears through the
// normal transition; otherwise the session client and cache are used
// directly. Every page of the browser is then invalidated and closed, so an
// exchange still running on one of them cannot sign the browser back in.
func (m *Manager) Logout(ctx context.Context, b *Browser, page *Page) error {
	var err error
	if page != nil && page.browser == b {
		err = page.store.Logout(ctx)
	} else {
		err = b.client.Logout(ctx)
		if m.cache != nil {
			if cerr := m.cache.Delete(ctx, b.id); cerr != nil {
				log.LogWarnWithFields("browser", "Failed to delete cached user", map[string]any{
					"browser": b.id,
					"error":   cerr.Error(),
				})
			}
		}
	}

	for _, p := range b.Pages() {
		if p != page {
			p.store.Invalidate()
		}
		m.ClosePage(p.id)
	}
	return err
}

// Stats returns the number of browsers and pages being tracked
func (m *Manager) Stats() (browsers, pages int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.browsers), len(m.pages)
}

// Shutdown stops the cleanup routine and closes every page
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCleanup)
	m.wg.Wait()

	m.mu.RLock()
	ids := make([]string, 0, len(m.pages))
	for id := range m.pages {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.ClosePage(id)
	}

	log.LogInfoWithFields("browser", "Browser manager shut down", map[string]any{
		"closedPages": len(ids),
	})
}

func (m *Manager) startCleanupRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanup closes idle pages and forgets idle browsers that have no pages
func (m *Manager) cleanup() {
	now := m.now()

	m.mu.RLock()
	var idlePages []*Page
	for _, p := range m.pages {
		if now.Sub(p.idleSince()) > m.pageTimeout {
			idlePages = append(idlePages, p)
		}
	}
	m.mu.RUnlock()

	// Oldest first keeps log output readable
	sort.Slice(idlePages, func(i, j int) bool {
		return idlePages[i].idleSince().Before(idlePages[j].idleSince())
	})
	for _, p := range idlePages {
		m.ClosePage(p.id)
	}

	m.mu.Lock()
	var idleBrowsers int
	for id, b := range m.browsers {
		if b.pageCount() == 0 && now.Sub(b.idleSince()) > m.browserTimeout {
			delete(m.browsers, id)
			idleBrowsers++
		}
	}
	m.mu.Unlock()

	if len(idlePages) > 0 || idleBrowsers > 0 {
		log.LogDebugWithFields("browser", "Cleaned up idle pages and browsers", map[string]any{
			"pages":    len(idlePages),
			"browsers": idleBrowsers,
		})
	}
}
