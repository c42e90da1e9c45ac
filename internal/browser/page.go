package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgellow/stylefront/internal/authstate"
	"github.com/dgellow/stylefront/internal/location"
	"github.com/dgellow/stylefront/internal/log"
)

// Page is one document load of a guarded route. It owns one auth state
// store and the navigation history of that document.
type Page struct {
	id       string
	browser  *Browser
	store    *authstate.Store
	history  *location.History
	opened   time.Time
	lastSeen atomic.Pointer[time.Time]

	booted      chan struct{}
	bootOutcome authstate.BootOutcome
	bootErr     error

	mu              sync.Mutex
	mounted         bool
	exchangeStarted bool
	exchangeRunning bool
	exchange        *authstate.ExchangeOutcome
	exchangeDone    chan struct{}
}

func newPage(id string, b *Browser, store *authstate.Store, loc location.Location, now time.Time) *Page {
	p := &Page{
		id:           id,
		browser:      b,
		store:        store,
		history:      location.NewHistory(loc),
		opened:       now,
		booted:       make(chan struct{}),
		mounted:      true,
		exchangeDone: make(chan struct{}),
	}
	p.lastSeen.Store(&now)
	return p
}

// ID returns the page identifier.
func (p *Page) ID() string { return p.id }

// Browser returns the browser the page is open in.
func (p *Page) Browser() *Browser { return p.browser }

// Store returns the page's auth state.
func (p *Page) Store() *authstate.Store { return p.store }

// History returns the page's navigation history.
func (p *Page) History() *location.History { return p.history }

// Location returns the current address of the page.
func (p *Page) Location() location.Location { return p.history.Current() }

// TokenPresent reports whether the current address still carries a
// session token.
func (p *Page) TokenPresent() bool {
	return location.HasSessionToken(p.history.Current())
}

// Mounted reports whether the page has not been unmounted or closed.
func (p *Page) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mounted
}

// Booted is closed once the boot protocol has returned.
func (p *Page) Booted() <-chan struct{} { return p.booted }

// BootOutcome returns what boot did. It is only meaningful after Booted is
// closed.
func (p *Page) BootOutcome() (authstate.BootOutcome, error) {
	<-p.booted
	return p.bootOutcome, p.bootErr
}

func (p *Page) boot(ctx context.Context) {
	defer close(p.booted)
	p.bootOutcome, p.bootErr = p.store.Boot(ctx, p.history.Current())
	if p.bootErr != nil {
		log.LogWarnWithFields("browser", "Page boot failed", map[string]any{
			"page":  p.id,
			"error": p.bootErr.Error(),
		})
	}
}

// StartExchange runs the session exchange for token in the background.
// Repeated calls are ignored; the store enforces the same rule for calls
// that race past this check.
func (p *Page) StartExchange(token string) {
	p.mu.Lock()
	if p.exchangeStarted || !p.mounted {
		p.mu.Unlock()
		return
	}
	p.exchangeStarted = true
	p.exchangeRunning = true
	p.mu.Unlock()

	go p.runExchange(token)
}

func (p *Page) runExchange(token string) {
	ctx := WithPage(context.Background(), p)
	out := p.store.Exchange(ctx, token, p.stripToken)

	p.mu.Lock()
	p.exchangeRunning = false
	mounted := p.mounted
	if mounted && out.Status != authstate.ExchangeSkipped {
		p.exchange = &out
		close(p.exchangeDone)
	}
	p.mu.Unlock()

	if !mounted {
		// The backend session cookie from a late success still lands in the
		// browser jar; only the view's copy of the outcome is dropped.
		log.LogDebugWithFields("browser", "Discarding exchange result for unmounted page", map[string]any{
			"page":   p.id,
			"status": out.Status.String(),
		})
		p.store.Dispose()
	}
}

// stripToken replaces the current entry with the token-free address. An
// unmounted page has no view left to rewrite.
func (p *Page) stripToken() error {
	if !p.Mounted() {
		return nil
	}
	return p.history.Replace(location.WithoutSessionToken(p.history.Current()))
}

// ExchangeStarted reports whether StartExchange ran for this page.
func (p *Page) ExchangeStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeStarted
}

// Exchange returns the recorded exchange outcome, if any.
func (p *Page) Exchange() (authstate.ExchangeOutcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exchange == nil {
		return authstate.ExchangeOutcome{}, false
	}
	return *p.exchange, true
}

// ExchangeDone is closed when an exchange outcome has been recorded.
func (p *Page) ExchangeDone() <-chan struct{} { return p.exchangeDone }

// unmount marks the view as gone. The store is disposed right away unless
// an exchange is still running, in which case runExchange disposes it once
// the call settles. It reports whether the page was mounted.
func (p *Page) unmount() bool {
	p.mu.Lock()
	wasMounted := p.mounted
	p.mounted = false
	running := p.exchangeRunning
	p.mu.Unlock()

	if wasMounted && !running {
		p.store.Dispose()
	}
	return wasMounted
}

func (p *Page) touch(now time.Time) {
	p.lastSeen.Store(&now)
}

func (p *Page) idleSince() time.Time {
	if t := p.lastSeen.Load(); t != nil {
		return *t
	}
	return p.opened
}
