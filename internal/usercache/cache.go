// Package usercache holds the last known user per browser. The cache is a
// display hint only: it is never consulted to decide whether a visitor is
// authenticated.
package usercache

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/stylefront/internal/sessionapi"
)

// DefaultTTL is how long a cached user survives without being refreshed.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned by Get when no live entry exists for the key.
var ErrMiss = errors.New("user cache miss")

// Cache stores the last verified user of a browser.
type Cache interface {
	Get(ctx context.Context, key string) (*sessionapi.User, error)
	Put(ctx context.Context, key string, user *sessionapi.User) error
	Delete(ctx context.Context, key string) error
}

// Cleaner is implemented by backends that need expired entries swept.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Nop is a Cache that stores nothing.
type Nop struct{}

var _ Cache = Nop{}

func (Nop) Get(context.Context, string) (*sessionapi.User, error) { return nil, ErrMiss }

func (Nop) Put(context.Context, string, *sessionapi.User) error { return nil }

func (Nop) Delete(context.Context, string) error { return nil }
