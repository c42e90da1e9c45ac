package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/stylefront/internal/authstate"
	"github.com/dgellow/stylefront/internal/browser"
	"github.com/dgellow/stylefront/internal/config"
	"github.com/dgellow/stylefront/internal/crypto"
	"github.com/dgellow/stylefront/internal/envutil"
	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/server"
	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/dgellow/stylefront/internal/telemetry"
	"github.com/dgellow/stylefront/internal/usercache"
)

// Stylefront represents the complete front end application
type Stylefront struct {
	config     config.Config
	httpServer *server.HTTPServer
	manager    *browser.Manager
	metrics    *telemetry.Metrics
	cache      usercache.Cache
	sweeper    *usercache.Sweeper
}

// New creates a new front end application with all dependencies built
func New(ctx context.Context, cfg config.Config) (*Stylefront, error) {
	log.LogInfoWithFields("stylefront", "Building front end application", map[string]any{
		"baseURL":    cfg.Front.BaseURL,
		"apiBaseURL": cfg.API.BaseURL,
		"userCache":  string(cfg.UserCache.Kind),
		"env":        string(envutil.Current()),
	})

	metrics := telemetry.New()

	client, err := sessionapi.NewClient(cfg.API.BaseURL,
		sessionapi.WithTimeout(cfg.API.Timeout),
		sessionapi.WithCallObserver(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session API client: %w", err)
	}

	cache, err := setupUserCache(ctx, cfg.UserCache)
	if err != nil {
		return nil, fmt.Errorf("failed to setup user cache: %w", err)
	}

	var sweeper *usercache.Sweeper
	if cleaner, ok := cache.(usercache.Cleaner); ok {
		sweeper = usercache.NewSweeper(cleaner, cfg.Pages.CleanupInterval)
	}

	managerOpts := []browser.ManagerOption{
		browser.WithPageTimeout(cfg.Pages.Timeout),
		browser.WithBrowserTimeout(cfg.Pages.BrowserTimeout),
		browser.WithCleanupInterval(cfg.Pages.CleanupInterval),
		browser.WithMaxPagesPerBrowser(cfg.Pages.MaxPerBrowser),
		browser.WithObserver(metrics),
		browser.WithStoreOptions(authstate.WithLandingPath(cfg.Auth.LandingPath)),
	}
	if cache != nil {
		managerOpts = append(managerOpts, browser.WithUserCache(cache))
	}
	manager := browser.NewManager(func(jar http.CookieJar) sessionapi.SessionClient {
		return client.WithJar(jar)
	}, managerOpts...)
	metrics.TrackPages(manager.Stats)

	browserKey, err := crypto.DeriveKey([]byte(cfg.Auth.CookieSecret), "browser-cookie")
	if err != nil {
		manager.Shutdown()
		return nil, fmt.Errorf("failed to derive browser cookie key: %w", err)
	}
	csrfKey, err := crypto.DeriveKey([]byte(cfg.Auth.CookieSecret), "csrf")
	if err != nil {
		manager.Shutdown()
		return nil, fmt.Errorf("failed to derive CSRF key: %w", err)
	}

	handler := server.NewRouter(server.RouterDeps{
		Manager:    manager,
		Front:      cfg.Front,
		Auth:       cfg.Auth,
		BrowserKey: browserKey,
		CSRFKey:    csrfKey,
		BrowserTTL: cfg.Pages.BrowserTimeout,
		Metrics:    metrics,
	})

	return &Stylefront{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Front.Addr),
		manager:    manager,
		metrics:    metrics,
		cache:      cache,
		sweeper:    sweeper,
	}, nil
}

// Run starts and manages the complete application lifecycle
func (s *Stylefront) Run() error {
	log.LogInfoWithFields("stylefront", "Starting front end", map[string]any{
		"addr": s.config.Front.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel to signal errors that should trigger shutdown
	errChan := make(chan error, 1)

	go func() {
		if err := s.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if s.sweeper != nil {
		s.sweeper.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("stylefront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("stylefront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("stylefront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before tearing down the pages they use
	if err := s.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("stylefront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	s.manager.Shutdown()
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if closer, ok := s.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.LogWarnWithFields("stylefront", "Failed to close user cache", map[string]any{
				"error": err.Error(),
			})
		}
	}

	log.LogInfoWithFields("stylefront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupUserCache creates the user cache based on configuration. A nil cache
// disables the cached user hint.
func setupUserCache(ctx context.Context, cfg config.UserCacheConfig) (usercache.Cache, error) {
	switch cfg.Kind {
	case config.UserCacheNone:
		log.LogInfoWithFields("usercache", "User cache disabled", nil)
		return nil, nil

	case config.UserCacheRedis:
		log.LogInfoWithFields("usercache", "Using Redis user cache", map[string]any{
			"addr": cfg.RedisAddr,
			"db":   cfg.RedisDB,
		})
		cache, err := usercache.NewRedis(ctx, usercache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: string(cfg.RedisPassword),
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis user cache: %w", err)
		}
		return cache, nil

	case config.UserCacheFirestore:
		log.LogInfoWithFields("usercache", "Using Firestore user cache", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		cache, err := usercache.NewFirestore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore user cache: %w", err)
		}
		return cache, nil

	default:
		log.LogInfoWithFields("usercache", "Using in-memory user cache", map[string]any{
			"ttl": cfg.TTL.String(),
		})
		return usercache.NewMemory(cfg.TTL), nil
	}
}
