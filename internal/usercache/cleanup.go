package usercache

import (
	"context"
	"time"

	"github.com/dgellow/stylefront/internal/log"
)

// Sweeper periodically removes expired entries from a Cleaner.
type Sweeper struct {
	cleaner  Cleaner
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSweeper creates a sweeper for c.
func NewSweeper(c Cleaner, interval time.Duration) *Sweeper {
	return &Sweeper{
		cleaner:  c,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine until Stop or ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	log.LogInfoWithFields("usercache", "Starting user cache sweeper", map[string]any{
		"interval": s.interval.String(),
	})
	go s.run(ctx)
}

// Stop ends the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.doneChan
	log.LogDebugWithFields("usercache", "User cache sweeper stopped", nil)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.cleaner.Cleanup(ctx)
	if err != nil {
		log.LogErrorWithFields("usercache", "Failed to sweep expired users", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if count > 0 {
		log.LogDebugWithFields("usercache", "Swept expired users", map[string]any{
			"count": count,
		})
	}
}
