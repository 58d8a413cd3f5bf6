// Package worker runs the background maintenance jobs.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/fitback/internal/logging"
)

// Purger deletes verification tokens that can no longer be used.
type Purger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// TokenSweeper periodically garbage-collects the verification token ledger.
// The purge only matches expired or used rows, so it runs alongside live
// traffic without extra locking.
type TokenSweeper struct {
	purger   Purger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	stopChan  chan struct{}
	doneChan  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewTokenSweeper(p Purger, interval time.Duration, log logging.Logger) *TokenSweeper {
	return &TokenSweeper{
		purger:   p,
		interval: interval,
		timeout:  time.Minute,
		log:      log.With("component", "token-sweeper"),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the sweep loop once.  A non-positive interval disables it.
func (w *TokenSweeper) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		if w.interval <= 0 {
			close(w.doneChan)
			w.log.Info(ctx, "token sweeper disabled")
			return
		}
		go w.run()
		w.log.Info(ctx, "token sweeper started", "interval", w.interval)
	})
}

func (w *TokenSweeper) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep runs one purge.
func (w *TokenSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	n, err := w.purger.PurgeExpiredTokens(ctx)
	if err != nil {
		w.log.Error(ctx, "token purge failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Info(ctx, "purged verification tokens", "count", n)
	}
}

// Stop ends the loop and waits for an in-flight sweep, up to ctx's deadline.
// A sweeper that was never started is marked done and cannot start later.
func (w *TokenSweeper) Stop(ctx context.Context) error {
	w.startOnce.Do(func() { close(w.doneChan) })
	w.stopOnce.Do(func() { close(w.stopChan) })
	select {
	case <-w.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
