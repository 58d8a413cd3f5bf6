package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/notify"
)

// Notifier sends notifications in the background.  Failures are logged and
// never reach the operation that triggered them.
type Notifier struct {
	d       notify.Dispatcher
	log     logging.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(d notify.Dispatcher, log logging.Logger) *Notifier {
	return &Notifier{d: d, log: log, timeout: 15 * time.Second}
}

// Send dispatches n on its own goroutine with its own deadline; the request
// context is not used so a finished request does not cancel delivery.
func (n *Notifier) Send(ctx context.Context, msg notify.Notification) {
	if n == nil || n.d == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.d.Dispatch(dctx, msg); err != nil {
			n.log.Warn(dctx, "notification dispatch failed", "kind", msg.Kind, "to", msg.To, "error", err)
			return
		}
		n.log.Debug(dctx, "notification dispatched", "kind", msg.Kind, "id", msg.ID)
	}()
}

// Wait blocks until every in-flight dispatch has finished.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}
