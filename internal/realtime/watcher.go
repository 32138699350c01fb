// Package realtime provides the live-view plumbing: a Watcher holds at most
// one push subscription at a time and invokes a refresh callback whenever the
// watched channel signals a change. Consumers re-read the full authoritative
// state on every callback rather than applying patches.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Feed is a push notification source, typically Redis pub/sub.
type Feed interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers change signals until closed. The payload is advisory;
// consumers treat any message as "state changed, re-read".
type Subscription interface {
	Events() <-chan string
	Close() error
}

// RefreshFunc is invoked once right after subscribing and then on every
// change signal. The context is canceled on Stop or re-Listen; callbacks must
// not mutate consumer state after observing cancellation.
type RefreshFunc func(ctx context.Context)

// Watcher owns a single subscription. Listen tears down any previous
// subscription completely before attaching the new one, and Stop blocks until
// the pump goroutine has exited, so no callback runs after either returns.
type Watcher struct {
	feed Feed
	log  zerolog.Logger

	mu      sync.Mutex
	channel string
	cancel  context.CancelFunc
	sub     Subscription
	done    chan struct{}
}

func NewWatcher(feed Feed, log zerolog.Logger) *Watcher {
	return &Watcher{feed: feed, log: log}
}

func (w *Watcher) Listen(channel string, refresh RefreshFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := w.feed.Subscribe(ctx, channel)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	done := make(chan struct{})
	w.channel = channel
	w.cancel = cancel
	w.sub = sub
	w.done = done

	go w.pump(ctx, sub, refresh, done)
	return nil
}

// Stop is safe to call when idle and is idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// Channel returns the channel currently listened to, or "" when idle.
func (w *Watcher) Channel() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.channel
}

func (w *Watcher) pump(ctx context.Context, sub Subscription, refresh RefreshFunc, done chan struct{}) {
	defer close(done)

	refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			refresh(ctx)
		}
	}
}

func (w *Watcher) stopLocked() {
	if w.cancel == nil {
		return
	}

	w.cancel()
	if err := w.sub.Close(); err != nil {
		w.log.Debug().Err(err).Str("channel", w.channel).Msg("subscription close")
	}
	<-w.done

	w.channel = ""
	w.cancel = nil
	w.sub = nil
	w.done = nil
}

// Send delivers v on ch without blocking past ctx: if a previous value is
// still undelivered it is replaced, since each value is a full snapshot.
func Send[T any](ctx context.Context, ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}
