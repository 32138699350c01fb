package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSubscription struct {
	events chan string
	once   sync.Once
	closed chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		events: make(chan string, 8),
		closed: make(chan struct{}),
	}
}

func (s *fakeSubscription) Events() <-chan string { return s.events }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		close(s.closed)
		close(s.events)
	})
	return nil
}

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSubscription
	// channel name per subscription, in subscribe order
	channels []string
}

func (f *fakeFeed) Subscribe(_ context.Context, channel string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := newFakeSubscription()
	f.subs = append(f.subs, sub)
	f.channels = append(f.channels, channel)
	return sub, nil
}

func (f *fakeFeed) sub(i int) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatcherRefreshesOnSignal(t *testing.T) {
	feed := &fakeFeed{}
	watcher := NewWatcher(feed, zerolog.Nop())
	defer watcher.Stop()

	var mu sync.Mutex
	refreshes := 0
	err := watcher.Listen("ch-1", func(context.Context) {
		mu.Lock()
		refreshes++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return refreshes
	}

	// The initial refresh fires without any signal.
	waitFor(t, func() bool { return count() == 1 }, "expected initial refresh")

	feed.sub(0).events <- "changed"
	waitFor(t, func() bool { return count() == 2 }, "expected refresh after signal")

	if watcher.Channel() != "ch-1" {
		t.Fatalf("channel: %q", watcher.Channel())
	}
}

func TestWatcherListenReplacesSubscription(t *testing.T) {
	feed := &fakeFeed{}
	watcher := NewWatcher(feed, zerolog.Nop())
	defer watcher.Stop()

	if err := watcher.Listen("ch-1", func(context.Context) {}); err != nil {
		t.Fatalf("listen ch-1: %v", err)
	}
	if err := watcher.Listen("ch-2", func(context.Context) {}); err != nil {
		t.Fatalf("listen ch-2: %v", err)
	}

	// The first subscription must be closed before the second attaches.
	select {
	case <-feed.sub(0).closed:
	default:
		t.Fatal("first subscription still open after re-listen")
	}
	if feed.count() != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", feed.count())
	}
	if watcher.Channel() != "ch-2" {
		t.Fatalf("channel: %q", watcher.Channel())
	}
}

func TestWatcherStopIsIdempotentAndSafeWhenIdle(t *testing.T) {
	feed := &fakeFeed{}
	watcher := NewWatcher(feed, zerolog.Nop())

	// Stop before any Listen is a no-op.
	watcher.Stop()

	if err := watcher.Listen("ch-1", func(context.Context) {}); err != nil {
		t.Fatalf("listen: %v", err)
	}
	watcher.Stop()
	watcher.Stop()

	if watcher.Channel() != "" {
		t.Fatalf("expected idle watcher, channel %q", watcher.Channel())
	}
}

func TestWatcherNoRefreshAfterStop(t *testing.T) {
	feed := &fakeFeed{}
	watcher := NewWatcher(feed, zerolog.Nop())

	var mu sync.Mutex
	refreshes := 0
	err := watcher.Listen("ch-1", func(ctx context.Context) {
		mu.Lock()
		refreshes++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	// Stop blocks until the pump goroutine exits.
	watcher.Stop()

	mu.Lock()
	before := refreshes
	mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	after := refreshes
	mu.Unlock()
	if before != after {
		t.Fatalf("refresh ran after Stop: %d -> %d", before, after)
	}
}

func TestSendReplacesUndelivered(t *testing.T) {
	ch := make(chan int, 1)
	ctx := context.Background()

	Send(ctx, ch, 1)
	Send(ctx, ch, 2)

	got := <-ch
	if got != 2 {
		t.Fatalf("expected latest value 2, got %d", got)
	}
	select {
	case v := <-ch:
		t.Fatalf("channel should be drained, got %d", v)
	default:
	}
}

func TestSendHonorsCanceledContext(t *testing.T) {
	ch := make(chan int) // unbuffered, no receiver
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doneCh := make(chan struct{})
	go func() {
		Send(ctx, ch, 1)
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Send should return once the context is canceled")
	}
}
