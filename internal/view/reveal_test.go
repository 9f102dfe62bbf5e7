package view

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// tick blocks until the reveal loop has received the tick.
func (f *fakeTicker) tick() { f.ch <- time.Now() }

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *fakeClock) last() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRevealerStartsIdle(t *testing.T) {
	t.Parallel()

	r := NewRevealer(50*time.Millisecond, (&fakeClock{}).NewTicker)
	if r.Index() != -1 {
		t.Fatalf("expected -1 before any text, got %d", r.Index())
	}
	if r.Active() {
		t.Fatalf("expected inactive revealer")
	}
}

func TestRevealerIncrementsOncePerTick(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	r := NewRevealer(50*time.Millisecond, clock.NewTicker)
	defer r.Stop()

	if !r.Restart("Hello") {
		t.Fatalf("expected reset for new text")
	}
	if r.Index() != 0 {
		t.Fatalf("expected index 0 after restart, got %d", r.Index())
	}

	ft := clock.last()
	for want := 1; want <= 8; want++ {
		ft.tick()
		waitFor(t, "index increment", func() bool { return r.Index() == want })
	}
	// unbounded: keeps counting past len("Hello")
	if r.Index() != 8 {
		t.Fatalf("expected index 8, got %d", r.Index())
	}
}

func TestRevealerSameTextDoesNotReset(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	r := NewRevealer(50*time.Millisecond, clock.NewTicker)
	defer r.Stop()

	r.Restart("Hello")
	ft := clock.last()
	ft.tick()
	ft.tick()
	waitFor(t, "two ticks", func() bool { return r.Index() == 2 })

	if r.Restart("Hello") {
		t.Fatalf("expected identical text to keep the running reveal")
	}
	if r.Index() != 2 {
		t.Fatalf("expected index to stay at 2, got %d", r.Index())
	}
	if clock.count() != 1 {
		t.Fatalf("expected no new ticker, got %d tickers", clock.count())
	}
}

func TestRevealerNewTextReplacesTicker(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	r := NewRevealer(50*time.Millisecond, clock.NewTicker)
	defer r.Stop()

	r.Restart("first")
	first := clock.last()
	first.tick()
	waitFor(t, "first tick", func() bool { return r.Index() == 1 })

	r.Restart("second")
	if !first.stopped.Load() {
		t.Fatalf("expected previous ticker to be stopped")
	}
	if r.Index() != 0 {
		t.Fatalf("expected reset to 0, got %d", r.Index())
	}
	if clock.count() != 2 {
		t.Fatalf("expected exactly two tickers, got %d", clock.count())
	}

	select {
	case first.ch <- time.Now():
		t.Fatalf("previous reveal loop is still receiving ticks")
	default:
	}
}

func TestRevealerStopHaltsTicks(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	r := NewRevealer(50*time.Millisecond, clock.NewTicker)

	r.Restart("Hello")
	ft := clock.last()
	ft.tick()
	waitFor(t, "tick", func() bool { return r.Index() == 1 })

	r.Stop()
	if !ft.stopped.Load() {
		t.Fatalf("expected ticker stopped")
	}
	if r.Index() != -1 || r.Active() {
		t.Fatalf("expected idle revealer after stop, index=%d", r.Index())
	}
	select {
	case ft.ch <- time.Now():
		t.Fatalf("reveal loop still running after stop")
	default:
	}
}

func TestRevealerWithRealTicker(t *testing.T) {
	t.Parallel()

	r := NewRevealer(time.Millisecond, nil)
	r.Restart("typewriter")
	waitFor(t, "real ticks", func() bool { return r.Index() >= 3 })

	r.Stop()
	time.Sleep(10 * time.Millisecond)
	if r.Index() != -1 {
		t.Fatalf("expected no ticks after stop, index=%d", r.Index())
	}
}
