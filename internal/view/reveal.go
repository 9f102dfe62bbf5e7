package view

import (
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the reveal loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Revealer drives the typewriter effect. It owns at most one ticker, bound to
// the text it was last restarted with.
type Revealer struct {
	interval  time.Duration
	newTicker TickerFunc

	// ctl serialises Restart and Stop; mu guards the fields the loop touches.
	ctl sync.Mutex

	mu     sync.Mutex
	text   string
	active bool
	index  int
	stop   chan struct{}
	done   chan struct{}
}

func NewRevealer(interval time.Duration, newTicker TickerFunc) *Revealer {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if newTicker == nil {
		newTicker = NewStdTicker
	}
	return &Revealer{interval: interval, newTicker: newTicker, index: -1}
}

// Restart binds the reveal to text. Identical text keeps the running reveal;
// anything else cancels it and starts over at index 0. It reports whether a
// reset happened.
func (r *Revealer) Restart(text string) bool {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	if r.active && r.text == text {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	r.halt()

	stop := make(chan struct{})
	done := make(chan struct{})
	t := r.newTicker(r.interval)

	r.mu.Lock()
	r.text = text
	r.active = true
	r.index = 0
	r.stop = stop
	r.done = done
	r.mu.Unlock()

	go r.loop(t, stop, done)
	return true
}

// Stop cancels any running reveal. No tick is applied once it returns.
func (r *Revealer) Stop() {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.halt()

	r.mu.Lock()
	r.text = ""
	r.active = false
	r.index = -1
	r.mu.Unlock()
}

func (r *Revealer) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

func (r *Revealer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// halt must be called with ctl held.
func (r *Revealer) halt() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Revealer) loop(t Ticker, stop, done chan struct{}) {
	defer close(done)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C():
			select {
			case <-stop:
				return
			default:
			}
			r.mu.Lock()
			r.index++
			r.mu.Unlock()
		}
	}
}
