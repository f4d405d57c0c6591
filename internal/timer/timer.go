// Package timer provides the two timer primitives the election core is
// built on: a repeatable ticker driving task 0 (the heart-beat), and a
// one-shot, restartable timer driving task 1 (the round timeout). The
// election core only depends on its contract; this package is a
// straightforward stdlib-backed implementation of it.
package timer

import (
	"sync"
	"time"
)

// Repeatable fires fn every interval until Cancel is called. Cancel is
// idempotent and safe to call even if Start was never called.
type Repeatable struct {
	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	running bool
}

// NewRepeatable returns an unarmed Repeatable timer.
func NewRepeatable() *Repeatable {
	return &Repeatable{}
}

// Start arms the timer. Calling Start while already running is a no-op;
// callers that want a different interval must Cancel first.
func (r *Repeatable) Start(interval time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.ticker = time.NewTicker(interval)
	r.stop = make(chan struct{})
	r.running = true

	ticker := r.ticker
	stop := r.stop
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()
}

// Cancel stops the ticker and its driving goroutine. Safe to call multiple
// times and safe to call on a timer that was never started.
func (r *Repeatable) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stop)
	r.ticker.Stop()
}

// OneShot is a restartable one-shot timer, modeling task 1 (the round
// timeout). Restart distinguishes being called from within its own fired
// callback (e.g. task1 -> startRound -> restartTimer, §5's "Timer restart
// discipline") from being called elsewhere: Go's time.Timer.Stop never
// blocks and is always safe to call on an already-fired timer, unlike the
// Python Timer.cancel this is ported from, so the generation guard below
// exists to preserve the documented distinction rather than to avoid a
// deadlock — skipping the redundant Stop call in the reentrant case keeps
// the behavior identical to the source's intent.
type OneShot struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	firingGen  uint64 // 0 when no callback is currently executing
}

// NewOneShot returns an unarmed OneShot timer.
func NewOneShot() *OneShot {
	return &OneShot{}
}

// Restart (re)arms the timer to invoke fn after d, cancelling any
// previously armed timer first unless this call is itself happening from
// within that timer's own callback.
func (o *OneShot) Restart(d time.Duration, fn func()) {
	o.mu.Lock()
	reentrant := o.firingGen != 0 && o.firingGen == o.generation
	if o.timer != nil && !reentrant {
		o.timer.Stop()
	}
	o.generation++
	gen := o.generation
	o.mu.Unlock()

	o.mu.Lock()
	o.timer = time.AfterFunc(d, func() { o.fire(gen, fn) })
	o.mu.Unlock()
}

func (o *OneShot) fire(gen uint64, fn func()) {
	o.mu.Lock()
	o.firingGen = gen
	o.mu.Unlock()

	fn()

	o.mu.Lock()
	if o.firingGen == gen {
		o.firingGen = 0
	}
	o.mu.Unlock()
}

// Cancel stops the timer. Idempotent; safe even if never armed.
func (o *OneShot) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
	}
}
