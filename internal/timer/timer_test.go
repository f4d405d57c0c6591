package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRepeatableFiresMultipleTimesThenCancels(t *testing.T) {
	var count int32
	r := NewRepeatable()
	r.Start(5*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	time.Sleep(35 * time.Millisecond)
	r.Cancel()
	seen := atomic.LoadInt32(&count)
	require.GreaterOrEqual(t, seen, int32(3))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, seen, atomic.LoadInt32(&count))

	// Cancel is idempotent.
	r.Cancel()
}

func TestOneShotFiresOnceAfterDuration(t *testing.T) {
	fired := make(chan struct{}, 1)
	o := NewOneShot()
	o.Restart(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer never fired")
	}
}

func TestOneShotRestartCancelsPendingFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	o := NewOneShot()
	o.Restart(10*time.Millisecond, func() { fired <- struct{}{} })
	o.Restart(50*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
		t.Fatal("the first, restarted timer still fired")
	case <-time.After(25 * time.Millisecond):
		// good: the first, shorter-duration fire was cancelled
	}

	select {
	case <-fired:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("second timer never fired")
	}
}

func TestOneShotReentrantRestartDoesNotDeadlock(t *testing.T) {
	o := NewOneShot()
	done := make(chan struct{})
	var calls int32

	var cb func()
	cb = func() {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Restart from within the timer's own callback, mirroring
			// task1 -> startRound -> restartTimer.
			o.Restart(5*time.Millisecond, cb)
			return
		}
		close(done)
	}
	o.Restart(5*time.Millisecond, cb)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant restart deadlocked or never fired twice")
	}
}
