// Package election implements the Elector state machine described in
// spec.md §2-§5, §8-§9: the membership table, round/leader state, the two
// concurrent tasks (heart-beat and round timeout), the message protocol,
// and — for the lossy variants — the expiring-links estimator. Four
// variants are provided (Basic, Stable, LossyON, LossyO1), all sharing the
// core defined in this file.
package election

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/timer"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

// View is an immutable snapshot of an Elector's believed leader state at
// the moment it changed, handed to Observer.Notify. It is a plain value
// (not a live pointer into the core) so observers can never deadlock by
// calling back into the Elector that produced it (§4.7: "document
// non-reentrancy").
type View struct {
	RoundNum  int
	LeaderIdx int
	HasLeader bool
	SelfIdx   int
	NumPeers  int
}

// Round is the process' current round, as of this view.
func (v View) Round() int { return v.RoundNum }

// Leader returns the believed leader index and whether one is confirmed.
func (v View) Leader() (int, bool) { return v.LeaderIdx, v.HasLeader }

// IsLeader reports whether this process believed itself leader at the time
// of this view.
func (v View) IsLeader() bool { return v.HasLeader && v.LeaderIdx == v.SelfIdx }

// N is the number of known peers at the time of this view.
func (v View) N() int { return v.NumPeers }

// P is this process' own index at the time of this view.
func (v View) P() int { return v.SelfIdx }

// Observer is notified whenever the believed leader changes: confirmed,
// cleared, or reassigned (§4.7). Notify must not block for long and must
// not call back into the Elector that invoked it.
type Observer interface {
	Notify(v View)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(v View)

func (f ObserverFunc) Notify(v View) { f(v) }

// noopObserver is used when the caller passes a nil Observer; no variant
// rejects a nil Observer, so callers that don't care about leader-change
// notifications don't have to provide a do-nothing Observer themselves.
type noopObserver struct{}

func (noopObserver) Notify(View) {}

// LeaderEvent is pushed onto an Elector's event channel every time the
// believed leader changes, the same leaderChan pattern earlier coordinator
// code in this repository used, generalized to the new core.
type LeaderEvent struct {
	View
}

const eventBuffer = 32

// core holds the state and mechanics common to all four variants: §3's
// round/leader/membership data, §4.2's round starter mechanics minus the
// variant-specific message content, §4.3/§4.4's timers, and §4.7's observer
// hook. Each variant embeds *core and supplies its own startRound, task0,
// task1 and message dispatch.
type core struct {
	// mu guards round, leader, okcount and the membership table: short,
	// fast critical sections safe to take from any goroutine (§5: "r,
	// leader, okcount are written only from the dispatcher and the two
	// timer threads; writes must be synchronized").
	mu      sync.Mutex
	table   *address.Table
	local   address.Address
	round   int
	leader  int // -1 means "none"
	okcount int
	closing bool

	// handlerMu serializes the coarse-grained state-transition entry
	// points — the initial round-0 start, every dispatched message
	// handler, and the task1 timeout callback — so "all state transitions
	// triggered by a single incoming message are applied atomically with
	// respect to other handlers on the same Elector" (§5). It is acquired
	// once per entry point by the dispatch loop / timer callback; methods
	// called from within an entry point (startRound, the per-tag
	// handlers) assume it is already held and must never acquire it
	// themselves, or a timer1 -> startRound re-entrant call would
	// deadlock.
	handlerMu sync.Mutex

	d       time.Duration
	timeout time.Duration

	observer Observer
	timer0   *timer.Repeatable
	timer1   *timer.OneShot
	tr       transport.Transport
	metrics  *Metrics
	events   chan LeaderEvent
	log      *log.Entry

	variant string
}

func newCore(variant string, local address.Address, peers []address.Address, d time.Duration, observer Observer, tr transport.Transport, metrics *Metrics) *core {
	if observer == nil {
		observer = noopObserver{}
	}
	table := address.NewTable(local, peers...)
	entry := log.WithFields(log.Fields{"variant": variant, "local": local.String()})
	c := &core{
		table:    table,
		local:    local,
		leader:   -1,
		d:        d,
		timeout:  2 * d,
		observer: observer,
		timer0:   timer.NewRepeatable(),
		timer1:   timer.NewOneShot(),
		tr:       tr,
		metrics:  metrics,
		events:   make(chan LeaderEvent, eventBuffer),
		log:      entry,
		variant:  variant,
	}
	if table.Len() < 2 {
		entry.Warn("process does not know two peers yet, fault tolerance is not guaranteed")
	}
	return c
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Round returns r, the current round number (§3: monotonically non-decreasing).
func (c *core) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// LeaderIndex returns the believed leader index and whether one is confirmed.
func (c *core) LeaderIndex() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leader < 0 {
		return 0, false
	}
	return c.leader, true
}

// N returns the number of currently known peers.
func (c *core) N() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Len()
}

// P returns this process' own index within the membership table.
func (c *core) P() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOfSelfLocked()
}

func (c *core) indexOfSelfLocked() int {
	idx := c.table.IndexOf(c.local)
	if idx < 0 {
		return c.table.Len()
	}
	return idx
}

// IsLeader reports whether this process currently believes it is the
// leader.
func (c *core) IsLeader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader >= 0 && c.leader == c.indexOfSelfLocked()
}

// Peers returns a thread-safe snapshot of the membership table.
func (c *core) Peers() []address.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Peek()
}

// AddPeer adds addr to the membership table (thread-safe).
func (c *core) AddPeer(addr address.Address) {
	c.mu.Lock()
	c.table.Add(addr)
	c.mu.Unlock()
}

// RemovePeer removes addr from the membership table (thread-safe).
func (c *core) RemovePeer(addr address.Address) {
	c.mu.Lock()
	c.table.Remove(addr)
	c.mu.Unlock()
}

// LocalAddr returns this process' own transport address.
func (c *core) LocalAddr() address.Address { return c.local }

// Events returns the channel LeaderEvents are pushed onto.
func (c *core) Events() <-chan LeaderEvent { return c.events }

// Closing reports whether Close has been called.
func (c *core) Closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// beginClosing flips the closing flag and cancels both timers, per §5's
// cancellation discipline ("close() sets a closing flag, cancels both
// timers, and returns").
func (c *core) beginClosing() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	c.timer0.Cancel()
	c.timer1.Cancel()
}

// snapshotViewLocked builds a View from the current state. Callers must
// hold c.mu.
func (c *core) snapshotViewLocked() View {
	return View{
		RoundNum:  c.round,
		LeaderIdx: c.leader,
		HasLeader: c.leader >= 0,
		SelfIdx:   c.indexOfSelfLocked(),
		NumPeers:  c.table.Len(),
	}
}

// safeNotify invokes the observer, catching and logging any panic so it
// never propagates into the Elector, per §4.7/§7.
func (c *core) safeNotify(v View) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Warn("observer panicked, swallowing")
		}
	}()
	c.observer.Notify(v)
}

// pushEvent best-effort delivers a LeaderEvent, never blocking the
// dispatcher thread if nobody is reading the channel.
func (c *core) pushEvent(v View) {
	select {
	case c.events <- LeaderEvent{View: v}:
	default:
		c.log.Debug("leader event channel full, dropping event")
	}
}

// restartTimer1 restarts task 1 with timeout 2d, per §4.2/§4.4.
func (c *core) restartTimer1(task1 func()) {
	c.timer1.Restart(c.timeout, task1)
}

// encode wraps Encode with the variant's logger context for error logging.
func (c *core) encode(tag message.Tag, payload interface{}) ([]byte, error) {
	raw, err := message.Encode(tag, payload)
	if err != nil {
		return nil, errors.Wrapf(err, "election: encoding %s", tag)
	}
	return raw, nil
}

// sendOne sends data to dst and turns a non-zero "missing" count into an
// error, matching §6.1's "any non-zero value is treated as an error".
func (c *core) sendOne(data []byte, dst address.Address) error {
	missing, err := c.tr.Send(data, dst)
	if err != nil {
		return err
	}
	if missing != 0 {
		return errors.Errorf("incomplete send to %s: %d bytes not sent", dst, missing)
	}
	return nil
}

// broadcast sends data to every peer in peers, aggregating per-destination
// failures into a single *multierror.Error rather than failing fast, so
// callers can inspect exactly which sends failed (§4.3 / §10.2).
func (c *core) broadcast(data []byte, peers []address.Address) error {
	var result *multierror.Error
	for _, p := range peers {
		if err := c.sendOne(data, p); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "peer %s", p))
		}
	}
	return result.ErrorOrNil()
}

// replyStart sends a fresh Start(r) back to dst, the nudge the lossy
// variants give a peer whose message just turned out to be for a round
// older than the current one (§4.5: "lossy variants reply with a fresh
// Start(r) to nudge the sender forward").
func (c *core) replyStart(dst address.Address) {
	payload := message.Start{Round: c.Round(), Timestamp: nowSeconds()}
	data, err := c.encode(message.TagStart, payload)
	if err != nil {
		c.log.WithError(err).Error("failed encoding Start")
		return
	}
	if err := c.sendOne(data, dst); err != nil {
		c.log.WithError(err).Debug("failed replying Start (tolerated, link is lossy)")
	}
}
