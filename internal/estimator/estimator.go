// Package estimator implements the expiring-links clock-offset and
// network-delay estimator used by the lossy-link elector variants (§4.6):
// a per-peer running mean and mean absolute deviation of clock offset O and
// one-way delay D, fed by Ack round-trips, plus the discard(msg) predicate
// that decides whether an incoming message is fresh enough to act upon.
package estimator

import (
	"sync"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
)

// window bounds how many recent samples feed the mean/MAD recomputation
// for a single peer. A running incremental update produces the same
// qualitative behavior (the estimate shrinks as more samples agree); a
// bounded window lets stable peers keep adapting to a drifting link instead
// of letting early samples dominate forever, while still letting
// stats.Mean/MeanAbsDeviation do the arithmetic instead of hand-rolling it.
const window = 64

// Stat is one running estimate: its current mean, mean absolute deviation,
// and sample count. The zero value is the "no info" sentinel (§3).
type Stat struct {
	Avg   float64
	MAD   float64
	Count int
}

type peerInfo struct {
	offsetSamples []float64
	delaySamples  []float64
	offset        Stat
	delay         Stat
}

// ExpiringLinks tracks per-peer clock-offset/delay statistics and decides
// whether to discard stale messages. It is touched only from the handler
// thread (§5: "Statistics tables are touched only from the handler thread
// and require no lock"), but exposes its own mutex anyway since the O(1)
// variant's task0 also reads O()/D() concurrently with handler-thread
// writes when distributing authoritative values.
type ExpiringLinks struct {
	mu    sync.Mutex
	peers map[address.Address]*peerInfo
	d     float64 // maximum tolerable one-way delay, in seconds
}

// New creates an estimator that discards messages estimated to be older
// than d seconds.
func New(d float64) *ExpiringLinks {
	return &ExpiringLinks{peers: make(map[address.Address]*peerInfo), d: d}
}

func (e *ExpiringLinks) entry(src address.Address) *peerInfo {
	pi, ok := e.peers[src]
	if !ok {
		pi = &peerInfo{}
		e.peers[src] = pi
	}
	return pi
}

// O returns the current clock-offset estimate for src, or the "no info"
// zero Stat if no sample has been recorded yet.
func (e *ExpiringLinks) O(src address.Address) Stat {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pi, ok := e.peers[src]; ok {
		return pi.offset
	}
	return Stat{}
}

// D returns the current one-way delay estimate for src, or the "no info"
// zero Stat if no sample has been recorded yet.
func (e *ExpiringLinks) D(src address.Address) Stat {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pi, ok := e.peers[src]; ok {
		return pi.delay
	}
	return Stat{}
}

// AckSample records one Ack round-trip's worth of offset/delay data, per
// §4.6. t1/t2/t3/t4 are, respectively, the acked message's own send
// timestamp, its reception time at the peer, the Ack's send time at the
// peer, and its reception time here, all in fractional seconds.
func (e *ExpiringLinks) AckSample(src address.Address, t1, t2, t3, t4 float64) {
	delay := ((t4 - t1) - (t3 - t2)) / 2
	offset := ((t2 - t1) + (t3 - t4)) / 2

	e.mu.Lock()
	defer e.mu.Unlock()
	pi := e.entry(src)
	pi.offsetSamples = pushWindowed(pi.offsetSamples, offset, window)
	pi.delaySamples = pushWindowed(pi.delaySamples, delay, window)
	pi.offset = recompute(pi.offsetSamples)
	pi.delay = recompute(pi.delaySamples)

	log.WithFields(log.Fields{
		"peer":       src.String(),
		"offsetAvg":  pi.offset.Avg,
		"offsetMAD":  pi.offset.MAD,
		"delayAvg":   pi.delay.Avg,
		"delayMAD":   pi.delay.MAD,
		"sampleSize": pi.offset.Count,
	}).Debug("estimator: recorded ack sample")
}

// AdoptAuthoritative overwrites the local table for src with values
// distributed by the leader in an Ok message (§4.6: "the local table is
// overwritten with those values"), since only the leader has accurate
// estimates for every peer.
func (e *ExpiringLinks) AdoptAuthoritative(src address.Address, offset, delay float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pi := e.entry(src)
	// A distributed value carries no sample count of its own; treat it as
	// a single fresh sample so a subsequent real Ack from this process to
	// src still widens the admissible band per the n<10 rule in discard().
	pi.offset = Stat{Avg: offset, MAD: 0, Count: 1}
	pi.delay = Stat{Avg: delay, MAD: 0, Count: 1}
}

func pushWindowed(samples []float64, x float64, limit int) []float64 {
	samples = append(samples, x)
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples
}

func recompute(samples []float64) Stat {
	data := stats.Float64Data(samples)
	avg, err := data.Mean()
	if err != nil {
		return Stat{}
	}
	mad, err := data.MeanAbsDeviation()
	if err != nil {
		mad = 0
	}
	return Stat{Avg: avg, MAD: mad, Count: len(samples)}
}

// Timestamped is anything carrying a message-send timestamp, in fractional
// seconds, that discard() can judge the freshness of.
type Timestamped interface {
	SendTime() float64
}

// Discard implements the discard(msg, src) predicate of §4.6: it returns
// true when msg is stale enough to be dropped as a late delivery.
func (e *ExpiringLinks) Discard(msg Timestamped, src address.Address, now float64) bool {
	e.mu.Lock()
	delay, ok := e.peerDelay(src)
	e.mu.Unlock()
	if !ok {
		log.WithField("peer", src.String()).Debug("discard: no data about peer, letting message through")
		return false
	}

	k := 3.0
	mad := delay.MAD
	if delay.Count < 10 {
		mad = delay.Avg / 3 // widen the admissible band when MAD isn't reliable yet
	}
	if delay.Avg < 0 {
		k = -k
	}

	estimatedDelay := (now - msg.SendTime()) + (delay.Avg + k*mad)
	log.WithFields(log.Fields{
		"peer":           src.String(),
		"estimatedDelay": estimatedDelay,
		"threshold":      e.d,
	}).Debug("discard: evaluated message freshness")
	return estimatedDelay > e.d
}

func (e *ExpiringLinks) peerDelay(src address.Address) (Stat, bool) {
	pi, ok := e.peers[src]
	if !ok || pi.delay.Count == 0 {
		return Stat{}, false
	}
	return pi.delay, true
}
