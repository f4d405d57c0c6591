package election

import (
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/estimator"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

// alertRecord is the last Alert this process has seen, used to suppress
// confirming a deposed leader's still-in-flight Ok (§4.5).
type alertRecord struct {
	valid     bool
	round     int
	timestamp float64
}

// LossyO1 is the O(1) election-time variant: startRound broadcasts both
// Alert and Start so every peer learns a new round is starting without
// waiting to be told by a confirmed leader, and Ok confirmation is
// suppressed for 6d after a more recent Alert, so a just-deposed leader's
// stale heart-beat can't win back the role it already lost.
type LossyO1 struct {
	*core
	links     *estimator.ExpiringLinks
	ackRatio  int
	oksSeen   int
	lastAlert alertRecord
}

func newLossyO1(cfg Config) *LossyO1 {
	c := newCore(string(VariantLossyO1), cfg.Local, cfg.Peers, cfg.D, cfg.Observer, cfg.Transport, cfg.Metrics)
	ratio := cfg.AckRatio
	if ratio <= 0 {
		ratio = defaultAckRatio
	}
	return &LossyO1{
		core:     c,
		links:    estimator.New(cfg.D.Seconds()),
		ackRatio: ratio,
	}
}

func (l *LossyO1) Start() error {
	l.announceSelf()
	l.handlerMu.Lock()
	l.startRound(0)
	l.handlerMu.Unlock()

	l.timer0.Start(l.d, l.task0)
	go l.recvLoop()
	return nil
}

func (l *LossyO1) Close() error {
	l.announceDeparture()
	l.beginClosing()
	return l.tr.Close()
}

func (l *LossyO1) startRound(round int) {
	l.mu.Lock()
	n := l.table.Len()
	selfIdx := l.indexOfSelfLocked()
	peers := l.table.Peek()
	lead := round % n
	changed := l.leader != lead
	l.round = round
	l.leader = -1
	l.okcount = 0
	view := l.snapshotViewLocked()
	l.mu.Unlock()

	l.metrics.setRound(round)
	if changed {
		l.metrics.incLeaderChange()
	}

	var others []address.Address
	for _, p := range peers {
		if p != l.local {
			others = append(others, p)
		}
	}

	now := nowSeconds()
	alertPayload := message.Alert{Timestamp: now, Round: round}
	alertData, err := l.encode(message.TagAlert, alertPayload)
	if err != nil {
		l.log.WithError(err).Error("failed encoding Alert")
	} else if err := l.broadcast(alertData, others); err != nil {
		l.log.WithError(err).Debug("Alert broadcast incomplete (tolerated, link is lossy)")
	}
	l.recordAlertLocal(round, now)

	if selfIdx != lead {
		startPayload := message.Start{Round: round, Timestamp: now}
		startData, err := l.encode(message.TagStart, startPayload)
		if err != nil {
			l.log.WithError(err).Error("failed encoding Start")
		} else if err := l.broadcast(startData, others); err != nil {
			l.log.WithError(err).Debug("Start broadcast incomplete (tolerated, link is lossy)")
		}
	}

	l.safeNotify(view)
	l.pushEvent(view)
	l.restartTimer1(l.task1)
}

// recordAlertLocal updates lastAlert with this process' own broadcast Alert,
// so the suppression rule in handleOk also protects against this process'
// own stale leader belief, not just a peer's.
func (l *LossyO1) recordAlertLocal(round int, ts float64) {
	l.mu.Lock()
	if !l.lastAlert.valid || round > l.lastAlert.round {
		l.lastAlert = alertRecord{valid: true, round: round, timestamp: ts}
	}
	l.mu.Unlock()
}

// task0 is the heart-beat: every d, the designated leader of the current
// round (p == r mod n) sends Ok(r) to every peer, itself included.
func (l *LossyO1) task0() {
	if l.Closing() {
		return
	}
	l.mu.Lock()
	round := l.round
	if l.indexOfSelfLocked() != round%l.table.Len() {
		l.mu.Unlock()
		return
	}
	peers := l.table.Peek()
	dirty := l.table.Dirty()
	var peersField message.PeersField
	if dirty {
		peersField = message.FullList(l.table.Snapshot())
	} else {
		peersField = message.JustCount(len(peers))
	}
	l.mu.Unlock()

	ts := nowSeconds()
	for _, p := range peers {
		o, d := l.links.O(p), l.links.D(p)
		payload := message.Ok{
			Round: round, Peers: peersField, Timestamp: ts,
			Offset: o.Avg, Delay: d.Avg,
		}
		data, err := l.encode(message.TagOk, payload)
		if err != nil {
			l.log.WithError(err).Error("failed encoding Ok")
			continue
		}
		if err := l.sendOne(data, p); err != nil {
			l.log.WithError(err).Debug("Ok send failed (tolerated, link is lossy)")
			continue
		}
		l.metrics.incOkSent()
	}
}

func (l *LossyO1) task1() {
	if l.Closing() {
		return
	}
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.startRound(l.Round() + 1)
}

func (l *LossyO1) recvLoop() {
	for {
		dg, err := l.tr.Recv()
		if err != nil {
			if err == transport.ErrClosed {
				return
			}
			l.log.WithError(err).Warn("recv error")
			continue
		}
		env, err := message.Decode(dg.Data)
		if err != nil {
			l.log.WithError(err).WithField("from", dg.Src).Warn("dropping malformed datagram")
			continue
		}
		l.handlerMu.Lock()
		l.dispatch(env, dg.Src)
		l.handlerMu.Unlock()
	}
}

func (l *LossyO1) dispatch(env message.Envelope, src address.Address) {
	now := nowSeconds()
	switch env.Tag {
	case message.TagAlert:
		m, err := env.DecodeAlert()
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed Alert")
			return
		}
		l.handleAlert(m)
	case message.TagStart:
		m, err := env.DecodeStart()
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed Start")
			return
		}
		if l.links.Discard(m, src, now) {
			l.metrics.incDiscarded()
			return
		}
		if m.Round > l.Round() {
			l.startRound(m.Round)
		} else if m.Round < l.Round() {
			l.replyStart(src)
		}
	case message.TagOk:
		m, err := env.DecodeOk()
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed Ok")
			return
		}
		l.handleOk(m, src, now)
	case message.TagAck:
		m, err := env.DecodeAck()
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed Ack")
			return
		}
		l.links.AckSample(src, m.MsgTS, m.MsgRcvTS, m.Timestamp, now)
	case message.TagHello:
		m, err := env.DecodeHello()
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed Hello")
			return
		}
		l.handleHello(m)
	case message.TagBye:
		m, err := env.DecodeBye()
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed Bye")
			return
		}
		l.handleBye(m)
	default:
		l.log.WithField("tag", env.Tag).Debug("ignoring message not understood by this variant")
	}
}

func (l *LossyO1) handleAlert(m message.Alert) {
	l.mu.Lock()
	if !l.lastAlert.valid || m.Round > l.lastAlert.round {
		l.lastAlert = alertRecord{valid: true, round: m.Round, timestamp: m.Timestamp}
	}
	round := l.round
	l.mu.Unlock()

	if m.Round > round {
		l.startRound(m.Round)
	}
}

// suppressConfirmLocked implements §4.5's rule: an Ok for round k can
// confirm a leader only if no more recent Alert is still "live" — live
// meaning seen within the last 6d and for a round newer than k.
// Callers must hold l.mu.
func (l *LossyO1) suppressConfirmLocked(k int, now float64) bool {
	if !l.lastAlert.valid {
		return false
	}
	stillLive := (now-l.lastAlert.timestamp <= 6*l.d.Seconds()) && l.lastAlert.round > k
	return stillLive
}

func (l *LossyO1) handleOk(m message.Ok, src address.Address, now float64) {
	if l.links.Discard(m, src, now) {
		l.metrics.incDiscarded()
		return
	}
	if m.Offset != 0 || m.Delay != 0 {
		l.links.AdoptAuthoritative(src, m.Offset, m.Delay)
	}

	if m.Round > l.Round() {
		l.startRound(m.Round)
	} else if m.Round < l.Round() {
		l.replyStart(src)
		return
	}

	l.mu.Lock()
	n := l.table.Len()
	lead := m.Round % n
	l.okcount++
	changed := false
	if l.okcount >= 2 && !l.suppressConfirmLocked(m.Round, now) && l.leader != lead {
		l.leader = lead
		changed = true
	}
	if m.Peers.Full {
		l.table.Replace(m.Peers.Peers)
	}
	view := l.snapshotViewLocked()
	l.mu.Unlock()

	if changed {
		l.metrics.incLeaderChange()
		l.safeNotify(view)
		l.pushEvent(view)
	}
	l.restartTimer1(l.task1)

	l.maybeAck(m, src, now)
}

func (l *LossyO1) maybeAck(m message.Ok, src address.Address, now float64) {
	l.mu.Lock()
	l.oksSeen++
	due := (l.oksSeen-1)%l.ackRatio == 0
	l.mu.Unlock()
	if !due {
		return
	}
	payload := message.Ack{Timestamp: nowSeconds(), MsgTS: m.Timestamp, MsgRcvTS: now, Round: m.Round}
	data, err := l.encode(message.TagAck, payload)
	if err != nil {
		l.log.WithError(err).Error("failed encoding Ack")
		return
	}
	if err := l.sendOne(data, src); err != nil {
		l.log.WithError(err).Debug("Ack send failed (tolerated, link is lossy)")
	}
}
