package election

import (
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/estimator"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

// defaultAckRatio is used when Config.AckRatio is unset (<=0): send an Ack
// back for the first Ok received and then every third one, matching the
// original's ackratio default.
const defaultAckRatio = 3

// LossyON is the O(n) election-time stable variant: it tolerates message
// loss over "expiring links" by holding an *estimator.ExpiringLinks as a
// field (composition, not inheritance) and discarding any Start/Ok judged
// too stale to act on.
type LossyON struct {
	*core
	links    *estimator.ExpiringLinks
	ackRatio int
	oksSeen  int
}

func newLossyON(cfg Config) *LossyON {
	c := newCore(string(VariantLossyON), cfg.Local, cfg.Peers, cfg.D, cfg.Observer, cfg.Transport, cfg.Metrics)
	ratio := cfg.AckRatio
	if ratio <= 0 {
		ratio = defaultAckRatio
	}
	return &LossyON{
		core:     c,
		links:    estimator.New(cfg.D.Seconds()),
		ackRatio: ratio,
	}
}

func (l *LossyON) Start() error {
	l.announceSelf()
	l.handlerMu.Lock()
	l.startRound(0)
	l.handlerMu.Unlock()

	l.timer0.Start(l.d, l.task0)
	go l.recvLoop()
	return nil
}

func (l *LossyON) Close() error {
	l.announceDeparture()
	l.beginClosing()
	return l.tr.Close()
}

func (l *LossyON) startRound(round int) {
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

	if selfIdx != lead {
		payload := message.Start{Round: round, Timestamp: nowSeconds()}
		data, err := l.encode(message.TagStart, payload)
		if err != nil {
			l.log.WithError(err).Error("failed encoding Start")
		} else {
			var others []address.Address
			for _, p := range peers {
				if p != l.local {
					others = append(others, p)
				}
			}
			if err := l.broadcast(data, others); err != nil {
				l.log.WithError(err).Debug("Start broadcast incomplete (tolerated, link is lossy)")
			}
		}
	}

	l.safeNotify(view)
	l.pushEvent(view)
	l.restartTimer1(l.task1)
}

// task0 is the heart-beat: every d, the designated leader of the current
// round (p == r mod n) sends Ok(r) to every peer, itself included.
func (l *LossyON) task0() {
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

func (l *LossyON) task1() {
	if l.Closing() {
		return
	}
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.startRound(l.Round() + 1)
}

func (l *LossyON) recvLoop() {
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

func (l *LossyON) dispatch(env message.Envelope, src address.Address) {
	now := nowSeconds()
	switch env.Tag {
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

func (l *LossyON) handleOk(m message.Ok, src address.Address, now float64) {
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
	if l.okcount >= 2 && l.leader != lead {
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

// maybeAck replies with an Ack to the first Ok and then to every
// ackRatio-th one, letting the leader (and only the leader, who is the Ok
// sender) sample this link's offset/delay per §4.6, without flooding an Ack
// back on every single heart-beat.
func (l *LossyON) maybeAck(m message.Ok, src address.Address, now float64) {
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
