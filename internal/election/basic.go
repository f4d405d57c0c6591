package election

import (
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

// Basic is the non-stable variant: it tolerates no message loss and assigns
// leader := s mod n the instant it starts round s, without waiting for an Ok
// confirmation from that leader.
type Basic struct {
	*core
}

func newBasic(cfg Config) *Basic {
	c := newCore(string(VariantBasic), cfg.Local, cfg.Peers, cfg.D, cfg.Observer, cfg.Transport, cfg.Metrics)
	return &Basic{core: c}
}

// Start begins round 0 and launches the heart-beat and dispatch goroutines.
func (b *Basic) Start() error {
	b.announceSelf()
	b.handlerMu.Lock()
	b.startRound(0)
	b.handlerMu.Unlock()

	b.timer0.Start(b.d, b.task0)
	go b.recvLoop()
	return nil
}

// Close stops both timers and the transport, per §5's cancellation
// discipline.
func (b *Basic) Close() error {
	b.announceDeparture()
	b.beginClosing()
	return b.tr.Close()
}

// startRound implements §4.2's round starter: compute the round's leader,
// tell it if it isn't us, then adopt the new round unconditionally — the
// trait that distinguishes Basic from the stable variants, which wait for a
// confirming Ok before believing a leader.
func (b *Basic) startRound(s int) {
	b.mu.Lock()
	n := b.table.Len()
	selfIdx := b.indexOfSelfLocked()
	peers := b.table.Peek()
	l := s % n
	changed := b.leader != l
	b.round = s
	b.leader = l
	view := b.snapshotViewLocked()
	b.mu.Unlock()

	b.metrics.setRound(s)
	if changed {
		b.metrics.incLeaderChange()
	}

	if selfIdx != l {
		payload := message.Start{Round: s}
		data, err := b.encode(message.TagStart, payload)
		if err != nil {
			b.log.WithError(err).Error("failed encoding Start")
		} else if err := b.sendOne(data, peers[l]); err != nil {
			b.log.WithError(err).WithField("leader", peers[l]).Warn("failed sending Start")
		}
	}

	b.safeNotify(view)
	b.pushEvent(view)
	b.restartTimer1(b.task1)
}

// task0 is the heart-beat: every d, the believed leader broadcasts Ok(r) to
// every peer, itself included, so its own round timeout is reset too (§4.3).
func (b *Basic) task0() {
	if b.Closing() {
		return
	}
	if !b.IsLeader() {
		return
	}
	b.mu.Lock()
	round := b.round
	peers := b.table.Peek()
	b.mu.Unlock()

	payload := message.Ok{Round: round, Peers: message.JustCount(len(peers))}
	data, err := b.encode(message.TagOk, payload)
	if err != nil {
		b.log.WithError(err).Error("failed encoding Ok")
		return
	}
	if err := b.broadcast(data, peers); err != nil {
		b.log.WithError(err).Warn("Ok broadcast incomplete")
	}
	b.metrics.incOkSent()
}

// task1 is the round timeout: if 2d pass with no reason to believe the
// current round is still alive, move on to the next one (§4.4).
func (b *Basic) task1() {
	if b.Closing() {
		return
	}
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.startRound(b.Round() + 1)
}

func (b *Basic) recvLoop() {
	for {
		dg, err := b.tr.Recv()
		if err != nil {
			if err == transport.ErrClosed {
				return
			}
			b.log.WithError(err).Warn("recv error")
			continue
		}
		env, err := message.Decode(dg.Data)
		if err != nil {
			b.log.WithError(err).WithField("from", dg.Src).Warn("dropping malformed datagram")
			continue
		}
		b.handlerMu.Lock()
		b.dispatch(env, dg.Src)
		b.handlerMu.Unlock()
	}
}

func (b *Basic) dispatch(env message.Envelope, src address.Address) {
	switch env.Tag {
	case message.TagStart:
		m, err := env.DecodeStart()
		if err != nil {
			b.log.WithError(err).Warn("dropping malformed Start")
			return
		}
		if m.Round > b.Round() {
			b.startRound(m.Round)
		}
	case message.TagOk:
		m, err := env.DecodeOk()
		if err != nil {
			b.log.WithError(err).Warn("dropping malformed Ok")
			return
		}
		b.handleOk(m)
	case message.TagHello:
		m, err := env.DecodeHello()
		if err != nil {
			b.log.WithError(err).Warn("dropping malformed Hello")
			return
		}
		b.handleHello(m)
	case message.TagBye:
		m, err := env.DecodeBye()
		if err != nil {
			b.log.WithError(err).Warn("dropping malformed Bye")
			return
		}
		b.handleBye(m)
	default:
		b.log.WithField("tag", env.Tag).Debug("ignoring message not understood by this variant")
	}
}

func (b *Basic) handleOk(m message.Ok) {
	if m.Round > b.Round() {
		b.startRound(m.Round)
		return
	}
	if m.Round < b.Round() {
		return
	}
	b.mu.Lock()
	n := b.table.Len()
	l := m.Round % n
	changed := b.leader != l
	b.leader = l
	view := b.snapshotViewLocked()
	b.mu.Unlock()
	if changed {
		b.metrics.incLeaderChange()
	}
	b.safeNotify(view)
	b.restartTimer1(b.task1)
}
