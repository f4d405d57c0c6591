package election

import (
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

// Stable is the reliable-links variant: it assumes no message is ever lost,
// so it does not need the expiring-links estimator, but it does require
// confirmation before trusting a leader — it only commits leader := s mod n
// after two Ok(s) messages have been seen for round s, filtering out a
// single stray or duplicated heart-beat.
type Stable struct {
	*core
}

func newStable(cfg Config) *Stable {
	c := newCore(string(VariantStable), cfg.Local, cfg.Peers, cfg.D, cfg.Observer, cfg.Transport, cfg.Metrics)
	return &Stable{core: c}
}

func (s *Stable) Start() error {
	s.announceSelf()
	s.handlerMu.Lock()
	s.startRound(0)
	s.handlerMu.Unlock()

	s.timer0.Start(s.d, s.task0)
	go s.recvLoop()
	return nil
}

func (s *Stable) Close() error {
	s.announceDeparture()
	s.beginClosing()
	return s.tr.Close()
}

// startRound tells the new round's designated leader, then clears the
// believed leader back to "none" — unlike Basic, Stable never assigns a
// leader until a second Ok confirms it (§4.2's starter, specialized per
// the documented basic/stable distinction).
func (s *Stable) startRound(round int) {
	s.mu.Lock()
	n := s.table.Len()
	selfIdx := s.indexOfSelfLocked()
	peers := s.table.Peek()
	l := round % n
	hadLeader := s.leader >= 0
	s.round = round
	s.leader = -1
	s.okcount = 0
	view := s.snapshotViewLocked()
	s.mu.Unlock()

	s.metrics.setRound(round)
	if hadLeader {
		s.metrics.incLeaderChange()
	}

	if selfIdx != l {
		payload := message.Start{Round: round}
		data, err := s.encode(message.TagStart, payload)
		if err != nil {
			s.log.WithError(err).Error("failed encoding Start")
		} else if err := s.sendOne(data, peers[l]); err != nil {
			s.log.WithError(err).WithField("leader", peers[l]).Warn("failed sending Start")
		}
	}

	s.safeNotify(view)
	s.pushEvent(view)
	s.restartTimer1(s.task1)
}

// task0 is the heart-beat: every d, the designated leader of the current
// round (p == r mod n) broadcasts Ok(r) to every peer, itself included, so
// that its own two Oks confirm it and keep its round timeout from firing.
func (s *Stable) task0() {
	if s.Closing() {
		return
	}
	s.mu.Lock()
	round := s.round
	if s.indexOfSelfLocked() != round%s.table.Len() {
		s.mu.Unlock()
		return
	}
	peers := s.table.Peek()
	dirty := s.table.Dirty()
	var peersField message.PeersField
	if dirty {
		peersField = message.FullList(s.table.Snapshot())
	} else {
		peersField = message.JustCount(len(peers))
	}
	s.mu.Unlock()

	payload := message.Ok{Round: round, Peers: peersField}
	data, err := s.encode(message.TagOk, payload)
	if err != nil {
		s.log.WithError(err).Error("failed encoding Ok")
		return
	}
	if err := s.broadcast(data, peers); err != nil {
		s.log.WithError(err).Warn("Ok broadcast incomplete")
	}
	s.metrics.incOkSent()
}

// task1 relinquishes trust in the current believed leader (telling it so via
// Stop, if reachable) before moving to the next round, rather than letting
// it silently time out on both sides.
func (s *Stable) task1() {
	if s.Closing() {
		return
	}
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	s.mu.Lock()
	round := s.round
	n := s.table.Len()
	leader, haveLeader := s.leader, s.leader >= 0
	selfIdx := s.indexOfSelfLocked()
	var leaderAddr address.Address
	if haveLeader {
		leaderAddr, _ = s.table.At(leader)
	}
	s.mu.Unlock()

	if haveLeader && leader != selfIdx {
		payload := message.Stop{Round: round}
		data, err := s.encode(message.TagStop, payload)
		if err == nil {
			if err := s.sendOne(data, leaderAddr); err != nil {
				s.log.WithError(err).Debug("failed sending Stop")
			}
		}
	}

	_ = n
	s.startRound(round + 1)
}

func (s *Stable) recvLoop() {
	for {
		dg, err := s.tr.Recv()
		if err != nil {
			if err == transport.ErrClosed {
				return
			}
			s.log.WithError(err).Warn("recv error")
			continue
		}
		env, err := message.Decode(dg.Data)
		if err != nil {
			s.log.WithError(err).WithField("from", dg.Src).Warn("dropping malformed datagram")
			continue
		}
		s.handlerMu.Lock()
		s.dispatch(env, dg.Src)
		s.handlerMu.Unlock()
	}
}

func (s *Stable) dispatch(env message.Envelope, src address.Address) {
	switch env.Tag {
	case message.TagStart:
		m, err := env.DecodeStart()
		if err != nil {
			s.log.WithError(err).Warn("dropping malformed Start")
			return
		}
		if m.Round > s.Round() {
			s.startRound(m.Round)
		}
	case message.TagOk:
		m, err := env.DecodeOk()
		if err != nil {
			s.log.WithError(err).Warn("dropping malformed Ok")
			return
		}
		s.handleOk(m)
	case message.TagStop:
		m, err := env.DecodeStop()
		if err != nil {
			s.log.WithError(err).Warn("dropping malformed Stop")
			return
		}
		s.handleStop(m)
	case message.TagHello:
		m, err := env.DecodeHello()
		if err != nil {
			s.log.WithError(err).Warn("dropping malformed Hello")
			return
		}
		s.handleHello(m)
	case message.TagBye:
		m, err := env.DecodeBye()
		if err != nil {
			s.log.WithError(err).Warn("dropping malformed Bye")
			return
		}
		s.handleBye(m)
	default:
		s.log.WithField("tag", env.Tag).Debug("ignoring message not understood by this variant")
	}
}

func (s *Stable) handleOk(m message.Ok) {
	if m.Round > s.Round() {
		s.startRound(m.Round)
	} else if m.Round < s.Round() {
		return
	}

	s.mu.Lock()
	n := s.table.Len()
	l := m.Round % n
	s.okcount++
	changed := false
	if s.okcount >= 2 && s.leader != l {
		s.leader = l
		changed = true
	}
	if m.Peers.Full {
		s.table.Replace(m.Peers.Peers)
	}
	view := s.snapshotViewLocked()
	s.mu.Unlock()

	if changed {
		s.metrics.incLeaderChange()
		s.safeNotify(view)
		s.pushEvent(view)
	}
	s.restartTimer1(s.task1)
}

// handleStop lets a reported leader voluntarily step down as soon as a
// single follower says it no longer trusts it for the current round — a
// deliberate simplification of a quorum-based relinquish policy, since
// §4's reliable-link assumption means a stray Stop cannot be a transient
// delivery artifact the way a stray discarded Ok could be in the lossy
// variants.
func (s *Stable) handleStop(m message.Stop) {
	if m.Round != s.Round() {
		return
	}
	s.mu.Lock()
	if s.leader != s.indexOfSelfLocked() {
		s.mu.Unlock()
		return
	}
	s.leader = -1
	view := s.snapshotViewLocked()
	s.mu.Unlock()

	s.metrics.incLeaderChange()
	s.safeNotify(view)
	s.pushEvent(view)
}
