package election

import (
	"time"

	"github.com/pkg/errors"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

// Variant names the four Aguilera et al. elector flavors §2 describes.
type Variant string

const (
	VariantBasic   Variant = "basic"
	VariantStable  Variant = "stable"
	VariantLossyON Variant = "lossy-on"
	VariantLossyO1 Variant = "lossy-o1"
)

// Config is the shared construction parameters for every variant. Not every
// field applies to every variant; unused ones are ignored (e.g. AckRatio
// outside the lossy variants).
type Config struct {
	Local     address.Address
	Peers     []address.Address
	D         time.Duration
	AckRatio  int // lossy variants: Ack the first Ok received, then every AckRatio-th
	Observer  Observer
	Transport transport.Transport
	Metrics   *Metrics
}

func (cfg Config) validate() error {
	if cfg.Transport == nil {
		return errors.New("election: Config.Transport is required")
	}
	if cfg.D <= 0 {
		return errors.New("election: Config.D must be positive")
	}
	return nil
}

// Elector is the common contract all four variants satisfy, used by
// cmd/elector and internal/monitor to drive leadership-gated work without
// caring which variant is configured.
type Elector interface {
	// Start begins round 0 and launches the heart-beat and receive-dispatch
	// goroutines. It must be called at most once.
	Start() error
	// Close broadcasts Bye, stops both timers and closes the transport. It
	// does not wait for the receive loop to exit; that loop returns on its
	// own once Recv reports the transport closed.
	Close() error

	Round() int
	LeaderIndex() (int, bool)
	IsLeader() bool
	N() int
	P() int
	Peers() []address.Address
	AddPeer(address.Address)
	RemovePeer(address.Address)
	Events() <-chan LeaderEvent
}

// New builds the Elector for the requested variant.
func New(variant Variant, cfg Config) (Elector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch variant {
	case VariantBasic:
		return newBasic(cfg), nil
	case VariantStable:
		return newStable(cfg), nil
	case VariantLossyON:
		return newLossyON(cfg), nil
	case VariantLossyO1:
		return newLossyO1(cfg), nil
	default:
		return nil, errors.Errorf("election: unknown variant %q", variant)
	}
}

// handleHello adds the announced address to the membership table if this
// process believes itself leader; otherwise it forwards the announcement
// towards the believed leader, who is the only one allowed to mutate the
// table (§4.5: "if local is leader, add ... else forward to believed
// leader, if any"). Shared by every variant since joining is not
// round-sensitive (§4.1). Manages its own locking since a forward must not
// hold c.mu while sending.
func (c *core) handleHello(h message.Hello) {
	leaderAddr, haveLeader, isLeader := c.forwardTargetLocked()
	if isLeader {
		if c.addPeerLocked(h.Address) {
			c.log.WithField("peer", h.Address.String()).Info("peer joined")
		}
		return
	}
	if !haveLeader {
		return
	}
	data, err := c.encode(message.TagHello, h)
	if err != nil {
		c.log.WithError(err).Error("failed encoding forwarded Hello")
		return
	}
	if err := c.sendOne(data, leaderAddr); err != nil {
		c.log.WithError(err).Debug("failed forwarding Hello to believed leader")
	}
}

// handleBye removes the announced address from the membership table if this
// process leads, otherwise forwards it towards the believed leader,
// symmetric with handleHello (§4.5).
func (c *core) handleBye(b message.Bye) {
	leaderAddr, haveLeader, isLeader := c.forwardTargetLocked()
	if isLeader {
		if c.removePeerLocked(b.Address) {
			c.log.WithField("peer", b.Address.String()).Info("peer left")
		}
		return
	}
	if !haveLeader {
		return
	}
	data, err := c.encode(message.TagBye, b)
	if err != nil {
		c.log.WithError(err).Error("failed encoding forwarded Bye")
		return
	}
	if err := c.sendOne(data, leaderAddr); err != nil {
		c.log.WithError(err).Debug("failed forwarding Bye to believed leader")
	}
}

// forwardTargetLocked reports whether this process is the believed leader
// and, if not, the address to forward a Hello/Bye to (the believed leader,
// if one is known).
func (c *core) forwardTargetLocked() (leaderAddr address.Address, haveLeader, isLeader bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	haveLeader = c.leader >= 0
	isLeader = haveLeader && c.leader == c.indexOfSelfLocked()
	if haveLeader && !isLeader {
		leaderAddr, _ = c.table.At(c.leader)
	}
	return leaderAddr, haveLeader, isLeader
}

// addPeerLocked and removePeerLocked mutate the membership table under c.mu,
// matching the thread-safety policy the rest of core's table access follows.
func (c *core) addPeerLocked(addr address.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Add(addr)
}

func (c *core) removePeerLocked(addr address.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Remove(addr)
}

// announceSelf broadcasts Hello(local) to every other known peer, used at
// Start() so the rest of the group discovers a newly joined process without
// out-of-band configuration (§4.1).
func (c *core) announceSelf() {
	payload := message.Hello{Address: c.local}
	data, err := c.encode(message.TagHello, payload)
	if err != nil {
		c.log.WithError(err).Error("failed encoding Hello")
		return
	}
	c.mu.Lock()
	peers := c.table.Peek()
	self := c.local
	c.mu.Unlock()
	var others []address.Address
	for _, p := range peers {
		if p != self {
			others = append(others, p)
		}
	}
	if err := c.broadcast(data, others); err != nil {
		c.log.WithError(err).Warn("Hello broadcast incomplete")
	}
}

// announceDeparture broadcasts Bye(local), mirroring announceSelf, called
// from Close() before the transport goes down.
func (c *core) announceDeparture() {
	payload := message.Bye{Address: c.local}
	data, err := c.encode(message.TagBye, payload)
	if err != nil {
		c.log.WithError(err).Error("failed encoding Bye")
		return
	}
	c.mu.Lock()
	peers := c.table.Peek()
	self := c.local
	c.mu.Unlock()
	var others []address.Address
	for _, p := range peers {
		if p != self {
			others = append(others, p)
		}
	}
	if err := c.broadcast(data, others); err != nil {
		c.log.WithError(err).Debug("Bye broadcast incomplete (peers may already be gone)")
	}
}
