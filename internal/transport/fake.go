package transport

import (
	"sync"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
)

// Broker wires a set of in-memory Fake transports together so unit and
// scenario tests (§8's end-to-end scenarios) can exercise the election core
// without opening real sockets. It is the test-only analogue of a physical
// network: Fake.Send looks up the destination's inbox on the Broker and
// pushes the datagram there.
type Broker struct {
	mu     sync.Mutex
	routes map[address.Address]*Fake
	// drop, when set, is consulted before every delivery; returning true
	// simulates a lost datagram, letting tests exercise lossy-link variants
	// deterministically.
	drop func(src, dst address.Address, data []byte) bool
}

// NewBroker creates an empty Broker. SetDropFunc can be used afterwards to
// simulate lossy links.
func NewBroker() *Broker {
	return &Broker{routes: make(map[address.Address]*Fake)}
}

// SetDropFunc installs a predicate consulted before every delivery.
func (b *Broker) SetDropFunc(f func(src, dst address.Address, data []byte) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop = f
}

// NewTransport creates and registers a Fake transport bound to local.
func (b *Broker) NewTransport(local address.Address) *Fake {
	f := &Fake{
		local:  local,
		broker: b,
		inbox:  make(chan Datagram, 256),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.routes[local] = f
	b.mu.Unlock()
	return f
}

func (b *Broker) deliver(src, dst address.Address, data []byte) (missing int, err error) {
	b.mu.Lock()
	drop := b.drop
	target, ok := b.routes[dst]
	b.mu.Unlock()

	if drop != nil && drop(src, dst, data) {
		return len(data), nil // dropped silently, as a lossy UDP link would
	}
	if !ok {
		return len(data), errUnknownDestination{dst}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case target.inbox <- Datagram{Data: cp, Src: src}:
		return 0, nil
	case <-target.closed:
		return len(data), ErrClosed
	}
}

type errUnknownDestination struct{ dst address.Address }

func (e errUnknownDestination) Error() string {
	return "transport: no route to " + e.dst.String()
}

// Fake is an in-memory Transport implementation backed by a Broker.
type Fake struct {
	local     address.Address
	broker    *Broker
	inbox     chan Datagram
	closeOnce sync.Once
	closed    chan struct{}
}

func (f *Fake) LocalAddr() address.Address { return f.local }

func (f *Fake) Send(data []byte, dst address.Address) (int, error) {
	return f.broker.deliver(f.local, dst, data)
}

func (f *Fake) Recv() (Datagram, error) {
	select {
	case dg := <-f.inbox:
		return dg, nil
	case <-f.closed:
		return Datagram{}, ErrClosed
	}
}

func (f *Fake) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}
