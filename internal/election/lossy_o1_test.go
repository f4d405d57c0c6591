package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

func TestLossyO1ThreePeersConvergeOnSameLeader(t *testing.T) {
	broker := transport.NewBroker()
	addrs := testAddrs(3)

	var electors []Elector
	for _, a := range addrs {
		tr := broker.NewTransport(a)
		e, err := New(VariantLossyO1, Config{
			Local: a, Peers: addrs, D: 15 * time.Millisecond, Transport: tr,
		})
		require.NoError(t, err)
		require.NoError(t, e.Start())
		electors = append(electors, e)
	}
	defer func() {
		for _, e := range electors {
			e.Close()
		}
	}()

	for _, e := range electors {
		_, ok := waitForLeader(t, e, time.Second)
		require.True(t, ok)
	}
}

func TestLossyO1SuppressesConfirmationAfterRecentAlert(t *testing.T) {
	addrs := testAddrs(2)
	l := &LossyO1{core: newCore(string(VariantLossyO1), addrs[0], addrs, 10*time.Millisecond, nil, noopTransport{addrs[0]}, nil)}

	l.mu.Lock()
	l.lastAlert = alertRecord{valid: true, round: 5, timestamp: 1000}
	suppressedStale := l.suppressConfirmLocked(3, 1000.01) // stale round, well within 6d
	suppressedFresh := l.suppressConfirmLocked(5, 1000.01) // same round as the alert: not suppressed
	l.mu.Unlock()

	require.True(t, suppressedStale, "an Ok for an older round than the last Alert must be suppressed")
	require.False(t, suppressedFresh, "an Ok at least as new as the last Alert must not be suppressed")
}

// noopTransport is a minimal Transport stub for tests that only need a
// LocalAddr and never actually send/receive.
type noopTransport struct {
	local address.Address
}

func (n noopTransport) LocalAddr() address.Address { return n.local }
func (n noopTransport) Send([]byte, address.Address) (int, error) { return 0, nil }
func (n noopTransport) Recv() (transport.Datagram, error) {
	select {}
}
func (n noopTransport) Close() error { return nil }
