package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

func TestLossyONThreePeersConvergeDespiteDroppedMessages(t *testing.T) {
	broker := transport.NewBroker()
	dropped := 0
	broker.SetDropFunc(func(src, dst address.Address, data []byte) bool {
		dropped++
		return dropped%5 == 0 // drop one in five datagrams
	})
	addrs := testAddrs(3)

	var electors []Elector
	for _, a := range addrs {
		tr := broker.NewTransport(a)
		e, err := New(VariantLossyON, Config{
			Local: a, Peers: addrs, D: 20 * time.Millisecond, Transport: tr,
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
		_, ok := waitForLeader(t, e, 2*time.Second)
		require.True(t, ok, "elector should eventually confirm a leader despite dropped datagrams")
	}
}

func TestLossyONDiscardsStaleStart(t *testing.T) {
	broker := transport.NewBroker()
	addrs := testAddrs(2)
	tr := broker.NewTransport(addrs[0])
	l := newLossyON(Config{Local: addrs[0], Peers: addrs, D: 50 * time.Millisecond, Transport: tr})

	for i := 0; i < 20; i++ {
		l.links.AckSample(addrs[1], 0, 0.01, 0.01, 0.02) // steady ~0.01s delay, zero variance
	}

	staleStart := message.Start{Timestamp: 0}
	require.True(t, l.links.Discard(staleStart, addrs[1], 1000), "a message from the distant past must be judged stale")
}
