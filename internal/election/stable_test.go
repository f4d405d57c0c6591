package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

func TestStableThreePeersConvergeOnSameLeader(t *testing.T) {
	broker := transport.NewBroker()
	addrs := testAddrs(3)

	var electors []Elector
	for _, a := range addrs {
		tr := broker.NewTransport(a)
		e, err := New(VariantStable, Config{
			Local: a, Peers: addrs, D: 10 * time.Millisecond, Transport: tr,
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
		leader, ok := waitForLeader(t, e, time.Second)
		require.True(t, ok)
		require.Equal(t, 0, leader)
	}
}

func TestStableLeaderDoesNotConfirmWithoutTwoOks(t *testing.T) {
	broker := transport.NewBroker()
	addrs := testAddrs(2)

	tr0 := broker.NewTransport(addrs[0])
	s := newStable(Config{Local: addrs[0], Peers: addrs, D: 50 * time.Millisecond, Transport: tr0})

	s.handlerMu.Lock()
	s.startRound(0)
	s.handlerMu.Unlock()

	_, ok := s.LeaderIndex()
	require.False(t, ok, "no leader should be confirmed before two Oks arrive")

	s.handlerMu.Lock()
	s.handleOk(okMsg(0, 2))
	s.handlerMu.Unlock()
	_, ok = s.LeaderIndex()
	require.False(t, ok, "a single Ok must not confirm a leader")

	s.handlerMu.Lock()
	s.handleOk(okMsg(0, 2))
	s.handlerMu.Unlock()
	leader, ok := s.LeaderIndex()
	require.True(t, ok, "a second Ok for the same round should confirm the leader")
	require.Equal(t, 0, leader)
}
