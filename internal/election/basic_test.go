package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

func testAddrs(n int) []address.Address {
	out := make([]address.Address, n)
	for i := 0; i < n; i++ {
		out[i] = address.New(string(rune('a'+i))+"-node", 9000+i)
	}
	return out
}

func waitForLeader(t *testing.T, e Elector, timeout time.Duration) (int, bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if l, ok := e.LeaderIndex(); ok {
			return l, ok
		}
		time.Sleep(2 * time.Millisecond)
	}
	return e.LeaderIndex()
}

func TestBasicThreePeersConvergeOnSameLeader(t *testing.T) {
	broker := transport.NewBroker()
	addrs := testAddrs(3)

	var electors []Elector
	for i, a := range addrs {
		tr := broker.NewTransport(a)
		e, err := New(VariantBasic, Config{
			Local: a, Peers: addrs, D: 10 * time.Millisecond, Transport: tr,
		})
		require.NoError(t, err)
		require.NoError(t, e.Start())
		electors = append(electors, e)
		_ = i
	}
	defer func() {
		for _, e := range electors {
			e.Close()
		}
	}()

	for _, e := range electors {
		leader, ok := waitForLeader(t, e, time.Second)
		require.True(t, ok)
		require.Equal(t, 0, leader) // round 0's leader is always index 0
	}
}

func TestBasicLeaderCrashTriggersReelection(t *testing.T) {
	broker := transport.NewBroker()
	addrs := testAddrs(3)

	var electors []Elector
	for _, a := range addrs {
		tr := broker.NewTransport(a)
		e, err := New(VariantBasic, Config{
			Local: a, Peers: addrs, D: 10 * time.Millisecond, Transport: tr,
		})
		require.NoError(t, err)
		require.NoError(t, e.Start())
		electors = append(electors, e)
	}

	for _, e := range electors {
		_, ok := waitForLeader(t, e, time.Second)
		require.True(t, ok)
	}

	require.NoError(t, electors[0].Close())

	deadline := time.Now().Add(2 * time.Second)
	newLeaderConfirmed := false
	for time.Now().Before(deadline) {
		l1, ok1 := electors[1].LeaderIndex()
		l2, ok2 := electors[2].LeaderIndex()
		if ok1 && ok2 && l1 == l2 && l1 != 0 {
			newLeaderConfirmed = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, newLeaderConfirmed, "surviving peers should agree on a new leader after the old one is gone")

	electors[1].Close()
	electors[2].Close()
}
