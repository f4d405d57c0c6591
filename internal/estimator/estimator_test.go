package estimator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
)

type fakeMsg struct{ sendTime float64 }

func (f fakeMsg) SendTime() float64 { return f.sendTime }

func TestDiscardWithNoSamplesAccepts(t *testing.T) {
	e := New(0.1)
	peer := address.New("leader", 1)
	require.False(t, e.Discard(fakeMsg{sendTime: 0}, peer, 100))
}

func TestAckSampleProducesNonNegativeDelay(t *testing.T) {
	e := New(0.1)
	peer := address.New("leader", 1)

	// C0(t1)=0, C1(t2)=0.01, C1(t3)=0.015, C0(t4)=0.02
	e.AckSample(peer, 0, 0.01, 0.015, 0.02)

	d := e.D(peer)
	require.Equal(t, 1, d.Count)
	require.GreaterOrEqual(t, d.Avg, 0.0)
}

func TestDiscardWidensBandBelowTenSamples(t *testing.T) {
	e := New(0.05)
	peer := address.New("leader", 1)
	for i := 0; i < 5; i++ {
		e.AckSample(peer, 0, 0.01, 0.011, 0.02)
	}
	d := e.D(peer)
	require.Less(t, d.Count, 10)

	// A message timestamped 0.035s in the past, with avg delay ~0.0095s,
	// is judged using avg/3 as the widened MAD per §4.6:
	// 0.035 + 0.0095 + 3*(0.0095/3) = 0.054s > d = 0.05s, so it is dropped.
	// The samples' own MAD (0) would have given 0.0445s and accepted it.
	accepted := !e.Discard(fakeMsg{sendTime: -0.035}, peer, 0)
	require.False(t, accepted, "the widened band below ten samples should push this message past d")
}

func TestDiscardExactThresholdScenarioFromSpec(t *testing.T) {
	// §8 scenario 4: avg=0.02s, "σ"=0.002s (n>=10), timestamp 0.05s old.
	// estimated_delay = 0.05 + 0.02 + 3*0.002 = 0.076s.
	e := New(0.1)
	peer := address.New("leader", 1)
	seedDelaySamples(e, peer, 0.02, 0.002, 20)

	now := 100.0
	msg := fakeMsg{sendTime: now - 0.05}

	require.False(t, e.Discard(msg, peer, now), "0.076s should be accepted when d=0.1s")

	tight := New(0.05)
	seedDelaySamples(tight, peer, 0.02, 0.002, 20)
	require.True(t, tight.Discard(msg, peer, now), "0.076s should be discarded when d=0.05s")
}

// seedDelaySamples directly seeds a peer's delay Stat for deterministic
// threshold tests, bypassing the Ack-derived computation.
func seedDelaySamples(e *ExpiringLinks, peer address.Address, avg, mad float64, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pi := e.entry(peer)
	pi.delay = Stat{Avg: avg, MAD: mad, Count: n}
}
