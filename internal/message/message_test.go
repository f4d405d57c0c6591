package message

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
)

func TestStartRoundTrip(t *testing.T) {
	want := Start{Round: 7, Timestamp: 1234.5}
	raw, err := Encode(TagStart, want)
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, TagStart, env.Tag)

	got, err := env.DecodeStart()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestOkWithFullPeerListRoundTrip(t *testing.T) {
	peers := []address.Address{address.New("a", 1), address.New("b", 2)}
	want := Ok{Round: 3, Peers: FullList(peers), Offset: 0.01, Delay: 0.02}

	raw, err := Encode(TagOk, want)
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)
	got, err := env.DecodeOk()
	require.NoError(t, err)

	require.Equal(t, want.Round, got.Round)
	require.True(t, got.Peers.Full)
	require.Equal(t, peers, got.Peers.Peers)
}

func TestOkWithCountOnlyRoundTrip(t *testing.T) {
	want := Ok{Round: 3, Peers: JustCount(5)}

	raw, err := Encode(TagOk, want)
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)
	got, err := env.DecodeOk()
	require.NoError(t, err)

	require.False(t, got.Peers.Full)
	require.Equal(t, 5, got.Peers.Count)
}

func TestHelloAddressSurvivesArrayDecoding(t *testing.T) {
	addr := address.New("10.0.0.5", 9001)
	raw, err := Encode(TagHello, Hello{Address: addr})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	got, err := env.DecodeHello()
	require.NoError(t, err)

	// Exercises the JSON-list-vs-tuple bug called out in §9: the address
	// must decode to the same comparable value used for membership
	// look-ups, not a distinct list representation.
	require.Equal(t, addr, got.Address)
}

func TestDecodeRejectsMissingTag(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{}}`))
	require.Error(t, err)
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	env, err := Decode([]byte(`{"tag":"Start","payload":{"round":"not-a-number"}}`))
	require.NoError(t, err)
	_, err = env.DecodeStart()
	require.Error(t, err)
}
