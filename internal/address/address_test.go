package address

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressJSONRoundTrip(t *testing.T) {
	a := New("peer-1", 4000)
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `["peer-1",4000]`, string(raw))

	var got Address
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, a, got)
}

func TestTableAlwaysContainsLocalAndIsSorted(t *testing.T) {
	local := New("b", 1)
	tbl := NewTable(local, New("c", 1), New("a", 1))

	require.Equal(t, 3, tbl.Len())
	prev, _ := tbl.At(0)
	for i := 1; i < tbl.Len(); i++ {
		cur, _ := tbl.At(i)
		require.True(t, prev.Less(cur) || prev == cur)
		prev = cur
	}
	require.Equal(t, 1, tbl.IndexOf(local))
}

func TestTableAddRemoveMarksDirty(t *testing.T) {
	tbl := NewTable(New("a", 1))
	require.False(t, tbl.Dirty())

	require.True(t, tbl.Add(New("b", 1)))
	require.True(t, tbl.Dirty())

	snap := tbl.Snapshot()
	require.Len(t, snap, 2)
	require.False(t, tbl.Dirty())

	require.True(t, tbl.Remove(New("b", 1)))
	require.True(t, tbl.Dirty())
	require.Equal(t, 1, tbl.Len())
}

func TestTableAddDuplicateIsNoop(t *testing.T) {
	tbl := NewTable(New("a", 1))
	tbl.Snapshot()
	require.False(t, tbl.Add(New("a", 1)))
	require.False(t, tbl.Dirty())
}
