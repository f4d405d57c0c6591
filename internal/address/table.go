package address

import "sort"

// Table is the membership table: a sorted, deduplicated sequence of peer
// addresses, always containing the local address, plus a dirty flag set
// whenever the sequence changes since the last snapshot. It is not
// internally synchronized — callers that share a Table across goroutines
// (the election core does) must guard it with their own mutex, per §5's
// "membership table is the only data structure accessed from more than one
// thread" shared-resource policy.
type Table struct {
	peers []Address
	dirty bool
}

// NewTable builds a Table containing local and every address in peers,
// sorted and deduplicated.
func NewTable(local Address, peers ...Address) *Table {
	t := &Table{}
	seen := map[Address]bool{local: true}
	t.peers = append(t.peers, local)
	for _, p := range peers {
		if seen[p] {
			continue
		}
		seen[p] = true
		t.peers = append(t.peers, p)
	}
	t.sort()
	return t
}

func (t *Table) sort() {
	sort.Slice(t.peers, func(i, j int) bool { return t.peers[i].Less(t.peers[j]) })
}

// Len returns n, the number of known peers.
func (t *Table) Len() int { return len(t.peers) }

// IndexOf returns the index of addr within the sorted sequence, or -1 if
// addr is not (yet) known.
func (t *Table) IndexOf(addr Address) int {
	for i, p := range t.peers {
		if p == addr {
			return i
		}
	}
	return -1
}

// At returns the address at index i, and whether i was in range.
func (t *Table) At(i int) (Address, bool) {
	if i < 0 || i >= len(t.peers) {
		return Address{}, false
	}
	return t.peers[i], true
}

// Add inserts addr if unknown, re-sorts, and marks the table dirty. Returns
// whether the table actually changed.
func (t *Table) Add(addr Address) bool {
	if t.IndexOf(addr) >= 0 {
		return false
	}
	t.peers = append(t.peers, addr)
	t.sort()
	t.dirty = true
	return true
}

// Remove deletes addr if known, marks the table dirty. Returns whether the
// table actually changed.
func (t *Table) Remove(addr Address) bool {
	idx := t.IndexOf(addr)
	if idx < 0 {
		return false
	}
	t.peers = append(t.peers[:idx], t.peers[idx+1:]...)
	t.dirty = true
	return true
}

// Replace overwrites the table wholesale (used when a follower resyncs from
// the leader's authoritative Ok.peers) and marks it dirty.
func (t *Table) Replace(peers []Address) {
	t.peers = append([]Address(nil), peers...)
	t.sort()
	t.dirty = true
}

// Dirty reports whether the table changed since the last Snapshot.
func (t *Table) Dirty() bool { return t.dirty }

// Snapshot atomically clones the list and clears the dirty flag, per §5's
// snapshot() operation.
func (t *Table) Snapshot() []Address {
	out := make([]Address, len(t.peers))
	copy(out, t.peers)
	t.dirty = false
	return out
}

// Peek returns the current sequence without clearing the dirty flag. Used
// by callers that need to iterate peers but are not the ones responsible
// for deciding whether to redistribute the dirty list (e.g. broadcasting a
// message that isn't Ok).
func (t *Table) Peek() []Address {
	out := make([]Address, len(t.peers))
	copy(out, t.peers)
	return out
}
