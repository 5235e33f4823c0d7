package consensus

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/relab/flooding"
)

// PeerSet is a set of process IDs backed by a bitset.
// The zero value is an empty set ready to use.
type PeerSet struct {
	bits bitset.BitSet
}

// NewPeerSet returns a set containing the given IDs.
func NewPeerSet(ids ...flooding.ID) PeerSet {
	var s PeerSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add adds id to the set.
func (s *PeerSet) Add(id flooding.ID) {
	s.bits.Set(uint(id))
}

// Remove removes id from the set.
func (s *PeerSet) Remove(id flooding.ID) {
	s.bits.Clear(uint(id))
}

// Contains returns true if id is in the set.
func (s *PeerSet) Contains(id flooding.ID) bool {
	return s.bits.Test(uint(id))
}

// Len returns the number of IDs in the set.
func (s *PeerSet) Len() int {
	return int(s.bits.Count())
}

// Clone returns a copy of the set that does not share memory with s.
func (s *PeerSet) Clone() PeerSet {
	return PeerSet{bits: *s.bits.Clone()}
}

// Minus returns the IDs of s that are not in other.
func (s *PeerSet) Minus(other *PeerSet) PeerSet {
	return PeerSet{bits: *s.bits.Difference(&other.bits)}
}

// ContainsAll returns true if every ID of other is also in s.
func (s *PeerSet) ContainsAll(other *PeerSet) bool {
	return other.bits.DifferenceCardinality(&s.bits) == 0
}

// IDs returns the IDs of the set in ascending order.
func (s *PeerSet) IDs() []flooding.ID {
	ids := make([]flooding.ID, 0, s.Len())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		ids = append(ids, flooding.ID(i))
	}
	return ids
}

func (s PeerSet) String() string {
	return fmt.Sprint(s.IDs())
}
